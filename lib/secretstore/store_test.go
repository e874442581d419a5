package secretstore

import (
	"os"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brainrake/hercules-ci-agent/lib/sealed"
)

// buildEncryptedStore creates a small SQLite database with the given
// rows, encrypts it to keypair.PublicKey, and writes the ciphertext to
// a file under t.TempDir(). Returns the file path.
func buildEncryptedStore(t *testing.T, publicKey string, rows [][3]string) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "plain.sqlite")
	conn, err := sqlite.OpenConn(dbPath, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		t.Fatalf("opening plaintext store: %v", err)
	}

	err = sqlitex.ExecuteScript(conn, `
		CREATE TABLE secrets (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			condition TEXT
		);
	`, nil)
	if err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	for _, row := range rows {
		name, data, cond := row[0], row[1], row[2]
		var condArg any
		if cond == "" {
			condArg = nil
		} else {
			condArg = cond
		}
		err = sqlitex.Execute(conn, "INSERT INTO secrets (name, data, condition) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
			Args: []any{name, data, condArg},
		})
		if err != nil {
			t.Fatalf("inserting row %q: %v", name, err)
		}
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("closing plaintext store: %v", err)
	}

	plaintext, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("reading plaintext store: %v", err)
	}

	ciphertext, err := sealed.Encrypt(plaintext, []string{publicKey})
	if err != nil {
		t.Fatalf("encrypting store: %v", err)
	}

	encryptedPath := filepath.Join(t.TempDir(), "secrets.db")
	if err := os.WriteFile(encryptedPath, ciphertext, 0600); err != nil {
		t.Fatalf("writing encrypted store: %v", err)
	}
	return encryptedPath
}

func TestLoadNoPathConfigured(t *testing.T) {
	result, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	secrets := result.Reveal()
	if len(secrets) != 0 {
		t.Errorf("Load(\"\") = %d entries, want 0", len(secrets))
	}
}

func TestLoadRoundTrip(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer keypair.Close()

	path := buildEncryptedStore(t, keypair.PublicKey, [][3]string{
		{"deploy", `{"k":"v"}`, `{"IsBranch":"main"}`},
		{"readonly-token", `{"token":"abc"}`, ""},
	})

	result, err := Load(path, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	secrets := result.Reveal()

	deploy, ok := secrets["deploy"]
	if !ok {
		t.Fatal(`Load() missing "deploy" entry`)
	}
	if deploy.Data["k"] != "v" {
		t.Errorf("deploy.Data[%q] = %v, want %q", "k", deploy.Data["k"], "v")
	}
	if deploy.Condition == nil {
		t.Fatal("deploy.Condition = nil, want IsBranch(main)")
	}

	readonlyToken, ok := secrets["readonly-token"]
	if !ok {
		t.Fatal(`Load() missing "readonly-token" entry`)
	}
	if readonlyToken.Condition != nil {
		t.Errorf("readonly-token.Condition = %v, want nil", readonlyToken.Condition)
	}
}

func TestLoadWrongKeyFails(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer keypair.Close()

	wrongKeypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer wrongKeypair.Close()

	path := buildEncryptedStore(t, keypair.PublicKey, [][3]string{
		{"deploy", `{"k":"v"}`, ""},
	})

	_, err = Load(path, wrongKeypair.PrivateKey)
	if err == nil {
		t.Fatal("Load() with wrong key should fail")
	}
	var unparseable *Unparseable
	if !asUnparseable(err, &unparseable) {
		t.Errorf("Load() error = %v, want *Unparseable", err)
	}
}

func asUnparseable(err error, target **Unparseable) bool {
	u, ok := err.(*Unparseable)
	if ok {
		*target = u
	}
	return ok
}
