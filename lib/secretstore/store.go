// Package secretstore implements the Secret Store Reader: it loads
// the secret database file — an age-encrypted SQLite database — and
// exposes its contents as a sensitive mapping from secret name to
// [Secret].
//
// Grounded on [lib/sealed] for the decrypt step and on the teacher's
// lib/sqlitepool pragma discipline for the SQLite open, adapted to a
// single short-lived read-only connection rather than a pool: a
// secret store is opened once per effect run and never written back
// to, so there is no contention to pool against.
package secretstore

import (
	"fmt"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brainrake/hercules-ci-agent/lib/condition"
	"github.com/brainrake/hercules-ci-agent/lib/secret"
	"github.com/brainrake/hercules-ci-agent/lib/sealed"
	"github.com/brainrake/hercules-ci-agent/lib/sensitive"
)

// Secret is one entry of the secret store: the material handed to the
// consumer (Data) and the access condition that governs whether a
// given run may receive it (Condition, nil meaning "no condition
// recorded").
type Secret struct {
	Data      map[string]any
	Condition *condition.Condition
}

// Unparseable reports that the secret database file exists but could
// not be read as a valid (decrypted, then SQLite-opened) secret
// store: a truncated age ciphertext, a wrong key, or a file that
// doesn't parse as a SQLite database once decrypted.
type Unparseable struct {
	Path string
	Err  error
}

func (e *Unparseable) Error() string {
	return fmt.Sprintf("secretstore: %s: unparseable: %v", e.Path, e.Err)
}

func (e *Unparseable) Unwrap() error { return e.Err }

// Load reads the secret database file at path, decrypts it with
// privateKey, and returns its contents as a sensitive mapping from
// secret name to [Secret].
//
// If path is empty, Load performs no I/O and returns an empty mapping
// — "no path configured" is not an error. If the file exists but
// cannot be decrypted or parsed, Load fails with [*Unparseable].
//
// Reading is eager: the whole store is decrypted and queried once per
// call, matching one read per effect run.
func Load(path string, privateKey *secret.Buffer) (sensitive.Value[map[string]Secret], error) {
	if path == "" {
		return sensitive.Wrap(map[string]Secret{}), nil
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return sensitive.Value[map[string]Secret]{}, &Unparseable{Path: path, Err: err}
	}

	plaintext, err := sealed.Decrypt(ciphertext, privateKey)
	if err != nil {
		return sensitive.Value[map[string]Secret]{}, &Unparseable{Path: path, Err: err}
	}
	defer plaintext.Close()

	secrets, err := readSQLiteSecrets(plaintext.Bytes())
	if err != nil {
		return sensitive.Value[map[string]Secret]{}, &Unparseable{Path: path, Err: err}
	}

	return sensitive.Wrap(secrets), nil
}

// readSQLiteSecrets writes plaintext to a private temp file (so
// zombiezen/sqlite has a path to open — it has no in-memory byte-slice
// backend), opens it read-only with immutable=1 (the decrypted copy
// is never written back), and reads the secrets table. The temp file
// is removed when this function returns, after the connection has
// been closed; until then it is reachable by path.
func readSQLiteSecrets(plaintext []byte) (map[string]Secret, error) {
	tempFile, err := os.CreateTemp("", "secretstore-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("creating temp file for decrypted store: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(plaintext); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("writing decrypted store to temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file for decrypted store: %w", err)
	}

	uri := fmt.Sprintf("file:%s?mode=ro&immutable=1", filepath.ToSlash(tempPath))
	conn, err := sqlite.OpenConn(uri, sqlite.OpenReadOnly|sqlite.OpenURI)
	if err != nil {
		return nil, fmt.Errorf("opening decrypted store as sqlite: %w", err)
	}
	defer conn.Close()

	secrets := make(map[string]Secret)
	err = sqlitex.Execute(conn, "SELECT name, data, condition FROM secrets", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			name := stmt.ColumnText(0)
			dataJSON := stmt.ColumnText(1)

			secretEntry := Secret{}
			if err := unmarshalDataField(dataJSON, &secretEntry.Data); err != nil {
				return fmt.Errorf("secret %q: data field: %w", name, err)
			}

			if stmt.ColumnType(2) != sqlite.TypeNull {
				conditionJSON := stmt.ColumnText(2)
				var cond condition.Condition
				if err := unmarshalConditionField(conditionJSON, &cond); err != nil {
					return fmt.Errorf("secret %q: condition field: %w", name, err)
				}
				secretEntry.Condition = &cond
			}

			secrets[name] = secretEntry
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying secrets table: %w", err)
	}

	return secrets, nil
}
