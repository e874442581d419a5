package provisioner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brainrake/hercules-ci-agent/lib/condition"
	"github.com/brainrake/hercules-ci-agent/lib/secretstore"
)

func readSecretsJSON(t *testing.T, destDir string) map[string]outputSecret {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(destDir, "secrets.json"))
	if err != nil {
		t.Fatalf("reading secrets.json: %v", err)
	}
	var out map[string]outputSecret
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshaling secrets.json: %v", err)
	}
	return out
}

func TestProvisionEmptyMapWritesNothing(t *testing.T) {
	destDir := t.TempDir()
	err := Provision(Params{
		SecretsMap: nil,
		DestDir:    destDir,
	})
	if err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "secrets.json")); !os.IsNotExist(err) {
		t.Error("secrets.json should not exist for an empty secretsMap")
	}
}

func TestProvisionGrant(t *testing.T) {
	destDir := t.TempDir()
	branch := "main"
	cond := condition.IsBranch(branch)

	err := Provision(Params{
		Context: &condition.Context{Repo: "acme/widgets", Branch: "main"},
		SourcePath: "",
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}, Condition: &cond},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	out := readSecretsJSON(t, destDir)
	entry, ok := out["aws"]
	if !ok {
		t.Fatal(`secrets.json missing "aws" entry`)
	}
	if entry.Condition != nil {
		t.Errorf("entry.Condition = %v, want nil (stripped)", entry.Condition)
	}
	if entry.Data["k"] != "v" {
		t.Errorf("entry.Data[%q] = %v, want %q", "k", entry.Data["k"], "v")
	}
}

func TestProvisionDenyStrict(t *testing.T) {
	destDir := t.TempDir()
	cond := condition.IsBranch("main")

	err := Provision(Params{
		Friendly: false,
		Context:  &condition.Context{Repo: "acme/widgets", Branch: "feature"},
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}, Condition: &cond},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err == nil {
		t.Fatal("Provision() should fail when the condition evaluates false in strict mode")
	}
	var denied *AccessDenied
	if !asAccessDenied(err, &denied) {
		t.Fatalf("Provision() error = %v, want *AccessDenied", err)
	}
	if _, statErr := os.Stat(filepath.Join(destDir, "secrets.json")); !os.IsNotExist(statErr) {
		t.Error("secrets.json should not exist after a denied provision")
	}
}

func TestProvisionDenyFriendlyIncludesTrace(t *testing.T) {
	destDir := t.TempDir()
	cond := condition.IsBranch("main")

	err := Provision(Params{
		Friendly: true,
		Context:  &condition.Context{Repo: "acme/widgets", Branch: "feature"},
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}, Condition: &cond},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err == nil {
		t.Fatal("Provision() should fail when the condition evaluates false")
	}
	var denied *AccessDenied
	if !asAccessDenied(err, &denied) {
		t.Fatalf("Provision() error = %v, want *AccessDenied", err)
	}
	if len(denied.Trace) == 0 {
		t.Error("denied.Trace should be populated in friendly mode with a context")
	}
}

func TestProvisionStrictMissingCondition(t *testing.T) {
	destDir := t.TempDir()
	err := Provision(Params{
		Friendly: false,
		Context:  &condition.Context{Repo: "acme/widgets", Branch: "main"},
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err == nil {
		t.Fatal("Provision() should fail: strict mode requires a condition")
	}
	var missing *ConditionMissing
	if !asConditionMissing(err, &missing) {
		t.Fatalf("Provision() error = %v, want *ConditionMissing", err)
	}
}

func TestProvisionFriendlyMissingConditionAllows(t *testing.T) {
	destDir := t.TempDir()
	err := Provision(Params{
		Friendly: true,
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	out := readSecretsJSON(t, destDir)
	if _, ok := out["aws"]; !ok {
		t.Fatal(`secrets.json missing "aws" entry`)
	}
}

func TestProvisionFriendlyNoContextSkipsAccessControl(t *testing.T) {
	destDir := t.TempDir()
	cond := condition.IsBranch("main")
	err := Provision(Params{
		Friendly: true,
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}, Condition: &cond},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	})
	if err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	out := readSecretsJSON(t, destDir)
	if _, ok := out["aws"]; !ok {
		t.Fatal(`secrets.json missing "aws" entry`)
	}
}

func TestProvisionMissingSource(t *testing.T) {
	destDir := t.TempDir()
	err := Provision(Params{
		Friendly:   true,
		SecretsMap: map[string]string{"aws": "nonexistent"},
		DestDir:    destDir,
	})
	if err == nil {
		t.Fatal("Provision() should fail: source secret not found")
	}
	var denied *AccessDenied
	if !asAccessDenied(err, &denied) {
		t.Fatalf("Provision() error = %v, want *AccessDenied", err)
	}
}

func TestProvisionTwiceIsByteIdentical(t *testing.T) {
	destDir := t.TempDir()
	cond := condition.IsBranch("main")
	params := Params{
		Context: &condition.Context{Repo: "acme/widgets", Branch: "main"},
		ExtraSecrets: map[string]secretstore.Secret{
			"deploy": {Data: map[string]any{"k": "v"}, Condition: &cond},
		},
		SecretsMap: map[string]string{"aws": "deploy"},
		DestDir:    destDir,
	}

	if err := Provision(params); err != nil {
		t.Fatalf("first Provision() error: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(destDir, "secrets.json"))
	if err != nil {
		t.Fatalf("reading first secrets.json: %v", err)
	}

	if err := Provision(params); err != nil {
		t.Fatalf("second Provision() error: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(destDir, "secrets.json"))
	if err != nil {
		t.Fatalf("reading second secrets.json: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("secrets.json differs between runs:\n%s\nvs\n%s", first, second)
	}
}

func asAccessDenied(err error, target **AccessDenied) bool {
	d, ok := err.(*AccessDenied)
	if ok {
		*target = d
	}
	return ok
}

func asConditionMissing(err error, target **ConditionMissing) bool {
	m, ok := err.(*ConditionMissing)
	if ok {
		*target = m
	}
	return ok
}
