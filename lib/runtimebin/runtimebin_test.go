package runtimebin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindOnPath(t *testing.T) {
	path, err := Find("sh", "")
	if err != nil {
		t.Fatalf("Find(sh) error: %v", err)
	}
	if path == "" {
		t.Error("Find(sh) returned empty path")
	}
}

func TestFindFallbackDir(t *testing.T) {
	dir := t.TempDir()
	binaryPath := filepath.Join(dir, "my-runtime")
	if err := os.WriteFile(binaryPath, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}

	path, err := Find("my-runtime", dir)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if path != binaryPath {
		t.Errorf("Find() = %q, want %q", path, binaryPath)
	}
}

func TestFindNotFound(t *testing.T) {
	_, err := Find("definitely-not-a-real-binary-xyz", t.TempDir())
	if err == nil {
		t.Error("Find() should fail for a nonexistent binary")
	}
}

func TestFindWorkerRequiresName(t *testing.T) {
	_, err := FindWorker("", "")
	if err == nil {
		t.Error("FindWorker() should fail with an empty name")
	}
}
