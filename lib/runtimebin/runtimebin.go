// Package runtimebin resolves the two external binaries the Effect
// Execution Core shells out to: the OCI-style low-level container
// runtime (invoked with a "run" verb against a materialized spec) and
// the worker subprocess binary (invoked with a verb like "eval",
// "build", or "nix-daemon"). Both are resolved the same way: PATH
// first, then a well-known fallback install directory — the
// Determinate Nix installation pattern from the teacher's lib/nix,
// generalized to a configurable fallback directory per binary kind.
package runtimebin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// defaultFallbackDir is checked when a binary is not found on PATH.
// This mirrors Determinate Nix's out-of-PATH install location; an
// OCI-style runtime and its companion worker binary are commonly
// installed alongside it.
const defaultFallbackDir = "/nix/var/nix/profiles/default/bin"

// Find resolves a binary by name, checking PATH first and then
// fallbackDir (defaultFallbackDir if fallbackDir is empty). Returns
// the absolute path to the binary.
func Find(name string, fallbackDir string) (string, error) {
	if fallbackDir == "" {
		fallbackDir = defaultFallbackDir
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	fallbackPath := filepath.Join(fallbackDir, name)
	if info, err := os.Stat(fallbackPath); err == nil && !info.IsDir() {
		return fallbackPath, nil
	}

	return "", fmt.Errorf("runtimebin: %q not found on PATH or at %s", name, fallbackPath)
}

// FindRuntime resolves the OCI-style low-level container runtime
// binary (e.g. "runc", "crun").
func FindRuntime(name string, fallbackDir string) (string, error) {
	if name == "" {
		name = "runc"
	}
	return Find(name, fallbackDir)
}

// FindWorker resolves the worker subprocess binary.
func FindWorker(name string, fallbackDir string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("runtimebin: worker binary name is required")
	}
	return Find(name, fallbackDir)
}
