// Package container implements the Container Runner: it builds an
// OCI-style JSON runtime spec from a [Config], materializes it under
// a state directory, and invokes an external low-level runtime binary
// (runc-compatible) with a "run" verb to execute it.
//
// Grounded on the teacher's sandbox.Sandbox — the builder-then-invoke
// shape, explicit minimal child environment to prevent
// /proc/<pid>/environ secret leakage, process-group isolation, and the
// ExitError/IsExitError convention for surfacing a non-zero exit code
// without treating it as a Go error — adapted from bwrap
// argument-assembly to materializing and pointing a runtime binary at
// a JSON spec file, since this core delegates to an OCI-style runtime
// rather than owning sandbox construction itself.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// BindMount describes one host path exposed inside the container.
type BindMount struct {
	PathInContainer string
	PathInHost      string
	ReadOnly        bool
}

// Config is the Container Runner's input: everything needed to
// construct one container invocation.
type Config struct {
	// ExtraBindMounts are the host bind mounts to expose. The effect
	// runner passes its base set (/build, /etc, /secrets,
	// /etc/resolv.conf, the daemon socket) here together with any
	// caller extras; Run itself adds only /proc, /dev and /sys.
	ExtraBindMounts []BindMount

	// Executable is the path to the builder, resolved inside the
	// container's mount namespace.
	Executable string

	// Arguments is the builder's argv, not including argv[0].
	Arguments []string

	// Environment is the complete in-container environment (already
	// composed by the caller — see the effect runner's env
	// composition).
	Environment map[string]string

	// WorkingDirectory is the builder's cwd inside the container.
	WorkingDirectory string

	// Hostname is the container's hostname.
	Hostname string

	// RootReadOnly marks the container's root filesystem read-only.
	RootReadOnly bool

	// Stdout receives the builder's combined stdout/stderr stream. If
	// nil, it is forwarded to this process's stderr.
	Stdout io.Writer
}

// ExitError represents a non-zero exit from the runtime binary or the
// container process it launched. It is a signal, not a failure of the
// Container Runner itself — callers should check for it with
// [IsExitError] rather than treating every non-nil Run error as
// infrastructure failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container: exited with code %d", e.Code)
}

// IsExitError reports whether err is an *ExitError and returns its
// code.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}

// Runner invokes the external OCI-style runtime binary.
type Runner struct {
	// RuntimeBinaryPath is the resolved path to the runtime binary
	// (see [lib/runtimebin]).
	RuntimeBinaryPath string
}

// NewRunner constructs a Runner bound to a resolved runtime binary.
func NewRunner(runtimeBinaryPath string) *Runner {
	return &Runner{RuntimeBinaryPath: runtimeBinaryPath}
}

// Run materializes cfg as an OCI-style JSON spec under stateDir,
// invokes the runtime binary with a "run" verb against it, forwards
// stdout/stderr to cfg.Stdout (or this process's stderr if nil), and
// returns the child's exit code.
//
// If a bind-mount source is missing on the host, Run fails before
// launching the runtime, naming the missing source. A non-zero
// runtime exit code is reported via [*ExitError], not treated as an
// infrastructure error: callers distinguish the two with
// [IsExitError].
func (r *Runner) Run(ctx context.Context, stateDir string, cfg Config) error {
	for _, mount := range cfg.ExtraBindMounts {
		if _, err := os.Stat(mount.PathInHost); err != nil {
			return fmt.Errorf("container: bind mount source %q (for %q) is missing: %w",
				mount.PathInHost, mount.PathInContainer, err)
		}
	}

	spec := buildSpec(cfg)
	specPath := filepath.Join(stateDir, "config.json")
	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("container: marshaling runtime spec: %w", err)
	}
	if err := os.WriteFile(specPath, specJSON, 0600); err != nil {
		return fmt.Errorf("container: writing runtime spec: %w", err)
	}

	containerID := filepath.Base(stateDir)
	cmd := exec.CommandContext(ctx, r.RuntimeBinaryPath,
		"--root", stateDir,
		"run", "--bundle", stateDir, containerID,
	)

	// Explicit minimal environment for the runtime process itself —
	// not the container's environment (that's inside the spec). If
	// cmd.Env were nil, Go would inherit this process's full
	// environment, making it visible via /proc/<pid>/environ to
	// anything that can read the runtime's process table entry.
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stderr
	}
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("container: launching runtime: %w", err)
	}

	return nil
}

