package effect

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/brainrake/hercules-ci-agent/lib/clock"
)

func writeFakeRuntime(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-runtime")
	script := "#!/bin/sh\nexit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake runtime: %v", err)
	}
	return path
}

func TestRunEffectHappyPathNoSecretsNoProxy(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("exercises a Linux-specific fake runtime binary")
	}

	runDir := t.TempDir()
	runtimePath := writeFakeRuntime(t, runDir, 0)

	exitCode, err := RunEffect(context.Background(), RunEffectParams{
		Derivation: Derivation{
			Executable: "/bin/true",
		},
		APIBaseURL:          "https://hercules-ci.com",
		Dir:                 runDir,
		RuntimeBinaryPath:   runtimePath,
		HostNixDaemonSocket: mustExistingFile(t),
	}, nil, clock.Real())
	if err != nil {
		t.Fatalf("RunEffect() error: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}

	if _, statErr := os.Stat(filepath.Join(runDir, "secrets", "secrets.json")); !os.IsNotExist(statErr) {
		t.Error("secrets.json should not be written when secretsMap is empty")
	}
	for _, sub := range []string{"build", "etc", "secrets", "runc-state"} {
		if info, statErr := os.Stat(filepath.Join(runDir, sub)); statErr != nil || !info.IsDir() {
			t.Errorf("run directory %q was not created", sub)
		}
	}
}

func TestRunEffectPropagatesNonZeroExitCode(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("exercises a Linux-specific fake runtime binary")
	}

	runDir := t.TempDir()
	runtimePath := writeFakeRuntime(t, runDir, 17)

	exitCode, err := RunEffect(context.Background(), RunEffectParams{
		Derivation:          Derivation{Executable: "/bin/true"},
		Dir:                 runDir,
		RuntimeBinaryPath:   runtimePath,
		HostNixDaemonSocket: mustExistingFile(t),
	}, nil, clock.Real())
	if err != nil {
		t.Fatalf("RunEffect() error = %v, want nil (non-zero exit is not a runner error)", err)
	}
	if exitCode != 17 {
		t.Errorf("exitCode = %d, want 17", exitCode)
	}
}

func TestRunEffectMissingDaemonSocketFailsBeforeLaunch(t *testing.T) {
	runDir := t.TempDir()

	_, err := RunEffect(context.Background(), RunEffectParams{
		Derivation:          Derivation{Executable: "/bin/true"},
		Dir:                 runDir,
		RuntimeBinaryPath:   "/does/not/matter",
		HostNixDaemonSocket: filepath.Join(runDir, "nonexistent-socket"),
	}, nil, clock.Real())
	if err == nil {
		t.Fatal("RunEffect() should fail when the host daemon socket is missing")
	}
}

func TestRunEffectShipsLogsWhenSocketConfigured(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("exercises a Linux-specific fake runtime binary")
	}

	runDir := t.TempDir()
	path := filepath.Join(runDir, "fake-runtime")
	script := "#!/bin/sh\necho hello from builder\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake runtime: %v", err)
	}

	socketPath := filepath.Join(runDir, "log.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on log socket: %v", err)
	}
	defer listener.Close()

	received := make(chan int, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- 0
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		total := 0
		for {
			n, err := conn.Read(buf)
			total += n
			if err != nil {
				break
			}
		}
		received <- total
	}()

	exitCode, err := RunEffect(context.Background(), RunEffectParams{
		Derivation:          Derivation{Executable: "/bin/true"},
		Dir:                 runDir,
		RuntimeBinaryPath:   path,
		HostNixDaemonSocket: mustExistingFile(t),
		LogSocketAddr:       socketPath,
	}, nil, clock.Real())
	if err != nil {
		t.Fatalf("RunEffect() error: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}

	select {
	case n := <-received:
		if n == 0 {
			t.Error("log socket received no bytes, want the shipped builder output")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for log socket to receive the shipped batch")
	}
}

// mustExistingFile returns a path guaranteed to exist on the host, so
// tests that aren't exercising the daemon-socket-missing path don't
// trip the bind-mount-source check.
func mustExistingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-socket")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("writing fake socket file: %v", err)
	}
	return path
}
