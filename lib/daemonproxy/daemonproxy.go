// Package daemonproxy implements the Daemon Proxy Supervisor: it
// spawns a worker subprocess in "nix-daemon" mode as a store-daemon
// gateway, waits for it to announce readiness, runs the caller's
// inner action, and tears the child down afterward with a bounded
// timeout.
//
// Grounded on the teacher's lib/service.SocketServer for the
// spawn/accept-loop/graceful-shutdown shape and lib/service.AnnounceReady
// for the readiness-wait concept, adapted from a one-shot CBOR
// socket server to a long-lived subprocess driven by
// [lib/workerprotocol] frames over stdio.
package daemonproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/brainrake/hercules-ci-agent/lib/clock"
	"github.com/brainrake/hercules-ci-agent/lib/workerprotocol"
)

// State is a point in the supervisor's lifecycle. StateFailed is a
// parallel absorbing state reachable from any non-terminal state.
type State int

const (
	StateSpawning State = iota
	StateReady
	StateRunning
	StateDraining
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "Spawning"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExitedBeforeReady means the worker subprocess exited while still in
// StateSpawning, before emitting DaemonStarted.
type ExitedBeforeReady struct {
	ExitCode int
}

func (e *ExitedBeforeReady) Error() string {
	return fmt.Sprintf("daemonproxy: worker exited before ready (exit code %d)", e.ExitCode)
}

// drainTimeout bounds how long WithDaemonProxy waits for the worker to
// exit after sending the terminator. Expiry is logged and swallowed,
// not propagated as an error.
const drainTimeout = 60 * time.Second

// Supervisor owns one worker subprocess running in nix-daemon mode.
type Supervisor struct {
	WorkerBinaryPath string
	ExtraArgs        []string
	Logger           *slog.Logger
	Clock            clock.Clock

	mu    sync.Mutex
	state State
}

// NewSupervisor constructs a Supervisor. If logger or clk is nil, a
// no-op logger and the real clock are used respectively.
func NewSupervisor(workerBinaryPath string, extraArgs []string, logger *slog.Logger, clk clock.Clock) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		WorkerBinaryPath: workerBinaryPath,
		ExtraArgs:        extraArgs,
		Logger:           logger,
		Clock:            clk,
		state:            StateSpawning,
	}
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// WithDaemonProxy spawns the worker subprocess, sends StartDaemon,
// waits for DaemonStarted (or fails with *ExitedBeforeReady), runs
// inner, then drains the child with a 60-second timeout.
//
// The socketPath is created by the worker before DaemonStarted is
// emitted; callers may bind-mount it as soon as inner begins running.
func WithDaemonProxy(ctx context.Context, s *Supervisor, socketPath string, inner func(ctx context.Context) error) error {
	args := append([]string{"nix-daemon"}, s.ExtraArgs...)
	cmd := exec.CommandContext(ctx, s.WorkerBinaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("daemonproxy: creating worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("daemonproxy: creating worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("daemonproxy: starting worker: %w", err)
	}
	s.Logger.Info("daemon proxy worker spawned", "socket_path", socketPath)

	if err := workerprotocol.WriteFrame(stdin, workerprotocol.StartDaemonCommand{SocketPath: socketPath}); err != nil {
		s.setState(StateFailed)
		_ = cmd.Process.Kill()
		<-waitAsync(cmd)
		return fmt.Errorf("daemonproxy: sending StartDaemon: %w", err)
	}

	exited := waitAsync(cmd)

	ready, readyErr := waitForReady(stdout)
	if readyErr != nil {
		s.setState(StateFailed)
		_ = cmd.Process.Kill()
		<-exited
		return fmt.Errorf("daemonproxy: waiting for readiness: %w", readyErr)
	}
	if !ready {
		s.setState(StateFailed)
		waitErr := <-exited
		return &ExitedBeforeReady{ExitCode: exitCodeOf(waitErr)}
	}

	s.setState(StateReady)
	s.Logger.Info("daemon proxy ready", "socket_path", socketPath)

	s.setState(StateRunning)
	innerErr := inner(ctx)

	s.setState(StateDraining)
	_ = workerprotocol.WriteFrame(stdin, workerprotocol.TerminatorCommand{})
	if closer, ok := stdin.(io.Closer); ok {
		_ = closer.Close()
	}

	select {
	case <-exited:
		s.setState(StateStopped)
	case <-s.Clock.After(drainTimeout):
		s.Logger.Warn("daemon proxy shutdown timed out; abandoning child", "timeout", drainTimeout)
		s.setState(StateStopped)
	}

	return innerErr
}

func waitAsync(cmd *exec.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done
}

// waitForReady reads events from the worker until DaemonStarted
// arrives or the stream ends. Returns (true, nil) on readiness,
// (false, nil) if the stream ended first (worker exited early), or a
// non-nil error for anything else.
func waitForReady(stdout io.Reader) (bool, error) {
	for {
		evt, err := workerprotocol.ReadEvent(stdout)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if _, ok := evt.(workerprotocol.DaemonStartedEvent); ok {
			return true, nil
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
