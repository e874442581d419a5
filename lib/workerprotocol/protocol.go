// Package workerprotocol implements the framed, typed bidirectional
// stream between a controller and a worker subprocess: Command
// variants flow controller→worker over the worker's stdin, Event
// variants flow worker→controller over its stdout.
//
// The tagged-variant shape (a closed set of Command/Event types, one
// CBOR envelope discriminator, exhaustive switches at both the
// encode and decode sides) follows the teacher's lib/ipc.Request/
// Response convention; the payload codec is [lib/codec]'s
// CBOR-Core-Deterministic configuration. The explicit length-prefix
// framing ([WriteFrame]/[WriteEventFrame], [ReadCommand]/[ReadEvent]) is new: the teacher's one-shot
// CBOR request/response relies on CBOR's self-delimiting property
// instead, which only works for a single exchange per connection —
// this protocol carries many frames over one long-lived stdio pipe,
// so an explicit frame boundary is required.
package workerprotocol

import (
	"fmt"

	"github.com/google/uuid"
)

// BuildStatus reports the outcome of a remote build, carried in
// BuildResult commands/events and consulted by the Shortcut Build
// Callback ([lib/evalstate]).
type BuildStatus int

const (
	// BuildStatusSuccess means the build completed and its outputs
	// are available.
	BuildStatusSuccess BuildStatus = iota
	// BuildStatusFailure means the build itself failed.
	BuildStatusFailure
	// BuildStatusDependencyFailure means an upstream dependency of
	// the build failed, so the build never ran.
	BuildStatusDependencyFailure
)

func (s BuildStatus) String() string {
	switch s {
	case BuildStatusSuccess:
		return "Success"
	case BuildStatusFailure:
		return "Failure"
	case BuildStatusDependencyFailure:
		return "DependencyFailure"
	default:
		return fmt.Sprintf("BuildStatus(%d)", int(s))
	}
}

// Command is the controller→worker message type. Implementations are
// a closed set; see the Command* types below.
type Command interface {
	commandType() string
}

// Event is the worker→controller message type. Implementations are a
// closed set; see the Event* types below.
type Event interface {
	eventType() string
}

// EvalCommand starts evaluation of an attribute path.
type EvalCommand struct {
	AttributePath []string `cbor:"attribute_path"`
}

func (EvalCommand) commandType() string { return "Eval" }

// BuildCommand requests that the worker build a derivation locally.
type BuildCommand struct {
	DrvPath    string `cbor:"drv_path"`
	OutputName string `cbor:"output_name"`
}

func (BuildCommand) commandType() string { return "Build" }

// BuildResultCommand informs the worker of the outcome of a build
// that was dispatched externally (via the Shortcut Build Callback),
// so evaluation can resume.
type BuildResultCommand struct {
	DrvPath string    `cbor:"drv_path"`
	Attempt uuid.UUID `cbor:"attempt"`
	Status  BuildStatus `cbor:"status"`
}

func (BuildResultCommand) commandType() string { return "BuildResult" }

// StartDaemonCommand tells a nix-daemon-verb worker to bind its
// listening socket at SocketPath.
type StartDaemonCommand struct {
	SocketPath string `cbor:"socket_path"`
}

func (StartDaemonCommand) commandType() string { return "StartDaemon" }

// TerminatorCommand is the distinguished end-marker that terminates
// the command stream. It carries no payload.
type TerminatorCommand struct{}

func (TerminatorCommand) commandType() string { return "Terminator" }

// AttributeEvent reports that evaluation reached a named attribute
// path and resolved it to a derivation.
type AttributeEvent struct {
	Path []string `cbor:"path"`
	Drv  string   `cbor:"drv"`
}

func (AttributeEvent) eventType() string { return "Attribute" }

// AttributeErrorEvent reports that evaluating a named attribute path
// failed.
type AttributeErrorEvent struct {
	Path             []string `cbor:"path"`
	Message          string   `cbor:"message"`
	ErrorDerivation  *string  `cbor:"error_derivation,omitempty"`
	ErrorType        *string  `cbor:"error_type,omitempty"`
}

func (AttributeErrorEvent) eventType() string { return "AttributeError" }

// BuildEvent is emitted by the Shortcut Build Callback to ask the
// controller to arrange a remote build. PreviousAttempt is set on a
// retry, naming the attempt id that previously failed.
type BuildEvent struct {
	DrvPath         string     `cbor:"drv_path"`
	OutputName      string     `cbor:"output_name"`
	PreviousAttempt *uuid.UUID `cbor:"previous_attempt,omitempty"`
}

func (BuildEvent) eventType() string { return "Build" }

// BuildResultEvent reports the outcome of a build the worker ran
// itself (as opposed to BuildResultCommand, which reports the outcome
// of a build the controller ran on the worker's behalf).
type BuildResultEvent struct {
	DrvPath    string      `cbor:"drv_path"`
	OutputName string      `cbor:"output_name"`
	Attempt    uuid.UUID   `cbor:"attempt"`
	Status     BuildStatus `cbor:"status"`
}

func (BuildResultEvent) eventType() string { return "BuildResult" }

// DaemonStartedEvent signals that a nix-daemon-verb worker's socket
// is ready to accept connections.
type DaemonStartedEvent struct{}

func (DaemonStartedEvent) eventType() string { return "DaemonStarted" }

// ErrorEvent carries a recoverable, worker-reported error that does
// not terminate the protocol stream.
type ErrorEvent struct {
	Text string `cbor:"text"`
}

func (ErrorEvent) eventType() string { return "Error" }

// ExceptionEvent carries a fatal, uncaught worker error. It is always
// followed by the worker process exiting with failure status.
type ExceptionEvent struct {
	Text string `cbor:"text"`
}

func (ExceptionEvent) eventType() string { return "Exception" }

// EvaluationDoneEvent signals that an Eval command has finished
// emitting Attribute/AttributeError events.
type EvaluationDoneEvent struct{}

func (EvaluationDoneEvent) eventType() string { return "EvaluationDone" }

// UnexpectedStartingCommand means the worker's first received command
// was not Eval or Build, violating the protocol's single-starting-
// command contract.
type UnexpectedStartingCommand struct {
	Got string
}

func (e *UnexpectedStartingCommand) Error() string {
	return fmt.Sprintf("workerprotocol: unexpected starting command %q (want Eval or Build)", e.Got)
}
