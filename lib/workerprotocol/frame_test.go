package workerprotocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/uuid"
)

func TestWriteReadCommandRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	commands := []Command{
		EvalCommand{AttributePath: []string{"effects", "deploy"}},
		BuildCommand{DrvPath: "/nix/store/abc.drv", OutputName: "out"},
		StartDaemonCommand{SocketPath: "/run/effect/nix-daemon.sock"},
		TerminatorCommand{},
	}
	for _, cmd := range commands {
		if err := WriteFrame(&buf, cmd); err != nil {
			t.Fatalf("WriteFrame(%T) error: %v", cmd, err)
		}
	}

	for i, want := range commands {
		got, err := ReadCommand(&buf)
		if err != nil {
			t.Fatalf("ReadCommand() #%d error: %v", i, err)
		}
		if got.commandType() != want.commandType() {
			t.Errorf("ReadCommand() #%d type = %q, want %q", i, got.commandType(), want.commandType())
		}
	}

	if _, err := ReadCommand(&buf); err != io.EOF {
		t.Errorf("ReadCommand() on exhausted stream = %v, want io.EOF", err)
	}
}

func TestWriteReadEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	attempt := uuid.New()

	events := []Event{
		AttributeEvent{Path: []string{"effects", "deploy"}, Drv: "/nix/store/abc.drv"},
		BuildEvent{DrvPath: "/nix/store/abc.drv", OutputName: "out", PreviousAttempt: &attempt},
		DaemonStartedEvent{},
		ExceptionEvent{Text: "boom"},
		EvaluationDoneEvent{},
	}
	for _, evt := range events {
		if err := WriteEventFrame(&buf, evt); err != nil {
			t.Fatalf("WriteEventFrame(%T) error: %v", evt, err)
		}
	}

	got0, err := ReadEvent(&buf)
	if err != nil {
		t.Fatalf("ReadEvent() #0 error: %v", err)
	}
	attr, ok := got0.(AttributeEvent)
	if !ok {
		t.Fatalf("ReadEvent() #0 type = %T, want AttributeEvent", got0)
	}
	if attr.Drv != "/nix/store/abc.drv" {
		t.Errorf("attr.Drv = %q", attr.Drv)
	}

	got1, err := ReadEvent(&buf)
	if err != nil {
		t.Fatalf("ReadEvent() #1 error: %v", err)
	}
	build, ok := got1.(BuildEvent)
	if !ok {
		t.Fatalf("ReadEvent() #1 type = %T, want BuildEvent", got1)
	}
	if build.PreviousAttempt == nil || *build.PreviousAttempt != attempt {
		t.Errorf("build.PreviousAttempt = %v, want %v", build.PreviousAttempt, attempt)
	}

	for _, wantType := range []string{"DaemonStarted", "Exception", "EvaluationDone"} {
		evt, err := ReadEvent(&buf)
		if err != nil {
			t.Fatalf("ReadEvent() error: %v", err)
		}
		gotType := eventTypeName(evt)
		if gotType != wantType {
			t.Errorf("ReadEvent() type = %q, want %q", gotType, wantType)
		}
	}
}

func eventTypeName(evt Event) string {
	return evt.eventType()
}

func TestReadCommandUnknownType(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, "NotARealCommand", nil); err != nil {
		t.Fatalf("writeEnvelope() error: %v", err)
	}
	if _, err := ReadCommand(&buf); err == nil {
		t.Error("ReadCommand() should fail for an unrecognized type")
	}
}

func TestUnexpectedStartingCommandError(t *testing.T) {
	err := &UnexpectedStartingCommand{Got: "BuildResult"}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
