package workerprotocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brainrake/hercules-ci-agent/lib/codec"
)

// maxFrameSize bounds a single frame's payload, guarding against a
// corrupt or adversarial length prefix forcing an unbounded
// allocation.
const maxFrameSize = 64 << 20 // 64 MiB

// envelope is the on-wire shape of one frame: a type discriminator
// plus its CBOR-encoded payload, decoded in two passes (discriminator
// first, then the concrete type once it's known).
type envelope struct {
	Type string          `cbor:"type"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// WriteFrame writes cmd as one length-prefixed frame to w: a 4-byte
// big-endian length, followed by that many bytes of CBOR-encoded
// envelope.
func WriteFrame(w io.Writer, cmd Command) error {
	data, err := codec.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("workerprotocol: marshaling %s payload: %w", cmd.commandType(), err)
	}
	return writeEnvelope(w, cmd.commandType(), data)
}

// WriteEventFrame writes evt as one length-prefixed frame to w.
func WriteEventFrame(w io.Writer, evt Event) error {
	data, err := codec.Marshal(evt)
	if err != nil {
		return fmt.Errorf("workerprotocol: marshaling %s payload: %w", evt.eventType(), err)
	}
	return writeEnvelope(w, evt.eventType(), data)
}

func writeEnvelope(w io.Writer, typeName string, data []byte) error {
	frameBytes, err := codec.Marshal(envelope{Type: typeName, Data: data})
	if err != nil {
		return fmt.Errorf("workerprotocol: marshaling envelope: %w", err)
	}
	if len(frameBytes) > maxFrameSize {
		return fmt.Errorf("workerprotocol: frame of %d bytes exceeds max %d", len(frameBytes), maxFrameSize)
	}

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(frameBytes)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("workerprotocol: writing frame length: %w", err)
	}
	if _, err := w.Write(frameBytes); err != nil {
		return fmt.Errorf("workerprotocol: writing frame body: %w", err)
	}
	return nil
}

func readEnvelope(r io.Reader) (envelope, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return envelope{}, err
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > maxFrameSize {
		return envelope{}, fmt.Errorf("workerprotocol: frame of %d bytes exceeds max %d", length, maxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, fmt.Errorf("workerprotocol: reading frame body: %w", err)
	}

	var env envelope
	if err := codec.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("workerprotocol: decoding frame envelope: %w", err)
	}
	return env, nil
}

// ReadCommand reads one frame from r and decodes it as a Command. It
// returns io.EOF when r is exhausted (the peer closed the stream
// without sending a Terminator), and a [TerminatorCommand] value (with
// a nil error) when the distinguished end-marker is received.
func ReadCommand(r io.Reader) (Command, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case "Eval":
		var cmd EvalCommand
		if err := codec.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Eval: %w", err)
		}
		return cmd, nil
	case "Build":
		var cmd BuildCommand
		if err := codec.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Build: %w", err)
		}
		return cmd, nil
	case "BuildResult":
		var cmd BuildResultCommand
		if err := codec.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding BuildResult: %w", err)
		}
		return cmd, nil
	case "StartDaemon":
		var cmd StartDaemonCommand
		if err := codec.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding StartDaemon: %w", err)
		}
		return cmd, nil
	case "Terminator":
		return TerminatorCommand{}, nil
	default:
		return nil, fmt.Errorf("workerprotocol: unknown command type %q", env.Type)
	}
}

// ReadEvent reads one frame from r and decodes it as an Event.
// Returns io.EOF when r is exhausted.
func ReadEvent(r io.Reader) (Event, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case "Attribute":
		var evt AttributeEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Attribute: %w", err)
		}
		return evt, nil
	case "AttributeError":
		var evt AttributeErrorEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding AttributeError: %w", err)
		}
		return evt, nil
	case "Build":
		var evt BuildEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Build: %w", err)
		}
		return evt, nil
	case "BuildResult":
		var evt BuildResultEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding BuildResult: %w", err)
		}
		return evt, nil
	case "DaemonStarted":
		return DaemonStartedEvent{}, nil
	case "Error":
		var evt ErrorEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Error: %w", err)
		}
		return evt, nil
	case "Exception":
		var evt ExceptionEvent
		if err := codec.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("workerprotocol: decoding Exception: %w", err)
		}
		return evt, nil
	case "EvaluationDone":
		return EvaluationDoneEvent{}, nil
	default:
		return nil, fmt.Errorf("workerprotocol: unknown event type %q", env.Type)
	}
}
