// Package logpipeline implements the six-stage log-shipping pipeline
// named in spec.md §9: unbatch → filter progress → renumber → batch →
// end-marker → socket sink. Each stage is a goroutine connected to its
// neighbors by channels, not an event loop.
//
// Batches are zstd-compressed before being written to the sink,
// grounded on the teacher's lib/artifactstore.CompressChunk zstd path
// (klauspost/compress/zstd), reduced here to a single fixed codec
// since log batches are homogeneous UTF-8 text.
package logpipeline

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/brainrake/hercules-ci-agent/lib/clock"
	"github.com/brainrake/hercules-ci-agent/lib/codec"
)

// drainTimeout bounds how long Drain waits for the pipeline to finish
// flushing after its input is closed. Expiry is fatal.
const drainTimeout = 600 * time.Second

// DrainTimeout reports that the pipeline did not finish flushing
// within [drainTimeout] of its input closing.
type DrainTimeout struct{}

func (DrainTimeout) Error() string {
	return fmt.Sprintf("logpipeline: drain did not complete within %s", drainTimeout)
}

// Line is one log line after filtering, carrying its position in the
// shipped (post-filter) stream.
type Line struct {
	Number int    `cbor:"number"`
	Text   string `cbor:"text"`
}

// Batch is a group of consecutive lines, or the distinguished
// end-of-stream marker.
type Batch struct {
	Lines       []Line `cbor:"lines,omitempty"`
	EndOfStream bool   `cbor:"end_of_stream,omitempty"`
}

// progressLinePrefix marks Nix's internal structured-progress
// messages (emitted on the build log file descriptor when internal
// JSON logging is active). These report activity/progress metadata,
// not builder output, and are dropped before shipping.
const progressLinePrefix = "@nix "

// Pipeline ships a builder's raw log output to sink, six stages deep.
type Pipeline struct {
	Clock         clock.Clock
	Logger        *slog.Logger
	Sink          io.Writer
	BatchSize     int
	FlushInterval time.Duration

	encoder *zstd.Encoder
}

// New constructs a Pipeline. If clk or logger is nil, the real clock
// and a discard logger are used respectively.
func New(sink io.Writer, batchSize int, flushInterval time.Duration, clk clock.Clock, logger *slog.Logger) (*Pipeline, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("logpipeline: initializing zstd encoder: %w", err)
	}
	return &Pipeline{
		Clock:         clk,
		Logger:        logger,
		Sink:          sink,
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		encoder:       encoder,
	}, nil
}

// Run wires the six stages and starts them. raw delivers arbitrary
// byte chunks from the builder's log stream (may split or merge
// lines); the caller closes raw once the builder has exited. Run
// returns a channel that receives exactly one value — nil on a clean
// finish, a non-nil error otherwise — once the sink stage has written
// every batch including the end marker.
//
// Call [Pipeline.Drain] with the returned channel to enforce the
// fatal 600-second drain timeout after closing raw.
func (p *Pipeline) Run(raw <-chan []byte) <-chan error {
	lines := p.unbatch(raw)
	filtered := p.filterProgress(lines)
	renumbered := p.renumber(filtered)
	batches := p.batch(renumbered)
	withEnd := p.endMarker(batches)
	return p.sinkStage(withEnd)
}

// Drain waits for done, the channel returned by Run, applying the
// fatal 600-second timeout. Call this after closing the raw channel
// passed to Run.
func (p *Pipeline) Drain(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-p.Clock.After(drainTimeout):
		p.Logger.Error("log pipeline drain timed out", "timeout", drainTimeout)
		return DrainTimeout{}
	}
}

// unbatch splits an arbitrary byte-chunk stream into discrete lines,
// carrying a partial line across chunk boundaries.
func (p *Pipeline) unbatch(raw <-chan []byte) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		var carry bytes.Buffer
		for chunk := range raw {
			carry.Write(chunk)
			for {
				line, err := carry.ReadString('\n')
				if err != nil {
					// No newline found: err == io.EOF and line holds
					// the unterminated remainder. Put it back for the
					// next chunk.
					carry.Reset()
					carry.WriteString(line)
					break
				}
				out <- strings.TrimSuffix(line, "\n")
			}
		}
		if carry.Len() > 0 {
			out <- carry.String()
		}
	}()
	return out
}

// filterProgress drops Nix's internal structured-progress lines.
func (p *Pipeline) filterProgress(in <-chan string) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for line := range in {
			if strings.HasPrefix(line, progressLinePrefix) {
				continue
			}
			out <- line
		}
	}()
	return out
}

// renumber assigns contiguous sequence numbers to the post-filter
// stream, so the shipped log has no gaps from dropped progress lines.
func (p *Pipeline) renumber(in <-chan string) <-chan Line {
	out := make(chan Line, 64)
	go func() {
		defer close(out)
		number := 0
		for text := range in {
			number++
			out <- Line{Number: number, Text: text}
		}
	}()
	return out
}

// batch groups lines into batches of BatchSize, flushing early every
// FlushInterval so output isn't delayed indefinitely by a slow
// builder.
func (p *Pipeline) batch(in <-chan Line) <-chan Batch {
	out := make(chan Batch, 8)
	go func() {
		defer close(out)
		var pending []Line
		flush := func() {
			if len(pending) == 0 {
				return
			}
			out <- Batch{Lines: pending}
			pending = nil
		}

		ticker := p.Clock.NewTicker(p.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case line, ok := <-in:
				if !ok {
					flush()
					return
				}
				pending = append(pending, line)
				if len(pending) >= p.BatchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
	return out
}

// endMarker appends the distinguished end-of-stream batch after in
// closes.
func (p *Pipeline) endMarker(in <-chan Batch) <-chan Batch {
	out := make(chan Batch, 1)
	go func() {
		defer close(out)
		for b := range in {
			out <- b
		}
		out <- Batch{EndOfStream: true}
	}()
	return out
}

// sinkStage compresses and frame-writes each batch to p.Sink, reporting
// the first write error (if any) on the returned channel once the
// end marker has been written.
func (p *Pipeline) sinkStage(in <-chan Batch) <-chan error {
	done := make(chan error, 1)
	go func() {
		for b := range in {
			if err := p.writeBatch(b); err != nil {
				done <- err
				// Drain the remainder so upstream stages don't block
				// forever on a full channel after we stop consuming.
				for range in {
				}
				return
			}
			if b.EndOfStream {
				break
			}
		}
		done <- nil
	}()
	return done
}

func (p *Pipeline) writeBatch(b Batch) error {
	data, err := codec.Marshal(b)
	if err != nil {
		return fmt.Errorf("logpipeline: marshaling batch: %w", err)
	}
	compressed := p.encoder.EncodeAll(data, nil)

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(compressed)))
	if _, err := p.Sink.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("logpipeline: writing frame length: %w", err)
	}
	if _, err := p.Sink.Write(compressed); err != nil {
		return fmt.Errorf("logpipeline: writing frame body: %w", err)
	}
	return nil
}
