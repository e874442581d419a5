package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/brainrake/hercules-ci-agent/lib/evalstate"
	"github.com/brainrake/hercules-ci-agent/lib/workerprotocol"
)

// evaluator walks an attribute path and reports results through
// reporter. The actual package-expression tree walker is an external
// collaborator (see spec's scope note on the derivation-evaluation
// walker) — only a derivation's realized output enters this core.
// [placeholderEvaluator] stands in for it so the worker protocol's
// framing, ordering, and shortcut-build bridging can be exercised
// end-to-end without a real Nix evaluator attached.
type evaluator interface {
	Eval(ctx context.Context, attributePath []string, reporter *evalReporter) error
}

// evalReporter is the evaluator's window onto the worker protocol: it
// emits Attribute/AttributeError events and bridges a missing-output
// callback to the Shortcut Build Callback.
type evalReporter struct {
	state *evalstate.State
}

func (r *evalReporter) Attribute(path []string, drv string) {
	r.state.Shortcut <- workerprotocol.AttributeEvent{Path: path, Drv: drv}
}

func (r *evalReporter) AttributeError(path []string, message string, errDrv, errType *string) {
	r.state.Shortcut <- workerprotocol.AttributeErrorEvent{
		Path: path, Message: message, ErrorDerivation: errDrv, ErrorType: errType,
	}
}

// ShortcutBuild arranges a remote build for a missing output,
// implementing spec.md §4.8 via [evalstate.State.ShortcutBuildCallback].
func (r *evalReporter) ShortcutBuild(drvPath, outputName string, ensurePath func() error, clearCaches func()) error {
	return r.state.ShortcutBuildCallback(drvPath, outputName, ensurePath, clearCaches)
}

// placeholderEvaluator reports one Attribute event for the whole
// requested path, with a store-path-shaped .drv name synthesized from
// its last element (an empty path yields an AttributeError instead),
// and never needs a shortcut build. It exists so eval mode is exercisable without a real Nix
// evaluation engine attached.
type placeholderEvaluator struct{}

func (placeholderEvaluator) Eval(_ context.Context, attributePath []string, reporter *evalReporter) error {
	if len(attributePath) == 0 {
		reporter.AttributeError(attributePath, "empty attribute path", nil, nil)
		return nil
	}
	drv := fmt.Sprintf("/nix/store/00000000000000000000000000000000-%s.drv", attributePath[len(attributePath)-1])
	reporter.Attribute(attributePath, drv)
	return nil
}

// runEval implements the worker's "eval" verb: read the single
// starting EvalCommand, run the evaluator while bridging its reports
// and any Shortcut Build Callback events to framed stdout events, and
// concurrently read BuildResult commands off stdin to feed
// [evalstate.State]. Any other starting command, or a panic inside
// the evaluator, is reported as an Exception event per §4.7's error
// discipline.
func runEval(ctx context.Context, stdin io.Reader, stdout io.Writer, logger *slog.Logger, eval evaluator) (exitCode int) {
	cmd, err := workerprotocol.ReadCommand(stdin)
	if err != nil {
		emitException(stdout, fmt.Sprintf("reading starting command: %v", err))
		return 1
	}
	evalCmd, ok := cmd.(workerprotocol.EvalCommand)
	if !ok {
		emitException(stdout, (&workerprotocol.UnexpectedStartingCommand{Got: fmt.Sprintf("%T", cmd)}).Error())
		return 1
	}

	state := evalstate.New(16)
	reporter := &evalReporter{state: state}

	commandReaderDone := make(chan struct{})
	go func() {
		defer close(commandReaderDone)
		for {
			cmd, err := workerprotocol.ReadCommand(stdin)
			if err != nil {
				return
			}
			if result, ok := cmd.(workerprotocol.BuildResultCommand); ok {
				state.RecordCompletion(result.DrvPath, result.Attempt, result.Status)
			}
		}
	}()

	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		for evt := range state.Shortcut {
			if evt == nil {
				return
			}
			if err := workerprotocol.WriteEventFrame(stdout, evt); err != nil {
				logger.Error("writing event frame", "error", err)
				return
			}
		}
	}()

	evalErr := runEvaluatorSafely(ctx, eval, evalCmd.AttributePath, reporter)
	state.CloseShortcut()
	<-bridgeDone

	if evalErr != nil {
		emitException(stdout, evalErr.Error())
		return 1
	}

	if err := workerprotocol.WriteEventFrame(stdout, workerprotocol.EvaluationDoneEvent{}); err != nil {
		logger.Error("writing EvaluationDone", "error", err)
		return 1
	}
	return 0
}

// runEvaluatorSafely recovers a panic inside eval.Eval and turns it
// into an error, matching §4.7's "any uncaught error inside the
// worker is serialized as an Exception event" discipline.
func runEvaluatorSafely(ctx context.Context, eval evaluator, attributePath []string, reporter *evalReporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	return eval.Eval(ctx, attributePath, reporter)
}

func emitException(w io.Writer, text string) {
	_ = workerprotocol.WriteEventFrame(w, workerprotocol.ExceptionEvent{Text: text})
}
