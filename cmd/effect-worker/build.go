package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brainrake/hercules-ci-agent/lib/workerprotocol"
)

// localBuilder performs a local build of one derivation output,
// returning the outcome status. Like [evaluator], the actual Nix
// build engine is an external collaborator; [placeholderBuilder]
// reports success so build mode is exercisable standalone.
type localBuilder interface {
	Build(drvPath, outputName string) (workerprotocol.BuildStatus, error)
}

type placeholderBuilder struct{}

func (placeholderBuilder) Build(string, string) (workerprotocol.BuildStatus, error) {
	return workerprotocol.BuildStatusSuccess, nil
}

// runBuild implements the worker's "build" verb: read the single
// starting BuildCommand, run the builder, and report the outcome as a
// BuildResultEvent.
func runBuild(stdin io.Reader, stdout io.Writer, logger *slog.Logger, builder localBuilder) (exitCode int) {
	cmd, err := workerprotocol.ReadCommand(stdin)
	if err != nil {
		emitException(stdout, fmt.Sprintf("reading starting command: %v", err))
		return 1
	}
	buildCmd, ok := cmd.(workerprotocol.BuildCommand)
	if !ok {
		emitException(stdout, (&workerprotocol.UnexpectedStartingCommand{Got: fmt.Sprintf("%T", cmd)}).Error())
		return 1
	}

	status, buildErr := builder.Build(buildCmd.DrvPath, buildCmd.OutputName)
	if buildErr != nil {
		emitException(stdout, buildErr.Error())
		return 1
	}

	evt := workerprotocol.BuildResultEvent{
		DrvPath:    buildCmd.DrvPath,
		OutputName: buildCmd.OutputName,
		Attempt:    uuid.New(),
		Status:     status,
	}
	if err := workerprotocol.WriteEventFrame(stdout, evt); err != nil {
		logger.Error("writing BuildResult", "error", err)
		return 1
	}
	return 0
}
