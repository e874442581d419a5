// effect-worker is the subprocess the Effect Execution Core drives
// over a framed stdio protocol (lib/workerprotocol). It is invoked
// with one verb — "eval", "build", or "nix-daemon" — and an optional
// positional options-list argument; stdin carries framed commands,
// stdout carries framed events, stderr carries free-form diagnostics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: effect-worker <eval|build|nix-daemon> [options-json]")
		return 2
	}
	verb := os.Args[1]

	var rawOptions string
	if len(os.Args) > 2 {
		rawOptions = os.Args[2]
	}
	options, err := parseOptions(rawOptions)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	for _, opt := range options {
		logger.Debug("worker option", "name", opt.Name, "value", opt.Value)
	}

	switch verb {
	case "eval":
		return runEval(context.Background(), os.Stdin, os.Stdout, logger, placeholderEvaluator{})
	case "build":
		return runBuild(os.Stdin, os.Stdout, logger, placeholderBuilder{})
	case "nix-daemon":
		return runNixDaemon(os.Stdin, os.Stdout, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown verb %q (want eval, build, or nix-daemon)\n", verb)
		return 2
	}
}
