package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/brainrake/hercules-ci-agent/lib/workerprotocol"
)

// runNixDaemon implements the worker's "nix-daemon" verb: read the
// single starting StartDaemon command, bind a listening socket at the
// requested path (satisfying §4.6's invariant that the socket exists
// before DaemonStarted is emitted), emit DaemonStarted, then read
// commands until the Terminator end-marker or stdin closes.
//
// The listener accepts no connections and nothing is forwarded to the
// host's store daemon: a client can connect (the kernel backlog takes
// it) but is never served. The socket exists so that it can be
// bind-mounted, and it is closed on shutdown.
func runNixDaemon(stdin io.Reader, stdout io.Writer, logger *slog.Logger) (exitCode int) {
	cmd, err := workerprotocol.ReadCommand(stdin)
	if err != nil {
		emitException(stdout, fmt.Sprintf("reading starting command: %v", err))
		return 1
	}
	start, ok := cmd.(workerprotocol.StartDaemonCommand)
	if !ok {
		emitException(stdout, (&workerprotocol.UnexpectedStartingCommand{Got: fmt.Sprintf("%T", cmd)}).Error())
		return 1
	}

	os.Remove(start.SocketPath)
	listener, err := net.Listen("unix", start.SocketPath)
	if err != nil {
		emitException(stdout, fmt.Sprintf("binding daemon socket %s: %v", start.SocketPath, err))
		return 1
	}
	defer listener.Close()

	if err := workerprotocol.WriteEventFrame(stdout, workerprotocol.DaemonStartedEvent{}); err != nil {
		logger.Error("writing DaemonStarted", "error", err)
		return 1
	}

	for {
		cmd, err := workerprotocol.ReadCommand(stdin)
		if err != nil {
			return 0
		}
		if _, ok := cmd.(workerprotocol.TerminatorCommand); ok {
			return 0
		}
	}
}
