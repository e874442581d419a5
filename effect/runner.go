package effect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/brainrake/hercules-ci-agent/lib/clock"
	"github.com/brainrake/hercules-ci-agent/lib/container"
	"github.com/brainrake/hercules-ci-agent/lib/daemonproxy"
	"github.com/brainrake/hercules-ci-agent/lib/logpipeline"
	"github.com/brainrake/hercules-ci-agent/lib/provisioner"
)

// logBatchSize and logFlushInterval bound how eagerly the log pipeline
// ships batches when LogSocketAddr is configured: whichever threshold
// is hit first.
const (
	logBatchSize     = 200
	logFlushInterval = 2 * time.Second
)

// containerSocketPath is the path the container always sees the
// store-daemon socket bind-mounted at, matching the teacher's nix
// convention for the daemon's well-known unix socket location.
const containerSocketPath = "/nix/var/nix/daemon-socket/socket"

// RunEffect materializes the run directory, provisions secrets,
// optionally brings up a Daemon Proxy Supervisor, and runs the
// derivation's builder inside a container. It returns the builder's
// exit code; a non-zero code is not itself an error (§6 exit-code
// policy).
func RunEffect(ctx context.Context, params RunEffectParams, logger *slog.Logger, clk clock.Clock) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}

	dirs, err := materializeRunDirectories(params.Dir, params.UseNixDaemonProxy)
	if err != nil {
		return 0, err
	}

	secretsMap, err := params.Derivation.SecretsMap()
	if err != nil {
		return 0, err
	}

	if err := provisioner.Provision(provisioner.Params{
		Friendly:     params.Friendly,
		Context:      params.SecretContext,
		SourcePath:   params.SecretsConfigPath,
		PrivateKey:   params.SecretsPrivateKey,
		SecretsMap:   secretsMap,
		ExtraSecrets: params.extraSecrets(),
		DestDir:      dirs.secrets,
		Logger:       logger,
	}); err != nil {
		return 0, fmt.Errorf("effect: provisioning secrets: %w", err)
	}

	cfg := container.Config{
		ExtraBindMounts:  baseBindMounts(dirs, params),
		Executable:       params.Derivation.Executable,
		Arguments:        params.Derivation.Arguments,
		Environment:      buildEnvironment(params),
		WorkingDirectory: "/build",
		Hostname:         "hercules-ci",
		RootReadOnly:     false,
	}
	for _, extra := range params.ExtraBindMounts {
		cfg.ExtraBindMounts = append(cfg.ExtraBindMounts, container.BindMount(extra))
	}

	shipLogs, finishShippingLogs, err := attachLogPipeline(params.LogSocketAddr, logger, clk)
	if err != nil {
		return 0, fmt.Errorf("effect: connecting log socket: %w", err)
	}
	if shipLogs != nil {
		cfg.Stdout = shipLogs
	}

	runner := container.NewRunner(params.RuntimeBinaryPath)

	runContainer := func(ctx context.Context) error {
		return runner.Run(ctx, dirs.runcState, cfg)
	}

	var runErr error
	if params.UseNixDaemonProxy {
		supervisor := daemonproxy.NewSupervisor(params.WorkerBinaryPath, extraNixOptionArgs(params.ExtraNixOptions), logger, clk)
		runErr = daemonproxy.WithDaemonProxy(ctx, supervisor, dirs.nixDaemonSocket, runContainer)
	} else {
		runErr = runContainer(ctx)
	}

	if finishShippingLogs != nil {
		if shipErr := finishShippingLogs(); shipErr != nil && runErr == nil {
			runErr = fmt.Errorf("effect: shipping build log: %w", shipErr)
		}
	}

	if exitCode, ok := container.IsExitError(runErr); ok {
		return exitCode, nil
	}
	if runErr != nil {
		return 0, runErr
	}
	return 0, nil
}

// runDirectories holds the resolved paths of the run directory's
// fixed subdirectories (§6 run-directory layout).
type runDirectories struct {
	build           string
	etc             string
	secrets         string
	runcState       string
	nixDaemonSocket string
}

func materializeRunDirectories(dir string, useNixDaemonProxy bool) (runDirectories, error) {
	dirs := runDirectories{
		build:     filepath.Join(dir, "build"),
		etc:       filepath.Join(dir, "etc"),
		secrets:   filepath.Join(dir, "secrets"),
		runcState: filepath.Join(dir, "runc-state"),
	}
	if useNixDaemonProxy {
		dirs.nixDaemonSocket = filepath.Join(dir, "nix-daemon-socket")
	}

	for _, sub := range []string{dirs.build, dirs.etc, dirs.secrets, dirs.runcState} {
		if err := os.MkdirAll(sub, 0700); err != nil {
			return runDirectories{}, fmt.Errorf("effect: creating run directory %s: %w", sub, err)
		}
	}
	return dirs, nil
}

// baseBindMounts returns the fixed set of bind mounts every effect run
// needs, before the caller's extras are appended: /build, /etc,
// /secrets (readonly), /etc/resolv.conf, and the store-daemon socket
// (proxy or host).
func baseBindMounts(dirs runDirectories, params RunEffectParams) []container.BindMount {
	daemonSocketSource := params.HostNixDaemonSocket
	if params.UseNixDaemonProxy {
		daemonSocketSource = dirs.nixDaemonSocket
	}

	return []container.BindMount{
		{PathInContainer: "/build", PathInHost: dirs.build, ReadOnly: false},
		{PathInContainer: "/etc", PathInHost: dirs.etc, ReadOnly: false},
		{PathInContainer: "/secrets", PathInHost: dirs.secrets, ReadOnly: true},
		{PathInContainer: "/etc/resolv.conf", PathInHost: "/etc/resolv.conf", ReadOnly: false},
		{PathInContainer: containerSocketPath, PathInHost: daemonSocketSource, ReadOnly: true},
	}
}

// attachLogPipeline dials addr (if non-empty) and wires up a
// [logpipeline.Pipeline] shipping the builder's combined
// stdout/stderr to it. It returns the writer to plug into
// [container.Config.Stdout] and a finish function that closes the
// write side, waits for the pipeline to drain (§9's fatal 600-second
// drain timeout), and closes the connection. Both return values are
// nil if addr is empty.
func attachLogPipeline(addr string, logger *slog.Logger, clk clock.Clock) (io.Writer, func() error, error) {
	if addr == "" {
		return nil, nil, nil
	}

	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing log socket %s: %w", addr, err)
	}

	pipeline, err := logpipeline.New(conn, logBatchSize, logFlushInterval, clk, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	pr, pw := io.Pipe()
	raw := make(chan []byte, 8)
	go func() {
		defer close(raw)
		buf := make([]byte, 32*1024)
		for {
			n, err := pr.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				raw <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	done := pipeline.Run(raw)
	finish := func() error {
		pw.Close()
		err := pipeline.Drain(done)
		conn.Close()
		return err
	}
	return pw, finish, nil
}

func extraNixOptionArgs(options []KeyValue) []string {
	if len(options) == 0 {
		return nil
	}
	type option struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	list := make([]option, 0, len(options))
	for _, kv := range options {
		list = append(list, option{Name: kv.Key, Value: kv.Value})
	}
	data, _ := json.Marshal(list)
	return []string{string(data)}
}
