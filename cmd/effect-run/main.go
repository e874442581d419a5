// effect-run executes one effect derivation: it provisions secrets,
// optionally proxies a store-daemon socket, and runs the derivation's
// builder inside a sandbox via the Container Runner. See
// github.com/brainrake/hercules-ci-agent/effect for the orchestration
// this binary wires up.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/brainrake/hercules-ci-agent/effect"
	"github.com/brainrake/hercules-ci-agent/lib/binhash"
	"github.com/brainrake/hercules-ci-agent/lib/clock"
	"github.com/brainrake/hercules-ci-agent/lib/condition"
	"github.com/brainrake/hercules-ci-agent/lib/config"
	"github.com/brainrake/hercules-ci-agent/lib/process"
	"github.com/brainrake/hercules-ci-agent/lib/provisioner"
	"github.com/brainrake/hercules-ci-agent/lib/runtimebin"
	"github.com/brainrake/hercules-ci-agent/lib/secret"
	"github.com/brainrake/hercules-ci-agent/lib/sensitive"
	"github.com/brainrake/hercules-ci-agent/lib/version"
)

func main() {
	exitCode, err := run()
	if err != nil {
		process.Fatal(err)
	}
	os.Exit(exitCode)
}

func run() (int, error) {
	var (
		configPath         string
		derivationPath     string
		secretsConfigPath  string
		secretsKeyPath     string
		dir                string
		apiBaseURL         string
		projectID          string
		projectPath        string
		branch             string
		tag                string
		repo               string
		isOwner            bool
		friendly           bool
		useNixDaemonProxy  bool
		extraNixOptionFlag []string
		logSocketAddr      string
		showVersion        bool
	)

	flags := pflag.NewFlagSet("effect-run", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "effect-core config file (defaults to $EFFECT_CORE_CONFIG)")
	flags.StringVar(&derivationPath, "derivation", "-", "path to the realized derivation JSON (- for stdin)")
	flags.StringVar(&secretsConfigPath, "secrets-config", "", "path to the encrypted secret database")
	flags.StringVar(&secretsKeyPath, "secrets-private-key", "", "path to the age private key decrypting --secrets-config")
	flags.StringVar(&dir, "dir", "", "run directory (created if missing; a temp dir is used if empty)")
	flags.StringVar(&apiBaseURL, "api-base-url", "", "overrides the config's api_base_url")
	flags.StringVar(&projectID, "project-id", "", "HERCULES_CI_PROJECT_ID for the container")
	flags.StringVar(&projectPath, "project-path", "", "HERCULES_CI_PROJECT_PATH for the container")
	flags.StringVar(&branch, "branch", "", "secret-access context: triggering branch")
	flags.StringVar(&tag, "tag", "", "secret-access context: triggering tag")
	flags.StringVar(&repo, "repo", "", "secret-access context: repository identifier")
	flags.BoolVar(&isOwner, "is-owner", false, "secret-access context: triggering actor owns the project")
	flags.BoolVar(&friendly, "friendly", false, "enable permissive local-developer secret access and styled output (default: auto-detected from stderr)")
	flags.BoolVar(&useNixDaemonProxy, "use-nix-daemon-proxy", false, "proxy the store daemon through a supervised worker subprocess")
	flags.StringArrayVar(&extraNixOptionFlag, "extra-nix-option", nil, "key=value passed to the daemon-proxy worker (repeatable)")
	flags.StringVar(&logSocketAddr, "log-socket", "", "unix socket address receiving the builder's shipped log stream (unset disables shipping)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0, nil
		}
		return 1, err
	}
	if showVersion {
		fmt.Println(version.Full())
		return 0, nil
	}
	if help, _ := flags.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, flags.FlagUsages())
		return 0, nil
	}
	if !flags.Changed("friendly") {
		friendly = term.IsTerminal(int(os.Stderr.Fd()))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	report := newReporter(friendly)

	cfg := config.Default()
	if configPath == "" {
		configPath = os.Getenv("EFFECT_CORE_CONFIG")
	}
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return 1, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return 1, fmt.Errorf("invalid config: %w", err)
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}

	derivation, err := readDerivation(derivationPath)
	if err != nil {
		return 1, err
	}

	if dir == "" {
		dir, err = os.MkdirTemp("", "effect-run-*")
		if err != nil {
			return 1, fmt.Errorf("creating run directory: %w", err)
		}
	}

	runtimePath, err := runtimebin.FindRuntime(cfg.Runtime.Name, cfg.Runtime.FallbackDir)
	if err != nil {
		return 1, err
	}
	workerPath, err := runtimebin.FindWorker(cfg.Worker.Name, cfg.Worker.FallbackDir)
	if err != nil {
		return 1, err
	}
	logResolvedBinaryDigest(report, "runtime", runtimePath)
	logResolvedBinaryDigest(report, "worker", workerPath)

	var secretsKey *secret.Buffer
	if secretsKeyPath != "" {
		keyBytes, err := os.ReadFile(secretsKeyPath)
		if err != nil {
			return 1, fmt.Errorf("reading secrets private key: %w", err)
		}
		secretsKey, err = secret.NewFromBytes(keyBytes)
		if err != nil {
			return 1, fmt.Errorf("loading secrets private key: %w", err)
		}
		defer secretsKey.Close()
	}

	var secretCtx *condition.Context
	if branch != "" || tag != "" || repo != "" || isOwner {
		secretCtx = &condition.Context{Branch: branch, Tag: tag, Repo: repo, IsOwner: isOwner}
	}

	var token sensitive.Value[string]
	if tokenEnv := os.Getenv("HERCULES_CI_API_TOKEN"); tokenEnv != "" {
		token = sensitive.Wrap(tokenEnv)
	}

	extraNixOptions, err := parseExtraNixOptions(extraNixOptionFlag)
	if err != nil {
		return 1, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useNixDaemonProxy {
		report.Info("starting daemon proxy")
	}
	report.Info("running effect in %s", dir)

	exitCode, runErr := effect.RunEffect(ctx, effect.RunEffectParams{
		Derivation:          derivation,
		Token:               token,
		SecretsConfigPath:   secretsConfigPath,
		SecretsPrivateKey:   secretsKey,
		SecretContext:       secretCtx,
		APIBaseURL:          cfg.APIBaseURL,
		Dir:                 dir,
		ProjectID:           projectID,
		ProjectPath:         projectPath,
		UseNixDaemonProxy:   useNixDaemonProxy,
		ExtraNixOptions:     extraNixOptions,
		Friendly:            friendly,
		HostNixDaemonSocket: "/nix/var/nix/daemon-socket/socket",
		RuntimeBinaryPath:   runtimePath,
		WorkerBinaryPath:    workerPath,
		LogSocketAddr:       logSocketAddr,
	}, logger, clock.Real())
	if runErr != nil {
		if trace, ok := accessDeniedTrace(runErr); ok && friendly {
			for _, line := range trace {
				report.Warn("%s", line)
			}
		}
		return 1, runErr
	}

	if exitCode == 0 {
		report.Success("effect succeeded")
	} else {
		report.Warn("effect exited with code %d", exitCode)
	}
	return exitCode, nil
}

func logResolvedBinaryDigest(report *reporter, kind, path string) {
	digest, err := binhash.HashFile(path)
	if err != nil {
		report.Warn("could not hash %s binary %s: %v", kind, path, err)
		return
	}
	report.Info("%s binary: %s (%s)", kind, path, binhash.FormatDigest(digest))
}

func parseExtraNixOptions(raw []string) ([]effect.KeyValue, error) {
	options := make([]effect.KeyValue, 0, len(raw))
	for _, entry := range raw {
		key, value, found := splitKeyValue(entry)
		if !found {
			return nil, fmt.Errorf("invalid --extra-nix-option %q: want key=value", entry)
		}
		options = append(options, effect.KeyValue{Key: key, Value: value})
	}
	return options, nil
}

func splitKeyValue(entry string) (string, string, bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "", "", false
}

// accessDeniedTrace extracts a condition-evaluator trace from a
// provisioner access-denial error, if present, for friendly-mode
// stderr reporting.
func accessDeniedTrace(err error) ([]string, bool) {
	denied, ok := err.(*provisioner.AccessDenied)
	if !ok || len(denied.Trace) == 0 {
		return nil, false
	}
	return denied.Trace, true
}
