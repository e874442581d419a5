// Package effect implements the Effect Runner: it takes a derivation
// and a set of run parameters and drives the Secret Provisioner, the
// optional Daemon Proxy Supervisor, and the Container Runner to
// execute the derivation's builder inside a sandbox.
//
// Grounded on the teacher's cmd/bureau-agent/driver.go for the
// "gather inputs from params, build a config struct, hand it to a
// lower-level runner" shape — RunEffect plays the role driver.Start
// plays for the agent loop, but composes lib/provisioner,
// lib/daemonproxy, and lib/container instead of an LLM provider.
package effect

import (
	"github.com/brainrake/hercules-ci-agent/lib/condition"
	"github.com/brainrake/hercules-ci-agent/lib/secret"
	"github.com/brainrake/hercules-ci-agent/lib/secretstore"
	"github.com/brainrake/hercules-ci-agent/lib/sensitive"
)

// Derivation is the input record the Effect Runner executes: an
// executable path, its argv (not including argv[0]), its environment,
// and the nominal output identifier it produces. Immutable across a
// run.
type Derivation struct {
	Executable string
	Arguments  []string
	Env        map[string]string
	OutputName string
}

// SecretsMap reads the reserved "secretsMap" entry from a derivation's
// environment, if present, parsing it as destination-name →
// source-secret-name pairs. Returns nil if the entry is absent or
// empty.
func (d Derivation) SecretsMap() (map[string]string, error) {
	raw, ok := d.Env["secretsMap"]
	if !ok || raw == "" {
		return nil, nil
	}
	return parseSecretsMap(raw)
}

// BindMount describes one host path exposed inside the container. It
// mirrors [container.BindMount]; the effect runner owns the base set
// (build/etc/secrets/daemon-socket) and appends params-supplied
// extras on top.
type BindMount struct {
	PathInContainer string
	PathInHost      string
	ReadOnly        bool
}

// RunEffectParams collects every input to a single effect run.
type RunEffectParams struct {
	// Derivation is the builder to execute.
	Derivation Derivation

	// Token is the caller's API token, provisioned as a secret under
	// the conventional name "hercules-ci" if non-empty.
	Token sensitive.Value[string]

	// SecretsConfigPath is the secret database file path, or empty if
	// no secret store is configured for this run.
	SecretsConfigPath string

	// SecretsPrivateKey decrypts SecretsConfigPath. Ignored if
	// SecretsConfigPath is empty.
	SecretsPrivateKey *secret.Buffer

	// SecretContext is the run's access context for condition
	// evaluation. Nil means no context is available.
	SecretContext *condition.Context

	// APIBaseURL is injected into the container as
	// HERCULES_CI_API_BASE_URL.
	APIBaseURL string

	// Dir is the run directory; build/, etc/, secrets/, runc-state/
	// (and nix-daemon-socket, conditionally) are created under it.
	Dir string

	// ProjectID and ProjectPath, when non-empty, are injected as
	// HERCULES_CI_PROJECT_ID and HERCULES_CI_PROJECT_PATH.
	ProjectID   string
	ProjectPath string

	// UseNixDaemonProxy brings up a Daemon Proxy Supervisor and binds
	// its socket into the container instead of the host's.
	UseNixDaemonProxy bool

	// ExtraNixOptions is forwarded to the daemon-proxy worker
	// subprocess as its single options-list argument (a JSON array of
	// name/value objects following the nix-daemon verb).
	ExtraNixOptions []KeyValue

	// Friendly enables the permissive local-developer secret-access
	// mode (see [provisioner.Provision]) and styled terminal output
	// in cmd/effect-run.
	Friendly bool

	// HostNixDaemonSocket is the host's store-daemon socket, bound
	// into the container when UseNixDaemonProxy is false.
	HostNixDaemonSocket string

	// RuntimeBinaryPath and WorkerBinaryPath are the resolved
	// external binaries (see lib/runtimebin).
	RuntimeBinaryPath string
	WorkerBinaryPath  string

	// ExtraBindMounts are bind mounts beyond the fixed base set.
	ExtraBindMounts []BindMount

	// LogSocketAddr is the unix socket address the builder's combined
	// stdout/stderr is shipped to through the six-stage log pipeline
	// (lib/logpipeline). Empty means the stream is forwarded to this
	// process's stderr directly, unshipped.
	LogSocketAddr string
}

// KeyValue is an ordered string pair, used for ExtraNixOptions.
type KeyValue struct {
	Key   string
	Value string
}

// conventionalTokenSecretName is the destination name the caller's
// API token is provisioned under.
const conventionalTokenSecretName = "hercules-ci"

// extraSecrets builds the caller-supplied secret overlay Provision
// merges on top of the loaded store: the API token, when present,
// under the conventional name.
func (p RunEffectParams) extraSecrets() map[string]secretstore.Secret {
	if !p.Token.IsSet() {
		return nil
	}
	return map[string]secretstore.Secret{
		conventionalTokenSecretName: {
			Data: map[string]any{"token": p.Token.Reveal()},
		},
	}
}
