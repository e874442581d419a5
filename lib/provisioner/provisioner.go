// Package provisioner implements the Secret Provisioner: it resolves
// a derivation's secretsMap against the Secret Store Reader
// ([lib/secretstore]), enforces each secret's access [condition.Condition],
// and writes the resulting plaintext into a sandbox-visible
// secrets.json.
//
// The atomic write-then-rename discipline is grounded on the
// teacher's watchdog.Write: write to a sibling temp file, fsync,
// rename into place, so a reader never observes a partially-written
// secrets.json.
package provisioner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brainrake/hercules-ci-agent/lib/condition"
	"github.com/brainrake/hercules-ci-agent/lib/secret"
	"github.com/brainrake/hercules-ci-agent/lib/secretstore"
)

// AccessDenied means a secretsMap entry's source secret was missing or
// its condition evaluated false.
type AccessDenied struct {
	// DestName is the destination name under which the run requested
	// the secret — never the source secret's name or contents.
	DestName string
	// Reason is a short human-readable cause ("not found in store",
	// "condition evaluated false").
	Reason string
	// Trace holds the condition evaluator's trace, when available
	// (friendly mode with both condition and context present).
	Trace []string
}

func (e *AccessDenied) Error() string {
	if len(e.Trace) > 0 {
		return fmt.Sprintf("provisioner: secret %q: access denied (%s): %v", e.DestName, e.Reason, e.Trace)
	}
	return fmt.Sprintf("provisioner: secret %q: access denied (%s)", e.DestName, e.Reason)
}

// ConditionMissing means strict (non-friendly) mode required a
// condition on a secret that has none.
type ConditionMissing struct {
	DestName string
}

func (e *ConditionMissing) Error() string {
	return fmt.Sprintf("provisioner: secret %q: condition missing (strict mode requires one)", e.DestName)
}

// Params holds the inputs to one Provision call.
type Params struct {
	// Friendly enables the permissive local-developer access mode: a
	// missing condition is allowed with a warning instead of denied.
	Friendly bool

	// Context is the run's access context, used to evaluate
	// conditions. Nil means "no context available" (the friendly-mode
	// "access control skipped" path, or a strict-mode failure if a
	// condition is present).
	Context *condition.Context

	// SourcePath is the secret database file path, or empty if no
	// secret store is configured for this run.
	SourcePath string

	// PrivateKey decrypts SourcePath. Ignored if SourcePath is empty.
	PrivateKey *secret.Buffer

	// SecretsMap maps destination name to source secret name, parsed
	// from the derivation's reserved secretsMap environment entry.
	SecretsMap map[string]string

	// ExtraSecrets are caller-supplied secrets (e.g. a wrapped API
	// token under the conventional name "hercules-ci") merged on top
	// of the loaded store; extras shadow file entries of the same
	// name.
	ExtraSecrets map[string]secretstore.Secret

	// DestDir is the directory secrets.json is written into (the
	// run's secrets/ directory). Created if it does not exist.
	DestDir string

	// Logger receives deprecation and access-control-skipped
	// warnings. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// outputSecret is the on-disk shape: condition is always null after
// provisioning (Invariant 3).
type outputSecret struct {
	Data      map[string]any `json:"data"`
	Condition any            `json:"condition"`
}

// Provision resolves params.SecretsMap against the merged secret
// store and writes the allowed secrets to destDir/secrets.json.
//
// If SecretsMap is empty, Provision writes nothing and returns nil
// regardless of source availability.
func Provision(params Params) error {
	logger := params.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if len(params.SecretsMap) == 0 {
		return nil
	}

	loaded, err := secretstore.Load(params.SourcePath, params.PrivateKey)
	if err != nil {
		return fmt.Errorf("provisioner: loading secret store: %w", err)
	}
	merged := loaded.Reveal()
	for name, secretEntry := range params.ExtraSecrets {
		merged[name] = secretEntry
	}

	output := make(map[string]outputSecret, len(params.SecretsMap))

	for destName, srcName := range params.SecretsMap {
		source, found := merged[srcName]
		if !found {
			return &AccessDenied{DestName: destName, Reason: "not found in store"}
		}

		allowed, trace, err := decide(params.Friendly, params.Context, source.Condition, logger, destName)
		if err != nil {
			return err
		}
		if !allowed {
			return &AccessDenied{DestName: destName, Reason: "condition evaluated false", Trace: trace}
		}

		output[destName] = outputSecret{Data: source.Data, Condition: nil}
	}

	if err := os.MkdirAll(params.DestDir, 0700); err != nil {
		return fmt.Errorf("provisioner: creating secrets directory: %w", err)
	}

	return writeSecretsJSON(filepath.Join(params.DestDir, "secrets.json"), output)
}

// decide implements the §4.4 access decision table. It returns
// whether the secret is allowed, plus a trace when one was computed.
func decide(friendly bool, ctx *condition.Context, cond *condition.Condition, logger *slog.Logger, destName string) (bool, []string, error) {
	switch {
	case !friendly && cond == nil:
		return false, nil, &ConditionMissing{DestName: destName}

	case !friendly && cond != nil:
		// Strict mode with a condition always requires a context —
		// the context is how the runner would have evaluated it.
		if ctx == nil {
			return false, nil, &AccessDenied{DestName: destName, Reason: "no access context to evaluate condition"}
		}
		return condition.Evaluate(*ctx, *cond), nil, nil

	case friendly && cond == nil:
		logger.Warn("secret has no access condition; allowing under friendly mode (deprecated)",
			"dest_name", destName)
		return true, nil, nil

	case friendly && cond != nil && ctx != nil:
		trace, result := condition.EvaluateTrace(*ctx, *cond)
		if !result {
			logger.Warn("secret access denied",
				"dest_name", destName,
				"trace", trace)
		}
		return result, trace, nil

	default: // friendly && cond != nil && ctx == nil
		logger.Warn("no access context available; access control skipped under friendly mode",
			"dest_name", destName)
		return true, nil, nil
	}
}

func writeSecretsJSON(path string, output map[string]outputSecret) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("provisioner: marshaling secrets.json: %w", err)
	}

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("provisioner: creating temporary secrets.json: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("provisioner: writing temporary secrets.json: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("provisioner: syncing temporary secrets.json: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("provisioner: closing temporary secrets.json: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("provisioner: renaming secrets.json into place: %w", err)
	}
	return nil
}
