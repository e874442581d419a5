package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/brainrake/hercules-ci-agent/effect"
)

// derivationFile is the on-disk shape of a realized derivation, as
// handed to effect-run by the (out-of-scope) derivation-evaluation
// walker. It mirrors [effect.Derivation] field-for-field.
type derivationFile struct {
	Executable string            `json:"executable"`
	Arguments  []string          `json:"arguments"`
	Env        map[string]string `json:"env"`
	OutputName string            `json:"outputName"`
}

// readDerivation loads a derivation description from path, or from
// stdin when path is "-".
func readDerivation(path string) (effect.Derivation, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return effect.Derivation{}, fmt.Errorf("reading derivation: %w", err)
	}

	var parsed derivationFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return effect.Derivation{}, fmt.Errorf("parsing derivation: %w", err)
	}

	return effect.Derivation{
		Executable: parsed.Executable,
		Arguments:  parsed.Arguments,
		Env:        parsed.Env,
		OutputName: parsed.OutputName,
	}, nil
}
