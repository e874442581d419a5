package effect

import "maps"

// buildEnvironment composes the in-container environment per §6: a
// derivation-overridable base, then the derivation's own environment,
// then an impure-overridable layer, with a fixed tail that always
// wins regardless of what came before. Each layer is applied
// left-to-right; a later layer's key wins on conflict.
func buildEnvironment(params RunEffectParams) map[string]string {
	env := baseEnvironment(params)

	maps.Copy(env, params.Derivation.Env)

	maps.Copy(env, impureOverridableEnvironment())

	maps.Copy(env, fixedEnvironment())

	return env
}

// baseEnvironment is the derivation-overridable base layer: sane
// defaults for a hermetic build plus the values the effect run itself
// supplies (API base URL, secrets.json location, project identity).
func baseEnvironment(params RunEffectParams) map[string]string {
	env := map[string]string{
		"PATH":                     "/path-not-set",
		"HOME":                     "/homeless-shelter",
		"NIX_STORE":                "/nix/store",
		"NIX_BUILD_CORES":          "1",
		"NIX_REMOTE":               "daemon",
		"IN_HERCULES_CI_EFFECT":    "true",
		"HERCULES_CI_API_BASE_URL": params.APIBaseURL,
		"HERCULES_CI_SECRETS_JSON": "/secrets/secrets.json",
	}
	if params.ProjectID != "" {
		env["HERCULES_CI_PROJECT_ID"] = params.ProjectID
	}
	if params.ProjectPath != "" {
		env["HERCULES_CI_PROJECT_PATH"] = params.ProjectPath
	}
	return env
}

// impureOverridableEnvironment is the layer that wins over the
// derivation's own environment (a derivation cannot pin TMPDIR to
// somewhere outside /build) but still loses to the fixed tail.
func impureOverridableEnvironment() map[string]string {
	return map[string]string{
		"NIX_BUILD_TOP": "/build",
		"TMPDIR":        "/build",
		"TEMPDIR":       "/build",
		"TMP":           "/build",
		"TEMP":          "/build",
	}
}

// fixedEnvironment always wins: nothing upstream of it — not the
// base, not the derivation, not the impure-overridable layer — may
// override these.
func fixedEnvironment() map[string]string {
	return map[string]string{
		"NIX_LOG_FD": "2",
		"TERM":       "xterm-256color",
	}
}
