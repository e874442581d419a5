package effect

import (
	"encoding/json"
	"fmt"
)

// parseSecretsMap decodes the raw "secretsMap" derivation environment
// entry, a flat JSON object of destination name to source secret
// name.
func parseSecretsMap(raw string) (map[string]string, error) {
	var parsed map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("effect: parsing secretsMap: %w", err)
	}
	return parsed, nil
}
