package main

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// option is one entry of the worker's positional options-list
// argument: a Nix setting override such as {"name":"cores","value":"4"}.
type option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// parseOptions decodes the worker's single positional argument: a
// JSONC-encoded (JSON with comments and trailing commas) array of
// {name, value} settings. An empty string parses to no options.
func parseOptions(raw string) ([]option, error) {
	if raw == "" {
		return nil, nil
	}
	var options []option
	if err := json.Unmarshal(jsonc.ToJSON([]byte(raw)), &options); err != nil {
		return nil, fmt.Errorf("parsing worker options: %w", err)
	}
	return options, nil
}
