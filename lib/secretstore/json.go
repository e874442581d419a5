package secretstore

import (
	"encoding/json"

	"github.com/brainrake/hercules-ci-agent/lib/condition"
)

func unmarshalDataField(text string, out *map[string]any) error {
	return json.Unmarshal([]byte(text), out)
}

func unmarshalConditionField(text string, out *condition.Condition) error {
	return json.Unmarshal([]byte(text), out)
}
