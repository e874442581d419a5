package condition

import (
	"encoding/json"
	"fmt"
)

// jsonForm mirrors the on-disk secret-store representation: a single
// object with exactly one of these fields set, matching examples like
// {"IsBranch":"main"} and {"And":[{"IsOwner":true}, ...]}.
type jsonForm struct {
	True    *bool      `json:"True,omitempty"`
	False   *bool      `json:"False,omitempty"`
	And     []jsonForm `json:"And,omitempty"`
	Or      []jsonForm `json:"Or,omitempty"`
	IsOwner *bool      `json:"IsOwner,omitempty"`
	IsBranch string    `json:"IsBranch,omitempty"`
	IsTag    string    `json:"IsTag,omitempty"`
	IsRepo   string    `json:"IsRepo,omitempty"`
}

var truePtr = boolPtr(true)

func boolPtr(b bool) *bool { return &b }

// MarshalJSON encodes c in the secret store's tagged-variant form.
func (c Condition) MarshalJSON() ([]byte, error) {
	form, err := toJSONForm(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(form)
}

func toJSONForm(c Condition) (jsonForm, error) {
	switch c.kind {
	case KindTrue:
		return jsonForm{True: truePtr}, nil
	case KindFalse:
		return jsonForm{False: truePtr}, nil
	case KindIsOwner:
		return jsonForm{IsOwner: truePtr}, nil
	case KindIsBranch:
		return jsonForm{IsBranch: c.name}, nil
	case KindIsTag:
		return jsonForm{IsTag: c.name}, nil
	case KindIsRepo:
		return jsonForm{IsRepo: c.name}, nil
	case KindAnd:
		operands := make([]jsonForm, len(c.operands))
		for i, operand := range c.operands {
			form, err := toJSONForm(operand)
			if err != nil {
				return jsonForm{}, err
			}
			operands[i] = form
		}
		return jsonForm{And: operands}, nil
	case KindOr:
		operands := make([]jsonForm, len(c.operands))
		for i, operand := range c.operands {
			form, err := toJSONForm(operand)
			if err != nil {
				return jsonForm{}, err
			}
			operands[i] = form
		}
		return jsonForm{Or: operands}, nil
	default:
		return jsonForm{}, fmt.Errorf("condition: unhandled kind %v", c.kind)
	}
}

// UnmarshalJSON decodes c from the secret store's tagged-variant form.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var form jsonForm
	if err := json.Unmarshal(data, &form); err != nil {
		return err
	}
	cond, err := fromJSONForm(form)
	if err != nil {
		return err
	}
	*c = cond
	return nil
}

func fromJSONForm(form jsonForm) (Condition, error) {
	switch {
	case form.True != nil:
		return True(), nil
	case form.False != nil:
		return False(), nil
	case form.IsOwner != nil:
		return IsOwner(), nil
	case form.IsBranch != "":
		return IsBranch(form.IsBranch), nil
	case form.IsTag != "":
		return IsTag(form.IsTag), nil
	case form.IsRepo != "":
		return IsRepo(form.IsRepo), nil
	case form.And != nil:
		operands := make([]Condition, len(form.And))
		for i, sub := range form.And {
			cond, err := fromJSONForm(sub)
			if err != nil {
				return Condition{}, err
			}
			operands[i] = cond
		}
		return And(operands...), nil
	case form.Or != nil:
		operands := make([]Condition, len(form.Or))
		for i, sub := range form.Or {
			cond, err := fromJSONForm(sub)
			if err != nil {
				return Condition{}, err
			}
			operands[i] = cond
		}
		return Or(operands...), nil
	default:
		return Condition{}, fmt.Errorf("condition: empty or unrecognized JSON form")
	}
}
