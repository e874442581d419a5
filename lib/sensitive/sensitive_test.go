package sensitive

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestWrapReveal(t *testing.T) {
	v := Wrap("top-secret")
	if got := Reveal(v); got != "top-secret" {
		t.Errorf("Reveal() = %q, want %q", got, "top-secret")
	}
	if got := v.Reveal(); got != "top-secret" {
		t.Errorf("v.Reveal() = %q, want %q", got, "top-secret")
	}
	if !v.IsSet() {
		t.Error("IsSet() = false, want true for a Wrapped value")
	}
}

func TestZeroValueIsUnset(t *testing.T) {
	var v Value[string]
	if v.IsSet() {
		t.Error("IsSet() = true for zero Value, want false")
	}
	if v.Reveal() != "" {
		t.Errorf("Reveal() = %q, want empty string", v.Reveal())
	}
}

func TestFormattingIsRedacted(t *testing.T) {
	v := Wrap("top-secret")

	for _, got := range []string{
		fmt.Sprintf("%v", v),
		fmt.Sprintf("%s", v),
		fmt.Sprintf("%#v", v),
		v.String(),
	} {
		if got != redactedPlaceholder {
			t.Errorf("formatted output = %q, want %q", got, redactedPlaceholder)
		}
		if contains(got, "top-secret") {
			t.Fatalf("formatted output leaked secret value: %q", got)
		}
	}
}

func TestMarshalJSONIsRedacted(t *testing.T) {
	v := Wrap("top-secret")
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	if contains(string(data), "top-secret") {
		t.Fatalf("marshaled JSON leaked secret value: %s", data)
	}

	type envelope struct {
		Token Value[string] `json:"token"`
	}
	data, err = json.Marshal(envelope{Token: v})
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	if contains(string(data), "top-secret") {
		t.Fatalf("marshaled envelope leaked secret value: %s", data)
	}
}

func TestMap(t *testing.T) {
	v := Wrap(3)
	doubled := Map(v, func(n int) int { return n * 2 })
	if got := Reveal(doubled); got != 6 {
		t.Errorf("Reveal(doubled) = %d, want 6", got)
	}
	if !doubled.IsSet() {
		t.Error("Map() result IsSet() = false, want true")
	}
}

func TestPivotOptionPresent(t *testing.T) {
	s := "present"
	v := Wrap(&s)
	out, ok := PivotOption(v)
	if !ok {
		t.Fatal("PivotOption() ok = false, want true for non-nil pointer")
	}
	if got := Reveal(out); got != "present" {
		t.Errorf("Reveal(out) = %q, want %q", got, "present")
	}
}

func TestPivotOptionAbsent(t *testing.T) {
	v := Wrap[*string](nil)
	out, ok := PivotOption(v)
	if ok {
		t.Fatal("PivotOption() ok = true, want false for nil pointer")
	}
	if out.IsSet() {
		t.Error("PivotOption() result IsSet() = true for absent case, want false")
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
