package condition

import (
	"encoding/json"
	"testing"
)

func TestEvaluateLeaves(t *testing.T) {
	ctx := Context{Repo: "acme/widgets", Branch: "main", IsOwner: true}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"true literal", True(), true},
		{"false literal", False(), false},
		{"owner match", IsOwner(), true},
		{"branch match", IsBranch("main"), true},
		{"branch mismatch", IsBranch("feature"), false},
		{"tag on branch ref", IsTag("v1"), false},
		{"repo match", IsRepo("acme/widgets"), true},
		{"repo mismatch", IsRepo("acme/other"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Evaluate(ctx, test.cond); got != test.want {
				t.Errorf("Evaluate(%v) = %t, want %t", test.cond, got, test.want)
			}
		})
	}
}

func TestEvaluateAndOr(t *testing.T) {
	ctx := Context{Repo: "acme/widgets", Branch: "main", IsOwner: false}

	if got := Evaluate(ctx, And(IsBranch("main"), IsRepo("acme/widgets"))); !got {
		t.Error("And(true, true) = false, want true")
	}
	if got := Evaluate(ctx, And(IsBranch("main"), IsOwner())); got {
		t.Error("And(true, false) = true, want false")
	}
	if got := Evaluate(ctx, Or(IsOwner(), IsBranch("main"))); !got {
		t.Error("Or(false, true) = false, want true")
	}
	if got := Evaluate(ctx, Or(IsOwner(), IsTag("v1"))); got {
		t.Error("Or(false, false) = true, want false")
	}
	if got := Evaluate(ctx, And()); !got {
		t.Error("And() (empty) = false, want true (vacuous)")
	}
	if got := Evaluate(ctx, Or()); got {
		t.Error("Or() (empty) = true, want false")
	}
}

func TestEvaluateTraceOrder(t *testing.T) {
	ctx := Context{Repo: "acme/widgets", Branch: "feature", IsOwner: true}
	cond := And(IsBranch("main"), IsOwner())

	trace, result := EvaluateTrace(ctx, cond)
	if result {
		t.Fatal("EvaluateTrace() result = true, want false")
	}
	if len(trace) != 3 {
		t.Fatalf("trace length = %d, want 3 (two leaves + aggregation)", len(trace))
	}
	if trace[0] != `IsBranch("main"): false` {
		t.Errorf("trace[0] = %q", trace[0])
	}
	if trace[1] != "IsOwner: true" {
		t.Errorf("trace[1] = %q", trace[1])
	}
}

func TestEvaluateIsPure(t *testing.T) {
	ctx := Context{Repo: "acme/widgets", Branch: "main"}
	cond := Or(IsBranch("main"), IsRepo("acme/other"))

	trace1, result1 := EvaluateTrace(ctx, cond)
	trace2, result2 := EvaluateTrace(ctx, cond)

	if result1 != result2 {
		t.Errorf("repeated evaluation gave different results: %t, %t", result1, result2)
	}
	if len(trace1) != len(trace2) {
		t.Fatalf("repeated evaluation gave different trace lengths: %d, %d", len(trace1), len(trace2))
	}
	for i := range trace1 {
		if trace1[i] != trace2[i] {
			t.Errorf("trace[%d] differs: %q vs %q", i, trace1[i], trace2[i])
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	cond := And(IsBranch("main"), Or(IsOwner(), IsRepo("acme/widgets")))

	data, err := json.Marshal(cond)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	var decoded Condition
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	ctx := Context{Repo: "acme/widgets", Branch: "main", IsOwner: false}
	want := Evaluate(ctx, cond)
	got := Evaluate(ctx, decoded)
	if got != want {
		t.Errorf("round-tripped condition evaluates to %t, want %t", got, want)
	}
}

func TestJSONSingleLeaf(t *testing.T) {
	data := []byte(`{"IsBranch":"main"}`)
	var cond Condition
	if err := json.Unmarshal(data, &cond); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if cond.Kind() != KindIsBranch || cond.Name() != "main" {
		t.Errorf("decoded = %v/%q, want IsBranch/main", cond.Kind(), cond.Name())
	}
}

func TestJSONEmptyObjectFails(t *testing.T) {
	var cond Condition
	if err := json.Unmarshal([]byte(`{}`), &cond); err == nil {
		t.Error("Unmarshal of {} should fail: no recognized variant")
	}
}
