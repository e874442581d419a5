package main

import "testing"

func TestParseOptionsEmpty(t *testing.T) {
	options, err := parseOptions("")
	if err != nil {
		t.Fatalf("parseOptions(\"\") error: %v", err)
	}
	if options != nil {
		t.Errorf("parseOptions(\"\") = %v, want nil", options)
	}
}

func TestParseOptionsJSONC(t *testing.T) {
	raw := `[
		// a comment
		{"name": "cores", "value": "4"},
		{"name": "max-jobs", "value": "2"},
	]`
	options, err := parseOptions(raw)
	if err != nil {
		t.Fatalf("parseOptions() error: %v", err)
	}
	if len(options) != 2 || options[0].Name != "cores" || options[0].Value != "4" {
		t.Errorf("parseOptions() = %+v", options)
	}
}

func TestParseOptionsMalformed(t *testing.T) {
	if _, err := parseOptions("not json"); err == nil {
		t.Fatal("parseOptions should fail on malformed input")
	}
}
