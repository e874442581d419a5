package main

import "testing"

func TestSplitKeyValue(t *testing.T) {
	key, value, found := splitKeyValue("cores=4")
	if !found || key != "cores" || value != "4" {
		t.Errorf("splitKeyValue(cores=4) = (%q, %q, %v)", key, value, found)
	}
}

func TestSplitKeyValueNoEquals(t *testing.T) {
	_, _, found := splitKeyValue("cores")
	if found {
		t.Error("splitKeyValue should report not-found for an entry with no '='")
	}
}

func TestSplitKeyValueEmbeddedEquals(t *testing.T) {
	key, value, found := splitKeyValue("extra-substituters=https://example.com?a=b")
	if !found || key != "extra-substituters" || value != "https://example.com?a=b" {
		t.Errorf("splitKeyValue should split on the first '=' only, got (%q, %q, %v)", key, value, found)
	}
}

func TestParseExtraNixOptions(t *testing.T) {
	options, err := parseExtraNixOptions([]string{"cores=4", "max-jobs=2"})
	if err != nil {
		t.Fatalf("parseExtraNixOptions() error: %v", err)
	}
	if len(options) != 2 || options[0].Key != "cores" || options[0].Value != "4" {
		t.Errorf("parseExtraNixOptions() = %+v", options)
	}
}

func TestParseExtraNixOptionsRejectsMalformed(t *testing.T) {
	if _, err := parseExtraNixOptions([]string{"no-equals-sign"}); err == nil {
		t.Fatal("parseExtraNixOptions should reject an entry without '='")
	}
}
