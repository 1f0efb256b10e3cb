package mechanism

import (
	"strings"
	"testing"
)

func TestValidateSessionMechanism_Valid(t *testing.T) {
	if errs := ValidateSessionMechanism(validSessionMechanism()); len(errs) != 0 {
		t.Fatalf("expected valid payload, got errors: %v", errs)
	}
}

func TestValidateSessionMechanism_WrongSchemaVersion(t *testing.T) {
	raw := validSessionMechanism()
	raw["schema_version"] = "session-mechanism.v0"
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "schema_version") {
		t.Errorf("expected an error mentioning schema_version, got %v", errs)
	}
}

func TestValidateSessionMechanism_EmptyEvidence(t *testing.T) {
	raw := validSessionMechanism()
	why := raw["why"].([]any)[0].(RawObject)
	why["evidence"] = []any{}
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "evidence") {
		t.Errorf("expected an error referencing evidence, got %v", errs)
	}
}

func TestValidateSessionMechanism_BlockedEngine(t *testing.T) {
	for _, engine := range []string{"manual", "mock", "template"} {
		raw := validSessionMechanism()
		raw["generated_by"].(RawObject)["engine"] = engine
		errs := ValidateSessionMechanism(raw)
		if !anyContains(errs, "generated_by is blocked") {
			t.Errorf("engine %q: expected a 'generated_by is blocked' error, got %v", engine, errs)
		}
	}
}

func TestValidateSessionMechanism_BlockedProvider(t *testing.T) {
	raw := validSessionMechanism()
	raw["generated_by"].(RawObject)["provider"] = "mock"
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "generated_by is blocked") {
		t.Errorf("expected a 'generated_by is blocked' error, got %v", errs)
	}
}

func TestValidateSessionMechanism_BlockedRunID(t *testing.T) {
	raw := validSessionMechanism()
	raw["generated_by"].(RawObject)["run_id"] = "nightly-mock-backfill-2026"
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "run_id contains") {
		t.Errorf("expected a run_id placeholder error, got %v", errs)
	}
}

func TestValidateSessionMechanism_PlaceholderToken(t *testing.T) {
	raw := validSessionMechanism()
	raw["summary"] = "TBD - need more session mechanism outputs"
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "placeholder") {
		t.Errorf("expected a placeholder error, got %v", errs)
	}
}

func TestValidateSessionMechanism_InvalidTurnID(t *testing.T) {
	raw := validSessionMechanism()
	ev := raw["why"].([]any)[0].(RawObject)["evidence"].([]any)[0].(RawObject)
	ev["turn_id"] = -1
	errs := ValidateSessionMechanism(raw)
	if !anyContains(errs, "turn_id") {
		t.Errorf("expected a turn_id error, got %v", errs)
	}
}

func TestValidateSessionMechanism_NeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("ValidateSessionMechanism panicked: %v", r)
		}
	}()
	ValidateSessionMechanism(nil)
	ValidateSessionMechanism(RawObject{})
	ValidateSessionMechanism(RawObject{"why": "not a slice", "generated_by": "not a map"})
}

func anyContains(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}
