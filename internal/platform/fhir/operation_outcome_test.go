package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewOperationOutcome(t *testing.T) {
	oo := NewOperationOutcome("error", "processing", "something went wrong")

	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %s", oo.ResourceType)
	}
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	if oo.Issue[0].Severity != "error" {
		t.Errorf("expected severity error, got %s", oo.Issue[0].Severity)
	}
	if oo.Issue[0].Code != "processing" {
		t.Errorf("expected code processing, got %s", oo.Issue[0].Code)
	}
	if !oo.HasErrors() {
		t.Error("expected HasErrors to be true")
	}
}

func TestOperationOutcome_Diagnostics(t *testing.T) {
	raw := `{"resourceType":"OperationOutcome","issue":[
		{"severity":"error","code":"security","diagnostics":"invalid credentials"},
		{"severity":"warning","code":"processing","details":{"text":"slow query"}},
		{"severity":"information","code":"informational"}]}`
	var oo OperationOutcome
	if err := json.Unmarshal([]byte(raw), &oo); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := "invalid credentials; slow query; informational"
	if got := oo.Diagnostics(); got != want {
		t.Errorf("Diagnostics() = %q, want %q", got, want)
	}
}

func TestOperationOutcome_HasErrorsWarningsOnly(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityWarning, IssueTypeProcessing, "careful")
	if oo.HasErrors() {
		t.Error("expected no errors for warning-only outcome")
	}
}
