package agents

import (
	"context"
	"testing"
)

func TestParseVerdictApproved(t *testing.T) {
	raw := "APPROVED: Yes\nVIOLATIONS: None\nSEVERITY: none\nSUGGESTIONS: None"
	v := ParseVerdict(context.Background(), raw)
	if !v.Approved {
		t.Fatal("expected approval")
	}
	if len(v.Violations) != 0 {
		t.Errorf("violations = %v, want none", v.Violations)
	}
	if v.Severity != "none" {
		t.Errorf("severity = %q", v.Severity)
	}
}

func TestParseVerdictDenied(t *testing.T) {
	raw := `APPROVED: No
VIOLATIONS: [graphic violence, gore]
SEVERITY: high
SUGGESTIONS: [Describe the aftermath instead, Focus on the people present]`
	v := ParseVerdict(context.Background(), raw)
	if v.Approved {
		t.Fatal("expected denial")
	}
	if len(v.Violations) != 2 || v.Violations[0] != "graphic violence" {
		t.Errorf("violations = %v", v.Violations)
	}
	if v.Severity != "high" {
		t.Errorf("severity = %q", v.Severity)
	}
	if len(v.Suggestions) != 2 {
		t.Errorf("suggestions = %v", v.Suggestions)
	}
}

func TestParseVerdictOffProtocol(t *testing.T) {
	// A verdict that never states APPROVED defaults to approval; the
	// deterministic policy check upstream is the real gate.
	v := ParseVerdict(context.Background(), "This looks like a lovely memory, go ahead!")
	if !v.Approved {
		t.Fatal("off-protocol output should default to approved")
	}
	if len(v.Violations) != 0 {
		t.Errorf("violations = %v", v.Violations)
	}
}

func TestParseVerdictCaseInsensitive(t *testing.T) {
	v := ParseVerdict(context.Background(), "approved: NO\nviolations: [explicit content]")
	if v.Approved {
		t.Fatal("lowercase keys should still parse")
	}
	if len(v.Violations) != 1 {
		t.Errorf("violations = %v", v.Violations)
	}
}
