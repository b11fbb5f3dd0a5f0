package agents

import (
	"context"
	"testing"
	"time"
)

func TestParseCollectorOutputReady(t *testing.T) {
	raw := `{"status":"ready","extraction":{"what_happened":"Beach wedding","when":"2020-06-15 14:00:00","when_description":"summer 2020","who_people":["Alex","Sam"],"who_pets":[],"where":"Santa Cruz","emotions_mood":"joyful","is_complete":true},"confirmation_message":"A joyful beach wedding with Alex and Sam."}`

	res := ParseCollectorOutput(context.Background(), raw)
	if !res.Ready {
		t.Fatal("expected ready result")
	}
	if res.Malformed {
		t.Error("well-formed output flagged malformed")
	}
	ext := res.Extraction
	if ext == nil {
		t.Fatal("expected an extraction")
	}
	if ext.WhatHappened != "Beach wedding" {
		t.Errorf("what_happened = %q", ext.WhatHappened)
	}
	if ext.When == nil {
		t.Fatal("expected a parsed timestamp")
	}
	want := time.Date(2020, 6, 15, 14, 0, 0, 0, time.UTC)
	if !ext.When.Equal(want) {
		t.Errorf("when = %v, want %v", ext.When, want)
	}
	if len(ext.WhoPeople) != 2 || ext.WhoPeople[0] != "Alex" {
		t.Errorf("who_people = %v", ext.WhoPeople)
	}
	if !ext.HasSubjects() {
		t.Error("extraction with people should have subjects")
	}
	if res.Confirmation == "" {
		t.Error("expected a confirmation message")
	}
}

func TestParseCollectorOutputFenced(t *testing.T) {
	raw := "```json\n{\"status\":\"needs_info\",\"message\":\"When did this happen?\"}\n```"
	res := ParseCollectorOutput(context.Background(), raw)
	if res.Ready {
		t.Fatal("needs_info parsed as ready")
	}
	if res.Malformed {
		t.Error("fenced JSON should parse cleanly")
	}
	if res.Message != "When did this happen?" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestParseCollectorOutputReadyButIncomplete(t *testing.T) {
	// "ready" is only honored when is_complete backs it up.
	raw := `{"status":"ready","extraction":{"what_happened":"something","is_complete":false},"confirmation_message":"All set!"}`
	res := ParseCollectorOutput(context.Background(), raw)
	if res.Ready {
		t.Fatal("ready without is_complete must not advance")
	}
	if res.Message == "" {
		t.Error("expected a fallback message")
	}
}

func TestParseCollectorOutputGarbage(t *testing.T) {
	res := ParseCollectorOutput(context.Background(), "Sure! Tell me more about your memory.")
	if res.Ready {
		t.Fatal("plain text parsed as ready")
	}
	if !res.Malformed {
		t.Error("plain text should be flagged malformed")
	}
	if res.Message != "Sure! Tell me more about your memory." {
		t.Errorf("raw text should be carried through, got %q", res.Message)
	}
}

func TestParseCollectorOutputNullishFields(t *testing.T) {
	raw := `{"status":"ready","extraction":{"what_happened":"Quiet hike","when":"unknown","when_description":"null","who_people":[" Dana ",""],"who_pets":["Rex"],"where":"","emotions_mood":"calm","is_complete":true}}`
	res := ParseCollectorOutput(context.Background(), raw)
	if !res.Ready {
		t.Fatal("expected ready")
	}
	ext := res.Extraction
	if ext.When != nil {
		t.Errorf("unparseable when should stay nil, got %v", ext.When)
	}
	if ext.WhenDescription != "" {
		t.Errorf("null-ish when_description should be dropped, got %q", ext.WhenDescription)
	}
	if len(ext.WhoPeople) != 1 || ext.WhoPeople[0] != "Dana" {
		t.Errorf("who_people not cleaned: %v", ext.WhoPeople)
	}
	if len(ext.WhoPets) != 1 {
		t.Errorf("who_pets = %v", ext.WhoPets)
	}
}

func TestParseWhenFormats(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2020-06-15 14:00:00", true},
		{"2020-06-15", true},
		{"2020-06-15T14:00:00Z", true},
		{"last summer", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := parseWhen(tt.in); ok != tt.ok {
			t.Errorf("parseWhen(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}
