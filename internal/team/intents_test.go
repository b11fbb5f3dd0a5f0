package team

import "testing"

func TestIntentMatching(t *testing.T) {
	tests := []struct {
		text  string
		match func(string) bool
		name  string
		want  bool
	}{
		{"yes", wantsGenerate, "wantsGenerate", true},
		{"Yes, go ahead", wantsGenerate, "wantsGenerate", true},
		{"generate it now", wantsGenerate, "wantsGenerate", true},
		{"it was yesterday at sunset", wantsGenerate, "wantsGenerate", false},
		{"we eyed the horizon", wantsGenerate, "wantsGenerate", false},
		{"done", doneSelecting, "doneSelecting", true},
		{"i'm done picking", doneSelecting, "doneSelecting", true},
		{"we abandoned the picnic", doneSelecting, "doneSelecting", false},
		{"skip the photos", wantsSkip, "wantsSkip", true},
		{"skipping stones by the lake", wantsSkip, "wantsSkip", false},
		{"no photos please", wantsSkip, "wantsSkip", true},
		{"retry", wantsRetry, "wantsRetry", true},
		{"try again please", wantsRetry, "wantsRetry", true},
		{"start over", wantsStartOver, "wantsStartOver", true},
		{"the overture played", wantsStartOver, "wantsStartOver", false},
		{"search my library", wantsAutoSearch, "wantsAutoSearch", true},
		{"researching our trip", wantsAutoSearch, "wantsAutoSearch", false},
	}
	for _, tt := range tests {
		if got := tt.match(tt.text); got != tt.want {
			t.Errorf("%s(%q) = %v, want %v", tt.name, tt.text, got, tt.want)
		}
	}
}
