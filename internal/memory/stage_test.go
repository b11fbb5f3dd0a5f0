package memory

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"collecting to ready_for_search", StageCollecting, StageReadyForSearch, true},
		{"collecting to confirm_generation", StageCollecting, StageConfirmGeneration, true},
		{"collecting straight to completed", StageCollecting, StageCompleted, false},
		{"collecting straight to generating", StageCollecting, StageGenerating, false},
		{"same stage always allowed", StageScreening, StageScreening, true},
		{"ready_for_search back to collecting", StageReadyForSearch, StageCollecting, true},
		{"selecting to fetching", StageSelectingReferences, StageFetchingPicker, true},
		{"fetching to ready_to_generate", StageFetchingPicker, StageReadyToGenerate, true},
		{"fetching retry back to selecting", StageFetchingPicker, StageSelectingReferences, true},
		{"search_failed skip", StageSearchFailed, StageConfirmGeneration, true},
		{"screening to generating", StageScreening, StageGenerating, true},
		{"screening to policy_violation", StageScreening, StagePolicyViolation, true},
		{"screening budget recovery", StageScreening, StageConfirmGeneration, true},
		{"generating to uploading", StageGenerating, StageUploading, true},
		{"generating denial", StageGenerating, StagePolicyViolation, true},
		{"uploading to completed", StageUploading, StageCompleted, true},
		{"uploading cannot rewind", StageUploading, StageCollecting, false},
		{"failed from anywhere", StageGenerating, StageFailed, true},
		{"completed is terminal", StageCompleted, StageCollecting, false},
		{"completed cannot even fail", StageCompleted, StageFailed, false},
		{"policy_violation is terminal", StagePolicyViolation, StageCollecting, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestFullWalkToCompletion(t *testing.T) {
	walk := []Stage{
		StageCollecting, StageReadyForSearch, StageSelectingReferences,
		StageFetchingPicker, StageReadyToGenerate, StageScreening,
		StageGenerating, StageUploading, StageCompleted,
	}
	for i := 1; i < len(walk); i++ {
		if !CanTransition(walk[i-1], walk[i]) {
			t.Fatalf("walk broken at %s -> %s", walk[i-1], walk[i])
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Stage{StageCompleted, StageFailed, StagePolicyViolation} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	for _, s := range []Stage{StageCollecting, StageScreening, StageUploading} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestIsPhotoStage(t *testing.T) {
	if !IsPhotoStage(StageSelectingReferences) {
		t.Error("selecting_references should be a photo stage")
	}
	if IsPhotoStage(StageCollecting) {
		t.Error("collecting should not be a photo stage")
	}
	if IsPhotoStage(StageScreening) {
		t.Error("screening should not be a photo stage")
	}
}
