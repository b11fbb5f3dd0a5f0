package memory

// Stage is a named point in the conversation state machine. Which inputs are
// accepted and which handler runs depend on the current stage.
type Stage string

const (
	StageCollecting          Stage = "collecting"
	StageReadyForSearch      Stage = "ready_for_search"
	StageSelectingReferences Stage = "selecting_references"
	StageFetchingPicker      Stage = "fetching_picker"
	StageSearchFailed        Stage = "search_failed"
	StageReadyToGenerate     Stage = "ready_to_generate"
	StageConfirmGeneration   Stage = "confirm_generation"
	StageScreening           Stage = "screening"
	StageGenerating          Stage = "generating"
	StageUploading           Stage = "uploading"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
	StagePolicyViolation     Stage = "policy_violation"
)

// stageTransitions defines the valid successors of each stage. Staying in the
// same stage is always allowed; StageFailed is reachable from anywhere.
var stageTransitions = map[Stage][]Stage{
	StageCollecting:          {StageReadyForSearch, StageConfirmGeneration},
	StageReadyForSearch:      {StageSelectingReferences, StageConfirmGeneration, StageSearchFailed, StageCollecting},
	StageSelectingReferences: {StageFetchingPicker, StageReadyToGenerate, StageConfirmGeneration, StageSearchFailed, StageCollecting},
	StageFetchingPicker:      {StageReadyToGenerate, StageSelectingReferences, StageConfirmGeneration},
	StageSearchFailed:        {StageSelectingReferences, StageConfirmGeneration, StageCollecting},
	StageReadyToGenerate:     {StageScreening, StageReadyForSearch, StageConfirmGeneration, StageCollecting},
	StageConfirmGeneration:   {StageScreening, StageReadyForSearch, StageCollecting},
	StageScreening:           {StageGenerating, StagePolicyViolation, StageConfirmGeneration},
	StageGenerating:          {StageUploading, StagePolicyViolation, StageConfirmGeneration},
	StageUploading:           {StageCompleted},
	StageCompleted:           {},
	StageFailed:              {},
	StagePolicyViolation:     {},
}

// CanTransition reports whether moving from one stage to another is a valid
// walk of the state graph.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	if to == StageFailed {
		return !IsTerminal(from)
	}
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a stage has no outgoing transitions.
func IsTerminal(s Stage) bool {
	next, ok := stageTransitions[s]
	return ok && len(next) == 0
}

// IsPhotoStage reports whether the stage is part of the reference photo
// acquisition branch, where a skip directive is accepted.
func IsPhotoStage(s Stage) bool {
	switch s {
	case StageReadyForSearch, StageSelectingReferences, StageFetchingPicker, StageSearchFailed, StageReadyToGenerate:
		return true
	}
	return false
}
