package pipeline

// StepState is the display state of one pipeline stage.
type StepState string

const (
	StateCompleted  StepState = "completed"
	StateProcessing StepState = "processing"
	StatePending    StepState = "pending"
	StateFailed     StepState = "failed"
)

// ProjectStep derives the display state for a single stage from the
// recording's persisted status plus the live signals tracked alongside it.
// The persisted status is authoritative and can diverge from the last-seen
// live step (after a reload the live step is unknown but the coarse status
// is trustworthy), so it is consulted first:
//
//  1. draft_ready: the first two stages are completed, the rest pending,
//     regardless of any currentStep value.
//  2. completed: every stage is completed.
//  3. failed: stages before the failure point are completed, the failing
//     stage is failed, later stages pending. The failure point is
//     failedAtStep, falling back to currentStep when unset. When neither
//     names a known stage every stage reports failed.
//  4. otherwise the stage index is compared against the live currentStep:
//     earlier completed, equal processing, later pending. No currentStep
//     means all pending; the terminal "completed" marker means all
//     completed.
func ProjectStep(stageID Step, status Status, currentStep, failedAtStep Step) StepState {
	stageIndex := StepIndex(stageID)

	if status == StatusDraftReady {
		if stageIndex >= 0 && stageIndex < draftReadyStages {
			return StateCompleted
		}
		return StatePending
	}

	if status == StatusCompleted {
		return StateCompleted
	}

	if status == StatusFailed {
		failedStep := failedAtStep
		if failedStep == "" {
			failedStep = currentStep
		}
		failedIndex := StepIndex(failedStep)
		if failedIndex == -1 {
			// Failure point unknown: report everything failed rather
			// than guessing at partial progress.
			return StateFailed
		}
		switch {
		case stageIndex < failedIndex:
			return StateCompleted
		case stageIndex == failedIndex:
			return StateFailed
		default:
			return StatePending
		}
	}

	if currentStep == "" {
		return StatePending
	}
	if currentStep == StepCompleted {
		return StateCompleted
	}

	currentIndex := StepIndex(currentStep)
	switch {
	case stageIndex < currentIndex:
		return StateCompleted
	case stageIndex == currentIndex:
		return StateProcessing
	default:
		return StatePending
	}
}

// ProjectSteps evaluates ProjectStep for every pipeline stage in order.
func ProjectSteps(status Status, currentStep, failedAtStep Step) []StepState {
	states := make([]StepState, len(Steps))
	for i, stage := range Steps {
		states[i] = ProjectStep(stage, status, currentStep, failedAtStep)
	}
	return states
}
