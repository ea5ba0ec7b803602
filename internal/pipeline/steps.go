package pipeline

// Status is the coarse lifecycle state of a recording.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusDraftReady Status = "draft_ready"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step names one phase of the processing pipeline. The two marker values
// StepCompleted and StepFailed are emitted by the backend but are not
// stages themselves.
type Step string

const (
	StepExtractingAudio Step = "extracting-audio"
	StepTranscribing    Step = "transcribing"
	StepAIProcessing    Step = "ai-processing"
	StepApplyingZoom    Step = "applying-zoom-effects"
	StepMerging         Step = "merging"

	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
)

// Steps lists the pipeline stages in execution order. Index position in
// this list is the sole ordering signal used to classify stages as earlier
// or later than a given step.
var Steps = []Step{
	StepExtractingAudio,
	StepTranscribing,
	StepAIProcessing,
	StepApplyingZoom,
	StepMerging,
}

// draftReadyStages is the number of leading stages considered complete
// when a recording reaches draft_ready: audio extraction and transcription
// have run, everything after awaits the language-specific render.
const draftReadyStages = 2

// StepIndex returns the position of step within the pipeline, or -1 when
// the step is not a pipeline stage (markers included).
func StepIndex(step Step) int {
	for i, s := range Steps {
		if s == step {
			return i
		}
	}
	return -1
}

var stepLabels = map[Step]string{
	StepExtractingAudio: "Extracting Audio",
	StepTranscribing:    "Transcribing",
	StepAIProcessing:    "AI Processing",
	StepApplyingZoom:    "Applying Zoom Effects",
	StepMerging:         "Final Render",
	StepCompleted:       "Completed",
	StepFailed:          "Failed",
}

// StepLabel returns a display label for a step. Unknown steps render as
// "Processing" so a newer backend stage never breaks display.
func StepLabel(step Step) string {
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return "Processing"
}

// StatusLabel returns a display label for a recording status.
func StatusLabel(status Status) string {
	switch status {
	case StatusUploaded:
		return "Uploaded"
	case StatusProcessing:
		return "Processing"
	case StatusDraftReady:
		return "Draft Ready"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(status)
	}
}
