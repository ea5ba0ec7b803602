package api

import "tutorcast/internal/pipeline"

// Recording is the backend's central entity: one submitted screen recording
// and the artifacts derived from it. The client never mutates these beyond
// issuing action requests and re-reading state.
type Recording struct {
	ID             string          `json:"id"`
	Status         pipeline.Status `json:"status"`
	CurrentStep    pipeline.Step   `json:"currentStep,omitempty"`
	TargetLanguage string          `json:"targetLanguage,omitempty"`
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	FilePath       string          `json:"filePath,omitempty"`
	FinalVideoPath string          `json:"finalVideoPath,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	CleanedScript  string          `json:"cleanedScript,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

// InteractionEvent is one captured DOM interaction uploaded alongside a
// recording. The pipeline uses these to place zoom effects.
type InteractionEvent struct {
	Type        string       `json:"type"`
	Timestamp   int64        `json:"timestamp"`
	Selector    string       `json:"selector,omitempty"`
	Coordinates *Point       `json:"coordinates,omitempty"`
	Viewport    *Viewport    `json:"viewport,omitempty"`
	Target      *EventTarget `json:"target,omitempty"`
}

// Point is a viewport coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the browser viewport size at capture time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EventTarget describes the DOM element an interaction hit.
type EventTarget struct {
	TagName   string `json:"tagName,omitempty"`
	ID        string `json:"id,omitempty"`
	ClassName string `json:"className,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Pagination describes one page of a recordings listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// RecordingPage is one page of recordings plus pagination metadata.
type RecordingPage struct {
	Recordings []Recording `json:"recordings"`
	Pagination Pagination  `json:"pagination"`
}

// UploadResponse acknowledges a recording upload.
type UploadResponse struct {
	RecordingID string `json:"recordingId"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// ProcessResponse acknowledges a start-processing request.
type ProcessResponse struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// HealthStatus is the backend health probe result.
type HealthStatus struct {
	Status string `json:"status"`
}
