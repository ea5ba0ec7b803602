package events

import (
	"encoding/json"
	"errors"

	"tutorcast/internal/pipeline"
)

// Message is the wire envelope for the real-time channel. Data holds the
// event-specific payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	eventJoinRecording    = "join-recording"
	eventLeaveRecording   = "leave-recording"
	eventProcessingUpdate = "processing-update"
	eventProcessingError  = "processing-error"
)

// ProcessingUpdate is pushed by the server while a recording is
// mid-pipeline.
type ProcessingUpdate struct {
	Step        pipeline.Step `json:"step"`
	RecordingID string        `json:"recordingId"`
	Timestamp   string        `json:"timestamp"`
}

// ProcessingError is pushed when a pipeline run fails. Step carries the
// generic failed marker, not the stage that failed.
type ProcessingError struct {
	Step        pipeline.Step `json:"step"`
	RecordingID string        `json:"recordingId"`
	Error       string        `json:"error"`
	Timestamp   string        `json:"timestamp"`
}

type topicPayload struct {
	RecordingID string `json:"recordingId"`
}

func newTopicMessage(event, recordingID string) (Message, error) {
	data, err := json.Marshal(topicPayload{RecordingID: recordingID})
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(data, v)
}
