package callbackclient

import (
	"greek-asr-platform/backend/internal/coreengine/workerclient"
)

// Callback status values. Application-level inference failures travel
// through the same protocol as completions, with StatusFailed.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CallbackPath is the orchestrator's internal ingestion route.
const CallbackPath = "/internal/transcriptions/callback"

// Envelope is the wire payload a worker posts back to the orchestrator
// when a job reaches a terminal outcome. Result and ErrorMessage are
// mutually exclusive: exactly one is set, matching Status.
type Envelope struct {
	TranscriptionID string               `json:"transcription_id"`
	Status          string               `json:"status"`
	Result          *workerclient.Result `json:"result,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	// Source names the worker that produced this envelope
	// ("whisper" or "wav2vec2").
	Source string `json:"source"`
}
