package datastore

import (
	"database/sql"
	"encoding/json"
	"time"
)

// TranscriptionStatus is the lifecycle state of a transcription job.
// Transitions are monotonic: pending -> processing -> completed|failed.
type TranscriptionStatus string

const (
	StatusPending    TranscriptionStatus = "pending"
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

// IsTerminal reports whether no further status transitions are permitted.
func (s TranscriptionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transcription maps to the transcriptions table. Result fields are
// populated only on completion; ErrorMessage only on failure. The two
// are mutually exclusive once the job is terminal.
type Transcription struct {
	ID           int                 `json:"id"`
	AudioFileID  int                 `json:"audio_file_id"`
	UserID       int                 `json:"user_id"`
	ModelUsed    string              `json:"model_used"` // whisper, wav2vec2 or compare
	Status       TranscriptionStatus `json:"status"`
	Text         sql.NullString      `json:"text,omitempty"`
	Language     sql.NullString      `json:"language,omitempty"`
	Confidence   sql.NullFloat64     `json:"confidence,omitempty"`
	Duration     sql.NullFloat64     `json:"duration,omitempty"` // seconds
	WordCount    sql.NullInt64       `json:"word_count,omitempty"`
	ErrorMessage sql.NullString      `json:"error_message,omitempty"`
	Metadata     json.RawMessage     `json:"metadata,omitempty"` // JSONB, includes comparison sub-fields
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    sql.NullTime        `json:"started_at,omitempty"`
	CompletedAt  sql.NullTime        `json:"completed_at,omitempty"`
}

// AudioFile maps to the audio_files table. ObjectKey points at the
// stored audio in the object store.
type AudioFile struct {
	ID          int             `json:"id"`
	UserID      int             `json:"user_id"`
	Filename    string          `json:"filename"`
	ObjectKey   string          `json:"object_key"`
	ContentType string          `json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	Duration    sql.NullFloat64 `json:"duration,omitempty"` // seconds
	CreatedAt   time.Time       `json:"created_at"`
}

// CompletionFields carries the result values the reconciler applies to a
// transcription on a completed callback. All values are derived
// deterministically from the callback envelope, so re-applying them on a
// duplicate delivery is harmless.
type CompletionFields struct {
	Text       string
	Language   string
	Confidence sql.NullFloat64
	Duration   sql.NullFloat64
	WordCount  int
	Metadata   json.RawMessage
	// CompletedAt is applied only if the row has no completed_at yet.
	CompletedAt time.Time
}
