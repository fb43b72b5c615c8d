package datastore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary the orchestration layer works
// against. SQLStore is the production implementation; MemoryStore backs
// tests and single-process development.
type Store interface {
	CreateAudioFile(ctx context.Context, af *AudioFile) (int, error)
	GetAudioFile(ctx context.Context, id int) (*AudioFile, error)
	UpdateAudioFileDuration(ctx context.Context, id int, seconds float64) error

	CreateTranscription(ctx context.Context, tr *Transcription) (int, error)
	GetTranscription(ctx context.Context, id int) (*Transcription, error)
	ListTranscriptionsByUser(ctx context.Context, userID int) ([]*Transcription, error)

	// MarkProcessing moves a pending job to processing and stamps started_at.
	MarkProcessing(ctx context.Context, id int, startedAt time.Time) error
	// CompleteTranscription applies a completed result. Idempotent:
	// completed_at is set once, all other fields are last-write-wins.
	// Any prior error message is cleared.
	CompleteTranscription(ctx context.Context, id int, f CompletionFields) error
	// FailTranscription moves the job to failed and records the message.
	FailTranscription(ctx context.Context, id int, message string, completedAt time.Time) error
	// ResetTranscription clears a job back to pending for a manual re-run.
	ResetTranscription(ctx context.Context, id int) error
}
