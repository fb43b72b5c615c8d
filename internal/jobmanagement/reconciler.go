package jobmanagement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/datastore"
)

// ErrInvalidEnvelope marks a callback body the sender should not
// resend: missing or malformed transcription id, or an unknown status.
var ErrInvalidEnvelope = errors.New("invalid callback envelope")

// genericFailureMessage is recorded when a failed callback carries no
// error message of its own.
const genericFailureMessage = "Transcription processing failed"

// Broadcaster is the slice of the progress hub the reconciler needs.
type Broadcaster interface {
	Publish(transcriptionID, event string, payload map[string]interface{})
}

// Reconciler applies callback envelopes to persisted transcription
// records. Deliveries are retried by workers and may arrive more than
// once, so every field update is last-write-wins and derived only from
// the envelope: re-applying the same envelope converges on the same
// row state.
type Reconciler struct {
	store            datastore.Store
	hub              Broadcaster
	fallbackLanguage string
	log              *logrus.Entry
}

func NewReconciler(store datastore.Store, hub Broadcaster, fallbackLanguage string, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:            store,
		hub:              hub,
		fallbackLanguage: fallbackLanguage,
		log:              log.WithField("component", "reconciler"),
	}
}

// Apply validates the envelope, commits the terminal state to the
// store, and then broadcasts the outcome. The database write is
// authoritative: a broadcast failure is logged inside the hub and never
// reverses it.
func (r *Reconciler) Apply(ctx context.Context, envelope *callbackclient.Envelope) error {
	if envelope.TranscriptionID == "" {
		return fmt.Errorf("%w: transcription_id is missing", ErrInvalidEnvelope)
	}
	id, err := strconv.Atoi(envelope.TranscriptionID)
	if err != nil {
		return fmt.Errorf("%w: transcription_id %q is not numeric", ErrInvalidEnvelope, envelope.TranscriptionID)
	}
	if envelope.Status != callbackclient.StatusCompleted && envelope.Status != callbackclient.StatusFailed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEnvelope, envelope.Status)
	}
	if envelope.Status == callbackclient.StatusCompleted && envelope.Result == nil {
		return fmt.Errorf("%w: completed callback without result", ErrInvalidEnvelope)
	}

	tr, err := r.store.GetTranscription(ctx, id)
	if err != nil {
		return err
	}

	log := r.log.WithFields(logrus.Fields{
		"transcription_id": id,
		"source":           envelope.Source,
		"status":           envelope.Status,
	})
	if tr.Status.IsTerminal() {
		log.WithField("current_status", tr.Status).Info("duplicate callback for terminal job, re-applying idempotently")
	}

	if envelope.Status == callbackclient.StatusCompleted {
		if err := r.applyCompletion(ctx, tr, envelope); err != nil {
			return err
		}
		log.Info("transcription completed")
		return nil
	}

	message := envelope.ErrorMessage
	if message == "" {
		message = genericFailureMessage
	}
	if err := r.store.FailTranscription(ctx, id, message, time.Now()); err != nil {
		return err
	}
	log.WithField("error_message", message).Info("transcription failed")

	r.hub.Publish(envelope.TranscriptionID, "transcription_error", map[string]interface{}{
		"stage":      "error",
		"percentage": 0,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"source":     envelope.Source,
	})
	return nil
}

func (r *Reconciler) applyCompletion(ctx context.Context, tr *datastore.Transcription, envelope *callbackclient.Envelope) error {
	result := envelope.Result

	language := result.Language
	if language == "" {
		language = r.fallbackLanguage
	}

	duration := result.Duration
	// Audio extracted from a video container can be trimmed; the
	// original container timeline wins when the worker recorded it.
	if wasVideoFile(result.Metadata) {
		if original, ok := metadataFloat(result.Metadata, "original_video_duration"); ok {
			duration = original
		}
	}

	var metadata json.RawMessage
	if len(result.Metadata) > 0 {
		raw, err := json.Marshal(result.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata is not serializable", ErrInvalidEnvelope)
		}
		metadata = raw
	}

	fields := datastore.CompletionFields{
		Text:        result.Text,
		Language:    language,
		Confidence:  sql.NullFloat64{Float64: result.Confidence, Valid: result.Confidence > 0},
		Duration:    sql.NullFloat64{Float64: duration, Valid: duration > 0},
		WordCount:   len(strings.Fields(result.Text)),
		Metadata:    metadata,
		CompletedAt: time.Now(),
	}
	if err := r.store.CompleteTranscription(ctx, tr.ID, fields); err != nil {
		return err
	}

	if duration > 0 {
		if err := r.store.UpdateAudioFileDuration(ctx, tr.AudioFileID, duration); err != nil {
			return fmt.Errorf("failed to propagate duration to audio file %d: %w", tr.AudioFileID, err)
		}
	}

	r.hub.Publish(envelope.TranscriptionID, "transcription_completed", map[string]interface{}{
		"stage":      "completed",
		"percentage": 100,
		"message":    "Transcription completed",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"text":       result.Text,
		"language":   language,
		"duration":   duration,
		"word_count": fields.WordCount,
		"source":     envelope.Source,
	})
	return nil
}

// wasVideoFile reports whether the worker flagged the audio as
// extracted from a video container.
func wasVideoFile(metadata map[string]interface{}) bool {
	v, ok := metadata["was_video_file"]
	if !ok {
		return false
	}
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true"
	}
	return false
}

// metadataFloat reads a numeric metadata field, tolerating the types
// JSON decoding can produce.
func metadataFloat(metadata map[string]interface{}, key string) (float64, bool) {
	v, ok := metadata[key]
	if !ok {
		return 0, false
	}
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
