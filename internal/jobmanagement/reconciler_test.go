package jobmanagement

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/coreengine/workerclient"
	"greek-asr-platform/backend/internal/datastore"
)

type publishedEvent struct {
	TranscriptionID string
	Event           string
	Payload         map[string]interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (h *recordingHub) Publish(transcriptionID, event string, payload map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, publishedEvent{transcriptionID, event, payload})
}

func (h *recordingHub) Events() []publishedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]publishedEvent(nil), h.events...)
}

func newTestReconciler(t *testing.T) (*Reconciler, *datastore.MemoryStore, *recordingHub) {
	t.Helper()
	store := datastore.NewMemoryStore()
	hub := &recordingHub{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewReconciler(store, hub, "el", log), store, hub
}

func seedJob(t *testing.T, store *datastore.MemoryStore) (*datastore.Transcription, *datastore.AudioFile) {
	t.Helper()
	ctx := context.Background()
	af := &datastore.AudioFile{UserID: 1, Filename: "clip.wav", ObjectKey: "abc.wav", ContentType: "audio/wav", SizeBytes: 1024}
	_, err := store.CreateAudioFile(ctx, af)
	require.NoError(t, err)
	tr := &datastore.Transcription{AudioFileID: af.ID, UserID: 1, ModelUsed: "whisper"}
	_, err = store.CreateTranscription(ctx, tr)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessing(ctx, tr.ID, tr.CreatedAt))
	return tr, af
}

func completedEnvelope(id string) *callbackclient.Envelope {
	return &callbackclient.Envelope{
		TranscriptionID: id,
		Status:          callbackclient.StatusCompleted,
		Source:          "whisper",
		Result: &workerclient.Result{
			Text:       "καλημέρα σας φίλοι μου",
			Language:   "el",
			Duration:   12.5,
			Confidence: 0.93,
			Metadata:   map[string]interface{}{"model_version": "large-v3"},
		},
	}
}

func TestApplyCompletedPopulatesJob(t *testing.T) {
	r, store, hub := newTestReconciler(t)
	tr, af := seedJob(t, store)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, completedEnvelope("1")))

	got, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	assert.Equal(t, "καλημέρα σας φίλοι μου", got.Text.String)
	assert.Equal(t, "el", got.Language.String)
	assert.Equal(t, int64(4), got.WordCount.Int64)
	assert.InDelta(t, 12.5, got.Duration.Float64, 1e-9)
	assert.False(t, got.ErrorMessage.Valid)
	assert.True(t, got.CompletedAt.Valid)

	gotFile, err := store.GetAudioFile(ctx, af.ID)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, gotFile.Duration.Float64, 1e-9)

	events := hub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "transcription_completed", events[0].Event)
	assert.Equal(t, "completed", events[0].Payload["stage"])
	assert.Equal(t, 100, events[0].Payload["percentage"])
}

func TestApplyCompletedIsIdempotent(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	tr, _ := seedJob(t, store)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, completedEnvelope("1")))
	first, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)

	// Workers retry deliveries; a second identical envelope must
	// converge on the same row state without error.
	require.NoError(t, r.Apply(ctx, completedEnvelope("1")))
	second, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.WordCount, second.WordCount)
	assert.Equal(t, first.CompletedAt.Time, second.CompletedAt.Time, "completed_at is set once")
}

func TestApplyVideoDurationPrecedence(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	tr, af := seedJob(t, store)
	ctx := context.Background()

	envelope := completedEnvelope("1")
	envelope.Result.Duration = 120.0
	envelope.Result.Metadata = map[string]interface{}{
		"was_video_file":          true,
		"original_video_duration": 125.4,
	}
	require.NoError(t, r.Apply(ctx, envelope))

	got, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 125.4, got.Duration.Float64, 1e-9)

	gotFile, err := store.GetAudioFile(ctx, af.ID)
	require.NoError(t, err)
	assert.InDelta(t, 125.4, gotFile.Duration.Float64, 1e-9)
}

func TestApplyFallbackLanguage(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	tr, _ := seedJob(t, store)

	envelope := completedEnvelope("1")
	envelope.Result.Language = ""
	require.NoError(t, r.Apply(context.Background(), envelope))

	got, err := store.GetTranscription(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "el", got.Language.String)
}

func TestApplyFailedSetsErrorAndClearsText(t *testing.T) {
	r, store, hub := newTestReconciler(t)
	tr, _ := seedJob(t, store)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, &callbackclient.Envelope{
		TranscriptionID: "1",
		Status:          callbackclient.StatusFailed,
		ErrorMessage:    "model crashed",
		Source:          "wav2vec2",
	}))

	got, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, got.Status)
	assert.Equal(t, "model crashed", got.ErrorMessage.String)
	assert.False(t, got.Text.Valid)
	assert.True(t, got.CompletedAt.Valid)

	events := hub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "transcription_error", events[0].Event)
	assert.Equal(t, 0, events[0].Payload["percentage"])
}

func TestApplyFailedDefaultsMessage(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	tr, _ := seedJob(t, store)

	require.NoError(t, r.Apply(context.Background(), &callbackclient.Envelope{
		TranscriptionID: "1",
		Status:          callbackclient.StatusFailed,
		Source:          "whisper",
	}))

	got, err := store.GetTranscription(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, genericFailureMessage, got.ErrorMessage.String)
}

func TestTerminalJobHoldsMutualExclusivity(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	tr, _ := seedJob(t, store)
	ctx := context.Background()

	// Fail first, then a completed duplicate arrives: last write wins
	// and the invariant must hold at every terminal observation.
	require.NoError(t, r.Apply(ctx, &callbackclient.Envelope{
		TranscriptionID: "1",
		Status:          callbackclient.StatusFailed,
		ErrorMessage:    "boom",
		Source:          "whisper",
	}))
	got, err := store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, got.ErrorMessage.Valid && !got.Text.Valid)

	require.NoError(t, r.Apply(ctx, completedEnvelope("1")))
	got, err = store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, got.Text.Valid && !got.ErrorMessage.Valid)

	// And back again: a failed duplicate after completion clears the
	// transcript fields along with the status flip.
	require.NoError(t, r.Apply(ctx, &callbackclient.Envelope{
		TranscriptionID: "1",
		Status:          callbackclient.StatusFailed,
		ErrorMessage:    "boom again",
		Source:          "whisper",
	}))
	got, err = store.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, got.ErrorMessage.Valid && !got.Text.Valid)
	assert.False(t, got.WordCount.Valid)
}

func TestApplyRejectsInvalidEnvelopes(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	seedJob(t, store)
	ctx := context.Background()

	cases := []struct {
		name     string
		envelope *callbackclient.Envelope
	}{
		{"missing id", &callbackclient.Envelope{Status: callbackclient.StatusCompleted, Result: &workerclient.Result{}}},
		{"non-numeric id", &callbackclient.Envelope{TranscriptionID: "abc", Status: callbackclient.StatusCompleted, Result: &workerclient.Result{}}},
		{"bad status", &callbackclient.Envelope{TranscriptionID: "1", Status: "running"}},
		{"completed without result", &callbackclient.Envelope{TranscriptionID: "1", Status: callbackclient.StatusCompleted}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Apply(ctx, tc.envelope)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestApplyUnknownJobReturnsNotFound(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	err := r.Apply(context.Background(), completedEnvelope("999"))
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}
