package jobmanagement

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/coreengine/workerclient"
	"greek-asr-platform/backend/internal/datastore"
	"greek-asr-platform/backend/internal/objectstore"
)

// Dispatcher is the slice of the worker client the service needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, audio []byte, filename string, selector workerclient.ModelSelector, jobID string) (*workerclient.Result, error)
}

// JobService owns the transcription job lifecycle: it persists new
// jobs, hands the audio to the dispatch client in a detached
// background task, and funnels outcomes through the reconciler so the
// synchronous-return path and the callback path apply identical,
// idempotent updates.
type JobService struct {
	store      datastore.Store
	objects    objectstore.ObjectStore
	dispatcher Dispatcher
	reconciler *Reconciler
	hub        Broadcaster
	log        *logrus.Entry
}

func NewJobService(store datastore.Store, objects objectstore.ObjectStore, dispatcher Dispatcher, reconciler *Reconciler, hub Broadcaster, log *logrus.Logger) *JobService {
	return &JobService{
		store:      store,
		objects:    objects,
		dispatcher: dispatcher,
		reconciler: reconciler,
		hub:        hub,
		log:        log.WithField("component", "jobservice"),
	}
}

// CreateTranscription stores the uploaded audio, creates the pending
// job row, and kicks off dispatch in the background. The returned job
// is in pending state; progress flows over the websocket rooms and the
// job row.
func (s *JobService) CreateTranscription(ctx context.Context, userID int, filename, contentType string, size int64, file io.Reader, model workerclient.ModelSelector) (*datastore.Transcription, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("unknown model %q", model)
	}

	objectKey, err := s.objects.UploadFile(ctx, filename, file, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store uploaded audio: %w", err)
	}

	audioFile := &datastore.AudioFile{
		UserID:      userID,
		Filename:    filename,
		ObjectKey:   objectKey,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if _, err := s.store.CreateAudioFile(ctx, audioFile); err != nil {
		return nil, err
	}

	tr := &datastore.Transcription{
		AudioFileID: audioFile.ID,
		UserID:      userID,
		ModelUsed:   string(model),
		Status:      datastore.StatusPending,
	}
	if _, err := s.store.CreateTranscription(ctx, tr); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"transcription_id": tr.ID,
		"audio_file_id":    audioFile.ID,
		"model":            model,
	}).Info("transcription job created")

	go s.runDispatch(tr.ID, audioFile, model)

	return tr, nil
}

// runDispatch is the detached background task carrying one dispatch.
// It has its own error boundary: nothing that happens here may
// propagate back into the request that spawned it.
func (s *JobService) runDispatch(transcriptionID int, audioFile *datastore.AudioFile, model workerclient.ModelSelector) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.WithFields(logrus.Fields{
				"transcription_id": transcriptionID,
				"panic":            rec,
			}).Error("dispatch task panicked")
		}
	}()

	ctx := context.Background()
	jobID := strconv.Itoa(transcriptionID)
	log := s.log.WithFields(logrus.Fields{"transcription_id": transcriptionID, "model": model})

	if err := s.store.MarkProcessing(ctx, transcriptionID, time.Now()); err != nil {
		log.WithError(err).Error("failed to mark transcription processing")
		return
	}
	s.publishProgress(jobID, 10, "Transcription started")

	audio, err := s.objects.GetFileBytes(ctx, audioFile.ObjectKey)
	if err != nil {
		log.WithError(err).Error("failed to load audio for dispatch")
		s.failJob(ctx, transcriptionID, jobID, "audio file could not be loaded")
		return
	}
	s.publishProgress(jobID, 25, "Audio sent to ASR worker")

	result, err := s.dispatcher.Dispatch(ctx, audio, audioFile.Filename, model, jobID)
	if err != nil {
		log.WithError(err).Error("dispatch failed")
		s.failJob(ctx, transcriptionID, jobID, err.Error())
		return
	}

	// The worker also reports through the callback endpoint; applying
	// the synchronous result through the same reconciler keeps the two
	// paths idempotent with respect to each other.
	envelope := &callbackclient.Envelope{
		TranscriptionID: jobID,
		Status:          callbackclient.StatusCompleted,
		Result:          result,
		Source:          string(model),
	}
	if err := s.reconciler.Apply(ctx, envelope); err != nil {
		log.WithError(err).Error("failed to apply dispatch result")
	}
}

// failJob records a dispatch-side failure. Worker-side failures arrive
// through the callback protocol instead.
func (s *JobService) failJob(ctx context.Context, transcriptionID int, jobID, message string) {
	if err := s.store.FailTranscription(ctx, transcriptionID, message, time.Now()); err != nil {
		s.log.WithError(err).WithField("transcription_id", transcriptionID).Error("failed to record dispatch failure")
	}
	s.hub.Publish(jobID, "transcription_error", map[string]interface{}{
		"stage":      "error",
		"percentage": 0,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *JobService) publishProgress(jobID string, percentage int, message string) {
	s.hub.Publish(jobID, "transcription_progress", map[string]interface{}{
		"stage":      "processing",
		"percentage": percentage,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// RestartTranscription clears a job back to pending for a manual
// re-run. It does not re-dispatch; an operator triggers that
// explicitly.
func (s *JobService) RestartTranscription(ctx context.Context, id int) (*datastore.Transcription, error) {
	if err := s.store.ResetTranscription(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetTranscription(ctx, id)
}
