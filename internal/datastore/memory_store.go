package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. It mirrors the
// SQLStore semantics (COALESCE on completed_at, last-write-wins field
// updates) so tests exercise the same reconciliation behavior.
type MemoryStore struct {
	mu             sync.RWMutex
	audioFiles     map[int]*AudioFile
	transcriptions map[int]*Transcription
	nextAudioID    int
	nextTransID    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		audioFiles:     make(map[int]*AudioFile),
		transcriptions: make(map[int]*Transcription),
		nextAudioID:    1,
		nextTransID:    1,
	}
}

func (s *MemoryStore) CreateAudioFile(_ context.Context, af *AudioFile) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	af.ID = s.nextAudioID
	s.nextAudioID++
	af.CreatedAt = time.Now()
	cp := *af
	s.audioFiles[af.ID] = &cp
	return af.ID, nil
}

func (s *MemoryStore) GetAudioFile(_ context.Context, id int) (*AudioFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	af, exists := s.audioFiles[id]
	if !exists {
		return nil, fmt.Errorf("audio file %d: %w", id, ErrNotFound)
	}
	cp := *af
	return &cp, nil
}

func (s *MemoryStore) UpdateAudioFileDuration(_ context.Context, id int, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	af, exists := s.audioFiles[id]
	if !exists {
		return fmt.Errorf("audio file %d: %w", id, ErrNotFound)
	}
	af.Duration = sql.NullFloat64{Float64: seconds, Valid: true}
	return nil
}

func (s *MemoryStore) CreateTranscription(_ context.Context, tr *Transcription) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr.ID = s.nextTransID
	s.nextTransID++
	tr.CreatedAt = time.Now()
	if tr.Status == "" {
		tr.Status = StatusPending
	}
	cp := *tr
	s.transcriptions[tr.ID] = &cp
	return tr.ID, nil
}

func (s *MemoryStore) GetTranscription(_ context.Context, id int) (*Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, exists := s.transcriptions[id]
	if !exists {
		return nil, fmt.Errorf("transcription %d: %w", id, ErrNotFound)
	}
	cp := *tr
	return &cp, nil
}

func (s *MemoryStore) ListTranscriptionsByUser(_ context.Context, userID int) ([]*Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcriptions := []*Transcription{}
	for _, tr := range s.transcriptions {
		if tr.UserID == userID {
			cp := *tr
			transcriptions = append(transcriptions, &cp)
		}
	}
	return transcriptions, nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id int, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, exists := s.transcriptions[id]
	if !exists {
		return fmt.Errorf("transcription %d: %w", id, ErrNotFound)
	}
	tr.Status = StatusProcessing
	tr.StartedAt = sql.NullTime{Time: startedAt, Valid: true}
	return nil
}

func (s *MemoryStore) CompleteTranscription(_ context.Context, id int, f CompletionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, exists := s.transcriptions[id]
	if !exists {
		return fmt.Errorf("transcription %d: %w", id, ErrNotFound)
	}
	tr.Status = StatusCompleted
	tr.Text = sql.NullString{String: f.Text, Valid: true}
	tr.Language = sql.NullString{String: f.Language, Valid: true}
	tr.Confidence = f.Confidence
	tr.Duration = f.Duration
	tr.WordCount = sql.NullInt64{Int64: int64(f.WordCount), Valid: true}
	tr.Metadata = f.Metadata
	tr.ErrorMessage = sql.NullString{}
	if !tr.CompletedAt.Valid {
		tr.CompletedAt = sql.NullTime{Time: f.CompletedAt, Valid: true}
	}
	return nil
}

func (s *MemoryStore) FailTranscription(_ context.Context, id int, message string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, exists := s.transcriptions[id]
	if !exists {
		return fmt.Errorf("transcription %d: %w", id, ErrNotFound)
	}
	tr.Status = StatusFailed
	tr.ErrorMessage = sql.NullString{String: message, Valid: true}
	tr.Text = sql.NullString{}
	tr.Language = sql.NullString{}
	tr.Confidence = sql.NullFloat64{}
	tr.Duration = sql.NullFloat64{}
	tr.WordCount = sql.NullInt64{}
	if !tr.CompletedAt.Valid {
		tr.CompletedAt = sql.NullTime{Time: completedAt, Valid: true}
	}
	return nil
}

func (s *MemoryStore) ResetTranscription(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, exists := s.transcriptions[id]
	if !exists {
		return fmt.Errorf("transcription %d: %w", id, ErrNotFound)
	}
	tr.Status = StatusPending
	tr.Text = sql.NullString{}
	tr.Language = sql.NullString{}
	tr.Confidence = sql.NullFloat64{}
	tr.Duration = sql.NullFloat64{}
	tr.WordCount = sql.NullInt64{}
	tr.ErrorMessage = sql.NullString{}
	tr.Metadata = nil
	tr.StartedAt = sql.NullTime{}
	tr.CompletedAt = sql.NullTime{}
	return nil
}
