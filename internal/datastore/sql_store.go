package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// pq is the PostgreSQL driver
	_ "github.com/lib/pq"
)

// SQLStore implements Store on top of PostgreSQL. One instance is
// constructed at process startup and handed to whoever needs it.
type SQLStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateAudioFile(ctx context.Context, af *AudioFile) (int, error) {
	query := `
		INSERT INTO audio_files (user_id, filename, object_key, content_type, size_bytes, duration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	af.CreatedAt = time.Now()

	var id int
	err := s.db.QueryRowContext(ctx, query,
		af.UserID,
		af.Filename,
		af.ObjectKey,
		af.ContentType,
		af.SizeBytes,
		af.Duration,
		af.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create audio file: %w", err)
	}
	af.ID = id
	return id, nil
}

func (s *SQLStore) GetAudioFile(ctx context.Context, id int) (*AudioFile, error) {
	query := `
		SELECT id, user_id, filename, object_key, content_type, size_bytes, duration, created_at
		FROM audio_files
		WHERE id = $1
	`
	af := &AudioFile{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&af.ID,
		&af.UserID,
		&af.Filename,
		&af.ObjectKey,
		&af.ContentType,
		&af.SizeBytes,
		&af.Duration,
		&af.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audio file %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get audio file %d: %w", id, err)
	}
	return af, nil
}

func (s *SQLStore) UpdateAudioFileDuration(ctx context.Context, id int, seconds float64) error {
	query := `UPDATE audio_files SET duration = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, seconds, id)
	if err != nil {
		return fmt.Errorf("failed to update duration for audio file %d: %w", id, err)
	}
	return checkAffected(result, id)
}

const transcriptionColumns = `id, audio_file_id, user_id, model_used, status, text, language, confidence, duration, word_count, error_message, metadata, created_at, started_at, completed_at`

func (s *SQLStore) CreateTranscription(ctx context.Context, tr *Transcription) (int, error) {
	query := `
		INSERT INTO transcriptions (audio_file_id, user_id, model_used, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	tr.CreatedAt = time.Now()
	if tr.Status == "" {
		tr.Status = StatusPending
	}

	metadata := tr.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("null")
	}

	var id int
	err := s.db.QueryRowContext(ctx, query,
		tr.AudioFileID,
		tr.UserID,
		tr.ModelUsed,
		tr.Status,
		[]byte(metadata),
		tr.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create transcription: %w", err)
	}
	tr.ID = id
	return id, nil
}

func (s *SQLStore) GetTranscription(ctx context.Context, id int) (*Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE id = $1`
	tr, err := scanTranscription(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transcription %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transcription %d: %w", id, err)
	}
	return tr, nil
}

func (s *SQLStore) ListTranscriptionsByUser(ctx context.Context, userID int) ([]*Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcriptions for user %d: %w", userID, err)
	}
	defer rows.Close()

	transcriptions := []*Transcription{}
	for rows.Next() {
		tr, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcription row: %w", err)
		}
		transcriptions = append(transcriptions, tr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during transcription rows iteration: %w", err)
	}
	return transcriptions, nil
}

func (s *SQLStore) MarkProcessing(ctx context.Context, id int, startedAt time.Time) error {
	query := `UPDATE transcriptions SET status = $1, started_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, StatusProcessing, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark transcription %d processing: %w", id, err)
	}
	return checkAffected(result, id)
}

func (s *SQLStore) CompleteTranscription(ctx context.Context, id int, f CompletionFields) error {
	// completed_at is set once via COALESCE; everything else is
	// last-write-wins so duplicate callback deliveries converge on the
	// same row state. The error message from any earlier failure is
	// cleared.
	query := `
		UPDATE transcriptions
		SET status = $1,
		    text = $2,
		    language = $3,
		    confidence = $4,
		    duration = $5,
		    word_count = $6,
		    metadata = $7,
		    error_message = NULL,
		    completed_at = COALESCE(completed_at, $8)
		WHERE id = $9
	`
	metadata := f.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("null")
	}

	result, err := s.db.ExecContext(ctx, query,
		StatusCompleted,
		f.Text,
		f.Language,
		f.Confidence,
		f.Duration,
		f.WordCount,
		[]byte(metadata),
		f.CompletedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete transcription %d: %w", id, err)
	}
	return checkAffected(result, id)
}

func (s *SQLStore) FailTranscription(ctx context.Context, id int, message string, completedAt time.Time) error {
	// The result fields are cleared so a failed row never carries a
	// transcript alongside its error message, whatever order duplicate
	// deliveries arrived in.
	query := `
		UPDATE transcriptions
		SET status = $1,
		    error_message = $2,
		    text = NULL,
		    language = NULL,
		    confidence = NULL,
		    duration = NULL,
		    word_count = NULL,
		    completed_at = COALESCE(completed_at, $3)
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, StatusFailed, message, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark transcription %d failed: %w", id, err)
	}
	return checkAffected(result, id)
}

func (s *SQLStore) ResetTranscription(ctx context.Context, id int) error {
	query := `
		UPDATE transcriptions
		SET status = $1,
		    text = NULL,
		    language = NULL,
		    confidence = NULL,
		    duration = NULL,
		    word_count = NULL,
		    error_message = NULL,
		    metadata = NULL,
		    started_at = NULL,
		    completed_at = NULL
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, query, StatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to reset transcription %d: %w", id, err)
	}
	return checkAffected(result, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTranscription(row rowScanner) (*Transcription, error) {
	tr := &Transcription{}
	var metadata []byte
	err := row.Scan(
		&tr.ID,
		&tr.AudioFileID,
		&tr.UserID,
		&tr.ModelUsed,
		&tr.Status,
		&tr.Text,
		&tr.Language,
		&tr.Confidence,
		&tr.Duration,
		&tr.WordCount,
		&tr.ErrorMessage,
		&metadata,
		&tr.CreatedAt,
		&tr.StartedAt,
		&tr.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata != nil && string(metadata) != "null" {
		tr.Metadata = json.RawMessage(metadata)
	}
	return tr, nil
}

func checkAffected(result sql.Result, id int) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for id %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}
