package workerclient

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerUnavailable means a connection to the worker could not be
	// established at all.
	ErrWorkerUnavailable = errors.New("asr worker unavailable")
	// ErrWorkerTimeout means an established request exceeded the
	// configured long-running timeout.
	ErrWorkerTimeout = errors.New("asr worker request timed out")
)

// WorkerError is returned when a worker answers with a non-success
// HTTP status.
type WorkerError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s returned status %d: %s", e.Model, e.StatusCode, e.Body)
}
