package jobmanagement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/datastore"
)

// CallbackHandlers receives worker callbacks on the internal network.
type CallbackHandlers struct {
	reconciler *Reconciler
	log        *logrus.Entry
}

func NewCallbackHandlers(reconciler *Reconciler, log *logrus.Logger) *CallbackHandlers {
	return &CallbackHandlers{
		reconciler: reconciler,
		log:        log.WithField("component", "callback_handlers"),
	}
}

// Receive handles POST /internal/transcriptions/callback. The response
// code drives the worker's retry logic: 400 and 404 tell it to stop,
// anything else non-2xx invites another attempt. Idempotent replays of
// an already-applied envelope also answer 200.
func (h *CallbackHandlers) Receive(c *gin.Context) {
	var envelope callbackclient.Envelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback payload: " + err.Error()})
		return
	}

	err := h.reconciler.Apply(c.Request.Context(), &envelope)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEnvelope):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, datastore.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.log.WithError(err).WithField("transcription_id", envelope.TranscriptionID).Error("callback application failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply callback"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
