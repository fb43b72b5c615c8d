package asrworker

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/coreengine/workerclient"
)

// Notifier is the slice of the callback client the handlers need.
type Notifier interface {
	Notify(ctx context.Context, transcriptionID string, result *workerclient.Result, errorMessage string) bool
}

// Handlers implements the worker shell's HTTP surface.
type Handlers struct {
	transcriber Transcriber
	notifier    Notifier
	modelName   string
	log         *logrus.Entry
}

func NewHandlers(transcriber Transcriber, notifier Notifier, modelName string, log *logrus.Logger) *Handlers {
	return &Handlers{
		transcriber: transcriber,
		notifier:    notifier,
		modelName:   modelName,
		log:         log.WithField("component", "worker_handlers"),
	}
}

// SetupRouter builds the worker shell's gin engine.
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.Default()
	router.POST("/transcribe", h.Transcribe)
	router.GET("/health", h.Health)
	return router
}

// Transcribe handles POST /transcribe: multipart audio under "file",
// with the job id arriving out-of-band in the X-Transcription-ID
// header. The transcript is returned synchronously; the terminal
// outcome is additionally reported through the callback client in a
// detached task, which the orchestrator treats as the source of truth.
func (h *Handlers) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing audio file under field 'file'"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	audio, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	transcriptionID := c.GetHeader(workerclient.JobIDHeader)
	log := h.log.WithFields(logrus.Fields{
		"transcription_id": transcriptionID,
		"filename":         fileHeader.Filename,
		"bytes":            len(audio),
	})
	log.Info("transcription request received")

	result, err := h.transcriber.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
	if err != nil {
		// Inference failing is an application-level outcome: it travels
		// through the callback protocol as status=failed, not as a
		// transport error.
		log.WithError(err).Error("transcription failed")
		h.notifyDetached(transcriptionID, nil, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifyDetached(transcriptionID, result, "")
	c.JSON(http.StatusOK, result)
}

// notifyDetached reports the outcome in the background. The callback
// client swallows every failure, and the recover boundary keeps
// anything unexpected away from the request that spawned the task.
func (h *Handlers) notifyDetached(transcriptionID string, result *workerclient.Result, errorMessage string) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("panic", rec).Error("callback task panicked")
			}
		}()
		h.notifier.Notify(context.Background(), transcriptionID, result, errorMessage)
	}()
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": h.modelName})
}
