package jobmanagement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/auth"
	"greek-asr-platform/backend/internal/coreengine/workerclient"
	"greek-asr-platform/backend/internal/datastore"
)

// maxUploadBytes caps a single audio upload at 100 MiB.
const maxUploadBytes = 100 << 20

// JobHandlers exposes the transcription job API.
type JobHandlers struct {
	service *JobService
	store   datastore.Store
	log     *logrus.Entry
}

func NewJobHandlers(service *JobService, store datastore.Store, log *logrus.Logger) *JobHandlers {
	return &JobHandlers{
		service: service,
		store:   store,
		log:     log.WithField("component", "job_handlers"),
	}
}

// Create handles POST /api/transcriptions: multipart upload with the
// audio under "file" and an optional "model" form value. Processing is
// asynchronous, so the response is 202 with the pending job.
func (h *JobHandlers) Create(c *gin.Context) {
	if c.Request.ContentLength > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Uploaded file is too large"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing audio file under field 'file'"})
		return
	}

	model := workerclient.ModelSelector(c.DefaultPostForm("model", string(workerclient.ModelWhisper)))
	if !model.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model must be whisper, wav2vec2 or compare"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	tr, err := h.service.CreateTranscription(c.Request.Context(), auth.UserID(c), fileHeader.Filename, contentType, fileHeader.Size, file, model)
	if err != nil {
		h.log.WithError(err).Error("failed to create transcription job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create transcription: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, tr)
}

// Get handles GET /api/transcriptions/:id.
func (h *JobHandlers) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transcription ID format"})
		return
	}

	tr, err := h.store.GetTranscription(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transcription: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, tr)
}

// List handles GET /api/transcriptions for the requesting user.
func (h *JobHandlers) List(c *gin.Context) {
	transcriptions, err := h.store.ListTranscriptionsByUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transcriptions: " + err.Error()})
		return
	}

	if transcriptions == nil {
		transcriptions = []*datastore.Transcription{}
	}
	c.JSON(http.StatusOK, transcriptions)
}

// Restart handles POST /api/transcriptions/:id/restart, resetting a
// job to pending for a manual re-run.
func (h *JobHandlers) Restart(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transcription ID format"})
		return
	}

	tr, err := h.service.RestartTranscription(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restart transcription: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, tr)
}
