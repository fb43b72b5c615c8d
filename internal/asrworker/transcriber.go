package asrworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/coreengine/workerclient"
)

// Transcriber produces a transcript for raw audio. The model inference
// itself lives in a separate service; this shell only plumbs bytes and
// results.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (*workerclient.Result, error)
}

// ModelServerClient is a Transcriber backed by an HTTP inference
// service (the Whisper or wav2vec2 model server).
type ModelServerClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewModelServerClient(baseURL string, timeout time.Duration, log *logrus.Logger) *ModelServerClient {
	return &ModelServerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.WithField("component", "modelserver"),
	}
}

func (m *ModelServerClient) Transcribe(ctx context.Context, audio []byte, filename string) (*workerclient.Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build inference request body: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio into inference request: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize inference request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result workerclient.Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"filename": filename,
		"elapsed":  time.Since(start),
	}).Info("inference completed")
	return &result, nil
}
