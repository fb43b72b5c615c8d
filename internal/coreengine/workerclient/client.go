package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"greek-asr-platform/backend/internal/config"
	"greek-asr-platform/backend/internal/coreengine/textmetrics"
)

// JobIDHeader carries the transcription id to the worker so its
// callback can be correlated with the dispatched job. This header is
// the only coupling between the synchronous dispatch path and the
// asynchronous callback path.
const JobIDHeader = "X-Transcription-ID"

// audioFieldName is the fixed multipart field the worker reads the
// audio file from.
const audioFieldName = "file"

// Client dispatches transcription requests to the ASR workers. It does
// not mutate any persisted state; the caller decides what to do with
// results and failures.
type Client struct {
	whisperURL string
	wav2vecURL string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient builds a dispatch client. The HTTP timeout is long (tens of
// minutes) because inference on long recordings is slow.
func NewClient(cfg config.WorkersConfig, log *logrus.Logger) *Client {
	return &Client{
		whisperURL: cfg.WhisperURL,
		wav2vecURL: cfg.Wav2vecURL,
		httpClient: &http.Client{Timeout: cfg.DispatchTimeout},
		log:        log.WithField("component", "workerclient"),
	}
}

// Dispatch sends the audio to the worker(s) selected by selector and
// returns the (possibly combined) result. For ModelCompare both workers
// are called concurrently and the call fails if either fails.
func (c *Client) Dispatch(ctx context.Context, audio []byte, filename string, selector ModelSelector, jobID string) (*Result, error) {
	switch selector {
	case ModelWhisper:
		return c.transcribe(ctx, c.whisperURL, string(ModelWhisper), audio, filename, jobID)
	case ModelWav2Vec:
		return c.transcribe(ctx, c.wav2vecURL, string(ModelWav2Vec), audio, filename, jobID)
	case ModelCompare:
		return c.compare(ctx, audio, filename, jobID)
	default:
		return nil, fmt.Errorf("unknown model selector %q", selector)
	}
}

// compare runs both workers concurrently and waits for both. Either
// leg failing fails the whole operation; no partial comparison is
// synthesized.
func (c *Client) compare(ctx context.Context, audio []byte, filename, jobID string) (*Result, error) {
	var whisperRes, wav2vecRes *Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.transcribe(gctx, c.whisperURL, string(ModelWhisper), audio, filename, jobID)
		if err != nil {
			return fmt.Errorf("comparison dispatch, whisper leg: %w", err)
		}
		whisperRes = res
		return nil
	})
	g.Go(func() error {
		res, err := c.transcribe(gctx, c.wav2vecURL, string(ModelWav2Vec), audio, filename, jobID)
		if err != nil {
			return fmt.Errorf("comparison dispatch, wav2vec2 leg: %w", err)
		}
		wav2vecRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return combineResults(whisperRes, wav2vecRes), nil
}

// combineResults merges the two model outputs into one payload. Whisper
// is treated as the primary transcript; the wav2vec2 output and the
// similarity metrics live under the comparison metadata key.
func combineResults(whisper, wav2vec *Result) *Result {
	combined := &Result{
		Text:       whisper.Text,
		Language:   whisper.Language,
		Duration:   whisper.Duration,
		Confidence: whisper.Confidence,
		Segments:   whisper.Segments,
		Metadata:   map[string]interface{}{},
	}
	if combined.Duration == 0 {
		combined.Duration = wav2vec.Duration
	}
	for k, v := range whisper.Metadata {
		combined.Metadata[k] = v
	}

	combined.Metadata["comparison"] = map[string]interface{}{
		"whisper_text":         whisper.Text,
		"whisper_confidence":   whisper.Confidence,
		"wav2vec2_text":        wav2vec.Text,
		"wav2vec2_confidence":  wav2vec.Confidence,
		"jaccard_similarity":   textmetrics.JaccardSimilarity(whisper.Text, wav2vec.Text),
		"word_error_rate":      textmetrics.WordErrorRate(whisper.Text, wav2vec.Text),
		"character_error_rate": textmetrics.CharacterErrorRate(whisper.Text, wav2vec.Text),
	}
	return combined
}

func (c *Client) transcribe(ctx context.Context, baseURL, model string, audio []byte, filename, jobID string) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(audioFieldName, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio into multipart body: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for worker %s: %w", model, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if jobID != "" {
		req.Header.Set(JobIDHeader, jobID)
	}

	log := c.log.WithFields(logrus.Fields{"model": model, "transcription_id": jobID})
	log.WithField("bytes", len(audio)).Info("dispatching audio to worker")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker %s response: %w", model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Error("worker returned non-success status")
		return nil, &WorkerError{Model: model, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse worker %s response: %w", model, err)
	}

	log.WithField("elapsed", time.Since(start)).Info("worker call completed")
	return &result, nil
}

// classifyTransportError maps a transport failure onto the typed
// dispatch errors.
func classifyTransportError(model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("worker %s: %w", model, ErrWorkerTimeout)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("worker %s: %w", model, ErrWorkerTimeout)
	}
	return fmt.Errorf("worker %s: %w: %v", model, ErrWorkerUnavailable, err)
}
