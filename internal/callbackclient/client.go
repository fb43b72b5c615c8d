package callbackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/config"
	"greek-asr-platform/backend/internal/coreengine/workerclient"
)

// Client delivers terminal job outcomes to the orchestrator with
// bounded retries. It never propagates an error to its caller: once a
// job has finished, a notification failure must not take down the
// inference pipeline, so every failure mode collapses into a false
// return after logging.
type Client struct {
	baseURL         string
	source          string
	httpClient      *http.Client
	maxAttempts     int
	baseDelay       time.Duration
	initialGrace    time.Duration
	maxPayloadBytes int
	log             *logrus.Entry
}

// NewClient builds a callback client reporting as the given source
// worker name.
func NewClient(cfg config.CallbackConfig, source string, log *logrus.Logger) *Client {
	return &Client{
		baseURL:         cfg.URL,
		source:          source,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts:     cfg.MaxAttempts,
		baseDelay:       cfg.BaseDelay,
		initialGrace:    cfg.InitialGrace,
		maxPayloadBytes: cfg.MaxPayloadBytes,
		log:             log.WithField("component", "callbackclient"),
	}
}

// Notify posts the job outcome to the orchestrator. Exactly one of
// result and errorMessage should be set. Returns whether delivery was
// acknowledged.
func (c *Client) Notify(ctx context.Context, transcriptionID string, result *workerclient.Result, errorMessage string) bool {
	if transcriptionID == "" {
		// Nothing to reconcile against; the dispatch carried no job id.
		c.log.Warn("callback skipped: no transcription id")
		return false
	}

	log := c.log.WithField("transcription_id", transcriptionID)

	envelope := &Envelope{
		TranscriptionID: transcriptionID,
		Source:          c.source,
	}
	if result != nil {
		envelope.Status = StatusCompleted
		envelope.Result = result
	} else {
		envelope.Status = StatusFailed
		envelope.ErrorMessage = errorMessage
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		log.WithError(err).Error("failed to serialize callback envelope")
		return false
	}
	if len(body) > c.maxPayloadBytes {
		body, err = json.Marshal(truncateEnvelope(envelope))
		if err != nil {
			log.WithError(err).Error("failed to serialize truncated callback envelope")
			return false
		}
		log.WithField("bytes", len(body)).Info("callback envelope truncated: segments dropped")
	}

	// Short grace delay so the orchestrator has finished registering
	// the job as dispatched before the first attempt lands.
	if !sleepCtx(ctx, c.initialGrace) {
		return false
	}

	c.probeHealth(ctx, log)

	url := c.baseURL + CallbackPath
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		ok, permanent := c.post(ctx, url, body, log.WithField("attempt", attempt))
		if ok {
			return true
		}
		if permanent {
			return false
		}
		if attempt < c.maxAttempts {
			delay := c.baseDelay << (attempt - 1)
			if !sleepCtx(ctx, delay) {
				return false
			}
		}
	}

	log.WithField("attempts", c.maxAttempts).Error("callback delivery failed after all attempts")
	return false
}

// post performs one delivery attempt. permanent=true means retrying is
// pointless (contract mismatch on the receiving side).
func (c *Client) post(ctx context.Context, url string, body []byte, log *logrus.Entry) (ok, permanent bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("failed to build callback request")
		return false, true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("callback attempt failed, will retry")
		return false, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		log.Info("callback delivered")
		return true, false
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed:
		// The endpoint disagrees about the contract; retrying the same
		// request cannot succeed.
		log.WithField("status", resp.StatusCode).Error("callback rejected permanently")
		return false, true
	default:
		log.WithField("status", resp.StatusCode).Warn("callback attempt rejected, will retry")
		return false, false
	}
}

// probeHealth pings the orchestrator before the retry loop. The result
// is advisory only; a failed probe never cancels the notification.
func (c *Client) probeHealth(ctx context.Context, log *logrus.Entry) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("orchestrator health probe failed")
		return
	}
	resp.Body.Close()
	log.WithField("status", resp.StatusCode).Debug("orchestrator health probe")
}

// truncateEnvelope produces a copy with per-segment timing data
// replaced by a truncation marker. Scalar summary fields survive
// verbatim.
func truncateEnvelope(envelope *Envelope) *Envelope {
	if envelope.Result == nil {
		return envelope
	}

	result := *envelope.Result
	metadata := make(map[string]interface{}, len(result.Metadata)+2)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	metadata["segments_truncated"] = true
	metadata["total_segments"] = len(result.Segments)
	result.Metadata = metadata
	result.Segments = nil

	truncated := *envelope
	truncated.Result = &result
	return &truncated
}

// sleepCtx waits for d or until ctx is done. Returns false when the
// context ended the wait.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
