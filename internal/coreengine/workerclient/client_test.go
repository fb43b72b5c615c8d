package workerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greek-asr-platform/backend/internal/config"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakeWorker answers /transcribe with the given result and records the
// last request's correlation header.
func fakeWorker(t *testing.T, result Result, lastJobID *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		if lastJobID != nil {
			*lastJobID = r.Header.Get(JobIDHeader)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
}

func newTestClient(whisperURL, wav2vecURL string, timeout time.Duration) *Client {
	return NewClient(config.WorkersConfig{
		WhisperURL:      whisperURL,
		Wav2vecURL:      wav2vecURL,
		DispatchTimeout: timeout,
	}, testLogger())
}

func TestDispatchSingleModel(t *testing.T) {
	var jobID string
	worker := fakeWorker(t, Result{Text: "γεια σου", Language: "el", Duration: 2.0}, &jobID)
	defer worker.Close()

	client := newTestClient(worker.URL, "http://unused", time.Minute)
	result, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelWhisper, "42")
	require.NoError(t, err)
	assert.Equal(t, "γεια σου", result.Text)
	assert.Equal(t, "42", jobID, "job id travels in the correlation header")
}

func TestDispatchWithoutJobIDOmitsHeader(t *testing.T) {
	var jobID string
	worker := fakeWorker(t, Result{Text: "x"}, &jobID)
	defer worker.Close()

	client := newTestClient(worker.URL, "http://unused", time.Minute)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelWhisper, "")
	require.NoError(t, err)
	assert.Empty(t, jobID)
}

func TestDispatchWorkerError(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer worker.Close()

	client := newTestClient(worker.URL, "http://unused", time.Minute)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelWhisper, "42")

	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, http.StatusInternalServerError, workerErr.StatusCode)
	assert.Equal(t, "whisper", workerErr.Model)
}

func TestDispatchWorkerUnavailable(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	worker.Close()

	client := newTestClient(worker.URL, "http://unused", time.Minute)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelWhisper, "42")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestDispatchWorkerTimeout(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer worker.Close()

	client := newTestClient(worker.URL, "http://unused", 20*time.Millisecond)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelWhisper, "42")
	assert.ErrorIs(t, err, ErrWorkerTimeout)
}

func TestDispatchUnknownSelector(t *testing.T) {
	client := newTestClient("http://unused", "http://unused", time.Minute)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelSelector("deepspeech"), "")
	assert.Error(t, err)
}

func TestDispatchCompareCombinesBothModels(t *testing.T) {
	whisper := fakeWorker(t, Result{
		Text:       "το γρήγορο καφέ αλεπού",
		Language:   "el",
		Duration:   10.0,
		Confidence: 0.95,
	}, nil)
	defer whisper.Close()
	wav2vec := fakeWorker(t, Result{
		Text:       "το γρήγορο καφέ σκυλί",
		Language:   "el",
		Duration:   10.0,
		Confidence: 0.88,
	}, nil)
	defer wav2vec.Close()

	client := newTestClient(whisper.URL, wav2vec.URL, time.Minute)
	result, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelCompare, "42")
	require.NoError(t, err)

	assert.Equal(t, "το γρήγορο καφέ αλεπού", result.Text)

	comparison, ok := result.Metadata["comparison"].(map[string]interface{})
	require.True(t, ok, "combined payload carries comparison sub-fields")
	assert.Equal(t, "το γρήγορο καφέ αλεπού", comparison["whisper_text"])
	assert.Equal(t, "το γρήγορο καφέ σκυλί", comparison["wav2vec2_text"])
	// 3 shared words out of 5 distinct.
	assert.InDelta(t, 0.6, comparison["jaccard_similarity"].(float64), 1e-9)
	assert.InDelta(t, 0.25, comparison["word_error_rate"].(float64), 1e-9)
}

func TestDispatchCompareFailsWhenEitherLegFails(t *testing.T) {
	whisper := fakeWorker(t, Result{Text: "ok"}, nil)
	defer whisper.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	client := newTestClient(whisper.URL, broken.URL, time.Minute)
	_, err := client.Dispatch(context.Background(), []byte("audio"), "clip.wav", ModelCompare, "42")

	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "wav2vec2", workerErr.Model)
}
