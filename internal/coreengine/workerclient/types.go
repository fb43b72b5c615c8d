package workerclient

// Segment is one timestamped piece of a transcript as produced by a
// worker. Segments can be numerous on long recordings; the callback
// path drops them when the envelope grows too large.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the payload an ASR worker returns for one transcription
// request. Metadata is an open mapping: well-known keys (was_video_file,
// original_video_duration, comparison) are read at the reconciler
// boundary, everything else passes through untouched.
type Result struct {
	Text       string                 `json:"text"`
	Language   string                 `json:"language,omitempty"`
	Duration   float64                `json:"duration,omitempty"`
	Confidence float64                `json:"confidence,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Segments   []Segment              `json:"segments,omitempty"`
}

// ModelSelector chooses which worker(s) a dispatch goes to.
type ModelSelector string

const (
	ModelWhisper ModelSelector = "whisper"
	ModelWav2Vec ModelSelector = "wav2vec2"
	// ModelCompare runs both workers concurrently and combines their
	// outputs with similarity metrics.
	ModelCompare ModelSelector = "compare"
)

// Valid reports whether s names a known dispatch mode.
func (s ModelSelector) Valid() bool {
	switch s {
	case ModelWhisper, ModelWav2Vec, ModelCompare:
		return true
	}
	return false
}
