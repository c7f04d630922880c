package voice

import "context"

// Synthesizer turns text into encoded audio bytes in one call.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Audio is a complete synthesized clip.
type Audio struct {
	Data   []byte
	Format string
}

// Settings tune voice rendering where the backend supports it.
type Settings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

// SynthesisError reports a backend failure and whether retrying elsewhere
// is worthwhile.
type SynthesisError struct {
	Backend    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *SynthesisError) Error() string {
	return e.Backend + " tts: " + e.Err.Error()
}

func (e *SynthesisError) Unwrap() error { return e.Err }
