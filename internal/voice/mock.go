package voice

import (
	"context"
)

// MockSynthesizer returns the input text as audio bytes. It is the local
// fallback when no speech backend is configured.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Name() string { return "mock" }

func (s *MockSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	return Audio{Data: []byte(text), Format: "mock_text_bytes"}, nil
}
