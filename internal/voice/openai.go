package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ent0n29/spectre/internal/reliability"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAISynthesizer uses the audio speech endpoint.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.SpeechModelTTS1)
	}
	voiceID := strings.TrimSpace(cfg.Voice)
	if voiceID == "" {
		voiceID = "alloy"
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voiceID,
	}
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	res, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input: text,
		Model: openai.SpeechModel(s.model),
		Voice: openai.AudioSpeechNewParamsVoice(s.voice),
	})
	if err != nil {
		out := &SynthesisError{Backend: s.Name(), Retryable: true, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			out.StatusCode = apiErr.StatusCode
			out.Retryable = reliability.IsRetryableHTTPStatus(apiErr.StatusCode)
		}
		return Audio{}, out
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read speech body: %w", err)
	}
	return Audio{Data: data, Format: "mp3"}, nil
}
