package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/spectre/internal/audio"
	"github.com/ent0n29/spectre/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Settings     Settings
}

// ElevenLabsSynthesizer calls the one-shot text-to-speech REST endpoint.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *ElevenLabsSynthesizer) Name() string { return "elevenlabs" }

type elevenVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

type elevenRequest struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings elevenVoiceSettings `json:"voice_settings"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return Audio{}, &SynthesisError{Backend: s.Name(), Err: fmt.Errorf("voice_id is required")}
	}

	payload, err := json.Marshal(elevenRequest{
		Text:          text,
		ModelID:       s.cfg.ModelID,
		VoiceSettings: normalizeSettings(s.cfg.Settings),
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal tts request: %w", err)
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID))
	if err != nil {
		return Audio{}, err
	}
	q := u.Query()
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return Audio{}, &SynthesisError{Backend: s.Name(), Retryable: true, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Audio{}, &SynthesisError{
			Backend:    s.Name(),
			StatusCode: res.StatusCode,
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
			Err:        fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read tts body: %w", err)
	}
	data, format := audio.Playable(data, s.cfg.OutputFormat)
	return Audio{Data: data, Format: format}, nil
}

func normalizeSettings(in Settings) elevenVoiceSettings {
	stability := in.Stability
	if stability <= 0 {
		stability = 0.42
	}
	stability = clamp(stability, 0, 1)

	similarity := in.SimilarityBoost
	if similarity <= 0 {
		similarity = 0.85
	}
	similarity = clamp(similarity, 0, 1)

	speed := in.Speed
	if speed <= 0 {
		speed = 1.0
	}
	speed = clamp(speed, 0.7, 1.2)

	return elevenVoiceSettings{Stability: stability, SimilarityBoost: similarity, Speed: speed}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
