package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/spectre/internal/config"
	"github.com/ent0n29/spectre/internal/voice"
)

type speechSetup struct {
	synthesizer voice.Synthesizer
	detail      string
}

func resolveSynthesizer(cfg config.Config) (speechSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	if mode == "" {
		mode = "auto"
	}

	openAI := func() (voice.Synthesizer, bool) {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, false
		}
		return voice.NewOpenAISynthesizer(voice.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.TTSModel,
			Voice:   cfg.TTSVoice,
		}), true
	}
	elevenLabs := func() (voice.Synthesizer, bool) {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return nil, false
		}
		return voice.NewElevenLabsSynthesizer(voice.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			BaseURL:      cfg.ElevenLabsURL,
			VoiceID:      cfg.ElevenLabsVoice,
			ModelID:      cfg.ElevenLabsModel,
			OutputFormat: cfg.ElevenLabsFormat,
		}), true
	}

	switch mode {
	case "openai":
		s, ok := openAI()
		if !ok {
			return speechSetup{}, fmt.Errorf("TTS_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		return speechSetup{synthesizer: s, detail: "openai " + cfg.TTSModel + "/" + cfg.TTSVoice}, nil
	case "elevenlabs":
		s, ok := elevenLabs()
		if !ok {
			return speechSetup{}, fmt.Errorf("TTS_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		return speechSetup{synthesizer: s, detail: "elevenlabs"}, nil
	case "mock":
		return speechSetup{synthesizer: voice.NewMockSynthesizer(), detail: "mock"}, nil
	case "off":
		return speechSetup{detail: "disabled"}, nil
	case "auto":
		primary, hasOpenAI := openAI()
		secondary, hasEleven := elevenLabs()
		switch {
		case hasOpenAI && hasEleven:
			return speechSetup{
				synthesizer: voice.NewFailover(primary, secondary),
				detail:      "openai (automatic elevenlabs fallback)",
			}, nil
		case hasOpenAI:
			return speechSetup{synthesizer: primary, detail: "openai " + cfg.TTSModel + "/" + cfg.TTSVoice}, nil
		case hasEleven:
			return speechSetup{synthesizer: secondary, detail: "elevenlabs"}, nil
		default:
			return speechSetup{detail: "disabled (no openai or elevenlabs key)"}, nil
		}
	default:
		return speechSetup{}, fmt.Errorf("invalid TTS_PROVIDER: %q (expected auto|openai|elevenlabs|mock|off)", cfg.TTSProvider)
	}
}
