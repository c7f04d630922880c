package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/spectre/internal/config"
	"github.com/ent0n29/spectre/internal/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:         "test_app",
		MemoryBackend:            "file",
		MemoryFilePath:           filepath.Join(t.TempDir(), "memory.json"),
		MemoryRetention:          memory.DefaultRetention,
		MemoryContextWindow:      memory.DefaultContextWindow,
		CompletionTimeout:        5 * time.Second,
		MaxOutputTokens:          150,
		MaxInFlightPerConnection: 4,
		TTSProvider:              "auto",
		TTSModel:                 "tts-1",
		TTSVoice:                 "alloy",
		TTSTimeout:               5 * time.Second,
	}
}

func TestBuildWiresProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProviderMock = true
	cfg.ProviderHTTPURL = "http://127.0.0.1:1/complete"
	cfg.ProviderCLIPath = "/usr/local/bin/agent"

	res, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Equal(t, []string{"anthropic", "cli", "http", "mock", "openai"}, res.Providers)
	assert.Equal(t, "disabled (no openai or elevenlabs key)", res.Speech)
	assert.Equal(t, 0, res.Memory.UserCount())
	assert.NotNil(t, res.API.Router())
}

func TestBuildReloadsPersistedMemory(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NoError(t, first.Memory.AppendExchange(context.Background(), "dana",
		memory.NewUserMessage("hi"), memory.NewAssistantMessage("hello", "mock", "echo")))
	require.NoError(t, first.Cleanup())

	second, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Cleanup() })
	assert.Len(t, second.Memory.History("dana"), 2)
}

func TestResolveSynthesizer(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		detail  string
		wantNil bool
		wantErr bool
	}{
		{name: "auto without keys", detail: "disabled (no openai or elevenlabs key)", wantNil: true},
		{name: "auto openai", mutate: func(c *config.Config) { c.OpenAIAPIKey = "sk" }, detail: "openai tts-1/alloy"},
		{name: "auto both", mutate: func(c *config.Config) { c.OpenAIAPIKey = "sk"; c.ElevenLabsAPIKey = "xi" }, detail: "openai (automatic elevenlabs fallback)"},
		{name: "auto elevenlabs", mutate: func(c *config.Config) { c.ElevenLabsAPIKey = "xi" }, detail: "elevenlabs"},
		{name: "mock", mutate: func(c *config.Config) { c.TTSProvider = "mock" }, detail: "mock"},
		{name: "off", mutate: func(c *config.Config) { c.TTSProvider = "off" }, detail: "disabled", wantNil: true},
		{name: "openai without key", mutate: func(c *config.Config) { c.TTSProvider = "openai" }, wantErr: true},
		{name: "unknown", mutate: func(c *config.Config) { c.TTSProvider = "say" }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			got, err := resolveSynthesizer(cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.detail, got.detail)
			assert.Equal(t, tc.wantNil, got.synthesizer == nil)
		})
	}
}
