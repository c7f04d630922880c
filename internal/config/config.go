package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file whose entries act as defaults for
// the environment variables below.
const FileEnv = "SPECTRE_CONFIG"

// Config contains all runtime settings for the gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	MemoryBackend       string
	MemoryFilePath      string
	MemorySQLitePath    string
	MemoryBadgerDir     string
	DatabaseURL         string
	MemoryRetention     int
	MemoryContextWindow int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	ProviderHTTPURL  string
	ProviderCLIPath  string
	ProviderCLIArgs  []string
	ProviderMock     bool

	CompletionTimeout        time.Duration
	MaxOutputTokens          int
	MaxInFlightPerConnection int

	TTSProvider      string
	TTSModel         string
	TTSVoice         string
	TTSTimeout       time.Duration
	TTSStripMarkup   bool
	ElevenLabsAPIKey string
	ElevenLabsURL    string
	ElevenLabsVoice  string
	ElevenLabsModel  string
	ElevenLabsFormat string
}

// Load reads environment variables, falling back to the YAML file named by
// SPECTRE_CONFIG, and applies defaults.
func Load() (Config, error) {
	src, err := newSource(strings.TrimSpace(os.Getenv(FileEnv)))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:         src.stringOr("APP_BIND_ADDR", ":3000"),
		MetricsNamespace: src.stringOr("APP_METRICS_NAMESPACE", "spectre"),
		LogLevel:         strings.ToLower(src.stringOr("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(src.stringOr("LOG_FORMAT", "text")),

		MemoryBackend:    strings.ToLower(src.get("MEMORY_BACKEND")),
		MemoryFilePath:   src.stringOr("MEMORY_FILE", "memory.json"),
		MemorySQLitePath: src.stringOr("MEMORY_SQLITE_PATH", "memory.db"),
		MemoryBadgerDir:  src.stringOr("MEMORY_BADGER_DIR", "memory.badger"),
		DatabaseURL:      src.get("DATABASE_URL"),

		OpenAIAPIKey:     src.get("OPENAI_API_KEY"),
		OpenAIBaseURL:    src.get("OPENAI_BASE_URL"),
		AnthropicAPIKey:  src.get("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: src.get("ANTHROPIC_BASE_URL"),
		ProviderHTTPURL:  src.get("PROVIDER_HTTP_URL"),
		ProviderCLIPath:  src.get("PROVIDER_CLI_PATH"),
		ProviderCLIArgs:  strings.Fields(src.get("PROVIDER_CLI_ARGS")),

		TTSProvider:      strings.ToLower(src.stringOr("TTS_PROVIDER", "auto")),
		TTSModel:         src.stringOr("TTS_MODEL", "tts-1"),
		TTSVoice:         src.stringOr("TTS_VOICE", "alloy"),
		ElevenLabsAPIKey: src.get("ELEVENLABS_API_KEY"),
		ElevenLabsURL:    src.stringOr("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsVoice:  src.stringOr("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsModel:  src.stringOr("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsFormat: src.stringOr("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
	}

	if cfg.ShutdownTimeout, err = src.duration("APP_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = src.boolean("APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.MemoryRetention, err = src.integer("MEMORY_RETENTION", 20); err != nil {
		return Config{}, err
	}
	if cfg.MemoryContextWindow, err = src.integer("MEMORY_CONTEXT_WINDOW", 6); err != nil {
		return Config{}, err
	}
	if cfg.ProviderMock, err = src.boolean("PROVIDER_MOCK_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = src.duration("COMPLETION_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxOutputTokens, err = src.integer("COMPLETION_MAX_OUTPUT_TOKENS", 150); err != nil {
		return Config{}, err
	}
	if cfg.MaxInFlightPerConnection, err = src.integer("APP_MAX_INFLIGHT_PER_CONNECTION", 4); err != nil {
		return Config{}, err
	}
	if cfg.TTSTimeout, err = src.duration("TTS_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TTSStripMarkup, err = src.boolean("TTS_STRIP_MARKUP", false); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.MemoryRetention <= 0:
		return fmt.Errorf("MEMORY_RETENTION must be positive")
	case c.MemoryContextWindow <= 0:
		return fmt.Errorf("MEMORY_CONTEXT_WINDOW must be positive")
	case c.CompletionTimeout <= 0:
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	case c.MaxOutputTokens <= 0:
		return fmt.Errorf("COMPLETION_MAX_OUTPUT_TOKENS must be positive")
	case c.MaxInFlightPerConnection <= 0:
		return fmt.Errorf("APP_MAX_INFLIGHT_PER_CONNECTION must be positive")
	case c.TTSTimeout <= 0:
		return fmt.Errorf("TTS_TIMEOUT must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.TTSProvider {
	case "auto", "openai", "elevenlabs", "mock", "off":
	default:
		return fmt.Errorf("TTS_PROVIDER %q is not supported", c.TTSProvider)
	}
	return nil
}

// source resolves a key from the environment first, then the file.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read %s: %w", FileEnv, err)
	}
	expanded := os.ExpandEnv(string(raw))

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return source{}, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range doc {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return src, nil
}

func (s source) get(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) stringOr(key, fallback string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) (time.Duration, error) {
	v := s.get(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func (s source) integer(key string, fallback int) (int, error) {
	v := s.get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func (s source) boolean(key string, fallback bool) (bool, error) {
	v := strings.ToLower(s.get(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
