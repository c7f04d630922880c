package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSynthesizer struct {
	name  string
	err   error
	calls int
}

func (s *stubSynthesizer) Name() string { return s.name }

func (s *stubSynthesizer) Synthesize(_ context.Context, text string) (Audio, error) {
	s.calls++
	if s.err != nil {
		return Audio{}, s.err
	}
	return Audio{Data: []byte(s.name + ":" + text)}, nil
}

func TestFailoverSwitchesToFallbackAndSticks(t *testing.T) {
	primary := &stubSynthesizer{name: "primary", err: errors.New("primary unavailable")}
	fallback := &stubSynthesizer{name: "fallback"}
	f := NewFailover(primary, fallback)

	audio, err := f.Synthesize(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, "fallback:one", string(audio.Data))
	assert.Equal(t, "fallback", f.Active())

	_, err = f.Synthesize(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, fallback.calls)
}

func TestFailoverReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	primary := &stubSynthesizer{name: "primary", err: errors.New("down")}
	fallback := &stubSynthesizer{name: "fallback"}
	f := NewFailover(primary, fallback)

	_, err := f.Synthesize(context.Background(), "one")
	require.NoError(t, err)

	primary.err = nil
	fallback.err = errors.New("fallback down")
	audio, err := f.Synthesize(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "primary:two", string(audio.Data))
	assert.Equal(t, "primary", f.Active())
}

func TestFailoverBothFail(t *testing.T) {
	f := NewFailover(
		&stubSynthesizer{name: "primary", err: errors.New("a")},
		&stubSynthesizer{name: "fallback", err: errors.New("b")},
	)
	_, err := f.Synthesize(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tts primary failed")
	assert.Equal(t, "primary", f.Active())
}

func TestElevenLabsSynthesizer(t *testing.T) {
	var got elevenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:   "key",
		BaseURL:  srv.URL,
		VoiceID:  "voice-1",
		Settings: Settings{Speed: 3},
	})
	audio, err := s.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio.Data)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "eleven_multilingual_v2", got.ModelID)
	assert.Equal(t, 1.2, got.VoiceSettings.Speed)
	assert.Equal(t, 0.42, got.VoiceSettings.Stability)
}

func TestElevenLabsSynthesizerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{BaseURL: srv.URL, VoiceID: "v"})
	_, err := s.Synthesize(context.Background(), "hello")

	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, http.StatusServiceUnavailable, synthErr.StatusCode)
	assert.True(t, synthErr.Retryable)
}

func TestElevenLabsSynthesizerRequiresVoice(t *testing.T) {
	_, err := NewElevenLabsSynthesizer(ElevenLabsConfig{}).Synthesize(context.Background(), "x")
	require.Error(t, err)
}

func TestOpenAISynthesizerAgainstStub(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	s := NewOpenAISynthesizer(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	audio, err := s.Synthesize(context.Background(), "speak")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3bytes"), audio.Data)
	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "alloy", body["voice"])
	assert.Equal(t, "speak", body["input"])
}

func TestMockSynthesizer(t *testing.T) {
	audio, err := NewMockSynthesizer().Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), audio.Data)
}

func TestElevenLabsSynthesizerWrapsPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pcm_16000", r.URL.Query().Get("output_format"))
		_, _ = w.Write([]byte{0x01, 0x02, 0x03, 0x04})
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer(ElevenLabsConfig{BaseURL: srv.URL, VoiceID: "v", OutputFormat: "pcm_16000"})
	clip, err := s.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "wav", clip.Format)
	require.Len(t, clip.Data, 48)
	assert.Equal(t, "RIFF", string(clip.Data[:4]))
}
