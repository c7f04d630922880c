package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderJSONReply(t *testing.T) {
	var got httpRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello back"}`))
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, time.Second)
	reply, err := p.Complete(context.Background(), Request{Model: "m1", System: "sys", User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)
	assert.Equal(t, httpRequest{Model: "m1", System: "sys", User: "hello", MaxTokens: DefaultMaxOutputTokens}, got)
}

func TestHTTPProviderPlainTextReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  just text \n"))
	}))
	defer srv.Close()

	reply, err := NewHTTP(srv.URL, time.Second).Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "just text", reply)
}

func TestHTTPProviderStreamReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(strings.Join([]string{
			": keepalive",
			"",
			`data: {"delta":"Hel"}`,
			"",
			`data: {"delta":"lo"}`,
			"",
			"data: [DONE]",
			"",
		}, "\n")))
	}))
	defer srv.Close()

	reply, err := NewHTTP(srv.URL, time.Second).Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
}

func TestHTTPProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, time.Second).Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "http", perr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestOpenAIProviderAgainstStub(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi from stub"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	reply, err := p.Complete(context.Background(), Request{Model: "gpt-4o", System: "sys", User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi from stub", reply)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, DefaultMaxOutputTokens, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIProviderErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), Request{Model: "nope", User: "hello"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestAnthropicProviderAgainstStub(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	reply, err := p.Complete(context.Background(), Request{Model: "claude-sonnet-4-5", System: "sys", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.EqualValues(t, DefaultMaxOutputTokens, body["max_tokens"])
	assert.NotNil(t, body["system"])
}

func TestMockProvider(t *testing.T) {
	p := NewMock()
	reply, err := p.Complete(context.Background(), Request{User: " ping "})
	require.NoError(t, err)
	assert.Equal(t, "I heard you: ping", reply)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Complete(ctx, Request{User: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
