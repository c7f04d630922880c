package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/spectre/internal/observability"
	"github.com/ent0n29/spectre/internal/prompt"
	"github.com/ent0n29/spectre/internal/provider"
)

type fakeProvider struct {
	id      string
	display string
	reply   string
	err     error
	block   bool

	mu   sync.Mutex
	reqs []provider.Request
}

func (f *fakeProvider) ID() string                   { return f.id }
func (f *fakeProvider) DisplayName() string          { return f.display }
func (f *fakeProvider) SuggestedAlternative() string { return "GPT-4o" }

func (f *fakeProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func newDispatcher(metrics *observability.Metrics, timeout time.Duration, providers ...provider.Provider) *Dispatcher {
	return NewDispatcher(NewRegistry(providers...), Options{
		Timeout: timeout,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics,
	})
}

var assembled = prompt.Context{Preamble: "sys", Memory: "|mem", Tools: "|tools"}

func TestCompleteSuccess(t *testing.T) {
	p := &fakeProvider{id: "openai", display: "OpenAI", reply: "hello!"}
	metrics := observability.NewMetrics("test")
	d := newDispatcher(metrics, time.Second, p)

	res, err := d.Complete(context.Background(), "openai", "gpt-4o", assembled, "hi")
	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: OutcomeSuccess, Text: "hello!"}, res)

	require.Len(t, p.reqs, 1)
	assert.Equal(t, provider.Request{
		Model:           "gpt-4o",
		System:          "sys|mem|tools",
		User:            "hi",
		MaxOutputTokens: 150,
	}, p.reqs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Completions.WithLabelValues("openai", "success")))
}

func TestCompleteEmptyReply(t *testing.T) {
	p := &fakeProvider{id: "openai", display: "OpenAI", reply: " \n\t "}
	d := newDispatcher(nil, time.Second, p)

	res, err := d.Complete(context.Background(), "openai", "o1-mini", assembled, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyReply, res.Outcome)
	assert.Equal(t,
		"Sorry, o1-mini returned an empty response. This model might not be available with your API key. Try GPT-4o instead.",
		res.Text)
	assert.Contains(t, res.Text, "o1-mini")
}

func TestCompleteProviderError(t *testing.T) {
	cause := &provider.Error{Provider: "anthropic", StatusCode: 429, Err: errors.New("rate limited")}
	p := &fakeProvider{id: "anthropic", display: "Anthropic", err: cause}
	metrics := observability.NewMetrics("test")
	d := newDispatcher(metrics, time.Second, p)

	res, err := d.Complete(context.Background(), "anthropic", "claude", assembled, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProviderError, res.Outcome)
	assert.Equal(t, "Anthropic Error: rate limited", res.Text)
	assert.ErrorIs(t, res.Err, cause)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("anthropic", "rate_limited")))
}

func TestCompleteTimeoutIsProviderError(t *testing.T) {
	p := &fakeProvider{id: "openai", display: "OpenAI", block: true}
	d := newDispatcher(nil, 20*time.Millisecond, p)

	res, err := d.Complete(context.Background(), "openai", "gpt-4o", assembled, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProviderError, res.Outcome)
	assert.Equal(t, "OpenAI Error: no reply within 20ms", res.Text)
}

func TestCompleteUnsupportedProvider(t *testing.T) {
	p := &fakeProvider{id: "openai", display: "OpenAI", reply: "x"}
	d := newDispatcher(nil, time.Second, p)

	_, err := d.Complete(context.Background(), "gemini", "g", assembled, "hi")
	require.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Equal(t, 0, p.calls())
	assert.False(t, d.Supports("gemini"))
	assert.True(t, d.Supports("openai"))
}

func TestRegistryIDs(t *testing.T) {
	r := NewRegistry(&fakeProvider{id: "openai"}, &fakeProvider{id: "anthropic"}, nil)
	assert.Equal(t, []string{"anthropic", "openai"}, r.IDs())

	r.Register(&fakeProvider{id: "openai", display: "replaced"})
	p, ok := r.Lookup("openai")
	require.True(t, ok)
	assert.Equal(t, "replaced", p.DisplayName())
}
