// Package completion routes assembled prompts to provider adapters and
// reduces every call to exactly one Result.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/spectre/internal/observability"
	"github.com/ent0n29/spectre/internal/prompt"
	"github.com/ent0n29/spectre/internal/provider"
	"github.com/ent0n29/spectre/internal/reliability"
)

// ErrUnsupportedProvider is returned, without calling any backend, when the
// requested provider id is not registered.
var ErrUnsupportedProvider = errors.New("unsupported provider")

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeEmptyReply    Outcome = "empty_reply"
	OutcomeProviderError Outcome = "provider_error"
)

// Result is the reply text to record and deliver. For EmptyReply and
// ProviderError the text is a user-facing explanation and Err holds the
// cause where there is one.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}

type Options struct {
	Timeout         time.Duration
	MaxOutputTokens int
	Logger          *slog.Logger
	Metrics         *observability.Metrics
}

type Dispatcher struct {
	registry  *Registry
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func NewDispatcher(registry *Registry, opts Options) *Dispatcher {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = provider.DefaultMaxOutputTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		timeout:   opts.Timeout,
		maxTokens: opts.MaxOutputTokens,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Supports reports whether providerID is registered.
func (d *Dispatcher) Supports(providerID string) bool {
	_, ok := d.registry.Lookup(providerID)
	return ok
}

// Complete sends one single-turn request. The only error it returns is
// ErrUnsupportedProvider; backend faults become a ProviderError result.
func (d *Dispatcher) Complete(
	ctx context.Context,
	providerID, modelID string,
	assembled prompt.Context,
	userMessage string,
) (Result, error) {
	p, ok := d.registry.Lookup(providerID)
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnsupportedProvider, providerID)
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.logger.Debug("completion request", "provider", providerID, "model", modelID)
	start := time.Now()
	text, err := p.Complete(callCtx, provider.Request{
		Model:           modelID,
		System:          assembled.System(),
		User:            userMessage,
		MaxOutputTokens: d.maxTokens,
	})
	elapsed := time.Since(start)

	var res Result
	switch {
	case err != nil:
		res = d.providerError(callCtx, p, modelID, err)
	case strings.TrimSpace(text) == "":
		d.logger.Warn("provider returned empty reply", "provider", providerID, "model", modelID)
		res = Result{Outcome: OutcomeEmptyReply, Text: EmptyReplyText(modelID, p.SuggestedAlternative())}
	default:
		res = Result{Outcome: OutcomeSuccess, Text: text}
	}

	d.metrics.ObserveCompletion(providerID, string(res.Outcome), elapsed)
	return res, nil
}

func (d *Dispatcher) providerError(callCtx context.Context, p provider.Provider, modelID string, err error) Result {
	class := reliability.Classify(err, provider.StatusCode(err))
	message := err.Error()
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && d.timeout > 0 {
		class = reliability.ClassTimeout
		message = fmt.Sprintf("no reply within %s", d.timeout)
	}

	d.logger.Error("provider request failed",
		"provider", p.ID(),
		"model", modelID,
		"code", class,
		"status", provider.StatusCode(err),
		"error", err,
	)
	d.metrics.ProviderError(p.ID(), class)

	return Result{
		Outcome: OutcomeProviderError,
		Text:    ProviderErrorText(p.DisplayName(), message),
		Err:     err,
	}
}

// EmptyReplyText is the placeholder stored and delivered when a model
// answers with nothing.
func EmptyReplyText(modelID, alternative string) string {
	return fmt.Sprintf("Sorry, %s returned an empty response. This model might not be available with your API key. Try %s instead.", modelID, alternative)
}

// ProviderErrorText is the reply recorded when the backend call fails.
func ProviderErrorText(displayName, message string) string {
	return fmt.Sprintf("%s Error: %s", displayName, message)
}
