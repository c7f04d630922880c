// Package provider adapts LLM backends to a single-turn completion contract.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxOutputTokens caps every reply.
const DefaultMaxOutputTokens = 150

// Request is one single-turn completion.
type Request struct {
	Model           string
	System          string
	User            string
	MaxOutputTokens int
}

// Provider is one backend family.
type Provider interface {
	// ID is the value clients send in the chat frame's provider field.
	ID() string
	// DisplayName prefixes error text shown to users, e.g. "OpenAI".
	DisplayName() string
	// SuggestedAlternative names a model worth trying when this one
	// returns nothing.
	SuggestedAlternative() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Error is a backend failure tagged with the provider and, when the backend
// answered over HTTP, its status code.
type Error struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s request failed", e.Provider)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}

func maxTokens(req Request) int64 {
	if req.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return int64(req.MaxOutputTokens)
}
