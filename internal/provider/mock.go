package provider

import (
	"context"
	"fmt"
	"strings"
)

// Mock answers deterministically without any network access.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (p *Mock) ID() string                   { return "mock" }
func (p *Mock) DisplayName() string          { return "Mock" }
func (p *Mock) SuggestedAlternative() string { return "mock" }

func (p *Mock) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.User)
	if base == "" {
		base = "I am listening."
	}
	reply := fmt.Sprintf("I heard you: %s", base)
	if limit := int(maxTokens(req)) * 4; len(reply) > limit {
		reply = reply[:limit]
	}
	return reply, nil
}
