package voice

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Failover prefers the primary synthesizer and switches to the fallback
// when the primary fails. Once the fallback succeeds it stays active until
// it fails; then the primary is retried.
type Failover struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func NewFailover(primary, fallback Synthesizer) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

// Active names the synthesizer the next call will try first.
func (f *Failover) Active() string {
	if f.fallbackActive.Load() {
		return f.fallback.Name()
	}
	return f.primary.Name()
}

func (f *Failover) Synthesize(ctx context.Context, text string) (Audio, error) {
	if f.fallbackActive.Load() {
		audio, fbErr := f.fallback.Synthesize(ctx, text)
		if fbErr == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return Audio{}, fbErr
		}
		audio, prErr := f.primary.Synthesize(ctx, text)
		if prErr == nil {
			f.fallbackActive.Store(false)
			return audio, nil
		}
		return Audio{}, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	audio, prErr := f.primary.Synthesize(ctx, text)
	if prErr == nil {
		return audio, nil
	}
	if ctx.Err() != nil {
		return Audio{}, prErr
	}

	audio, fbErr := f.fallback.Synthesize(ctx, text)
	if fbErr != nil {
		return Audio{}, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	f.fallbackActive.Store(true)
	return audio, nil
}
