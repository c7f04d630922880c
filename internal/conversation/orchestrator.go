// Package conversation runs the per-connection chat pipeline: identity,
// context assembly, completion, memory recording and reply delivery.
package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/spectre/internal/completion"
	"github.com/ent0n29/spectre/internal/memory"
	"github.com/ent0n29/spectre/internal/observability"
	"github.com/ent0n29/spectre/internal/policy"
	"github.com/ent0n29/spectre/internal/prompt"
	"github.com/ent0n29/spectre/internal/protocol"
	"github.com/ent0n29/spectre/internal/session"
	"github.com/ent0n29/spectre/internal/voice"
)

const defaultMaxInFlight = 4

type Options struct {
	// MaxInFlight bounds concurrently handled chat/tts frames per connection.
	MaxInFlight       int
	SpeechTimeout     time.Duration
	StripSpeechMarkup bool
	Logger            *slog.Logger
	Metrics           *observability.Metrics
}

type Orchestrator struct {
	sessions   *session.Manager
	memory     *memory.Manager
	assembler  *prompt.Assembler
	dispatcher *completion.Dispatcher
	speech     voice.Synthesizer

	maxInFlight   int
	speechTimeout time.Duration
	stripMarkup   bool
	logger        *slog.Logger
	metrics       *observability.Metrics
}

func NewOrchestrator(
	sessions *session.Manager,
	mem *memory.Manager,
	assembler *prompt.Assembler,
	dispatcher *completion.Dispatcher,
	speech voice.Synthesizer,
	opts Options,
) *Orchestrator {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		sessions:      sessions,
		memory:        mem,
		assembler:     assembler,
		dispatcher:    dispatcher,
		speech:        speech,
		maxInFlight:   opts.MaxInFlight,
		speechTimeout: opts.SpeechTimeout,
		stripMarkup:   opts.StripSpeechMarkup,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
}

// RunConnection consumes parsed client frames until inbound closes or ctx
// ends, writing every reply to outbound. Identify frames are applied in
// arrival order and a chat frame is bound to the user resolved when it
// arrives; chat and tts frames then run concurrently up to MaxInFlight.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	var g errgroup.Group
	g.SetLimit(o.maxInFlight)

	logger := o.logger.With("session_id", sess.ID)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-inbound:
			if !ok {
				break loop
			}
			switch m := msg.(type) {
			case protocol.Identify:
				o.handleIdentify(ctx, logger, sess.ID, m, outbound)
			case protocol.Chat:
				// Identity is fixed when the frame arrives, not when its handler runs.
				userID := o.sessions.Resolve(sess.ID)
				_ = o.sessions.Touch(sess.ID)
				g.Go(func() error {
					defer o.recoverFrame(ctx, logger, outbound)
					o.handleChat(ctx, logger, userID, m, outbound)
					return nil
				})
			case protocol.TTS:
				g.Go(func() error {
					defer o.recoverFrame(ctx, logger, outbound)
					if err := o.Speak(ctx, m.Text, outbound); err != nil {
						o.emit(ctx, outbound, protocol.NewError(err.Error()))
					}
					return nil
				})
			default:
				o.emit(ctx, outbound, protocol.NewError(fmt.Sprintf("unsupported message %T", msg)))
			}
		}
	}

	return g.Wait()
}

func (o *Orchestrator) handleIdentify(ctx context.Context, logger *slog.Logger, sessionID string, msg protocol.Identify, outbound chan<- any) {
	userID, err := o.sessions.Identify(sessionID, msg.UserID)
	switch {
	case errors.Is(err, session.ErrAlreadyIdentified):
		o.emit(ctx, outbound, protocol.NewError(fmt.Sprintf("connection already identified as %s", userID)))
		return
	case err != nil:
		logger.Error("identify failed", "error", err)
		o.emit(ctx, outbound, protocol.NewError(err.Error()))
		return
	}
	o.metrics.SessionEvent("identified")
	logger.Info("user identified", "user_id", userID)
	o.emit(ctx, outbound, protocol.NewIdentified(userID))
}

func (o *Orchestrator) handleChat(ctx context.Context, logger *slog.Logger, userID string, msg protocol.Chat, outbound chan<- any) {
	start := time.Now()

	logger = logger.With("user_id", userID, "provider", msg.Provider, "model", msg.Model)
	logger.Info("chat request", "text", policy.Preview(msg.UserMessage, 80))

	if !o.dispatcher.Supports(msg.Provider) {
		o.emit(ctx, outbound, protocol.NewError(fmt.Sprintf("Unsupported provider: %s", msg.Provider)))
		return
	}

	// The exchange is recorded even if the client disconnects mid-call.
	work := context.WithoutCancel(ctx)

	assembled := o.assembler.Build(userID, msg.UserMessage)
	o.metrics.ObserveStage(observability.StageContext, time.Since(start))

	res, err := o.dispatcher.Complete(work, msg.Provider, msg.Model, assembled, msg.UserMessage)
	if err != nil {
		o.emit(ctx, outbound, protocol.NewError(err.Error()))
		return
	}

	if err := o.Deliver(ctx, userID, msg.Provider, msg.Model, msg.UserMessage, res.Text, outbound); err != nil {
		logger.Warn("exchange not persisted", "error", err)
	}
	o.metrics.ObserveStage(observability.StageChatTotal, time.Since(start))
}

// Deliver records the exchange and emits the response frame. The response
// is sent even when the flush fails; the flush error is returned.
func (o *Orchestrator) Deliver(ctx context.Context, userID, providerID, modelID, userMessage, reply string, outbound chan<- any) error {
	userMsg := memory.NewUserMessage(userMessage)
	assistantMsg := memory.NewAssistantMessage(reply, providerID, modelID)

	err := o.memory.AppendExchange(context.WithoutCancel(ctx), userID, userMsg, assistantMsg)
	o.emit(ctx, outbound, protocol.NewResponse(reply, providerID, modelID))
	return err
}

// Speak synthesizes text and emits an audio frame. Blank text is a silent
// no-op.
func (o *Orchestrator) Speak(ctx context.Context, text string, outbound chan<- any) error {
	prepared := voice.PrepareText(text, o.stripMarkup)
	if prepared == "" {
		return nil
	}
	if o.speech == nil {
		return errors.New("text-to-speech is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, o.speechTimeout)
	defer cancel()

	start := time.Now()
	audio, err := o.speech.Synthesize(callCtx, prepared)
	o.metrics.ObserveSpeech(time.Since(start), err)
	if err != nil {
		o.logger.Error("speech synthesis failed", "synthesizer", o.speech.Name(), "error", err)
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	o.emit(ctx, outbound, protocol.NewAudio(base64.StdEncoding.EncodeToString(audio.Data)))
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func (o *Orchestrator) recoverFrame(ctx context.Context, logger *slog.Logger, outbound chan<- any) {
	if r := recover(); r != nil {
		logger.Error("frame handler panic", "panic", r)
		o.emit(ctx, outbound, protocol.NewError("internal error"))
	}
}
