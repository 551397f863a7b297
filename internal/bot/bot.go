// Package bot connects the senses to the command dispatcher: every input is
// answered in arrival order and the reply goes back to the sense it came
// from.
package bot

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sizebot/sizebot/internal/commands"
	"github.com/sizebot/sizebot/internal/observability"
	"github.com/sizebot/sizebot/internal/security"
	"github.com/sizebot/sizebot/internal/senses"
)

// Dispatcher answers one message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg commands.Message) commands.Response
}

// Bot runs a set of senses against one dispatcher.
type Bot struct {
	registry   *senses.SenseRegistry
	dispatcher Dispatcher
	log        *observability.Logger
	metrics    *observability.Metrics
	limiter    *security.RateLimiter
	buffer     int

	lastSweep time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithRateLimiter throttles messages from outside users. Inputs from local
// sources are never limited.
func WithRateLimiter(rl *security.RateLimiter) Option {
	return func(b *Bot) { b.limiter = rl }
}

// New creates a bot. log and metrics may be nil.
func New(registry *senses.SenseRegistry, dispatcher Dispatcher, log *observability.Logger, metrics *observability.Metrics, opts ...Option) *Bot {
	if log == nil {
		log = observability.Discard()
	}
	b := &Bot{
		registry:   registry,
		dispatcher: dispatcher,
		log:        log,
		metrics:    metrics,
		buffer:     64,
		lastSweep:  time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run starts all senses and processes their inputs until ctx is cancelled,
// a sense fails, or every sense has returned (the CLI at EOF). Inputs are
// handled one at a time.
func (b *Bot) Run(ctx context.Context) error {
	inputs := make(chan *senses.UnifiedInput, b.buffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(inputs)
		return b.registry.StartAll(gctx, inputs)
	})
	g.Go(func() error {
		for input := range inputs {
			if gctx.Err() != nil {
				continue
			}
			b.Handle(gctx, input)
			b.sweep()
		}
		return nil
	})

	b.log.Info("bot started", "senses", b.registry.Names())
	err := g.Wait()
	b.log.Info("bot stopped")
	return err
}

// Handle dispatches one input and delivers the reply to its sense.
func (b *Bot) Handle(ctx context.Context, input *senses.UnifiedInput) {
	channel := input.SourceMeta.Channel
	sender := input.SourceMeta.Sender
	b.log.Incoming(channel, sender, input.Payload, "input_id", input.InputID)
	if b.metrics != nil {
		b.metrics.MessagesTotal.WithLabelValues(channel).Inc()
	}
	if !input.SourceType.Internal() && !b.limiter.Allow(limitKey(input)) {
		b.log.Warn("rate limit exceeded, message dropped", "channel", channel, "sender", sender)
		if b.metrics != nil {
			b.metrics.ThrottledTotal.WithLabelValues(channel).Inc()
		}
		return
	}

	resp := b.dispatcher.Dispatch(ctx, commands.Message{
		Text:     input.Payload,
		Sender:   sender,
		UserID:   input.UserID(),
		Internal: input.SourceType.Internal(),
	})
	defer func() {
		if err := resp.Cleanup(); err != nil {
			b.log.Warn("temp file cleanup failed", "error", err)
		}
	}()

	reply := senses.Reply{Text: resp.Text, Document: resp.Document}
	if reply.Empty() {
		return
	}
	sense := b.registry.Get(channel)
	if sense == nil {
		b.log.Error("no sense for reply", "channel", channel, "input_id", input.InputID)
		return
	}
	if err := sense.Send(ctx, input.ResponseChannel, reply); err != nil {
		b.log.Error("reply delivery failed", "channel", channel, "target", input.ResponseChannel, "error", err)
		if b.metrics != nil {
			b.metrics.DeliveryErrors.WithLabelValues(channel).Inc()
		}
	}
}

// limitKey identifies the user an input counts against.
func limitKey(input *senses.UnifiedInput) string {
	if id := input.UserID(); id != 0 {
		return input.SourceMeta.Channel + ":" + strconv.FormatInt(id, 10)
	}
	return input.SourceMeta.Channel + ":" + input.SourceMeta.Sender
}

// sweep drops idle rate-limit windows once per window length.
func (b *Bot) sweep() {
	if b.limiter == nil || time.Since(b.lastSweep) < b.limiter.Interval() {
		return
	}
	b.lastSweep = time.Now()
	if n := b.limiter.Cleanup(); n > 0 {
		b.log.Debug("rate limit windows dropped", "count", n)
	}
}
