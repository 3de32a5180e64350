package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/persona"
	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/ratelimit"
	"github.com/bakkerme/persona-bot/internal/state"
)

const (
	mentionsPageSize      = 50
	mentionsBootstrapSize = 5
)

type MentionPoller struct {
	client   platform.Client
	store    *state.Store
	replier  *Replier
	throttle *ratelimit.Throttle
	now      func() time.Time
	logger   *slog.Logger

	bootstrapped bool
}

func NewMentionPoller(client platform.Client, store *state.Store, replier *Replier, throttle *ratelimit.Throttle, logger *slog.Logger) *MentionPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &MentionPoller{
		client:   client,
		store:    store,
		replier:  replier,
		throttle: throttle,
		now:      time.Now,
		logger:   logger,
	}
}

// Bootstrap seeds an unset mentions watermark from the newest existing mention
// without replying. It is not throttled and runs until it succeeds once.
func (p *MentionPoller) Bootstrap(ctx context.Context, self platform.User) error {
	if p.bootstrapped {
		return nil
	}
	logger := core.LoggerFromContext(ctx, p.logger)
	if since := p.store.MentionsSinceID(); since != "" {
		logger.Info("mentions watermark already set, skipping bootstrap", slog.String("since_id", since))
		p.bootstrapped = true
		return nil
	}

	logger.Info("no mentions watermark, initializing from latest mention")
	posts, err := p.client.Mentions(ctx, self.ID, platform.TimelineQuery{Limit: mentionsBootstrapSize})
	if err != nil {
		return fmt.Errorf("bootstrap mentions: %w", err)
	}
	p.bootstrapped = true

	newest, ok := platform.Newest(posts)
	if !ok {
		logger.Info("no existing mentions, starting clean")
		return nil
	}
	_, _ = p.store.AdvanceMentions(ctx, newest.ID)
	logger.Info("mentions watermark initialized, ignoring earlier mentions", slog.String("since_id", newest.ID))
	return nil
}

// Poll answers mentions newer than the watermark, oldest first. When the
// throttle has not elapsed it returns without fetching.
func (p *MentionPoller) Poll(ctx context.Context, self platform.User) (res Result, err error) {
	ctx = core.WithStream(ctx, "mentions")
	ctx, span := otel.Tracer("persona-bot/poller").Start(ctx, "poller.mentions")
	defer func() {
		span.SetAttributes(
			attribute.Int("poller.fetched", res.Fetched),
			attribute.Int("poller.replied", res.Replied),
			attribute.Bool("poller.throttled", res.Throttled),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := core.LoggerFromContext(ctx, p.logger).With(slog.String("stream", "mentions"))
	ctx = core.WithLogger(ctx, logger)

	if err := p.Bootstrap(ctx, self); err != nil {
		return res, err
	}

	if ok, remaining := p.throttle.Allow(p.now()); !ok {
		logger.Info("skipping mentions check", slog.Duration("wait", remaining.Round(time.Second)))
		res.Throttled = true
		return res, nil
	}

	since := p.store.MentionsSinceID()
	logger.Info("checking mentions", slog.String("since_id", since))
	posts, err := p.client.Mentions(ctx, self.ID, platform.TimelineQuery{SinceID: since, Limit: mentionsPageSize})
	if err != nil {
		return res, fmt.Errorf("fetch mentions: %w", err)
	}

	ordered := platform.OldestFirst(posts, since)
	if len(ordered) == 0 {
		logger.Info("no new mentions")
		return res, nil
	}

	return p.replier.processBatch(ctx, ordered, self.ID, persona.ContextMention, func(ctx context.Context, id string) {
		_, _ = p.store.AdvanceMentions(ctx, id)
	})
}

// Bootstrapped reports whether the mentions stream has been initialized.
func (p *MentionPoller) Bootstrapped() bool { return p.bootstrapped }
