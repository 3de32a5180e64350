package poller

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/persona"
	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/state"
)

const (
	trackedPageSize      = 5
	trackedBootstrapSize = 1
)

type TrackedPoller struct {
	client  platform.Client
	store   *state.Store
	replier *Replier
	roster  []Account
	logger  *slog.Logger
}

func NewTrackedPoller(client platform.Client, store *state.Store, replier *Replier, roster []Account, logger *slog.Logger) *TrackedPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackedPoller{
		client:  client,
		store:   store,
		replier: replier,
		roster:  roster,
		logger:  logger,
	}
}

func (p *TrackedPoller) SetRoster(roster []Account) { p.roster = roster }

// Poll visits every tracked account in roster order. A failing account is
// logged and skipped; a rate-limit error stops the run and is returned.
func (p *TrackedPoller) Poll(ctx context.Context, self platform.User) (Result, error) {
	var total Result
	for _, account := range p.roster {
		res, err := p.pollAccount(ctx, self, account)
		total.Add(res)
		if err == nil {
			continue
		}
		if _, ok := platform.AsRateLimit(err); ok {
			return total, err
		}
		core.LoggerFromContext(ctx, p.logger).Warn("tracked account poll failed",
			slog.String("username", account.Username),
			slog.String("error", err.Error()),
		)
	}
	return total, nil
}

func (p *TrackedPoller) pollAccount(ctx context.Context, self platform.User, account Account) (res Result, err error) {
	stream := "tracked:" + account.Username
	ctx = core.WithStream(ctx, stream)
	ctx, span := otel.Tracer("persona-bot/poller").Start(ctx, "poller.tracked")
	span.SetAttributes(attribute.String("tracked.username", account.Username))
	defer func() {
		span.SetAttributes(
			attribute.Int("poller.fetched", res.Fetched),
			attribute.Int("poller.replied", res.Replied),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := core.LoggerFromContext(ctx, p.logger).With(
		slog.String("stream", stream),
		slog.String("user_id", account.ID),
	)
	ctx = core.WithLogger(ctx, logger)

	since, ok := p.store.TrackedSinceID(account.ID)
	if !ok {
		return p.bootstrap(ctx, logger, account)
	}

	logger.Info("checking tracked account", slog.String("since_id", since))
	posts, err := p.client.UserPosts(ctx, account.ID, platform.TimelineQuery{SinceID: since, Limit: trackedPageSize})
	if err != nil {
		return res, fmt.Errorf("fetch posts for @%s: %w", account.Username, err)
	}
	ordered := platform.OldestFirst(posts, since)
	if len(ordered) == 0 {
		logger.Info("no new posts")
		return res, nil
	}
	for i := range ordered {
		if ordered[i].AuthorID == "" {
			ordered[i].AuthorID = account.ID
		}
		if ordered[i].AuthorUsername == "" {
			ordered[i].AuthorUsername = account.Username
		}
	}

	return p.replier.processBatch(ctx, ordered, self.ID, persona.ContextTracked, func(ctx context.Context, id string) {
		_, _ = p.store.AdvanceTracked(ctx, account.ID, id)
	})
}

// bootstrap stores the account's newest post id without replying. The account
// is skipped for the rest of the cycle either way.
func (p *TrackedPoller) bootstrap(ctx context.Context, logger *slog.Logger, account Account) (Result, error) {
	posts, err := p.client.UserPosts(ctx, account.ID, platform.TimelineQuery{Limit: trackedBootstrapSize})
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap @%s: %w", account.Username, err)
	}
	newest, ok := platform.Newest(posts)
	if !ok {
		logger.Info("bootstrap: no existing posts")
		return Result{}, nil
	}
	_, _ = p.store.AdvanceTracked(ctx, account.ID, newest.ID)
	logger.Info("bootstrap: watermark set, ignoring older posts", slog.String("since_id", newest.ID))
	return Result{Bootstrapped: 1}, nil
}
