// Package poller fetches new posts per stream and answers them in order.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/filter"
	"github.com/bakkerme/persona-bot/internal/ledger"
	"github.com/bakkerme/persona-bot/internal/persona"
	"github.com/bakkerme/persona-bot/internal/platform"
)

// PlaceholderAuthor is used when the author's handle cannot be resolved.
const PlaceholderAuthor = "user"

type ReplyGenerator interface {
	Generate(ctx context.Context, req persona.Request) (string, error)
}

type ReplierConfig struct {
	// MaxAttempts is how many failed reply attempts a post gets before it is passed over.
	MaxAttempts int
	SkipRule    *filter.Rule
}

// Replier answers one post at a time and decides its Outcome. It is shared by
// both pollers so failure counts survive across cycles.
type Replier struct {
	client      platform.Client
	generator   ReplyGenerator
	ledger      ledger.Ledger
	rule        *filter.Rule
	maxAttempts int
	logger      *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewReplier(client platform.Client, generator ReplyGenerator, l ledger.Ledger, cfg ReplierConfig, logger *slog.Logger) *Replier {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Replier{
		client:      client,
		generator:   generator,
		ledger:      l,
		rule:        cfg.SkipRule,
		maxAttempts: maxAttempts,
		logger:      logger,
		attempts:    make(map[string]int),
	}
}

// Handle processes a single post. The only error it returns is a platform
// rate-limit error, which must abort the batch.
func (r *Replier) Handle(ctx context.Context, post platform.Post, selfID string, replyContext persona.Context) (Outcome, error) {
	logger := core.LoggerFromContext(ctx, r.logger).With(slog.String("tweet_id", post.ID))

	if selfID != "" && post.AuthorID == selfID {
		logger.Debug("skipping own post")
		return OutcomeSkippedSelf, nil
	}
	if r.exhausted(post.ID) {
		return OutcomeGaveUp, nil
	}

	replied, err := r.ledger.Replied(ctx, post.ID)
	if err != nil {
		return r.fail(logger, post.ID, fmt.Errorf("check reply ledger: %w", err)), nil
	}
	if replied {
		logger.Info("already replied, skipping")
		return OutcomeAlreadyReplied, nil
	}

	author, err := r.authorHandle(ctx, post)
	if err != nil {
		return OutcomeFailed, err
	}
	logger = logger.With(slog.String("username", author))
	if post.AuthorUsername == "" && author != PlaceholderAuthor {
		post.AuthorUsername = author
	}

	skip, err := r.rule.Skip(post, replyContext)
	if err != nil {
		logger.Warn("skip rule failed, replying anyway", slog.String("error", err.Error()))
	}
	if skip {
		logger.Info("skip rule matched", slog.String("rule", r.rule.String()))
		return OutcomeSkippedRule, nil
	}

	logger.Info("new post", slog.String("context", replyContext.String()), slog.String("text", post.Text))

	text, err := r.generator.Generate(ctx, persona.Request{Text: post.Text, AuthorUsername: author, Context: replyContext})
	if err != nil {
		return r.fail(logger, post.ID, err), nil
	}

	reply, err := r.client.Reply(ctx, post.ID, text)
	if err != nil {
		if _, ok := platform.AsRateLimit(err); ok {
			return OutcomeFailed, err
		}
		return r.fail(logger, post.ID, fmt.Errorf("post reply: %w", err)), nil
	}
	logger.Info("replied", slog.String("reply_id", reply.ID), slog.String("reply", text))

	if err := r.ledger.Record(ctx, post.ID, reply.ID); err != nil {
		logger.Warn("failed to record reply in ledger", slog.String("error", err.Error()))
	}
	r.forget(post.ID)
	return OutcomeReplied, nil
}

// authorHandle prefers the handle the timeline already carried and falls back
// to a lookup by id. Lookup failures other than rate limits yield the placeholder.
func (r *Replier) authorHandle(ctx context.Context, post platform.Post) (string, error) {
	if post.AuthorUsername != "" {
		return post.AuthorUsername, nil
	}
	if post.AuthorID == "" {
		return PlaceholderAuthor, nil
	}
	user, err := r.client.LookupUser(ctx, post.AuthorID)
	if err != nil {
		if _, ok := platform.AsRateLimit(err); ok {
			return "", err
		}
		core.LoggerFromContext(ctx, r.logger).Warn("author lookup failed, using placeholder",
			slog.String("author_id", post.AuthorID),
			slog.String("error", err.Error()),
		)
		return PlaceholderAuthor, nil
	}
	if user.Username == "" {
		return PlaceholderAuthor, nil
	}
	return user.Username, nil
}

func (r *Replier) fail(logger *slog.Logger, postID string, err error) Outcome {
	r.mu.Lock()
	r.attempts[postID]++
	n := r.attempts[postID]
	r.mu.Unlock()

	if n >= r.maxAttempts {
		logger.Error("giving up on post", slog.Int("attempts", n), slog.String("error", err.Error()))
		return OutcomeGaveUp
	}
	logger.Warn("reply failed, will retry next cycle", slog.Int("attempts", n), slog.String("error", err.Error()))
	return OutcomeFailed
}

func (r *Replier) exhausted(postID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[postID] >= r.maxAttempts
}

func (r *Replier) forget(postID string) {
	r.mu.Lock()
	delete(r.attempts, postID)
	r.mu.Unlock()
}

// Attempts returns the number of failed attempts recorded for postID.
func (r *Replier) Attempts(postID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[postID]
}

// processBatch handles posts oldest first. advance is called for every post in
// the contiguous handled prefix; once a post fails, later posts are still
// answered but the watermark stays put so the failed one is fetched again.
func (r *Replier) processBatch(
	ctx context.Context,
	posts []platform.Post,
	selfID string,
	replyContext persona.Context,
	advance func(ctx context.Context, id string),
) (Result, error) {
	res := Result{Fetched: len(posts)}
	stalled := false
	for _, post := range posts {
		outcome, err := r.Handle(ctx, post, selfID, replyContext)
		if err != nil {
			return res, err
		}
		res.record(outcome)
		if !outcome.Handled() {
			stalled = true
			continue
		}
		if !stalled {
			advance(ctx, post.ID)
			r.forget(post.ID)
		}
	}
	return res, nil
}
