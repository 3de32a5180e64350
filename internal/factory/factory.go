// Package factory assembles the bot from an EnvConfig.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bakkerme/persona-bot/internal/config"
	"github.com/bakkerme/persona-bot/internal/filter"
	"github.com/bakkerme/persona-bot/internal/ledger"
	"github.com/bakkerme/persona-bot/internal/llm"
	llmopenai "github.com/bakkerme/persona-bot/internal/llm/openai"
	"github.com/bakkerme/persona-bot/internal/persona"
	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/platform/x"
	"github.com/bakkerme/persona-bot/internal/poller"
	"github.com/bakkerme/persona-bot/internal/ratelimit"
	"github.com/bakkerme/persona-bot/internal/scheduler"
	"github.com/bakkerme/persona-bot/internal/state"
	"github.com/bakkerme/persona-bot/internal/statusapi"
)

const memoryLedgerDSN = "memory"

type Factory struct {
	Logger *slog.Logger
	Env    config.EnvConfig
	// Platform and LLMClient are built from Env when nil.
	Platform  platform.Client
	LLMClient llm.Client
}

func NewFromEnvConfig(logger *slog.Logger, env config.EnvConfig) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{Logger: logger, Env: env}
}

// Bot is the assembled process. Status is nil when STATUS_ADDR is empty.
type Bot struct {
	Persona   *persona.Generator
	Store     *state.Store
	Ledger    ledger.Ledger
	Scheduler *scheduler.Scheduler
	Status    *statusapi.Server

	closers []func() error
}

// Close releases stores in reverse build order.
func (b *Bot) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (f *Factory) Build(ctx context.Context) (_ *Bot, err error) {
	bot := &Bot{}
	defer func() {
		if err != nil {
			_ = bot.Close()
		}
	}()

	client, err := f.platformClient()
	if err != nil {
		return nil, err
	}

	bot.Persona, err = f.NewPersona()
	if err != nil {
		return nil, err
	}

	backend, err := NewStateBackend(ctx, f.Env.State)
	if err != nil {
		return nil, err
	}
	if fb, ok := backend.(*state.FileBackend); ok {
		f.Logger.Info("using file state backend", slog.String("path", fb.Path()))
	}
	bot.Store = state.Open(ctx, backend, f.Logger)
	bot.closers = append(bot.closers, bot.Store.Close)

	bot.Ledger, err = NewLedger(f.Env.Ledger)
	if err != nil {
		return nil, err
	}
	bot.closers = append(bot.closers, bot.Ledger.Close)
	if _, ok := bot.Ledger.(*ledger.MemoryLedger); ok {
		f.Logger.Warn("reply ledger is in memory; replies past a stalled watermark may repeat after a restart")
	}

	skipRule, err := filter.Compile(f.Env.Poll.SkipRule)
	if err != nil {
		return nil, err
	}

	replier := poller.NewReplier(client, bot.Persona, bot.Ledger, poller.ReplierConfig{
		MaxAttempts: f.Env.Poll.MaxReplyAttempts,
		SkipRule:    skipRule,
	}, f.Logger)
	mentions := poller.NewMentionPoller(client, bot.Store, replier, ratelimit.NewThrottle(f.Env.Poll.MentionsMinDelay), f.Logger)
	tracked := poller.NewTrackedPoller(client, bot.Store, replier, nil, f.Logger)

	bot.Scheduler, err = scheduler.New(scheduler.Deps{
		Client:     client,
		Mentions:   mentions,
		Tracked:    tracked,
		Watermarks: bot.Store,
	}, scheduler.Config{
		Interval: f.Env.Poll.Interval,
		Schedule: f.Env.Poll.Schedule,
		Backoff: ratelimit.Backoff{
			MinWait:      f.Env.Poll.BackoffMinWait,
			FallbackWait: f.Env.Poll.BackoffFallbackWait,
		},
		TrackedUsernames: f.Env.Poll.TrackedAccounts,
	}, f.Logger)
	if err != nil {
		return nil, err
	}

	if f.Env.Status.Addr != "" {
		bot.Status = statusapi.NewServer(bot.Scheduler, bot.Persona.Name(), f.Logger)
	}
	return bot, nil
}

func (f *Factory) platformClient() (platform.Client, error) {
	if f.Platform != nil {
		return f.Platform, nil
	}
	client, err := x.NewClient(x.Config{
		BaseURL:         f.Env.X.BaseURL,
		BearerToken:     f.Env.X.BearerToken,
		UserAccessToken: f.Env.X.UserAccessToken,
		Timeout:         f.Env.X.HTTPTimeout,
		UserAgent:       f.Env.X.UserAgent,
	}, f.Logger)
	if err != nil {
		return nil, fmt.Errorf("build x client: %w", err)
	}
	return client, nil
}

// NewPersona merges PERSONA_FILE (when set) with the environment.
func (f *Factory) NewPersona() (*persona.Generator, error) {
	var doc *config.PersonaDocument
	if f.Env.PersonaFile != "" {
		var err error
		doc, err = config.LoadPersonaFile(f.Env.PersonaFile)
		if err != nil {
			return nil, err
		}
	}
	client := f.LLMClient
	if client == nil {
		client = llmopenai.NewClient(f.Env.OpenAI)
	}
	return persona.NewGenerator(client, config.PersonaOptions(f.Env, doc), f.Logger)
}

func NewStateBackend(ctx context.Context, cfg config.StateEnvConfig) (state.Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return state.NewFileBackend(cfg.File)
	case "badger":
		return state.NewBadgerBackend(cfg.BadgerPath)
	case "redis":
		return state.NewRedisBackend(ctx, cfg.RedisURL, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.Backend)
	}
}

// NewLedger opens the sqlite ledger at cfg.DSN. An empty DSN or "memory" gives
// an in-memory ledger, which forgets replies made past a stalled watermark on restart.
func NewLedger(cfg config.LedgerEnvConfig) (ledger.Ledger, error) {
	if cfg.DSN == "" || cfg.DSN == memoryLedgerDSN {
		return ledger.NewMemoryLedger(cfg.TTL), nil
	}
	l, err := ledger.NewSQLiteLedger(cfg.DSN, "", cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("open reply ledger: %w", err)
	}
	return l, nil
}
