// Package scheduler drives the pollers on a fixed cadence and owns the
// RUNNING/BACKOFF state machine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/poller"
	"github.com/bakkerme/persona-bot/internal/ratelimit"
	"github.com/bakkerme/persona-bot/internal/state"
)

type MentionsPoller interface {
	Poll(ctx context.Context, self platform.User) (poller.Result, error)
}

type TrackedPoller interface {
	Poll(ctx context.Context, self platform.User) (poller.Result, error)
	SetRoster(roster []poller.Account)
}

type WatermarkSource interface {
	Snapshot() state.Watermarks
}

type Deps struct {
	Client     platform.Client
	Mentions   MentionsPoller
	Tracked    TrackedPoller
	Watermarks WatermarkSource
}

type Config struct {
	Interval time.Duration
	// Schedule is a standard cron expression; when set it replaces Interval.
	Schedule         string
	Backoff          ratelimit.Backoff
	TrackedUsernames []string
}

type Scheduler struct {
	client     platform.Client
	mentions   MentionsPoller
	tracked    TrackedPoller
	watermarks WatermarkSource
	cadence    cron.Schedule
	backoff    ratelimit.Backoff
	usernames  []string
	logger     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	self   *platform.User
	mu     sync.RWMutex
	status Status
}

func New(deps Deps, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Client == nil || deps.Mentions == nil || deps.Tracked == nil {
		return nil, fmt.Errorf("scheduler: platform client and both pollers are required")
	}
	cadence, err := buildCadence(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		client:     deps.Client,
		mentions:   deps.Mentions,
		tracked:    deps.Tracked,
		watermarks: deps.Watermarks,
		cadence:    cadence,
		backoff:    cfg.Backoff,
		usernames:  slices.Clone(cfg.TrackedUsernames),
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
		newID:      func() string { return uuid.NewString() },
		status:     Status{Phase: PhaseStarting},
	}, nil
}

func buildCadence(cfg Config) (cron.Schedule, error) {
	if cfg.Schedule != "" {
		schedule, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid poll schedule %q: %w", cfg.Schedule, err)
		}
		return schedule, nil
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: poll interval must be > 0")
	}
	return cron.Every(cfg.Interval), nil
}

// Run loops until ctx is cancelled. No single cycle failure stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Int("tracked_accounts", len(s.usernames)))
	defer s.setPhase(PhaseStopped)

	for ctx.Err() == nil {
		_, err := s.Cycle(ctx)
		wait := s.waitAfter(err)
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce runs a single cycle, including startup and bootstrap.
func (s *Scheduler) RunOnce(ctx context.Context) (poller.Result, error) {
	defer s.setPhase(PhaseStopped)
	return s.Cycle(ctx)
}

// Cycle polls mentions then tracked accounts. It runs to completion even if
// ctx is cancelled midway.
func (s *Scheduler) Cycle(parent context.Context) (total poller.Result, err error) {
	cycleID := s.newID()
	logger := s.logger.With(slog.String("cycle_id", cycleID))
	ctx := core.WithCycleID(core.WithLogger(context.WithoutCancel(parent), logger), cycleID)
	ctx, span := otel.Tracer("persona-bot/scheduler").Start(ctx, "scheduler.cycle")
	span.SetAttributes(attribute.String("cycle.id", cycleID))

	start := s.now()
	s.mu.Lock()
	s.status.Phase = PhaseRunning
	s.status.BackoffUntil = time.Time{}
	s.status.LastCycleID = cycleID
	s.status.LastCycleStart = start
	s.mu.Unlock()

	defer func() {
		s.finishCycle(total, err)
		span.SetAttributes(
			attribute.Int("cycle.replied", total.Replied),
			attribute.Int("cycle.failed", total.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	self, err := s.ensureStarted(ctx, logger)
	if err != nil {
		return total, err
	}

	res, mentionsErr := s.mentions.Poll(ctx, self)
	total.Add(res)
	if mentionsErr != nil {
		if _, ok := platform.AsRateLimit(mentionsErr); ok {
			return total, mentionsErr
		}
		logger.Warn("mentions poll failed", slog.String("error", mentionsErr.Error()))
	}

	res, trackedErr := s.tracked.Poll(ctx, self)
	total.Add(res)
	if trackedErr != nil && !isRateLimit(trackedErr) {
		logger.Warn("tracked poll failed", slog.String("error", trackedErr.Error()))
	}

	logger.Info("cycle complete",
		slog.Int("replied", total.Replied),
		slog.Int("skipped", total.Skipped),
		slog.Int("failed", total.Failed),
		slog.Int("bootstrapped", total.Bootstrapped),
		slog.Duration("elapsed", s.now().Sub(start)),
	)
	return total, errors.Join(mentionsErr, trackedErr)
}

// ensureStarted identifies the bot and resolves the roster once. Failures are
// returned so the next cycle tries again.
func (s *Scheduler) ensureStarted(ctx context.Context, logger *slog.Logger) (platform.User, error) {
	if s.self != nil {
		return *s.self, nil
	}
	me, err := s.client.Me(ctx)
	if err != nil {
		return platform.User{}, fmt.Errorf("identify bot account: %w", err)
	}
	roster, err := poller.ResolveRoster(ctx, s.client, s.usernames, logger)
	if err != nil {
		return platform.User{}, err
	}
	s.tracked.SetRoster(roster)
	s.self = &me

	usernames := make([]string, 0, len(roster))
	for _, account := range roster {
		usernames = append(usernames, account.Username)
	}
	logger.Info("logged in", slog.String("username", me.Username), slog.String("user_id", me.ID), slog.Any("tracking", usernames))

	s.mu.Lock()
	s.status.Self = me
	s.status.Roster = roster
	s.mu.Unlock()
	return me, nil
}

// waitAfter picks the sleep before the next cycle: the backoff wait after a
// rate limit, otherwise the time until the next cadence tick.
func (s *Scheduler) waitAfter(err error) time.Duration {
	now := s.now()
	if rl, ok := platform.AsRateLimit(err); ok {
		wait := s.backoff.Wait(rl, now)
		s.logger.Warn("rate limited, backing off",
			slog.String("endpoint", rl.Endpoint),
			slog.Duration("wait", wait),
			slog.Time("reset", rl.Reset),
		)
		s.mu.Lock()
		s.status.Phase = PhaseBackoff
		s.status.BackoffUntil = now.Add(wait)
		s.status.NextRunAt = now.Add(wait)
		s.mu.Unlock()
		return wait
	}
	if err != nil {
		s.logger.Error("cycle failed, retrying after the normal interval", slog.String("error", err.Error()))
	}
	next := s.cadence.Next(now)
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	s.mu.Lock()
	s.status.NextRunAt = next
	s.mu.Unlock()
	s.logger.Debug("sleeping", slog.Duration("wait", wait))
	return wait
}

func (s *Scheduler) finishCycle(total poller.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles++
	s.status.LastCycleEnd = s.now()
	s.status.Totals.Add(total)
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func (s *Scheduler) setPhase(phase Phase) {
	s.mu.Lock()
	s.status.Phase = phase
	s.mu.Unlock()
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	status := s.status
	status.Roster = slices.Clone(s.status.Roster)
	s.mu.RUnlock()
	if s.watermarks != nil {
		status.Watermarks = s.watermarks.Snapshot()
	}
	return status
}

func isRateLimit(err error) bool {
	_, ok := platform.AsRateLimit(err)
	return ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
