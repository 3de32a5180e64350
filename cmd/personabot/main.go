package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/bakkerme/persona-bot/internal/config"
	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/factory"
	"github.com/bakkerme/persona-bot/internal/observability/otelx"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	env := config.LoadEnv()
	runOnce := flag.Bool("run-once", env.RunOnce, "bootstrap, run a single cycle and exit")
	personaFile := flag.String("persona", env.PersonaFile, "path to a persona YAML document")
	flag.Parse()
	env.RunOnce = *runOnce
	env.PersonaFile = *personaFile

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: core.ParseLevel(env.LogLevel)}))
	slog.SetDefault(logger)

	if err := env.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	bot, err := factory.NewFromEnvConfig(logger, env).Build(ctx)
	if err != nil {
		log.Fatalf("failed to build bot: %v", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			logger.Warn("failed to close stores", slog.String("error", err.Error()))
		}
	}()

	logger.Info("persona bot starting",
		slog.String("persona", bot.Persona.Name()),
		slog.Bool("run_once", env.RunOnce),
		slog.Any("tracked_accounts", env.Poll.TrackedAccounts),
	)

	if env.RunOnce {
		res, err := bot.Scheduler.RunOnce(ctx)
		if err != nil {
			logger.Error("run failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("run complete", slog.Int("replied", res.Replied), slog.Int("bootstrapped", res.Bootstrapped))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Scheduler.Run(gctx)
	})
	if bot.Status != nil {
		g.Go(func() error {
			return bot.Status.Start(env.Status.Addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return bot.Status.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("persona bot stopped with error", slog.String("error", err.Error()))
	}
}
