package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bakkerme/persona-bot/internal/config"
	"github.com/bakkerme/persona-bot/internal/ledger"
	"github.com/bakkerme/persona-bot/internal/llm"
	llmmock "github.com/bakkerme/persona-bot/internal/llm/mock"
	"github.com/bakkerme/persona-bot/internal/platform"
	platformmock "github.com/bakkerme/persona-bot/internal/platform/mock"
	"github.com/bakkerme/persona-bot/internal/state"
)

func testEnv(t *testing.T) config.EnvConfig {
	t.Helper()
	dir := t.TempDir()
	return config.EnvConfig{
		Poll: config.PollEnvConfig{
			Interval:            20 * time.Second,
			MentionsMinDelay:    0,
			TrackedAccounts:     []string{"alice"},
			MaxReplyAttempts:    3,
			BackoffMinWait:      time.Minute,
			BackoffFallbackWait: 5 * time.Minute,
		},
		State: config.StateEnvConfig{
			Backend: "file",
			File:    filepath.Join(dir, "state.json"),
		},
		Ledger: config.LedgerEnvConfig{TTL: time.Hour},
	}
}

func TestBuildAndRunOnce(t *testing.T) {
	env := testEnv(t)
	client := &platformmock.Client{
		Self:  platform.User{ID: "1", Username: "agentdoge"},
		Users: map[string]platform.User{"7": {ID: "7", Username: "alice"}},
	}
	client.AddPost("7", platform.Post{ID: "100", AuthorID: "7", Text: "gm"})
	llmClient := &llmmock.Client{Responses: []llm.ChatResponse{{Content: "such reply"}}}

	f := NewFromEnvConfig(nil, env)
	f.Platform = client
	f.LLMClient = llmClient

	bot, err := f.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer bot.Close()

	if bot.Status != nil {
		t.Fatal("status server should be disabled without STATUS_ADDR")
	}
	if got := bot.Persona.Name(); got != "Agent Doge" {
		t.Fatalf("persona name = %q", got)
	}

	if _, err := bot.Scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if id, _ := bot.Store.TrackedSinceID("7"); id != "100" {
		t.Fatalf("tracked watermark = %q, want 100", id)
	}
	if len(client.Replies) != 0 {
		t.Fatalf("bootstrap must not reply, got %d replies", len(client.Replies))
	}

	backend, err := state.NewFileBackend(env.State.File)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	persisted, err := backend.Load(context.Background())
	if err != nil {
		t.Fatalf("load state file: %v", err)
	}
	if got := persisted.TrackedSinceIDs["7"]; got != "100" {
		t.Fatalf("persisted tracked watermark = %q, want 100", got)
	}
}

func TestBuildWithPersonaFileAndStatus(t *testing.T) {
	env := testEnv(t)
	path := filepath.Join(t.TempDir(), "persona.yaml")
	doc := "name: Captain Doge\nmax_tokens: 40\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	env.PersonaFile = path
	env.Status.Addr = "127.0.0.1:0"

	f := NewFromEnvConfig(nil, env)
	f.Platform = &platformmock.Client{}
	f.LLMClient = &llmmock.Client{}

	bot, err := f.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer bot.Close()

	if got := bot.Persona.Name(); got != "Captain Doge" {
		t.Fatalf("persona name = %q", got)
	}
	if bot.Status == nil {
		t.Fatal("expected status server")
	}
}

func TestBuildRejectsBadSkipRule(t *testing.T) {
	env := testEnv(t)
	env.Poll.SkipRule = "text.length <"

	f := NewFromEnvConfig(nil, env)
	f.Platform = &platformmock.Client{}
	f.LLMClient = &llmmock.Client{}

	if _, err := f.Build(context.Background()); err == nil {
		t.Fatal("expected skip rule compile error")
	}
}

func TestBuildRequiresXToken(t *testing.T) {
	env := testEnv(t)
	f := NewFromEnvConfig(nil, env)
	f.LLMClient = &llmmock.Client{}

	if _, err := f.Build(context.Background()); err == nil {
		t.Fatal("expected error without X credentials")
	}
}

func TestNewStateBackend(t *testing.T) {
	dir := t.TempDir()

	backend, err := NewStateBackend(context.Background(), config.StateEnvConfig{Backend: "file", File: filepath.Join(dir, "s.json")})
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if _, ok := backend.(*state.FileBackend); !ok {
		t.Fatalf("got %T", backend)
	}

	backend, err = NewStateBackend(context.Background(), config.StateEnvConfig{Backend: "badger", BadgerPath: filepath.Join(dir, "badger")})
	if err != nil {
		t.Fatalf("badger backend: %v", err)
	}
	if _, ok := backend.(*state.BadgerBackend); !ok {
		t.Fatalf("got %T", backend)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close badger: %v", err)
	}

	if _, err := NewStateBackend(context.Background(), config.StateEnvConfig{Backend: "etcd"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestNewLedger(t *testing.T) {
	l, err := NewLedger(config.LedgerEnvConfig{})
	if err != nil {
		t.Fatalf("memory ledger: %v", err)
	}
	if _, ok := l.(*ledger.MemoryLedger); !ok {
		t.Fatalf("got %T", l)
	}

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	l, err = NewLedger(config.LedgerEnvConfig{DSN: dsn, TTL: time.Hour})
	if err != nil {
		t.Fatalf("sqlite ledger: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*ledger.SQLiteLedger); !ok {
		t.Fatalf("got %T", l)
	}
	if err := l.Record(context.Background(), "42", "reply-1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	replied, err := l.Replied(context.Background(), "42")
	if err != nil || !replied {
		t.Fatalf("Replied = %v, %v", replied, err)
	}
}

func TestBuildKeepsRepliesAcrossRestart(t *testing.T) {
	env := testEnv(t)
	env.Ledger.DSN = filepath.Join(filepath.Dir(env.State.File), "data", "replies.db")
	env.Poll.TrackedAccounts = nil

	client := &platformmock.Client{
		Self:  platform.User{ID: "1", Username: "agentdoge"},
		Users: map[string]platform.User{"7": {ID: "7", Username: "alice"}},
	}
	client.AddMention(platform.Post{ID: "10", AuthorID: "7", AuthorUsername: "alice", Text: "history"})

	var (
		mu     sync.Mutex
		failed bool
	)
	llmClient := &llmmock.Client{Func: func(req llm.ChatRequest) (llm.ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		prompt := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(prompt, "flaky question") && !failed {
			failed = true
			return llm.ChatResponse{}, errors.New("model timeout")
		}
		return llm.ChatResponse{Content: "much reply"}, nil
	}}

	build := func() *Bot {
		f := NewFromEnvConfig(nil, env)
		f.Platform = client
		f.LLMClient = llmClient
		bot, err := f.Build(context.Background())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return bot
	}

	first := build()
	if _, err := first.Scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("bootstrap cycle: %v", err)
	}
	client.AddMention(
		platform.Post{ID: "11", AuthorID: "7", AuthorUsername: "alice", Text: "flaky question"},
		platform.Post{ID: "12", AuthorID: "7", AuthorUsername: "alice", Text: "easy question"},
	)
	if _, err := first.Scheduler.Cycle(context.Background()); err != nil {
		t.Fatalf("stalled cycle: %v", err)
	}
	if got := first.Store.MentionsSinceID(); got != "10" {
		t.Fatalf("watermark after stall = %q, want 10", got)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := build()
	defer second.Close()
	if _, err := second.Scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle after restart: %v", err)
	}

	got := client.RepliedTo()
	want := []string{"12", "11"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("replied to %v, want %v", got, want)
	}
	if id := second.Store.MentionsSinceID(); id != "12" {
		t.Fatalf("watermark after restart = %q, want 12", id)
	}
}
