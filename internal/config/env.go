package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bakkerme/persona-bot/internal/platform"
)

type EnvConfig struct {
	RunOnce     bool
	LogLevel    string
	PersonaFile string
	Persona     PersonaEnvConfig
	Poll        PollEnvConfig
	State       StateEnvConfig
	Ledger      LedgerEnvConfig
	Status      StatusEnvConfig
	X           XEnvConfig
	OpenAI      OpenAIEnvConfig
	OTel        OTelEnvConfig
}

type PersonaEnvConfig struct {
	Name          string
	StripMarkdown bool
}

type PollEnvConfig struct {
	Interval         time.Duration
	MentionsMinDelay time.Duration
	// Schedule is an optional cron expression that overrides Interval.
	Schedule            string
	TrackedAccounts     []string
	MaxReplyAttempts    int
	SkipRule            string
	BackoffMinWait      time.Duration
	BackoffFallbackWait time.Duration
}

type StateEnvConfig struct {
	Backend    string // "file", "badger" or "redis"
	File       string
	BadgerPath string
	RedisURL   string
	RedisKey   string
}

type LedgerEnvConfig struct {
	// DSN is a sqlite path; "memory" (or empty) keeps the ledger in process only.
	DSN string
	TTL time.Duration
}

type StatusEnvConfig struct {
	Addr string
}

type XEnvConfig struct {
	BaseURL         string
	BearerToken     string
	UserAccessToken string
	HTTPTimeout     time.Duration
	UserAgent       string
}

type OpenAIEnvConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   int
	OTel        OpenAIOTelEnvConfig
}

type OpenAIOTelEnvConfig struct {
	Enabled       bool
	CaptureBodies bool
	MaxBodyBytes  int
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return EnvConfig{
		RunOnce:     envBool("RUN_ONCE", false),
		LogLevel:    envString("LOG_LEVEL", "info"),
		PersonaFile: envString("PERSONA_FILE", ""),
		Persona: PersonaEnvConfig{
			Name:          envString("BOT_PERSONA_NAME", ""),
			StripMarkdown: envBool("PERSONA_STRIP_MARKDOWN", false),
		},
		Poll: PollEnvConfig{
			Interval:            envDuration("POLL_INTERVAL_SECONDS", 20*time.Second),
			MentionsMinDelay:    envDuration("MENTIONS_MIN_DELAY_SECONDS", 900*time.Second),
			Schedule:            envString("POLL_SCHEDULE", ""),
			TrackedAccounts:     parseUsernames(envString("TRACKED_ACCOUNTS", "")),
			MaxReplyAttempts:    envInt("MAX_REPLY_ATTEMPTS", 3),
			SkipRule:            envString("REPLY_SKIP_RULE", ""),
			BackoffMinWait:      envDuration("BACKOFF_MIN_WAIT", 60*time.Second),
			BackoffFallbackWait: envDuration("BACKOFF_FALLBACK_WAIT", 300*time.Second),
		},
		State: StateEnvConfig{
			Backend:    strings.ToLower(envString("STATE_BACKEND", "file")),
			File:       envString("STATE_FILE", "state.json"),
			BadgerPath: envString("STATE_BADGER_PATH", "data/state"),
			RedisURL:   envString("STATE_REDIS_URL", ""),
			RedisKey:   envString("STATE_REDIS_KEY", "persona-bot:watermarks"),
		},
		Ledger: LedgerEnvConfig{
			DSN: envString("REPLY_LEDGER_DSN", "data/replies.db"),
			TTL: envDuration("REPLY_LEDGER_TTL", 30*24*time.Hour),
		},
		Status: StatusEnvConfig{
			Addr: envString("STATUS_ADDR", ""),
		},
		X: XEnvConfig{
			BaseURL:         envString("X_API_BASE_URL", ""),
			BearerToken:     envString("X_BEARER_TOKEN", ""),
			UserAccessToken: envString("X_USER_ACCESS_TOKEN", ""),
			HTTPTimeout:     envDuration("X_HTTP_TIMEOUT", 15*time.Second),
			UserAgent:       envString("X_USER_AGENT", "persona-bot/0.1"),
		},
		OpenAI: OpenAIEnvConfig{
			APIKey:      envString("OPENAI_API_KEY", ""),
			BaseURL:     envString("OPENAI_BASE_URL", ""),
			Model:       envString("OPENAI_MODEL", ""),
			Temperature: envFloatPtr("OPENAI_TEMPERATURE"),
			MaxTokens:   envInt("OPENAI_MAX_TOKENS", 0),
			OTel: OpenAIOTelEnvConfig{
				Enabled:       envBool("OTEL_OPENAI_ENABLED", true),
				CaptureBodies: envBool("OTEL_CAPTURE_OPENAI_BODIES", false),
				MaxBodyBytes:  envInt("OTEL_OPENAI_MAX_BODY_BYTES", 64*1024),
			},
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: envString("OTEL_SERVICE_NAME", "persona-bot"),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envFloatPtr(key string) *float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := parseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// parseUsernames splits a comma-separated roster into unique, lowercase
// handles without the leading "@".
func parseUsernames(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		name := platform.NormalizeUsername(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}
