package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate reports settings the bot cannot start with.
func (c EnvConfig) Validate() error {
	var problems []string

	if c.Poll.Interval <= 0 {
		problems = append(problems, "POLL_INTERVAL_SECONDS must be > 0")
	}
	if c.Poll.MentionsMinDelay < 0 {
		problems = append(problems, "MENTIONS_MIN_DELAY_SECONDS must be >= 0")
	}
	if c.Poll.Schedule != "" {
		if _, err := cron.ParseStandard(c.Poll.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("POLL_SCHEDULE is invalid: %v", err))
		}
	}
	if c.Poll.MaxReplyAttempts < 1 {
		problems = append(problems, "MAX_REPLY_ATTEMPTS must be >= 1")
	}
	if c.Poll.BackoffMinWait < 0 || c.Poll.BackoffFallbackWait < 0 {
		problems = append(problems, "backoff waits must be >= 0")
	}

	switch c.State.Backend {
	case "file":
		if c.State.File == "" {
			problems = append(problems, "STATE_FILE is required for the file backend")
		}
	case "badger":
		if c.State.BadgerPath == "" {
			problems = append(problems, "STATE_BADGER_PATH is required for the badger backend")
		}
	case "redis":
		if c.State.RedisURL == "" {
			problems = append(problems, "STATE_REDIS_URL is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("STATE_BACKEND %q is not one of file, badger, redis", c.State.Backend))
	}

	if c.X.BearerToken == "" && c.X.UserAccessToken == "" {
		problems = append(problems, "X_BEARER_TOKEN or X_USER_ACCESS_TOKEN is required")
	}
	if c.OpenAI.Temperature != nil && (*c.OpenAI.Temperature < 0 || *c.OpenAI.Temperature > 2) {
		problems = append(problems, "OPENAI_TEMPERATURE must be between 0 and 2")
	}
	if c.OTel.Enabled {
		switch c.OTel.Protocol {
		case "grpc", "http/protobuf", "http":
		default:
			problems = append(problems, fmt.Sprintf("OTEL_EXPORTER_OTLP_PROTOCOL %q is not supported", c.OTel.Protocol))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
