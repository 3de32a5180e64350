package scheduler

import (
	"time"

	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/poller"
	"github.com/bakkerme/persona-bot/internal/state"
)

type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseBackoff  Phase = "backoff"
	PhaseStopped  Phase = "stopped"
)

// Status is a point-in-time snapshot of the scheduler for the status API.
type Status struct {
	Phase          Phase            `json:"phase"`
	Self           platform.User    `json:"self"`
	Roster         []poller.Account `json:"roster"`
	Cycles         int              `json:"cycles"`
	LastCycleID    string           `json:"last_cycle_id,omitempty"`
	LastCycleStart time.Time        `json:"last_cycle_start,omitempty"`
	LastCycleEnd   time.Time        `json:"last_cycle_end,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	BackoffUntil   time.Time        `json:"backoff_until,omitempty"`
	NextRunAt      time.Time        `json:"next_run_at,omitempty"`
	Totals         poller.Result    `json:"totals"`
	Watermarks     state.Watermarks `json:"watermarks"`
}
