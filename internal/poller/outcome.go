package poller

// Outcome is what happened to a single fetched post.
type Outcome int

const (
	OutcomeReplied Outcome = iota + 1
	OutcomeSkippedSelf
	OutcomeSkippedRule
	OutcomeAlreadyReplied
	OutcomeFailed
	// OutcomeGaveUp means the post failed MaxAttempts times and is now passed over.
	OutcomeGaveUp
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeSkippedSelf:
		return "skipped_self"
	case OutcomeSkippedRule:
		return "skipped_rule"
	case OutcomeAlreadyReplied:
		return "already_replied"
	case OutcomeFailed:
		return "failed"
	case OutcomeGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Handled reports whether the watermark may move past a post with this outcome.
func (o Outcome) Handled() bool {
	switch o {
	case OutcomeReplied, OutcomeSkippedSelf, OutcomeSkippedRule, OutcomeAlreadyReplied, OutcomeGaveUp:
		return true
	default:
		return false
	}
}

// Result summarizes one poller run.
type Result struct {
	Fetched      int  `json:"fetched"`
	Replied      int  `json:"replied"`
	Skipped      int  `json:"skipped"`
	Failed       int  `json:"failed"`
	GaveUp       int  `json:"gave_up"`
	Bootstrapped int  `json:"bootstrapped"`
	Throttled    bool `json:"throttled"`
}

func (r *Result) record(o Outcome) {
	switch o {
	case OutcomeReplied:
		r.Replied++
	case OutcomeSkippedSelf, OutcomeSkippedRule, OutcomeAlreadyReplied:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeGaveUp:
		r.GaveUp++
	}
}

func (r *Result) Add(other Result) {
	r.Fetched += other.Fetched
	r.Replied += other.Replied
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.GaveUp += other.GaveUp
	r.Bootstrapped += other.Bootstrapped
	r.Throttled = r.Throttled || other.Throttled
}
