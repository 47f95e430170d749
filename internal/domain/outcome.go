package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunState is a terminal state of one orchestrator run.
type RunState string

const (
	RunSuccess          RunState = "success"
	RunFailed           RunState = "failed"
	RunSkippedNoTopic   RunState = "skipped_no_topic"
	RunSkippedDuplicate RunState = "skipped_duplicate"
)

// Skipped reports whether the state is an expected no-op.
func (s RunState) Skipped() bool {
	return s == RunSkippedNoTopic || s == RunSkippedDuplicate
}

// RunOutcome is the ledger row written when a run reaches a terminal state.
type RunOutcome struct {
	ID         uuid.UUID
	SlotID     string
	Site       string
	Day        DayKey
	Source     TopicSource
	Category   string
	Topic      string
	Title      string
	State      RunState
	Attempts   int
	URL        string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SiteReport aggregates one site's outcomes for a day.
type SiteReport struct {
	Site    string
	Total   int
	Success int
	Failed  int
	Skipped int
	URLs    []string
}

// DailyReport aggregates all outcomes for a day.
type DailyReport struct {
	Day   DayKey
	Sites []SiteReport
}

// Totals sums the per-site counters.
func (r DailyReport) Totals() SiteReport {
	var total SiteReport
	for _, s := range r.Sites {
		total.Total += s.Total
		total.Success += s.Success
		total.Failed += s.Failed
		total.Skipped += s.Skipped
	}
	return total
}
