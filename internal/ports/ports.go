package ports

import (
	"context"
	"time"

	"AutoPublisher/internal/domain"
)

// CalendarStore persists the date-keyed publishing calendar.
type CalendarStore interface {
	UpsertRange(ctx context.Context, period domain.Period, entries []domain.ScheduleEntry) error
	RegeneratePeriod(ctx context.Context, period domain.Period, entries []domain.ScheduleEntry) error
	Lookup(ctx context.Context, day domain.DayKey, site string) ([]domain.ScheduleEntry, error)
	// MarkPublished moves a non-published entry to published; false when nothing changed.
	MarkPublished(ctx context.Context, key domain.EntryKey, url string, contentID int64) (bool, error)
	CountInPeriod(ctx context.Context, period domain.Period) (int, error)
}

// TopicPool stores fallback topics consumed when the calendar has a gap.
type TopicPool interface {
	NextUnused(ctx context.Context, site string) (*domain.TopicPoolEntry, error)
	// MarkUsed flips used=false to true; false means another resolver won the race.
	MarkUsed(ctx context.Context, id int64, at time.Time) (bool, error)
	AddTopics(ctx context.Context, topics []domain.TopicCandidate) (int, error)
}

// ContentHistory is the append-only publish history.
type ContentHistory interface {
	ExistsTitleHash(ctx context.Context, site, titleHash string) (bool, error)
	RecentTitles(ctx context.Context, site string, limit int) ([]string, error)
	// RecordPublished appends the record and, when entry is set, marks that
	// calendar entry published in the same transaction. marked is false when
	// entry is nil or was already published by another run.
	RecordPublished(ctx context.Context, record domain.ContentRecord, entry *domain.EntryKey) (id int64, marked bool, err error)
}

// OutcomeLedger stores terminal run outcomes.
type OutcomeLedger interface {
	SaveOutcome(ctx context.Context, outcome domain.RunOutcome) error
	OutcomesForDay(ctx context.Context, day domain.DayKey) ([]domain.RunOutcome, error)
}

// WatermarkStore remembers the last scheduled time handled per dispatcher slot.
type WatermarkStore interface {
	LoadWatermarks(ctx context.Context) (map[string]time.Time, error)
	SaveWatermark(ctx context.Context, slotID string, scheduledAt time.Time) error
}

// GenerationRequest carries everything the content generator needs.
type GenerationRequest struct {
	Topic        string
	Category     string
	Keywords     []string
	TargetLength string
	Site         domain.SiteProfile
	AvoidTitles  []string
}

// ContentGenerator writes the post text.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (domain.GeneratedContent, error)
}

// ImageGenerator renders illustrations for a post.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, title, body string, count int) ([]domain.Image, error)
}

// Publisher pushes a post to a blog platform.
type Publisher interface {
	Publish(ctx context.Context, content domain.GeneratedContent, images []domain.Image, draft bool) (domain.PublishResult, error)
}

// Notifier streams reports to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// TopicSource produces fresh pool candidates for the weekly refresh.
type TopicSource interface {
	FetchTopics(ctx context.Context, day time.Time) ([]domain.TopicCandidate, error)
}

// Job is a unit of recurring work; scheduledAt is the intended fire time.
type Job func(ctx context.Context, scheduledAt time.Time)

// Trigger describes one recurring registration.
type Trigger struct {
	ID   string
	Spec string
	// Slot triggers get the single-instance cap, misfire grace and watermarks.
	Slot bool
	Job  Job
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Register(trigger Trigger) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
