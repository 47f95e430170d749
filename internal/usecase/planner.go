package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// PeriodKind selects weekly or monthly planning.
type PeriodKind string

const (
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// PlanMode selects how a period is written to the calendar.
type PlanMode string

const (
	PlanUpsert     PlanMode = "upsert"
	PlanRegenerate PlanMode = "regenerate"
)

// PlanTopic is one rotating topic in a site's plan list.
type PlanTopic struct {
	Topic        string
	Keywords     []string
	TargetLength string
}

// SitePlan holds the categories a site publishes daily and their topic lists.
// Categories[0] is primary, the optional second one is secondary.
type SitePlan struct {
	Site       string
	Categories []string
	Topics     map[string][]PlanTopic
}

// Planner fills calendar periods from site plans.
type Planner struct {
	calendar   ports.CalendarStore
	duplicates *DuplicateDetector
	plans      []SitePlan
	loc        *time.Location
	logger     *slog.Logger
}

// NewPlanner wires the calendar writer. duplicates may be nil.
func NewPlanner(calendar ports.CalendarStore, duplicates *DuplicateDetector, plans []SitePlan, loc *time.Location, logger *slog.Logger) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		calendar:   calendar,
		duplicates: duplicates,
		plans:      plans,
		loc:        loc,
		logger:     logger.With("component", "planner"),
	}
}

// PeriodFor returns the week (Monday..Sunday) or month containing day.
func PeriodFor(kind PeriodKind, day domain.DayKey) (domain.Period, error) {
	switch kind {
	case PeriodWeek:
		return domain.WeekOf(day), nil
	case PeriodMonth:
		return domain.MonthOf(day), nil
	default:
		return domain.Period{}, fmt.Errorf("unknown period kind %q", kind)
	}
}

// PlanPeriod builds entries for the period containing day and writes them with mode.
func (p *Planner) PlanPeriod(ctx context.Context, kind PeriodKind, day domain.DayKey, mode PlanMode) (domain.Period, int, error) {
	period, err := PeriodFor(kind, day)
	if err != nil {
		return domain.Period{}, 0, err
	}

	entries, err := p.BuildEntries(ctx, period)
	if err != nil {
		return period, 0, err
	}

	switch mode {
	case PlanUpsert:
		err = p.calendar.UpsertRange(ctx, period, entries)
	case PlanRegenerate:
		err = p.calendar.RegeneratePeriod(ctx, period, entries)
	default:
		return period, 0, fmt.Errorf("unknown plan mode %q", mode)
	}
	if err != nil {
		return period, 0, fmt.Errorf("write %s %s: %w", kind, period, err)
	}

	p.logger.Info("period planned", "kind", kind, "period", period.String(), "mode", mode, "entries", len(entries))
	return period, len(entries), nil
}

// EnsureNextMonth regenerates next month when it has no entries yet.
func (p *Planner) EnsureNextMonth(ctx context.Context, now time.Time) (bool, error) {
	today := domain.DayKeyOf(now, p.loc)
	return p.EnsureMonth(ctx, domain.DayKeyFromYMD(today.Year, today.Month+1, 1))
}

// EnsureMonth regenerates the month containing day when it has no entries yet.
func (p *Planner) EnsureMonth(ctx context.Context, day domain.DayKey) (bool, error) {
	period := domain.MonthOf(day)

	count, err := p.calendar.CountInPeriod(ctx, period)
	if err != nil {
		return false, fmt.Errorf("count %s: %w", period, err)
	}
	if count > 0 {
		p.logger.Debug("month already planned", "period", period.String(), "entries", count)
		return false, nil
	}

	if _, _, err := p.PlanPeriod(ctx, PeriodMonth, period.Start, PlanRegenerate); err != nil {
		return false, err
	}
	return true, nil
}

// BuildEntries assigns every site category a rotating topic for each day of the period.
func (p *Planner) BuildEntries(ctx context.Context, period domain.Period) ([]domain.ScheduleEntry, error) {
	days := period.Days()
	dup := map[string]bool{}
	var entries []domain.ScheduleEntry

	for _, plan := range p.plans {
		for catIdx, category := range plan.Categories {
			if catIdx > 1 {
				break
			}
			topics := plan.Topics[category]
			if len(topics) == 0 {
				continue
			}
			for _, day := range days {
				topic, err := p.pickTopic(ctx, plan.Site, topics, rotationIndex(day)+catIdx, dup)
				if err != nil {
					return nil, err
				}
				entries = append(entries, domain.ScheduleEntry{
					Day:           day,
					Site:          plan.Site,
					TopicCategory: category,
					SpecificTopic: topic.Topic,
					Keywords:      append([]string(nil), topic.Keywords...),
					TargetLength:  topic.TargetLength,
					Status:        domain.SchedulePlanned,
				})
			}
		}
	}
	return entries, nil
}

// pickTopic walks the rotation from start and returns the first topic that is not
// a duplicate of the site's history; when every topic is, the starting one is kept.
func (p *Planner) pickTopic(ctx context.Context, site string, topics []PlanTopic, start int, dup map[string]bool) (PlanTopic, error) {
	first := topics[start%len(topics)]
	if p.duplicates == nil {
		return first, nil
	}
	for i := 0; i < len(topics); i++ {
		candidate := topics[(start+i)%len(topics)]
		key := site + "\x00" + candidate.Topic
		isDup, seen := dup[key]
		if !seen {
			var err error
			isDup, err = p.duplicates.IsDuplicate(ctx, site, candidate.Topic)
			if err != nil {
				return PlanTopic{}, fmt.Errorf("check planned topic: %w", err)
			}
			dup[key] = isDup
		}
		if !isDup {
			return candidate, nil
		}
	}
	return first, nil
}

// rotationIndex is the number of days since the Unix epoch.
func rotationIndex(day domain.DayKey) int {
	return int(day.Time().Unix() / 86400)
}
