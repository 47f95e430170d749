package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Resolver answers "what does this site publish on this day": calendar first, pool second.
type Resolver struct {
	calendar ports.CalendarStore
	pool     ports.TopicPool
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewResolver wires the two topic sources. A nil location means UTC.
func NewResolver(calendar ports.CalendarStore, pool ports.TopicPool, loc *time.Location, logger *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		calendar: calendar,
		pool:     pool,
		loc:      loc,
		now:      time.Now,
		logger:   logger.With("component", "resolver"),
	}
}

// Location is the publishing timezone used to derive day keys.
func (r *Resolver) Location() *time.Location { return r.loc }

// ResolveTopic returns the site's assignment for the day containing date, or nil.
func (r *Resolver) ResolveTopic(ctx context.Context, site string, date time.Time) (*domain.TopicAssignment, error) {
	return r.ResolveDay(ctx, site, domain.DayKeyOf(date, r.loc), "")
}

// ResolveSlot is ResolveTopic restricted to one calendar category.
func (r *Resolver) ResolveSlot(ctx context.Context, site string, date time.Time, category string) (*domain.TopicAssignment, error) {
	return r.ResolveDay(ctx, site, domain.DayKeyOf(date, r.loc), category)
}

// ResolveDay resolves an already normalized day. A nil assignment with a nil
// error means nothing is scheduled.
func (r *Resolver) ResolveDay(ctx context.Context, site string, day domain.DayKey, category string) (*domain.TopicAssignment, error) {
	entries, err := r.calendar.Lookup(ctx, day, site)
	if err != nil {
		return nil, fmt.Errorf("lookup calendar %s %s: %w", site, day, err)
	}
	if category != "" {
		entries = filterCategory(entries, category)
	}

	if len(entries) > 0 {
		for _, e := range entries {
			if e.Status == domain.SchedulePlanned {
				assignment := domain.AssignmentFromEntry(e)
				r.logger.Debug("calendar topic", "site", site, "day", day.String(), "category", e.TopicCategory)
				return &assignment, nil
			}
		}
		// The slot was already served; a resumed run must not fall through to the pool.
		r.logger.Debug("calendar slot already served", "site", site, "day", day.String())
		return nil, nil
	}

	return r.consumePool(ctx, site, day)
}

func (r *Resolver) consumePool(ctx context.Context, site string, day domain.DayKey) (*domain.TopicAssignment, error) {
	if r.pool == nil {
		return nil, nil
	}

	candidate, err := r.pool.NextUnused(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("select pool topic %s: %w", site, err)
	}
	if candidate == nil {
		return nil, nil
	}

	won, err := r.pool.MarkUsed(ctx, candidate.ID, r.now())
	if err != nil {
		return nil, fmt.Errorf("mark pool topic %d used: %w", candidate.ID, err)
	}
	if !won {
		r.logger.Info("pool topic taken by another run", "site", site, "pool_id", candidate.ID)
		return nil, nil
	}

	assignment := domain.AssignmentFromPool(*candidate, day)
	r.logger.Debug("pool topic", "site", site, "day", day.String(), "pool_id", candidate.ID, "priority", candidate.Priority)
	return &assignment, nil
}

func filterCategory(entries []domain.ScheduleEntry, category string) []domain.ScheduleEntry {
	var out []domain.ScheduleEntry
	for _, e := range entries {
		if e.TopicCategory == category {
			out = append(out, e)
		}
	}
	return out
}
