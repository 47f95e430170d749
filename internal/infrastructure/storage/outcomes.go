package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"AutoPublisher/internal/domain"
)

const (
	outcomesTable   = "run_outcomes"
	watermarksTable = "dispatcher_watermarks"
)

// SaveOutcome appends one terminal run outcome.
func (r *PostgresRepository) SaveOutcome(ctx context.Context, o domain.RunOutcome) error {
	query, args, err := r.psql.Insert(outcomesTable).
		Columns("id", "slot_id", "site", "schedule_date", "source", "category", "topic",
			"title", "state", "attempts", "url", "error", "started_at", "finished_at").
		Values(o.ID, o.SlotID, o.Site, o.Day.Time(), string(o.Source), o.Category, o.Topic,
			o.Title, string(o.State), o.Attempts, o.URL, o.Error, o.StartedAt, o.FinishedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outcome insert: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// OutcomesForDay lists a day's outcomes in completion order.
func (r *PostgresRepository) OutcomesForDay(ctx context.Context, day domain.DayKey) ([]domain.RunOutcome, error) {
	query, args, err := r.psql.Select("id", "slot_id", "site", "schedule_date", "source", "category", "topic",
		"title", "state", "attempts", "url", "error", "started_at", "finished_at").
		From(outcomesTable).
		Where(sq.Eq{"schedule_date": day.Time()}).
		OrderBy("finished_at", "site").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outcome select: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.RunOutcome
	for rows.Next() {
		var (
			o             domain.RunOutcome
			date          time.Time
			source, state string
		)
		if err := rows.Scan(&o.ID, &o.SlotID, &o.Site, &date, &source, &o.Category, &o.Topic,
			&o.Title, &state, &o.Attempts, &o.URL, &o.Error, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Day = domain.DayKeyOf(date, time.UTC)
		o.Source = domain.TopicSource(source)
		o.State = domain.RunState(state)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// LoadWatermarks returns the last handled scheduled time per slot.
func (r *PostgresRepository) LoadWatermarks(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT slot_id, last_scheduled_at FROM dispatcher_watermarks`)
	if err != nil {
		return nil, fmt.Errorf("select watermarks: %w", err)
	}
	defer rows.Close()

	marks := map[string]time.Time{}
	for rows.Next() {
		var (
			slot string
			at   time.Time
		)
		if err := rows.Scan(&slot, &at); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		marks[slot] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return marks, nil
}

// SaveWatermark only moves a slot's watermark forward.
func (r *PostgresRepository) SaveWatermark(ctx context.Context, slotID string, scheduledAt time.Time) error {
	query, args, err := r.psql.Insert(watermarksTable).
		Columns("slot_id", "last_scheduled_at").
		Values(slotID, scheduledAt).
		Suffix(`ON CONFLICT (slot_id) DO UPDATE SET last_scheduled_at =
			GREATEST(dispatcher_watermarks.last_scheduled_at, EXCLUDED.last_scheduled_at)`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build watermark upsert: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
