package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"AutoPublisher/internal/domain"
)

const calendarTable = "publishing_calendar"

var calendarColumns = []string{
	"schedule_date", "site", "topic_category", "specific_topic",
	"keywords", "target_length", "status",
	"COALESCE(published_url, '')", "COALESCE(generated_content_id, 0)",
}

// UpsertRange writes entries for the period in one transaction. Existing rows keep
// their status; planned rows in the period that are absent from entries are removed.
func (r *PostgresRepository) UpsertRange(ctx context.Context, period domain.Period, entries []domain.ScheduleEntry) error {
	if err := period.CheckWithin(entries); err != nil {
		return err
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := r.deletePlannedOrphans(ctx, tx, period, entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		query, args, err := r.insertEntries(entries).
			Suffix(`ON CONFLICT (schedule_date, site, topic_category) DO UPDATE SET
				specific_topic = EXCLUDED.specific_topic,
				keywords = EXCLUDED.keywords,
				target_length = EXCLUDED.target_length,
				updated_at = NOW()`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build calendar upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert calendar: %w", err)
		}
		return nil
	})
}

// RegeneratePeriod drops every planned row in the period and inserts the new plan.
// Used or published rows win over the new plan on conflict.
func (r *PostgresRepository) RegeneratePeriod(ctx context.Context, period domain.Period, entries []domain.ScheduleEntry) error {
	if err := period.CheckWithin(entries); err != nil {
		return err
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := r.psql.Delete(calendarTable).
			Where(sq.GtOrEq{"schedule_date": period.Start.Time()}).
			Where(sq.LtOrEq{"schedule_date": period.End.Time()}).
			Where(sq.Eq{"status": string(domain.SchedulePlanned)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build calendar delete: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("clear planned entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		query, args, err = r.insertEntries(entries).
			Suffix("ON CONFLICT (schedule_date, site, topic_category) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build calendar insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert calendar: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) insertEntries(entries []domain.ScheduleEntry) sq.InsertBuilder {
	ins := r.psql.Insert(calendarTable).
		Columns("schedule_date", "site", "topic_category", "specific_topic", "keywords", "target_length", "status")
	for _, e := range entries {
		ins = ins.Values(e.Day.Time(), e.Site, e.TopicCategory, e.SpecificTopic,
			nonNilStrings(e.Keywords), targetLength(e.TargetLength), string(domain.SchedulePlanned))
	}
	return ins
}

const deleteOrphansSQL = `
DELETE FROM publishing_calendar c
WHERE c.schedule_date BETWEEN $1 AND $2
  AND c.status = 'planned'
  AND NOT EXISTS (
    SELECT 1 FROM unnest($3::date[], $4::text[], $5::text[]) AS k(d, s, cat)
    WHERE k.d = c.schedule_date AND k.s = c.site AND k.cat = c.topic_category
  )`

func (r *PostgresRepository) deletePlannedOrphans(ctx context.Context, tx pgx.Tx, period domain.Period, entries []domain.ScheduleEntry) error {
	days := make([]time.Time, 0, len(entries))
	sites := make([]string, 0, len(entries))
	cats := make([]string, 0, len(entries))
	for _, e := range entries {
		days = append(days, e.Day.Time())
		sites = append(sites, e.Site)
		cats = append(cats, e.TopicCategory)
	}
	if _, err := tx.Exec(ctx, deleteOrphansSQL, period.Start.Time(), period.End.Time(), days, sites, cats); err != nil {
		return fmt.Errorf("delete planned orphans: %w", err)
	}
	return nil
}

// Lookup returns the day's entries for a site ordered by category.
func (r *PostgresRepository) Lookup(ctx context.Context, day domain.DayKey, site string) ([]domain.ScheduleEntry, error) {
	query, args, err := r.psql.Select(calendarColumns...).
		From(calendarTable).
		Where(sq.Eq{"schedule_date": day.Time(), "site": site}).
		OrderBy("topic_category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build calendar lookup: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup calendar: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScheduleEntry
	for rows.Next() {
		var (
			e      domain.ScheduleEntry
			date   time.Time
			status string
		)
		if err := rows.Scan(&date, &e.Site, &e.TopicCategory, &e.SpecificTopic,
			&e.Keywords, &e.TargetLength, &status, &e.PublishedURL, &e.GeneratedContentID); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		e.Day = domain.DayKeyOf(date, time.UTC)
		e.Status = domain.ScheduleStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar: %w", err)
	}
	return entries, nil
}

// MarkPublished moves an entry to published unless it already is.
func (r *PostgresRepository) MarkPublished(ctx context.Context, key domain.EntryKey, url string, contentID int64) (bool, error) {
	return r.markPublished(ctx, r.pool, key, url, contentID)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *PostgresRepository) markPublished(ctx context.Context, db execer, key domain.EntryKey, url string, contentID int64) (bool, error) {
	query, args, err := r.psql.Update(calendarTable).
		Set("status", string(domain.SchedulePublished)).
		Set("published_url", url).
		Set("generated_content_id", contentID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"schedule_date": key.Day.Time(), "site": key.Site, "topic_category": key.Category}).
		Where(sq.NotEq{"status": string(domain.SchedulePublished)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build calendar status update: %w", err)
	}
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark calendar published: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountInPeriod counts entries of any status inside the period.
func (r *PostgresRepository) CountInPeriod(ctx context.Context, period domain.Period) (int, error) {
	query, args, err := r.psql.Select("COUNT(*)").
		From(calendarTable).
		Where(sq.GtOrEq{"schedule_date": period.Start.Time()}).
		Where(sq.LtOrEq{"schedule_date": period.End.Time()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build calendar count: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count calendar: %w", err)
	}
	return count, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func targetLength(value string) string {
	if value == "" {
		return "medium"
	}
	return value
}
