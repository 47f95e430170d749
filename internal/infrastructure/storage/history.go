package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"AutoPublisher/internal/domain"
)

const historyTable = "content_history"

// ExistsTitleHash reports an exact title match within one site.
func (r *PostgresRepository) ExistsTitleHash(ctx context.Context, site, titleHash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_history WHERE site = $1 AND title_hash = $2)`,
		site, titleHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check title hash: %w", err)
	}
	return exists, nil
}

// RecentTitles lists the newest titles of a site first.
func (r *PostgresRepository) RecentTitles(ctx context.Context, site string, limit int) ([]string, error) {
	builder := r.psql.Select("title").
		From(historyTable).
		Where(sq.Eq{"site": site}).
		OrderBy("published_date DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent titles: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select recent titles: %w", err)
	}
	titles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan recent titles: %w", err)
	}
	return titles, nil
}

// RecordPublished appends history and, for calendar-sourced posts, marks the
// entry published. Both writes commit together or not at all.
func (r *PostgresRepository) RecordPublished(ctx context.Context, record domain.ContentRecord, entry *domain.EntryKey) (int64, bool, error) {
	if record.PublishedDate.IsZero() {
		record.PublishedDate = time.Now()
	}

	var (
		id     int64
		marked bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := r.psql.Insert(historyTable).
			Columns("site", "title", "title_hash", "content_hash", "category", "keywords", "url", "published_date").
			Values(record.Site, record.Title, record.TitleHash, record.ContentHash,
				record.Category, nonNilStrings(record.Keywords), record.URL, record.PublishedDate).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build history insert: %w", err)
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if entry == nil {
			return nil
		}

		marked, err = r.markPublished(ctx, tx, *entry, record.URL, id)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return id, marked, nil
}
