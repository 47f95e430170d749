package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"AutoPublisher/internal/domain"
)

const poolTable = "topic_pool"

// NextUnused peeks the highest-priority unused topic of a site; ties go to the oldest row.
func (r *PostgresRepository) NextUnused(ctx context.Context, site string) (*domain.TopicPoolEntry, error) {
	query, args, err := r.psql.Select("id", "site", "topic", "category", "priority", "keywords").
		From(poolTable).
		Where(sq.Eq{"site": site, "used": false}).
		OrderBy("priority DESC", "id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pool select: %w", err)
	}

	var p domain.TopicPoolEntry
	err = r.pool.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.Site, &p.Topic, &p.Category, &p.Priority, &p.Keywords)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select unused topic: %w", err)
	}
	return &p, nil
}

// MarkUsed flips used only while it is still false, so concurrent resolvers
// cannot both consume the same row.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id int64, at time.Time) (bool, error) {
	query, args, err := r.psql.Update(poolTable).
		Set("used", true).
		Set("used_date", at).
		Where(sq.Eq{"id": id, "used": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build pool update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark topic used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddTopics inserts candidates and reports how many were new.
func (r *PostgresRepository) AddTopics(ctx context.Context, topics []domain.TopicCandidate) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}

	ins := r.psql.Insert(poolTable).Columns("site", "topic", "category", "priority", "keywords")
	for _, t := range topics {
		ins = ins.Values(t.Site, t.Topic, t.Category, t.Priority, nonNilStrings(t.Keywords))
	}
	query, args, err := ins.Suffix("ON CONFLICT (site, topic) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build pool insert: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert topics: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
