package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// PoolRefresher imports fresh fallback topics into the pool.
type PoolRefresher struct {
	pool   ports.TopicPool
	source ports.TopicSource
	logger *slog.Logger
}

// NewPoolRefresher wires the pool and the aggregated topic source.
func NewPoolRefresher(pool ports.TopicPool, source ports.TopicSource, logger *slog.Logger) *PoolRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolRefresher{pool: pool, source: source, logger: logger.With("component", "pool_refresher")}
}

// Refresh fetches candidates from every configured scanner and inserts new ones.
// A source error with partial results still imports what was fetched.
func (r *PoolRefresher) Refresh(ctx context.Context, now time.Time) (int, error) {
	if r.source == nil {
		return 0, nil
	}
	candidates, err := r.source.FetchTopics(ctx, now)
	if err != nil {
		if len(candidates) == 0 {
			return 0, fmt.Errorf("fetch topics: %w", err)
		}
		r.logger.Warn("some topic sources failed", "error", err, "fetched", len(candidates))
	}
	return r.Import(ctx, candidates)
}

// Import inserts candidates, skipping blanks; existing (site, topic) pairs are ignored.
func (r *PoolRefresher) Import(ctx context.Context, candidates []domain.TopicCandidate) (int, error) {
	clean := make([]domain.TopicCandidate, 0, len(candidates))
	seen := map[string]struct{}{}
	for _, c := range candidates {
		c.Site = strings.TrimSpace(c.Site)
		c.Topic = strings.TrimSpace(c.Topic)
		if c.Site == "" || c.Topic == "" {
			continue
		}
		key := c.Site + "\x00" + c.Topic
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		clean = append(clean, c)
	}
	if len(clean) == 0 {
		return 0, nil
	}

	inserted, err := r.pool.AddTopics(ctx, clean)
	if err != nil {
		return 0, fmt.Errorf("add topics: %w", err)
	}
	r.logger.Info("pool refreshed", "candidates", len(clean), "inserted", inserted)
	return inserted, nil
}
