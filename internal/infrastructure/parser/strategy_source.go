package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"AutoPublisher/internal/config"
	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
	"AutoPublisher/internal/scanner"
)

// StrategySource implements TopicSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.TopicSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchTopics runs every site's topic sources. Failed sources are reported
// in the joined error while the other sources' candidates are still returned.
func (s *StrategySource) FetchTopics(ctx context.Context, day time.Time) ([]domain.TopicCandidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch topics", "sites", len(s.sites), "day", day.Format("2006-01-02"))

	var (
		aggregated []domain.TopicCandidate
		errs       []error
	)
	for _, site := range s.sites {
		for _, src := range site.TopicSources {
			s.debug("process source", "site", site.Key, "scanner", src.Scanner, "category", src.Category)
			strategy, err := s.registry.Resolve(src.Scanner)
			if err != nil {
				errs = append(errs, fmt.Errorf("site %s: %w", site.Key, err))
				continue
			}

			results, err := strategy.Scan(ctx, scanner.Request{
				Day:      day,
				Site:     site.Key,
				Category: src.Category,
				URL:      src.URL,
				Selector: src.Selector,
				Priority: src.Priority,
				Topics:   src.Topics,
				Options:  src.Options,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("scan site %s (%s): %w", site.Key, src.Scanner, err))
				continue
			}

			for i := range results {
				if results[i].Site == "" {
					results[i].Site = site.Key
				}
			}
			s.debug("source produced topics", "site", site.Key, "scanner", src.Scanner, "count", len(results))
			aggregated = append(aggregated, results...)
		}
	}

	s.debug("strategy source done", "total_topics", len(aggregated))
	return aggregated, errors.Join(errs...)
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
