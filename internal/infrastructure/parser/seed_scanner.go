package parser

import (
	"context"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/scanner"
)

// SeedScanner turns the topics listed in configuration into candidates.
type SeedScanner struct{}

// Name identifies the strategy inside the registry.
func (SeedScanner) Name() string { return "seed" }

// Scan never fails; blank topics are filtered later by the pool refresher.
func (SeedScanner) Scan(_ context.Context, req scanner.Request) ([]domain.TopicCandidate, error) {
	out := make([]domain.TopicCandidate, 0, len(req.Topics))
	for _, topic := range req.Topics {
		out = append(out, domain.TopicCandidate{
			Site:     req.Site,
			Topic:    topic,
			Category: req.Category,
			Priority: req.Priority,
		})
	}
	return out, nil
}
