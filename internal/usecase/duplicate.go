package usecase

import (
	"context"
	"fmt"
	"strings"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

const (
	DefaultDuplicateThreshold = 0.70
	DefaultHistoryWindow      = 100
)

// DuplicateVerdict explains a duplicate decision.
type DuplicateVerdict struct {
	Duplicate    bool
	Exact        bool
	Similarity   float64
	MatchedTitle string
}

// DuplicateDetector compares a title with one site's publish history.
type DuplicateDetector struct {
	history   ports.ContentHistory
	threshold float64
	window    int
}

// NewDuplicateDetector falls back to the default threshold and window for non-positive values.
func NewDuplicateDetector(history ports.ContentHistory, threshold float64, window int) *DuplicateDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDuplicateThreshold
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &DuplicateDetector{history: history, threshold: threshold, window: window}
}

// IsDuplicate reports whether title collides with the site's history.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, site, title string) (bool, error) {
	verdict, err := d.Check(ctx, site, title)
	if err != nil {
		return false, err
	}
	return verdict.Duplicate, nil
}

// Check runs the exact-hash test, then token similarity over the recent window.
func (d *DuplicateDetector) Check(ctx context.Context, site, title string) (DuplicateVerdict, error) {
	exists, err := d.history.ExistsTitleHash(ctx, site, domain.HashTitle(title))
	if err != nil {
		return DuplicateVerdict{}, fmt.Errorf("check title hash: %w", err)
	}
	if exists {
		return DuplicateVerdict{Duplicate: true, Exact: true, Similarity: 1, MatchedTitle: strings.TrimSpace(title)}, nil
	}

	recent, err := d.history.RecentTitles(ctx, site, d.window)
	if err != nil {
		return DuplicateVerdict{}, fmt.Errorf("load recent titles: %w", err)
	}

	tokens := tokenSet(title)
	var best DuplicateVerdict
	for _, candidate := range recent {
		score, shared := jaccard(tokens, tokenSet(candidate))
		if shared == 0 || score < best.Similarity {
			continue
		}
		best.Similarity = score
		best.MatchedTitle = candidate
	}
	best.Duplicate = best.MatchedTitle != "" && best.Similarity >= d.threshold
	return best, nil
}

// Similarity is the Jaccard index of the lower-cased whitespace token sets of a and b.
func Similarity(a, b string) float64 {
	score, _ := jaccard(tokenSet(a), tokenSet(b))
	return score
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union), shared
}
