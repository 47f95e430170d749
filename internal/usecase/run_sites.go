package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"AutoPublisher/internal/domain"
)

// RunSites runs every listed site for date concurrently, at most limit at a time.
// Failed runs do not cancel the others; their errors are joined.
func (o *Orchestrator) RunSites(ctx context.Context, sites []string, date time.Time, limit int) ([]domain.RunOutcome, error) {
	if len(sites) == 0 {
		sites = o.Sites()
	}
	sort.Strings(sites)

	var (
		g        errgroup.Group
		mu       sync.Mutex
		outcomes = make([]domain.RunOutcome, len(sites))
		errs     []error
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, site := range sites {
		g.Go(func() error {
			outcome, err := o.Run(ctx, RunRequest{SlotID: "manual", Site: site, Date: date})
			outcomes[i] = outcome
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}
