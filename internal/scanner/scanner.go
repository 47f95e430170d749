package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"AutoPublisher/internal/domain"
)

// Request carries all parameters required to execute a scan for one site source.
type Request struct {
	Day      time.Time
	Site     string
	Category string
	URL      string
	Selector string
	Priority int
	Topics   []string
	Options  map[string]string
}

// Scanner produces pool topic candidates (seed lists, headline pages, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.TopicCandidate, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered scanners in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
