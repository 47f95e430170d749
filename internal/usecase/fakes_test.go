package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/infrastructure/storage/memory"
	"AutoPublisher/internal/ports"
)

var (
	kst     = time.FixedZone("KST", 9*60*60)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	// fail is consulted per call; a nil entry (or running past the slice) succeeds.
	fail  []error
	title string
}

func (g *fakeGenerator) Generate(_ context.Context, req ports.GenerationRequest) (domain.GeneratedContent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= len(g.fail) && g.fail[g.calls-1] != nil {
		return domain.GeneratedContent{}, g.fail[g.calls-1]
	}
	title := g.title
	if title == "" {
		title = fmt.Sprintf("%s 완벽 가이드 %d", req.Topic, g.calls)
	}
	return domain.GeneratedContent{
		Title: title,
		Body:  "<p>" + req.Topic + "</p>",
		Tags:  []string{req.Category},
	}, nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeImages struct {
	err error
}

func (f *fakeImages) GenerateImages(_ context.Context, title, _ string, count int) ([]domain.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	images := make([]domain.Image, count)
	for i := range images {
		images[i] = domain.Image{URL: fmt.Sprintf("https://img.example/%d.png", i), Alt: title}
	}
	return images, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	calls  int
	fail   []error
	reject int
	images []int
	site   string
	// onPublish runs before a successful result is returned.
	onPublish func()
}

func (p *fakePublisher) Publish(_ context.Context, content domain.GeneratedContent, images []domain.Image, _ bool) (domain.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.images = append(p.images, len(images))
	if p.calls <= len(p.fail) && p.fail[p.calls-1] != nil {
		return domain.PublishResult{}, p.fail[p.calls-1]
	}
	if p.calls <= p.reject {
		return domain.PublishResult{Success: false, Error: "quota"}, nil
	}
	if p.onPublish != nil {
		p.onPublish()
	}
	return domain.PublishResult{
		Success: true,
		URL:     fmt.Sprintf("https://%s.example/posts/%d", p.site, p.calls),
		PostID:  fmt.Sprint(p.calls),
	}, nil
}

type orchestratorFixture struct {
	store     *memory.Store
	generator *fakeGenerator
	images    *fakeImages
	publisher *fakePublisher
	orch      *Orchestrator
	waits     []time.Duration
}

func newOrchestratorFixture(maxRetries int, requireImages bool) *orchestratorFixture {
	f := &orchestratorFixture{
		store:     memory.New(),
		generator: &fakeGenerator{},
		images:    &fakeImages{},
		publisher: &fakePublisher{site: "unpre"},
	}
	resolver := NewResolver(f.store, f.store, kst, discard)
	f.orch = NewOrchestrator(OrchestratorDeps{
		Resolver:   resolver,
		Duplicates: NewDuplicateDetector(f.store, 0, 0),
		History:    f.store,
		Ledger:     f.store,
		Generator:  f.generator,
		Images:     f.images,
		Sites: map[string]SiteTarget{
			"unpre": {Profile: domain.SiteProfile{Key: "unpre", Name: "Unpre"}, Publisher: f.publisher, RequireImages: requireImages},
			"untab": {Profile: domain.SiteProfile{Key: "untab"}, Publisher: &fakePublisher{site: "untab"}},
		},
		Retry:  RetryPolicy{MaxRetries: maxRetries, Delay: 5 * time.Minute},
		Logger: discard,
	})
	f.orch.wait = func(_ context.Context, d time.Duration) error {
		f.waits = append(f.waits, d)
		return nil
	}
	return f
}

var errTransient = errors.New("upstream timeout")

func entry(day domain.DayKey, site, category, topic string) domain.ScheduleEntry {
	return domain.ScheduleEntry{Day: day, Site: site, TopicCategory: category, SpecificTopic: topic, Keywords: []string{"JWT"}}
}

// seedEntries writes all entries in one upsert over the first entry's week.
func seedEntries(store *memory.Store, entries ...domain.ScheduleEntry) {
	_ = store.UpsertRange(context.Background(), domain.WeekOf(entries[0].Day), entries)
}

func seedHistory(store *memory.Store, site string, titles ...string) {
	for _, title := range titles {
		_, _, _ = store.RecordPublished(context.Background(), domain.ContentRecord{
			Site: site, Title: title, TitleHash: domain.HashTitle(title), URL: "https://" + site + ".example/old",
		}, nil)
	}
}
