package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Reference retry policy and generation inputs.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 5 * time.Minute
	DefaultAvoidTitles = 10
	DefaultImageCount  = 3
)

// SiteTarget is everything the orchestrator needs to publish to one site.
type SiteTarget struct {
	Profile       domain.SiteProfile
	Publisher     ports.Publisher
	Draft         bool
	RequireImages bool
}

// RetryPolicy bounds the GENERATING/PUBLISHING loop.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// OrchestratorDeps wires collaborators into the orchestrator.
type OrchestratorDeps struct {
	Resolver   *Resolver
	Duplicates *DuplicateDetector
	History    ports.ContentHistory
	Ledger     ports.OutcomeLedger
	Generator  ports.ContentGenerator
	Images     ports.ImageGenerator
	Sites      map[string]SiteTarget
	Retry      RetryPolicy
	// AvoidTitles and ImageCount use the defaults when zero.
	AvoidTitles int
	ImageCount  int
	// VisibleText extracts the text hashed into ContentRecord.ContentHash.
	VisibleText func(html string) string
	Logger      *slog.Logger
}

// RunRequest identifies one publish attempt.
type RunRequest struct {
	SlotID   string
	Site     string
	Date     time.Time
	Category string
}

// Orchestrator drives one run through resolve, dedup, generate, publish and record.
type Orchestrator struct {
	resolver    *Resolver
	duplicates  *DuplicateDetector
	history     ports.ContentHistory
	ledger      ports.OutcomeLedger
	generator   ports.ContentGenerator
	images      ports.ImageGenerator
	sites       map[string]SiteTarget
	retry       RetryPolicy
	avoidTitles int
	imageCount  int
	visibleText func(string) string
	logger      *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator constructs the publish state machine.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	retry := deps.Retry
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	avoid := deps.AvoidTitles
	if avoid <= 0 {
		avoid = DefaultAvoidTitles
	}
	images := deps.ImageCount
	if images <= 0 {
		images = DefaultImageCount
	}
	text := deps.VisibleText
	if text == nil {
		text = func(s string) string { return s }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		resolver:    deps.Resolver,
		duplicates:  deps.Duplicates,
		history:     deps.History,
		ledger:      deps.Ledger,
		generator:   deps.Generator,
		images:      deps.Images,
		sites:       deps.Sites,
		retry:       retry,
		avoidTitles: avoid,
		imageCount:  images,
		visibleText: text,
		logger:      logger.With("component", "orchestrator"),
		now:         time.Now,
		wait:        sleepContext,
	}
}

// Sites lists the configured site keys.
func (o *Orchestrator) Sites() []string {
	keys := make([]string, 0, len(o.sites))
	for key := range o.sites {
		keys = append(keys, key)
	}
	return keys
}

// Run executes one publish attempt and records its terminal outcome. The error
// is non-nil only for FAILED runs; skips are reported through the outcome state.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (domain.RunOutcome, error) {
	if req.Date.IsZero() {
		req.Date = o.now()
	}
	run := &runState{
		outcome: domain.RunOutcome{
			ID:        uuid.New(),
			SlotID:    req.SlotID,
			Site:      req.Site,
			Day:       domain.DayKeyOf(req.Date, o.resolver.Location()),
			StartedAt: o.now(),
		},
		logger: o.logger.With("site", req.Site, "slot", req.SlotID),
	}
	run.logger = run.logger.With("day", run.outcome.Day.String(), "run_id", run.outcome.ID.String())

	target, ok := o.sites[req.Site]
	if !ok {
		return o.fail(ctx, run, &domain.StageError{Stage: domain.StageResolving, Err: fmt.Errorf("%w: %s", domain.ErrUnknownSite, req.Site)})
	}

	run.logger.Debug("state", "state", domain.StageResolving)
	assignment, err := o.resolver.ResolveDay(ctx, req.Site, run.outcome.Day, req.Category)
	if err != nil {
		return o.fail(ctx, run, &domain.StageError{Stage: domain.StageResolving, Err: err})
	}
	if assignment == nil {
		run.logger.Info("nothing scheduled")
		return o.finish(ctx, run, domain.RunSkippedNoTopic)
	}
	run.assignment = *assignment
	run.outcome.Source = assignment.Source
	run.outcome.Category = assignment.Category
	run.outcome.Topic = assignment.Topic
	run.logger = run.logger.With("topic", assignment.Topic, "source", string(assignment.Source))

	run.logger.Debug("state", "state", domain.StageDuplicateCheck)
	verdict, err := o.duplicates.Check(ctx, req.Site, assignment.Topic)
	if err != nil {
		return o.fail(ctx, run, &domain.StageError{Stage: domain.StageDuplicateCheck, Err: err})
	}
	if verdict.Duplicate {
		run.logger.Warn("duplicate topic skipped", "matched", verdict.MatchedTitle, "similarity", verdict.Similarity, "exact", verdict.Exact)
		return o.finish(ctx, run, domain.RunSkippedDuplicate)
	}

	avoid, err := o.history.RecentTitles(ctx, req.Site, o.avoidTitles)
	if err != nil {
		return o.fail(ctx, run, &domain.StageError{Stage: domain.StageDuplicateCheck, Err: fmt.Errorf("load recent titles: %w", err)})
	}

	var lastErr error
	maxAttempts := o.retry.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			run.logger.Warn("retrying", "attempt", attempt, "delay", o.retry.Delay.String(), "error", lastErr)
			if err := o.wait(ctx, o.retry.Delay); err != nil {
				return o.fail(ctx, run, fmt.Errorf("retry interrupted after %d attempts: %w", run.outcome.Attempts, errors.Join(err, lastErr)))
			}
		}
		run.outcome.Attempts = attempt

		content, images, err := o.generate(ctx, run, target, avoid, attempt)
		if err != nil {
			lastErr = err
			continue
		}
		run.outcome.Title = content.Title

		result, err := o.publish(ctx, run, target, content, images, attempt)
		if err != nil {
			lastErr = err
			continue
		}

		return o.succeed(ctx, run, content, result)
	}

	return o.fail(ctx, run, fmt.Errorf("%w after %d attempts: %w", domain.ErrMaxRetriesExceeded, run.outcome.Attempts, lastErr))
}

type runState struct {
	outcome    domain.RunOutcome
	assignment domain.TopicAssignment
	logger     *slog.Logger
}

func (o *Orchestrator) generate(ctx context.Context, run *runState, target SiteTarget, avoid []string, attempt int) (domain.GeneratedContent, []domain.Image, error) {
	run.logger.Debug("state", "state", domain.StageGenerating, "attempt", attempt)
	stageErr := func(err error) error {
		return &domain.StageError{Stage: domain.StageGenerating, Attempt: attempt, Err: err}
	}

	content, err := o.generator.Generate(ctx, ports.GenerationRequest{
		Topic:        run.assignment.Topic,
		Category:     run.assignment.Category,
		Keywords:     run.assignment.Keywords,
		TargetLength: run.assignment.TargetLength,
		Site:         target.Profile,
		AvoidTitles:  avoid,
	})
	if err != nil {
		return domain.GeneratedContent{}, nil, stageErr(err)
	}
	if err := content.Validate(); err != nil {
		return domain.GeneratedContent{}, nil, stageErr(err)
	}

	verdict, err := o.duplicates.Check(ctx, run.outcome.Site, content.Title)
	if err != nil {
		return domain.GeneratedContent{}, nil, stageErr(err)
	}
	if verdict.Duplicate {
		return domain.GeneratedContent{}, nil, stageErr(fmt.Errorf("generated title %q duplicates %q", content.Title, verdict.MatchedTitle))
	}

	if o.images == nil {
		if target.RequireImages {
			return domain.GeneratedContent{}, nil, stageErr(errors.New("site requires images but no image generator is configured"))
		}
		return content, nil, nil
	}
	images, err := o.images.GenerateImages(ctx, content.Title, content.Body, o.imageCount)
	if err != nil {
		if target.RequireImages {
			return domain.GeneratedContent{}, nil, stageErr(fmt.Errorf("generate images: %w", err))
		}
		run.logger.Warn("publishing without images", "error", err)
		return content, nil, nil
	}
	return content, images, nil
}

func (o *Orchestrator) publish(ctx context.Context, run *runState, target SiteTarget, content domain.GeneratedContent, images []domain.Image, attempt int) (domain.PublishResult, error) {
	run.logger.Debug("state", "state", domain.StagePublishing, "attempt", attempt, "images", len(images))

	result, err := target.Publisher.Publish(ctx, content, images, target.Draft)
	if err != nil {
		return domain.PublishResult{}, &domain.StageError{Stage: domain.StagePublishing, Attempt: attempt, Err: err}
	}
	if !result.Success || result.URL == "" {
		return domain.PublishResult{}, &domain.StageError{
			Stage:   domain.StagePublishing,
			Attempt: attempt,
			Err:     fmt.Errorf("%w: %s", domain.ErrPublishRejected, result.Error),
		}
	}
	return result, nil
}

func (o *Orchestrator) succeed(ctx context.Context, run *runState, content domain.GeneratedContent, result domain.PublishResult) (domain.RunOutcome, error) {
	record := domain.ContentRecord{
		Site:          run.outcome.Site,
		Title:         content.Title,
		TitleHash:     domain.HashTitle(content.Title),
		ContentHash:   domain.HashText(o.visibleText(content.Body)),
		Category:      run.assignment.Category,
		Keywords:      run.assignment.Keywords,
		URL:           result.URL,
		PublishedDate: o.now(),
	}
	var entry *domain.EntryKey
	if key, ok := run.assignment.EntryKey(); ok {
		entry = &key
	}

	_, marked, err := o.history.RecordPublished(ctx, record, entry)
	if err != nil {
		// The remote post exists; the calendar entry stays planned.
		return o.fail(ctx, run, &domain.StageError{Stage: domain.StageRecording, Attempt: run.outcome.Attempts, Err: err})
	}
	if entry != nil && !marked {
		run.outcome.Error = fmt.Sprintf("%v: %s %s", domain.ErrEntryAlreadyPublished, entry.Day, entry.Category)
		run.logger.Warn("calendar entry was already published by another run", "category", entry.Category, "url", result.URL)
	}

	run.outcome.URL = result.URL
	run.logger.Info("post published", "title", content.Title, "url", result.URL, "attempts", run.outcome.Attempts)
	return o.finish(ctx, run, domain.RunSuccess)
}

func (o *Orchestrator) fail(ctx context.Context, run *runState, err error) (domain.RunOutcome, error) {
	run.outcome.Error = err.Error()
	run.logger.Error("run failed", "attempts", run.outcome.Attempts, "error", err)
	outcome, saveErr := o.finish(ctx, run, domain.RunFailed)
	if saveErr != nil {
		return outcome, errors.Join(err, saveErr)
	}
	return outcome, err
}

func (o *Orchestrator) finish(ctx context.Context, run *runState, state domain.RunState) (domain.RunOutcome, error) {
	run.outcome.State = state
	run.outcome.FinishedAt = o.now()
	if o.ledger == nil {
		return run.outcome, nil
	}
	// The ledger write survives shutdown cancellation of the run context.
	if err := o.ledger.SaveOutcome(context.WithoutCancel(ctx), run.outcome); err != nil {
		run.logger.Error("save outcome", "state", state, "error", err)
		return run.outcome, fmt.Errorf("save outcome: %w", err)
	}
	return run.outcome, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
