package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"AutoPublisher/internal/config"
	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/infrastructure/llm"
	"AutoPublisher/internal/infrastructure/ml"
	"AutoPublisher/internal/infrastructure/parser"
	"AutoPublisher/internal/infrastructure/scheduler"
	"AutoPublisher/internal/infrastructure/storage"
	"AutoPublisher/internal/infrastructure/storage/memory"
	"AutoPublisher/internal/infrastructure/telegram"
	"AutoPublisher/internal/infrastructure/wordpress"
	"AutoPublisher/internal/logging"
	"AutoPublisher/internal/ports"
	"AutoPublisher/internal/scanner"
	"AutoPublisher/internal/usecase"
)

const stopTimeout = 30 * time.Second

// Store is every persistence port the application needs from one backend.
type Store interface {
	ports.CalendarStore
	ports.TopicPool
	ports.ContentHistory
	ports.OutcomeLedger
	ports.WatermarkStore
}

// Collaborators overrides the external services; nil fields are built from config.
type Collaborators struct {
	Store      Store
	Generator  ports.ContentGenerator
	Images     ports.ImageGenerator
	Publishers map[string]ports.Publisher
	Notifier   ports.Notifier
	Source     ports.TopicSource
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	loc    *time.Location

	store    Store
	postgres *storage.PostgresRepository
	closers  []func()

	orchestrator *usecase.Orchestrator
	planner      *usecase.Planner
	refresher    *usecase.PoolRefresher
	reporter     *usecase.Reporter
	scheduler    *usecase.Scheduler
}

// New builds the application from configuration. An empty DSN selects the in-memory store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	return NewWith(ctx, cfg, baseLogger, Collaborators{})
}

// NewWith is New with injected collaborators.
func NewWith(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, c Collaborators) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, loc: cfg.Scheduler.Location()}

	if err := a.openStore(ctx, c.Store); err != nil {
		return nil, err
	}

	targets, err := a.siteTargets(c.Publishers)
	if err != nil {
		a.Close()
		return nil, err
	}
	slots, err := slotSpecs(cfg.Sites)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator := c.Generator
	if generator == nil {
		generator = llm.NewChatGPTClient(cfg.ChatGPT)
	}
	images := c.Images
	if images == nil && cfg.Images.Endpoint != "" {
		images = ml.NewClient(cfg.Images.Endpoint, cfg.Images.APIKey)
	}
	notifier := c.Notifier
	if notifier == nil {
		if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
			notifier = tg
		}
	}
	source := c.Source
	if source == nil {
		registry := scanner.NewRegistry(parser.SeedScanner{}, parser.NewHTMLScanner(nil))
		source = parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))
	}

	pub := cfg.Publishing
	duplicates := usecase.NewDuplicateDetector(a.store, pub.DuplicateThreshold, pub.HistoryWindow)
	resolver := usecase.NewResolver(a.store, a.store, a.loc, baseLogger)

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Resolver:    resolver,
		Duplicates:  duplicates,
		History:     a.store,
		Ledger:      a.store,
		Generator:   generator,
		Images:      images,
		Sites:       targets,
		Retry:       usecase.RetryPolicy{MaxRetries: pub.MaxRetries, Delay: pub.RetryDelay},
		AvoidTitles: pub.AvoidTitles,
		ImageCount:  pub.ImageCount,
		VisibleText: parser.VisibleText,
		Logger:      baseLogger,
	})
	a.planner = usecase.NewPlanner(a.store, duplicates, sitePlans(cfg.Sites), a.loc, baseLogger)
	a.refresher = usecase.NewPoolRefresher(a.store, source, baseLogger)
	a.reporter = usecase.NewReporter(a.store, notifier, a.loc, baseLogger)

	dispatcher := scheduler.NewDispatcher(
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithMisfireGrace(cfg.Scheduler.MisfireGrace),
		scheduler.WithLocation(a.loc),
		scheduler.WithWatermarks(a.store),
		scheduler.WithLogger(baseLogger),
	)
	a.scheduler = usecase.NewScheduler(dispatcher, usecase.SchedulerJobs{
		Orchestrator: a.orchestrator,
		Reporter:     a.reporter,
		Refresher:    a.refresher,
		Planner:      a.planner,
		Slots:        slots,
		Maintenance: usecase.MaintenanceSpecs{
			DailyReport: cfg.Scheduler.DailyReport,
			PoolRefresh: cfg.Scheduler.PoolRefresh,
			MonthlyPlan: cfg.Scheduler.MonthlyPlan,
		},
		Logger: baseLogger,
	})

	return a, nil
}

func (a *Application) openStore(ctx context.Context, injected Store) error {
	if injected != nil {
		a.store = injected
		return nil
	}
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database configured, using in-memory store")
		a.store = memory.New()
		return nil
	}

	pool, err := storage.Connect(ctx, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	a.postgres = storage.NewPostgresRepository(pool)
	a.store = a.postgres
	return nil
}

func (a *Application) siteTargets(injected map[string]ports.Publisher) (map[string]usecase.SiteTarget, error) {
	targets := make(map[string]usecase.SiteTarget, len(a.cfg.Sites))
	for _, site := range a.cfg.Sites {
		publisher, ok := injected[site.Key]
		if !ok {
			switch site.Platform {
			case "", "wordpress":
				publisher = wordpress.NewPublisher(site.Key, site.WordPress, a.logger)
			default:
				return nil, fmt.Errorf("site %s: unsupported platform %q", site.Key, site.Platform)
			}
		}
		targets[site.Key] = usecase.SiteTarget{
			Profile:       siteProfile(site),
			Publisher:     publisher,
			Draft:         site.Draft,
			RequireImages: site.RequireImages,
		}
	}
	return targets, nil
}

func siteProfile(site config.SiteConfig) domain.SiteProfile {
	return domain.SiteProfile{
		Key:            site.Key,
		Name:           site.Name,
		Platform:       site.Platform,
		Categories:     siteCategories(site),
		ContentStyle:   site.ContentStyle,
		TargetAudience: site.TargetAudience,
	}
}

// siteCategories is primary then secondary; without them, the plan's categories in order.
func siteCategories(site config.SiteConfig) []string {
	var cats []string
	for _, c := range []string{site.Categories.Primary, site.Categories.Secondary} {
		if c != "" {
			cats = append(cats, c)
		}
	}
	if len(cats) > 0 {
		return cats
	}
	for c := range site.Plan {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func sitePlans(sites []config.SiteConfig) []usecase.SitePlan {
	plans := make([]usecase.SitePlan, 0, len(sites))
	for _, site := range sites {
		if len(site.Plan) == 0 {
			continue
		}
		topics := make(map[string][]usecase.PlanTopic, len(site.Plan))
		for cat, list := range site.Plan {
			for _, t := range list {
				topics[cat] = append(topics[cat], usecase.PlanTopic{
					Topic:        t.Topic,
					Keywords:     t.Keywords,
					TargetLength: t.TargetLength,
				})
			}
		}
		plans = append(plans, usecase.SitePlan{Site: site.Key, Categories: siteCategories(site), Topics: topics})
	}
	return plans
}

func slotSpecs(sites []config.SiteConfig) ([]usecase.SlotSpec, error) {
	var specs []usecase.SlotSpec
	for _, site := range sites {
		for _, slot := range site.Slots {
			hour, minute, err := slot.ParseTime()
			if err != nil {
				return nil, fmt.Errorf("site %s: %w", site.Key, err)
			}
			days, err := slot.Weekdays()
			if err != nil {
				return nil, fmt.Errorf("site %s: %w", site.Key, err)
			}
			for _, day := range days {
				specs = append(specs, usecase.SlotSpec{
					Site:     site.Key,
					Weekday:  day,
					Hour:     hour,
					Minute:   minute,
					Category: slot.Category,
				})
			}
		}
	}
	return specs, nil
}

// Location is the scheduler timezone.
func (a *Application) Location() *time.Location { return a.loc }

// Serve runs the dispatcher until ctx is cancelled, then drains running jobs.
func (a *Application) Serve(ctx context.Context) error {
	now := time.Now()
	if _, err := a.planner.EnsureMonth(ctx, domain.DayKeyOf(now, a.loc)); err != nil {
		a.logger.Warn("current month plan", "error", err)
	}
	if _, err := a.planner.EnsureNextMonth(ctx, now); err != nil {
		a.logger.Warn("next month plan", "error", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "timezone", a.loc.String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// RunNow publishes immediately for the given sites (all sites when empty).
func (a *Application) RunNow(ctx context.Context, sites []string, date time.Time) ([]domain.RunOutcome, error) {
	if len(sites) == 0 {
		sites = a.orchestrator.Sites()
	}
	return a.orchestrator.RunSites(ctx, sites, date, a.cfg.Scheduler.Workers)
}

// Plan fills the week or month containing day.
func (a *Application) Plan(ctx context.Context, kind usecase.PeriodKind, day domain.DayKey, mode usecase.PlanMode) (domain.Period, int, error) {
	return a.planner.PlanPeriod(ctx, kind, day, mode)
}

// ImportTopics loads a topic YAML file into the pool.
func (a *Application) ImportTopics(ctx context.Context, path string) (int, error) {
	topics, err := config.LoadTopicFile(path)
	if err != nil {
		return 0, err
	}
	return a.refresher.Import(ctx, topics)
}

// RefreshPool runs the topic sources once.
func (a *Application) RefreshPool(ctx context.Context) (int, error) {
	return a.refresher.Refresh(ctx, time.Now())
}

// Report builds the day's report; notify also sends it through the notifier.
func (a *Application) Report(ctx context.Context, day domain.DayKey, notify bool) (domain.DailyReport, error) {
	if notify {
		return a.reporter.Report(ctx, day.In(a.loc))
	}
	return a.reporter.Build(ctx, day)
}

// Migrate applies the Postgres schema.
func (a *Application) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return errors.New("migrate requires a database dsn")
	}
	return a.postgres.Migrate(ctx)
}

// Close releases the database pool.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
