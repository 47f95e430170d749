package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"AutoPublisher/internal/ports"
	"AutoPublisher/pkg/logger"
)

const (
	DefaultWorkers      = 20
	DefaultMisfireGrace = time.Hour
)

// cronParser supports standard 5-field cron and descriptors like "@daily".
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers bounds how many jobs run at once.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMisfireGrace sets how late a slot run may start before it is dropped.
func WithMisfireGrace(grace time.Duration) Option {
	return func(d *Dispatcher) {
		if grace > 0 {
			d.grace = grace
		}
	}
}

// WithLocation sets the timezone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithWatermarks enables missed-run catch-up on start.
func WithWatermarks(store ports.WatermarkStore) Option {
	return func(d *Dispatcher) { d.marks = store }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

type registration struct {
	trigger  ports.Trigger
	schedule cron.Schedule
}

// Dispatcher fires registered triggers from robfig/cron onto a bounded worker pool.
// Slot triggers are capped at one in-flight run and dropped when they start
// later than the misfire grace.
type Dispatcher struct {
	workers int
	grace   time.Duration
	loc     *time.Location
	marks   ports.WatermarkStore
	logger  *slog.Logger
	now     func() time.Time

	sem  *semaphore.Weighted
	cron *cron.Cron

	mu       sync.Mutex
	regs     []registration
	ids      map[string]struct{}
	inflight map[string]struct{}
	started  bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ ports.Scheduler = (*Dispatcher)(nil)

// NewDispatcher builds an idle dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers:  DefaultWorkers,
		grace:    DefaultMisfireGrace,
		loc:      time.UTC,
		logger:   slog.Default(),
		now:      time.Now,
		ids:      map[string]struct{}{},
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	d.sem = semaphore.NewWeighted(int64(d.workers))
	d.cron = cron.New(
		cron.WithLocation(d.loc),
		cron.WithParser(cronParser),
		cron.WithLogger(logger.NewCron(d.logger)),
	)
	return d
}

// Register adds a trigger. It must be called before Start.
func (d *Dispatcher) Register(t ports.Trigger) error {
	if t.ID == "" || t.Job == nil {
		return errors.New("trigger needs an id and a job")
	}
	schedule, err := ParseSchedule(t.Spec)
	if err != nil {
		return fmt.Errorf("parse %s spec %q: %w", t.ID, t.Spec, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("register %s: dispatcher already started", t.ID)
	}
	if _, dup := d.ids[t.ID]; dup {
		return fmt.Errorf("trigger %s already registered", t.ID)
	}
	d.ids[t.ID] = struct{}{}
	d.regs = append(d.regs, registration{trigger: t, schedule: schedule})
	return nil
}

// Start catches up missed slot runs and starts the cron loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.runCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	regs := append([]registration(nil), d.regs...)
	d.mu.Unlock()

	for _, reg := range regs {
		d.cron.Schedule(reg.schedule, cron.FuncJob(func() {
			d.fire(reg.trigger, d.now().In(d.loc).Truncate(time.Minute))
		}))
	}

	if err := d.catchUp(ctx, regs); err != nil {
		d.logger.Warn("catch-up skipped", "error", err)
	}

	d.cron.Start()
	d.logger.Info("dispatcher started", "triggers", len(regs), "workers", d.workers, "misfire_grace", d.grace.String())
	return nil
}

// Stop halts new triggers and waits for in-flight jobs. If ctx ends first the
// jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	<-d.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// catchUp fires, once, the latest missed scheduled time of each slot that is
// newer than its watermark and still within the grace window. A slot without a
// watermark counts every time in the window as missed.
func (d *Dispatcher) catchUp(ctx context.Context, regs []registration) error {
	if d.marks == nil {
		return nil
	}
	marks, err := d.marks.LoadWatermarks(ctx)
	if err != nil {
		return fmt.Errorf("load watermarks: %w", err)
	}

	now := d.now().In(d.loc)
	for _, reg := range regs {
		if !reg.trigger.Slot {
			continue
		}
		last, ok := marks[reg.trigger.ID]
		if !ok {
			// A slot that never fired is caught up like one handled just before the window.
			last = now.Add(-d.grace)
		}
		missed := latestBetween(reg.schedule, now.Add(-d.grace), now)
		if missed.IsZero() || !missed.After(last) {
			continue
		}
		d.logger.Info("catching up missed slot", "slot", reg.trigger.ID, "scheduled_at", missed, "watermark", last)
		d.fire(reg.trigger, missed)
	}
	return nil
}

// latestBetween returns the last activation in (from, to], or zero.
func latestBetween(schedule cron.Schedule, from, to time.Time) time.Time {
	var latest time.Time
	for next := schedule.Next(from); !next.IsZero() && !next.After(to); next = schedule.Next(next) {
		latest = next
	}
	return latest
}

func (d *Dispatcher) fire(t ports.Trigger, scheduledAt time.Time) {
	if t.Slot && !d.claim(t.ID) {
		d.logger.Warn("slot still running, trigger skipped", "slot", t.ID, "scheduled_at", scheduledAt)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if t.Slot {
			defer d.release(t.ID)
		}

		if err := d.sem.Acquire(d.runCtx, 1); err != nil {
			d.logger.Warn("trigger dropped on shutdown", "trigger", t.ID)
			return
		}
		defer d.sem.Release(1)

		if t.Slot {
			if late := d.now().Sub(scheduledAt); late > d.grace {
				d.logger.Warn("misfire, slot run skipped", "slot", t.ID, "scheduled_at", scheduledAt, "late", late.String())
				d.saveWatermark(t.ID, scheduledAt)
				return
			}
		}

		d.logger.Debug("job started", "trigger", t.ID, "scheduled_at", scheduledAt)
		cron.NewChain(cron.Recover(logger.NewCron(d.logger))).
			Then(cron.FuncJob(func() { t.Job(d.runCtx, scheduledAt) })).
			Run()

		if t.Slot {
			d.saveWatermark(t.ID, scheduledAt)
		}
	}()
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) saveWatermark(id string, at time.Time) {
	if d.marks == nil {
		return
	}
	if err := d.marks.SaveWatermark(context.WithoutCancel(d.runCtx), id, at); err != nil {
		d.logger.Error("save watermark", "slot", id, "error", err)
	}
}

// Entries lists registered trigger ids with their next activation, for diagnostics.
func (d *Dispatcher) Entries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().In(d.loc)
	out := make([]string, 0, len(d.regs))
	for _, reg := range d.regs {
		out = append(out, fmt.Sprintf("%s next=%s", reg.trigger.ID, reg.schedule.Next(now).Format(time.RFC3339)))
	}
	sort.Strings(out)
	return out
}
