package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AutoPublisher/internal/ports"
)

// Default maintenance schedules.
const (
	DefaultDailyReportSpec = "50 23 * * *"
	DefaultPoolRefreshSpec = "0 0 * * 0"
	DefaultMonthlyPlanSpec = "0 1 25 * *"
)

// SlotSpec is one recurring publish time of a site. Weekday uses Monday=0.
type SlotSpec struct {
	Site     string
	Weekday  int
	Hour     int
	Minute   int
	Category string
}

// ID is the stable trigger id {site}_{weekday}_{hour}_{minute}.
func (s SlotSpec) ID() string {
	return fmt.Sprintf("%s_%d_%d_%d", s.Site, s.Weekday, s.Hour, s.Minute)
}

// CronSpec converts the slot to a five-field cron expression (cron counts Sunday as 0).
func (s SlotSpec) CronSpec() string {
	return fmt.Sprintf("%d %d * * %d", s.Minute, s.Hour, (s.Weekday+1)%7)
}

// MaintenanceSpecs holds cron expressions for the non-publishing jobs; empty disables a job.
type MaintenanceSpecs struct {
	DailyReport string
	PoolRefresh string
	MonthlyPlan string
}

// SchedulerJobs lists the use cases the scheduler triggers.
type SchedulerJobs struct {
	Orchestrator *Orchestrator
	Reporter     *Reporter
	Refresher    *PoolRefresher
	Planner      *Planner
	Slots        []SlotSpec
	Maintenance  MaintenanceSpecs
	Logger       *slog.Logger
}

// Scheduler wires the cron driver with the publishing use cases.
type Scheduler struct {
	driver ports.Scheduler
	jobs   SchedulerJobs
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, jobs SchedulerJobs) *Scheduler {
	logger := jobs.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, jobs: jobs, logger: logger.With("component", "scheduler")}
}

// Triggers builds the slot and maintenance registrations.
func (s *Scheduler) Triggers() []ports.Trigger {
	var triggers []ports.Trigger

	if s.jobs.Orchestrator != nil {
		for _, slot := range s.jobs.Slots {
			triggers = append(triggers, ports.Trigger{
				ID:   slot.ID(),
				Spec: slot.CronSpec(),
				Slot: true,
				Job:  s.slotJob(slot),
			})
		}
	}

	m := s.jobs.Maintenance
	if s.jobs.Reporter != nil && m.DailyReport != "" {
		triggers = append(triggers, ports.Trigger{ID: "daily_report", Spec: m.DailyReport, Job: func(ctx context.Context, at time.Time) {
			if _, err := s.jobs.Reporter.Report(ctx, at); err != nil {
				s.logger.Error("daily report", "error", err)
			}
		}})
	}
	if s.jobs.Refresher != nil && m.PoolRefresh != "" {
		triggers = append(triggers, ports.Trigger{ID: "weekly_maintenance", Spec: m.PoolRefresh, Job: func(ctx context.Context, at time.Time) {
			if _, err := s.jobs.Refresher.Refresh(ctx, at); err != nil {
				s.logger.Error("pool refresh", "error", err)
			}
		}})
	}
	if s.jobs.Planner != nil && m.MonthlyPlan != "" {
		triggers = append(triggers, ports.Trigger{ID: "monthly_plan", Spec: m.MonthlyPlan, Job: func(ctx context.Context, at time.Time) {
			if _, err := s.jobs.Planner.EnsureNextMonth(ctx, at); err != nil {
				s.logger.Error("monthly plan", "error", err)
			}
		}})
	}
	return triggers
}

func (s *Scheduler) slotJob(slot SlotSpec) ports.Job {
	id := slot.ID()
	return func(ctx context.Context, scheduledAt time.Time) {
		// Failures are logged and written to the ledger by the orchestrator.
		_, _ = s.jobs.Orchestrator.Run(ctx, RunRequest{
			SlotID:   id,
			Site:     slot.Site,
			Date:     scheduledAt,
			Category: slot.Category,
		})
	}
}

// Start registers every trigger with the driver and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	triggers := s.Triggers()
	for _, t := range triggers {
		if err := s.driver.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.ID, err)
		}
	}
	s.logger.Info("jobs scheduled", "count", len(triggers))

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
