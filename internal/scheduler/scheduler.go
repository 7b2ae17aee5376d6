package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// TimelineStarter is what the scheduler needs to kick off a run.
// Satisfied by engine.Manager.
type TimelineStarter interface {
	StartTimeline(ctx context.Context, timelineID, nodeID string, manual bool) error
}

// Run outcomes recorded in Schedule.LastRunStatus.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultInterval is how often the store is polled for due schedules.
const DefaultInterval = 30 * time.Second

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler polls the store for due schedules and starts their timelines.
type Scheduler struct {
	store    store.Store
	starter  TimelineStarter
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule ids currently starting
}

// NewScheduler creates a Scheduler. Cron expressions use the standard five
// fields and also accept descriptors such as "@hourly".
func NewScheduler(s store.Store, starter TimelineStarter, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	sched := &Scheduler{
		store:    s,
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(sched)
	}
	return sched
}

// Add validates cronExpr and stores an enabled schedule for a timeline.
func (s *Scheduler) Add(ctx context.Context, timelineID, startNodeID, cronExpr string, manual bool) (*store.Schedule, error) {
	if strings.TrimSpace(timelineID) == "" || strings.TrimSpace(startNodeID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "schedule needs a timeline id and a start node id")
	}
	if _, err := s.store.GetTimeline(ctx, timelineID); err != nil {
		return nil, err
	}
	now := s.now()
	next, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", cronExpr).WithCause(err)
	}
	sched := &store.Schedule{
		ID:             uuid.New().String(),
		TimelineID:     timelineID,
		StartNodeID:    startNodeID,
		CronExpression: cronExpr,
		Manual:         manual,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule added",
		slog.String("schedule_id", sched.ID),
		slog.String("timeline_id", timelineID),
		slog.String("cron", cronExpr),
		slog.Time("next_run_at", next),
	)
	return sched, nil
}

// SetEnabled turns a schedule on or off. Re-enabling recomputes the next run
// so a long-disabled schedule does not fire immediately.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	update := store.ScheduleUpdate{Enabled: &enabled}
	if enabled && !sched.Enabled {
		next, err := s.CalculateNextRun(sched.CronExpression, s.now())
		if err != nil {
			return err
		}
		update.NextRunAt = &next
	}
	return s.store.UpdateSchedule(ctx, id, update)
}

// Remove deletes a schedule.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	return s.store.DeleteSchedule(ctx, id)
}

// Start launches the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts every enabled schedule whose next run is due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := s.now()
	for _, sched := range scheds {
		if sched.NextRunAt != nil && sched.NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue
		}
		if err := s.run(ctx, sched, now); err != nil {
			s.logger.Error("failed to run schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
		}
		s.release(sched.ID)
	}
}

// run starts the schedule's timeline and records the outcome.
func (s *Scheduler) run(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("running schedule",
		slog.String("schedule_id", sched.ID),
		slog.String("timeline_id", sched.TimelineID),
		slog.String("start_node_id", sched.StartNodeID),
	)

	status := StatusSuccess
	if err := s.starter.StartTimeline(ctx, sched.TimelineID, sched.StartNodeID, sched.Manual); err != nil {
		status = StatusError
		s.logger.Error("scheduled start failed",
			slog.String("schedule_id", sched.ID),
			slog.String("timeline_id", sched.TimelineID),
			slog.String("error", err.Error()),
		)
	}

	next, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		disabled := false
		_ = s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{Enabled: &disabled, LastRunAt: &now, LastRunStatus: StatusError})
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}
	return s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &next,
		LastRunStatus: status,
	})
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the first activation of cronExpr after from.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop shuts down the polling loop and waits for an in-progress tick.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs once every schedule whose next run passed while the
// process was down. tick treats them the same way; this exists so startup
// can log how many were caught up before the loop begins.
func (s *Scheduler) RecoverMissed(ctx context.Context) (int, error) {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return 0, fmt.Errorf("list missed schedules: %w", err)
	}

	now := s.now()
	recovered := 0
	for _, sched := range scheds {
		if sched.NextRunAt == nil || !sched.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue
		}
		err := s.run(ctx, sched, now)
		s.release(sched.ID)
		if err != nil {
			s.logger.Error("failed to recover missed schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return recovered, nil
}
