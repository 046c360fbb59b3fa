// Package jobs schedules the daily batch jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/reconcile"
	"github.com/localnerve/meddb/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler is the part of reconcile.Engine the scheduler needs.
type Reconciler interface {
	Run(ctx context.Context, trigger string) (*models.ReconciliationRun, error)
}

// Starter is implemented by reconcilers that can claim a run synchronously and finish it
// in the background, as reconcile.Engine does.
type Starter interface {
	Start(ctx context.Context, trigger string, done func(*models.ReconciliationRun, error)) error
}

// Config holds the cron specs. An empty spec disables that job.
type Config struct {
	ReconcileSchedule   string
	MaintenanceSchedule string
	RunOnStart          bool
	// JobTimeout bounds a single job run. Zero means no bound.
	JobTimeout time.Duration
}

// Scheduler runs reconciliation and maintenance on cron schedules. Jobs never overlap.
type Scheduler struct {
	cron       *cron.Cron
	db         *gorm.DB
	reconciler Reconciler
	cfg        Config
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// background tracks runs started outside the cron loop.
	background sync.WaitGroup
}

// New registers the jobs. Invalid cron specs are returned as errors.
func New(db *gorm.DB, reconciler Reconciler, cfg Config, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		db:         db,
		reconciler: reconciler,
		cfg:        cfg,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.ReconcileSchedule != "" && reconciler != nil {
		if _, err := s.cron.AddFunc(cfg.ReconcileSchedule, func() { s.Reconcile(reconcile.TriggerSchedule) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
		}
	}
	if cfg.MaintenanceSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.MaintenanceSchedule, s.Maintain); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.MaintenanceSchedule, err)
		}
	}
	return s, nil
}

// Start starts the cron loop and, when configured, runs both jobs once in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("batch scheduler started",
		zap.String("reconcile_schedule", s.cfg.ReconcileSchedule),
		zap.String("maintenance_schedule", s.cfg.MaintenanceSchedule),
		zap.Int("entries", len(s.cron.Entries())))

	if s.cfg.RunOnStart {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.Maintain()
			if s.reconciler != nil {
				s.Reconcile(reconcile.TriggerStartup)
			}
		}()
	}
}

// Stop cancels running jobs and waits for them to return, background runs included.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.background.Wait()
	s.log.Info("batch scheduler stopped")
}

// Reconcile runs one reconciliation pass.
func (s *Scheduler) Reconcile(trigger string) {
	ctx, cancel := s.jobContext()
	defer cancel()

	run, err := s.reconciler.Run(ctx, trigger)
	s.logRun(trigger, run, err)
}

// ReconcileAsync starts a pass in the background. When the reconciler is a Starter, a pass
// already in progress is reported as reconcile.ErrAlreadyRunning instead of being skipped
// silently.
func (s *Scheduler) ReconcileAsync(trigger string) error {
	if s.reconciler == nil {
		return errors.New("no reconciler configured")
	}

	starter, ok := s.reconciler.(Starter)
	if !ok {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.Reconcile(trigger)
		}()
		return nil
	}

	ctx, cancel := s.jobContext()
	s.background.Add(1)
	err := starter.Start(ctx, trigger, func(run *models.ReconciliationRun, err error) {
		defer s.background.Done()
		defer cancel()
		s.logRun(trigger, run, err)
	})
	if err != nil {
		cancel()
		s.background.Done()
		return err
	}
	return nil
}

func (s *Scheduler) logRun(trigger string, run *models.ReconciliationRun, err error) {
	switch {
	case errors.Is(err, reconcile.ErrAlreadyRunning):
		s.log.Info("reconciliation skipped, a run is in progress", zap.String("trigger", trigger))
	case err != nil:
		s.log.Error("reconciliation failed", zap.String("trigger", trigger), zap.Error(err))
	default:
		s.log.Info("reconciliation completed", zap.String("run_id", run.ID))
	}
}

// Maintain repairs person names that were stored as e-mail addresses.
func (s *Scheduler) Maintain() {
	ctx, cancel := s.jobContext()
	defer cancel()

	fixed, err := services.FixEmailLikeNames(s.db.WithContext(ctx))
	if err != nil {
		s.log.Error("name repair failed", zap.Int("fixed", fixed), zap.Error(err))
		return
	}
	s.log.Info("name repair completed", zap.Int("fixed", fixed))
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(s.ctx)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
