package service

import (
	"context"
	"time"

	"procurement/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultReconcileSchedule = "@every 1m"
	reconcileBatch           = 200
)

// ReconcileService re-dispatches notices for facts that committed but were never marked
// dispatched, covering queue overflow and crashes between commit and dispatch.
type ReconcileService struct {
	requests repository.RequestRepository
	steps    repository.StepRepository
	notify   NotificationService
	grace    time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger

	cron *cron.Cron
}

func NewReconcileService(requests repository.RequestRepository, steps repository.StepRepository, notify NotificationService, grace, timeout time.Duration, log *zap.Logger) *ReconcileService {
	return &ReconcileService{
		requests: requests,
		steps:    steps,
		notify:   notify,
		grace:    grace,
		timeout:  timeout,
		now:      time.Now,
		log:      log,
	}
}

// Reconcile returns how many facts were dispatched. Facts younger than the grace period
// are left to the queue.
func (s *ReconcileService) Reconcile(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	sent := 0

	loadCtx, cancel := withTimeout(ctx, s.timeout)
	requests, err := s.requests.ListCreatedUnnotified(loadCtx, reconcileBatch)
	err = storeErr(loadCtx, err, "list undispatched requests")
	cancel()
	if err != nil {
		return 0, err
	}
	for _, req := range requests {
		if req.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.notify.OnRequestCreated(ctx, req); err != nil {
			s.log.Error("reconcile request failed", zap.String("request_id", req.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}

	loadCtx, cancel = withTimeout(ctx, s.timeout)
	steps, err := s.steps.ListDecidedUnnotified(loadCtx, reconcileBatch)
	err = storeErr(loadCtx, err, "list undispatched steps")
	cancel()
	if err != nil {
		return sent, err
	}
	for _, step := range steps {
		if step.DecidedAt == nil || step.DecidedAt.After(cutoff) {
			continue
		}
		findCtx, cancel := withTimeout(ctx, s.timeout)
		req, err := s.requests.FindByID(findCtx, step.RequestID)
		err = storeErr(findCtx, err, "load request")
		cancel()
		if err != nil {
			s.log.Error("reconcile step failed", zap.String("step_id", step.ID.String()), zap.Error(err))
			continue
		}
		if err := s.notify.OnStepDecided(ctx, *req, step); err != nil {
			s.log.Error("reconcile step failed", zap.String("step_id", step.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		s.log.Info("reconciled notifications", zap.Int("count", sent))
	}
	return sent, nil
}

func (s *ReconcileService) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Reconcile(context.Background()); err != nil {
			s.log.Error("reconcile run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("reconciler started", zap.String("schedule", schedule))
	return nil
}

func (s *ReconcileService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
