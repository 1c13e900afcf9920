package service

import (
	"context"
	"sync"
	"time"

	"procurement/internal/model"

	"go.uber.org/zap"
)

// Notifier receives committed workflow facts. Implementations must not block the caller.
type Notifier interface {
	RequestCreated(req model.Request)
	StepDecided(req model.Request, step model.ApprovalStep)
}

const DefaultQueueSize = 256

type notifyJob struct {
	req  model.Request
	step *model.ApprovalStep
}

// NotificationQueue hands notices to a single FIFO worker so dispatch never sits on the
// decision path. A full queue drops the job; the reconciler re-sends anything undispatched.
type NotificationQueue struct {
	svc     NotificationService
	jobs    chan notifyJob
	done    chan struct{}
	timeout time.Duration
	log     *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewNotificationQueue(svc NotificationService, size int, timeout time.Duration, log *zap.Logger) *NotificationQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &NotificationQueue{
		svc:     svc,
		jobs:    make(chan notifyJob, size),
		done:    make(chan struct{}),
		timeout: timeout,
		log:     log,
	}
}

func (q *NotificationQueue) RequestCreated(req model.Request) {
	q.enqueue(notifyJob{req: req})
}

func (q *NotificationQueue) StepDecided(req model.Request, step model.ApprovalStep) {
	q.enqueue(notifyJob{req: req, step: &step})
}

func (q *NotificationQueue) enqueue(job notifyJob) {
	select {
	case q.jobs <- job:
	default:
		q.log.Warn("notification queue full, leaving for reconciler",
			zap.String("request_id", job.req.ID.String()))
	}
}

func (q *NotificationQueue) Start() {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.run()
	})
}

// Stop drains queued jobs and waits for the worker, or gives up when ctx ends.
func (q *NotificationQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.done) })

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *NotificationQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.handle(job)
		case <-q.done:
			for {
				select {
				case job := <-q.jobs:
					q.handle(job)
				default:
					return
				}
			}
		}
	}
}

func (q *NotificationQueue) handle(job notifyJob) {
	ctx, cancel := withTimeout(context.Background(), q.timeout)
	defer cancel()

	var err error
	if job.step == nil {
		err = q.svc.OnRequestCreated(ctx, job.req)
	} else {
		err = q.svc.OnStepDecided(ctx, job.req, *job.step)
	}
	if err != nil {
		q.log.Error("notification dispatch failed",
			zap.String("request_id", job.req.ID.String()),
			zap.Error(err))
	}
}
