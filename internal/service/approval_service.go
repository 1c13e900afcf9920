package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DecideInput is one approver's action on their own step.
type DecideInput struct {
	RequestID  uuid.UUID
	Role       model.Role
	ApproverID uuid.UUID
	Decision   model.Decision
	Comments   string
}

// ApprovalService is the ApprovalCoordinator. Decide records a decision, recomputes the
// request status and, on completion, executes the downstream effect in one transaction.
type ApprovalService interface {
	Decide(ctx context.Context, in DecideInput) (DecisionResult, error)
}

type approvalService struct {
	requests  repository.RequestRepository
	steps     repository.StepRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	executor  EffectExecutor
	locks     *RequestLocks
	events    EventPublisher
	notifier  Notifier
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

type ApprovalDeps struct {
	Requests  repository.RequestRepository
	Steps     repository.StepRepository
	Audit     repository.AuditRepository
	TxManager repository.TransactionManager
	Executor  EffectExecutor
	Locks     *RequestLocks
	Events    EventPublisher
	Notifier  Notifier
	Timeout   time.Duration
	Log       *zap.Logger
}

func NewApprovalService(d ApprovalDeps) ApprovalService {
	return &approvalService{
		requests:  d.Requests,
		steps:     d.Steps,
		audit:     d.Audit,
		txManager: d.TxManager,
		executor:  d.Executor,
		locks:     d.Locks,
		events:    d.Events,
		notifier:  d.Notifier,
		timeout:   d.Timeout,
		now:       time.Now,
		log:       d.Log,
	}
}

// --- Implementation ---

func (s *approvalService) Decide(ctx context.Context, in DecideInput) (DecisionResult, error) {
	if in.Decision != model.DecisionApproved && in.Decision != model.DecisionRejected {
		return DecisionResult{}, invalid("decision", "must be approved or rejected")
	}
	if !in.Role.Approver() {
		return DecisionResult{}, invalid("role", "not an approver role")
	}
	if in.ApproverID == uuid.Nil {
		return DecisionResult{}, invalid("approver_id", "is required")
	}

	// The in-process lock orders commit+publish per request; the row lock below
	// is what excludes approvers running in other processes.
	unlock := s.locks.Lock(in.RequestID)
	defer unlock()

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var (
		req    *model.Request
		steps  []model.ApprovalStep
		step   *model.ApprovalStep
		effect *EffectResult
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.FindByIDForUpdate(txCtx, in.RequestID)
		if err != nil {
			return storeErr(txCtx, err, "load request")
		}
		steps, err = s.steps.ListByRequest(txCtx, req.ID)
		if err != nil {
			return storeErr(txCtx, err, "load approval steps")
		}

		idx := -1
		for i := range steps {
			if steps[i].Role == in.Role {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("no %s step on request %s: %w", in.Role, req.RequestNo, ErrNotFound)
		}
		step = &steps[idx]

		if step.Decision != model.DecisionPending {
			return fmt.Errorf("%s step on %s is already %s: %w", in.Role, req.RequestNo, step.Decision, ErrAlreadyDecided)
		}
		if req.Status.Terminal() {
			return fmt.Errorf("request %s is %s: %w", req.RequestNo, req.Status, ErrAlreadyTerminal)
		}
		if req.RequesterID == in.ApproverID {
			return invalid("approver_id", "cannot decide a step on your own request")
		}
		for _, earlier := range steps[:idx] {
			if earlier.Decision != model.DecisionApproved {
				return fmt.Errorf("%s step on %s waits for %s: %w", in.Role, req.RequestNo, earlier.Role, ErrOutOfOrder)
			}
		}

		now := s.now()
		step.Decision = in.Decision
		step.ApproverID = &in.ApproverID
		step.DecidedAt = &now
		step.Comments = in.Comments

		recorded, err := s.steps.RecordDecision(txCtx, step)
		if err != nil {
			return storeErr(txCtx, err, "record decision")
		}
		if !recorded {
			return fmt.Errorf("%s step on %s: %w", in.Role, req.RequestNo, ErrAlreadyDecided)
		}

		state := evaluate(steps)
		if err := s.requests.UpdateStatus(txCtx, req.ID, state.status()); err != nil {
			return storeErr(txCtx, err, "update request status")
		}
		req.Status = state.status()

		switch state.(type) {
		case chainRejected:
			if err := s.executor.Discard(txCtx, req, step); err != nil {
				return err
			}
		case chainApproved:
			result, err := s.executor.Execute(txCtx, req, step)
			if err != nil {
				return err
			}
			effect = &result
		case chainPending:
		}

		action := model.ActionApproveStep
		if in.Decision == model.DecisionRejected {
			action = model.ActionRejectStep
		}
		if err := s.audit.Record(txCtx, &in.ApproverID, action, req.ID.String(), req.RequestNo, map[string]interface{}{
			"role":     in.Role,
			"comments": in.Comments,
			"status":   req.Status,
		}); err != nil {
			return storeErr(txCtx, err, "write audit log")
		}

		// Reload so the published payload carries the committed updated_at.
		req, err = s.requests.FindByID(txCtx, req.ID)
		if err != nil {
			return storeErr(txCtx, err, "reload request")
		}
		steps, err = s.steps.ListByRequest(txCtx, req.ID)
		if err != nil {
			return storeErr(txCtx, err, "reload approval steps")
		}
		step = &steps[idx]
		return nil
	})
	if err != nil {
		if !isWorkflowError(err) {
			err = storeErr(ctx, err, "decide")
		}
		if errors.Is(err, ErrEffectExecution) {
			s.log.Error("approval rolled back: downstream effect failed",
				zap.String("request_id", in.RequestID.String()),
				zap.String("role", string(in.Role)),
				zap.Error(err))
		}
		return DecisionResult{}, err
	}

	roles := stepRoles(steps)
	s.events.Publish(
		realtime.StepEvent(realtime.OpUpdate, req, step, roles),
		realtime.RequestEvent(realtime.OpUpdate, req, roles),
	)
	s.notifier.StepDecided(*req, *step)

	s.log.Info("approval step decided",
		zap.String("request_id", req.ID.String()),
		zap.String("role", string(in.Role)),
		zap.String("decision", string(in.Decision)),
		zap.String("status", string(req.Status)))

	result := DecisionResult{
		RequestID: req.ID.String(),
		Status:    req.Status,
		Step:      toStepResponse(*step),
	}
	if effect != nil {
		resp := toEffectResponse(effect.Effect)
		result.Effect = &resp
	}
	return result, nil
}
