package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher receives committed changes for live sessions.
type EventPublisher interface {
	Publish(events ...realtime.Event)
}

// LedgerService is the RequestLedger: it owns request creation and the read side.
type LedgerService interface {
	Submit(ctx context.Context, requesterID uuid.UUID, req SubmitRequestDTO) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (RequestResponse, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, page, limit int) ([]RequestResponse, int64, error)
	ListPendingForRole(ctx context.Context, role model.Role, approverID uuid.UUID, page, limit int) ([]RequestResponse, int64, error)
}

type ledgerService struct {
	requests  repository.RequestRepository
	steps     repository.StepRepository
	effects   repository.EffectRepository
	inventory repository.InventoryRepository
	users     repository.UserRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	policy    ChainPolicy
	locks     *RequestLocks
	events    EventPublisher
	notifier  Notifier
	timeout   time.Duration
	log       *zap.Logger
}

type LedgerDeps struct {
	Requests  repository.RequestRepository
	Steps     repository.StepRepository
	Effects   repository.EffectRepository
	Inventory repository.InventoryRepository
	Users     repository.UserRepository
	Audit     repository.AuditRepository
	TxManager repository.TransactionManager
	Policy    ChainPolicy
	Locks     *RequestLocks
	Events    EventPublisher
	Notifier  Notifier
	Timeout   time.Duration
	Log       *zap.Logger
}

func NewLedgerService(d LedgerDeps) LedgerService {
	return &ledgerService{
		requests:  d.Requests,
		steps:     d.Steps,
		effects:   d.Effects,
		inventory: d.Inventory,
		users:     d.Users,
		audit:     d.Audit,
		txManager: d.TxManager,
		policy:    d.Policy,
		locks:     d.Locks,
		events:    d.Events,
		notifier:  d.Notifier,
		timeout:   d.Timeout,
		log:       d.Log,
	}
}

func (s *ledgerService) Submit(ctx context.Context, requesterID uuid.UUID, in SubmitRequestDTO) (uuid.UUID, error) {
	in, err := normalizeSubmit(in)
	if err != nil {
		return uuid.Nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, invalid("requester_id", "unknown user")
		}
		return uuid.Nil, storeErr(ctx, err, "load requester")
	}

	var token *string
	if in.ClientToken != "" {
		token = &in.ClientToken
		if existing, findErr := s.requests.FindByClientToken(ctx, requester.ID, in.ClientToken); findErr == nil {
			return existing.ID, nil
		} else if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return uuid.Nil, storeErr(ctx, findErr, "check client token")
		}
	}

	req := model.Request{
		ID:          uuid.New(),
		Type:        in.Type,
		RequesterID: requester.ID,
		ClientToken: token,
		ItemName:    in.ItemName,
		SKU:         in.SKU,
		Vendor:      in.Vendor,
		Amount:      in.Amount,
		Quantity:    in.Quantity,
		Priority:    in.Priority,
		Description: in.Description,
		Status:      model.RequestPending,
	}
	roles := s.policy.RequiredRoles(req.Type, req.Amount)

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	var steps []model.ApprovalStep
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		requestNo, err := s.requests.NextRequestNo(txCtx, req.Type)
		if err != nil {
			return storeErr(txCtx, err, "generate request number")
		}
		req.RequestNo = requestNo

		if err := s.requests.Create(txCtx, &req); err != nil {
			return storeErr(txCtx, err, "create request")
		}

		steps = make([]model.ApprovalStep, 0, len(roles))
		for i, role := range roles {
			steps = append(steps, model.ApprovalStep{
				RequestID: req.ID,
				Role:      role,
				Position:  i,
				Decision:  model.DecisionPending,
			})
		}
		if err := s.steps.CreateBatch(txCtx, steps); err != nil {
			return storeErr(txCtx, err, "create approval steps")
		}

		if req.Type == model.RequestTypeInventoryChange {
			if err := s.reserveInventory(txCtx, &req); err != nil {
				return err
			}
		}

		return storeErr(txCtx, s.audit.Record(txCtx, &req.RequesterID, model.ActionSubmitRequest, req.ID.String(), req.RequestNo, map[string]interface{}{
			"type":     req.Type,
			"amount":   req.Amount.StringFixed(2),
			"quantity": req.Quantity,
			"chain":    roles,
		}), "write audit log")
	})
	if err != nil {
		// A concurrent submit with the same token won the unique index.
		if token != nil {
			if existing, findErr := s.requests.FindByClientToken(ctx, req.RequesterID, *token); findErr == nil {
				return existing.ID, nil
			}
		}
		return uuid.Nil, err
	}

	stored, err := s.requests.FindByID(ctx, req.ID)
	if err == nil {
		req = *stored
	}
	events := []realtime.Event{realtime.RequestEvent(realtime.OpInsert, &req, roles)}
	for i := range steps {
		events = append(events, realtime.StepEvent(realtime.OpInsert, &req, &steps[i], roles))
	}
	s.events.Publish(events...)
	s.notifier.RequestCreated(req)

	s.log.Info("request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("request_no", req.RequestNo),
		zap.String("type", string(req.Type)),
		zap.Int("steps", len(steps)))

	return req.ID, nil
}

// reserveInventory makes sure the SKU has a row the approval can later activate.
// An unknown SKU gets a zero-quantity pending placeholder owned by this request.
func (s *ledgerService) reserveInventory(ctx context.Context, req *model.Request) error {
	item, err := s.inventory.FindBySKUForUpdate(ctx, req.SKU)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storeErr(ctx, s.inventory.Create(ctx, &model.InventoryItem{
			SKU:              req.SKU,
			Name:             req.ItemName,
			Quantity:         0,
			Status:           model.InventoryPending,
			PendingRequestID: &req.ID,
		}), "create inventory placeholder")
	case err != nil:
		return storeErr(ctx, err, "load inventory item")
	}

	switch item.Status {
	case model.InventoryActive:
		return nil
	case model.InventoryPending:
		return invalid("sku", "another change for this item is awaiting approval")
	case model.InventoryDiscarded:
		item.Status = model.InventoryPending
		item.Name = req.ItemName
		item.Quantity = 0
		item.PendingRequestID = &req.ID
		return storeErr(ctx, s.inventory.Update(ctx, item), "reopen inventory placeholder")
	}
	return invalid("sku", "inventory item is in unknown state "+string(item.Status))
}

func (s *ledgerService) Get(ctx context.Context, id uuid.UUID) (RequestResponse, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.requests.FindByIDWithSteps(ctx, id)
	if err != nil {
		return RequestResponse{}, storeErr(ctx, err, "load request")
	}
	effects, err := s.effects.ListByRequest(ctx, id)
	if err != nil {
		return RequestResponse{}, storeErr(ctx, err, "load effects")
	}

	resp := toRequestResponse(*req)
	for _, e := range effects {
		resp.Effects = append(resp.Effects, toEffectResponse(e))
	}
	return resp, nil
}

func (s *ledgerService) ListByRequester(ctx context.Context, requesterID uuid.UUID, page, limit int) ([]RequestResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	requests, total, err := s.requests.ListByRequester(ctx, requesterID, page, limit)
	if err != nil {
		return nil, 0, storeErr(ctx, err, "list requests")
	}
	return toRequestResponses(requests), total, nil
}

func (s *ledgerService) ListPendingForRole(ctx context.Context, role model.Role, approverID uuid.UUID, page, limit int) ([]RequestResponse, int64, error) {
	if !role.Approver() {
		return nil, 0, invalid("role", "not an approver role")
	}
	page, limit = normalizePage(page, limit)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var exclude *uuid.UUID
	if approverID != uuid.Nil {
		exclude = &approverID
	}
	requests, total, err := s.requests.ListPendingForRole(ctx, role, exclude, page, limit)
	if err != nil {
		return nil, 0, storeErr(ctx, err, "list pending requests")
	}
	return toRequestResponses(requests), total, nil
}

func normalizeSubmit(in SubmitRequestDTO) (SubmitRequestDTO, error) {
	in.ItemName = strings.TrimSpace(in.ItemName)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Vendor = strings.TrimSpace(in.Vendor)
	in.ClientToken = strings.TrimSpace(in.ClientToken)

	if !in.Type.Valid() {
		return in, invalid("type", "must be purchase or inventory_change")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		return in, invalid("priority", "must be low, normal, high or urgent")
	}
	if in.ItemName == "" {
		return in, invalid("item_name", "is required")
	}
	if len(in.ClientToken) > 100 {
		return in, invalid("client_token", "must be at most 100 characters")
	}

	switch in.Type {
	case model.RequestTypePurchase:
		if !in.Amount.IsPositive() {
			return in, invalid("amount", "must be greater than 0")
		}
		if in.Quantity == 0 {
			in.Quantity = 1
		}
		if in.Quantity < 0 {
			return in, invalid("quantity", "must be greater than 0")
		}
	case model.RequestTypeInventoryChange:
		if in.SKU == "" {
			return in, invalid("sku", "is required for inventory changes")
		}
		if in.Quantity <= 0 {
			return in, invalid("quantity", "must be greater than 0")
		}
		if in.Amount.IsNegative() {
			return in, invalid("amount", "must not be negative")
		}
	}
	return in, nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func toRequestResponses(requests []model.Request) []RequestResponse {
	result := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toRequestResponse(r))
	}
	return result
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
