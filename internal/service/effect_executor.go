package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EffectResult describes the downstream resource of a fully approved request.
type EffectResult struct {
	Effect model.DownstreamEffect
	// Replayed is true when the effect already existed and nothing was written.
	Replayed bool
}

// EffectExecutor creates the downstream resource of a request exactly once.
// Execute joins the transaction carried by ctx, so a failure rolls back the approval that triggered it.
type EffectExecutor interface {
	Execute(ctx context.Context, req *model.Request, step *model.ApprovalStep) (EffectResult, error)
	// Discard releases what a rejected request had reserved.
	Discard(ctx context.Context, req *model.Request, step *model.ApprovalStep) error
}

type effectExecutor struct {
	effects   repository.EffectRepository
	orders    repository.PurchaseOrderRepository
	inventory repository.InventoryRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	log       *zap.Logger
}

func NewEffectExecutor(
	effects repository.EffectRepository,
	orders repository.PurchaseOrderRepository,
	inventory repository.InventoryRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	log *zap.Logger,
) EffectExecutor {
	return &effectExecutor{
		effects:   effects,
		orders:    orders,
		inventory: inventory,
		audit:     audit,
		txManager: txManager,
		log:       log,
	}
}

func effectTypeOf(t model.RequestType) (model.EffectType, error) {
	switch t {
	case model.RequestTypePurchase:
		return model.EffectPurchaseOrder, nil
	case model.RequestTypeInventoryChange:
		return model.EffectInventoryActivation, nil
	}
	return "", fmt.Errorf("unknown request type: %s", t)
}

func (e *effectExecutor) Execute(ctx context.Context, req *model.Request, step *model.ApprovalStep) (EffectResult, error) {
	effectType, err := effectTypeOf(req.Type)
	if err != nil {
		return EffectResult{}, &EffectError{RequestID: req.ID, EffectType: effectType, Err: err}
	}
	fail := func(err error) error {
		return &EffectError{RequestID: req.ID, EffectType: effectType, Err: err}
	}

	var result EffectResult
	err = e.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := e.effects.FindByKey(txCtx, req.ID, effectType)
		if err == nil {
			result = EffectResult{Effect: *existing, Replayed: true}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(storeErr(txCtx, err, "look up effect"))
		}

		var resource model.DownstreamEffect
		switch effectType {
		case model.EffectPurchaseOrder:
			resource, err = e.createPurchaseOrder(txCtx, req, step)
		case model.EffectInventoryActivation:
			resource, err = e.activateInventory(txCtx, req, step)
		}
		if err != nil {
			return fail(err)
		}

		resource.RequestID = req.ID
		resource.EffectType = effectType
		resource.IdempotencyKey = model.IdempotencyKey(req.ID, effectType)
		resource.ExecutedAt = time.Now()

		created, err := e.effects.Create(txCtx, &resource)
		if err != nil {
			return fail(storeErr(txCtx, err, "record effect"))
		}
		if !created {
			return fail(errors.New("effect was recorded by a concurrent writer"))
		}
		result = EffectResult{Effect: resource}
		return nil
	})
	if err != nil {
		var effectErr *EffectError
		if !errors.As(err, &effectErr) {
			err = fail(storeErr(ctx, err, "execute effect"))
		}
		return EffectResult{}, err
	}

	if !result.Replayed {
		e.log.Info("downstream effect executed",
			zap.String("request_id", req.ID.String()),
			zap.String("effect_type", string(effectType)),
			zap.String("resource_id", result.Effect.ResourceID.String()))
	}
	return result, nil
}

// createPurchaseOrder opens a purchase order in its initial procurement status.
func (e *effectExecutor) createPurchaseOrder(ctx context.Context, req *model.Request, step *model.ApprovalStep) (model.DownstreamEffect, error) {
	orderNo, err := e.orders.NextOrderNo(ctx)
	if err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "generate order number")
	}

	order := model.PurchaseOrder{
		OrderNo:     orderNo,
		RequestID:   req.ID,
		RequesterID: req.RequesterID,
		ItemName:    req.ItemName,
		Vendor:      req.Vendor,
		Quantity:    req.Quantity,
		Amount:      req.Amount,
		Status:      model.PurchaseOrderPendingProcurement,
	}
	if err := e.orders.Create(ctx, &order); err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "create purchase order")
	}

	if err := e.audit.Record(ctx, actorOf(step), model.ActionCreatePurchaseOrder, order.ID.String(), orderNo, map[string]interface{}{
		"request_id": req.ID.String(),
		"request_no": req.RequestNo,
		"amount":     req.Amount.StringFixed(2),
	}); err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "write audit log")
	}

	return model.DownstreamEffect{ResourceID: order.ID}, nil
}

// activateInventory moves the request's inventory row to active at the approved quantity.
// A placeholder starts from 0; an already active item is topped up.
func (e *effectExecutor) activateInventory(ctx context.Context, req *model.Request, step *model.ApprovalStep) (model.DownstreamEffect, error) {
	item, err := e.inventory.FindBySKUForUpdate(ctx, req.SKU)
	if err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "load inventory item "+req.SKU)
	}

	switch item.Status {
	case model.InventoryPending:
		if item.PendingRequestID == nil || *item.PendingRequestID != req.ID {
			return model.DownstreamEffect{}, fmt.Errorf("inventory item %s is reserved by another request", req.SKU)
		}
		item.Quantity = 0
	case model.InventoryActive:
	default:
		return model.DownstreamEffect{}, fmt.Errorf("inventory item %s is %s", req.SKU, item.Status)
	}

	stockAfter := item.Quantity + req.Quantity
	item.Quantity = stockAfter
	item.Status = model.InventoryActive
	item.PendingRequestID = nil
	if err := e.inventory.Update(ctx, item); err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "activate inventory item")
	}

	invTx := model.InventoryTransaction{
		InventoryItemID: item.ID,
		RequestID:       &req.ID,
		TransactionType: model.TxTypeIn,
		QuantityChanged: req.Quantity,
		StockAfter:      stockAfter,
	}
	if err := e.inventory.RecordTransaction(ctx, &invTx); err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "record inventory transaction")
	}

	if err := e.audit.Record(ctx, actorOf(step), model.ActionActivateInventory, item.ID.String(), item.SKU, map[string]interface{}{
		"request_id":  req.ID.String(),
		"quantity":    req.Quantity,
		"stock_after": stockAfter,
	}); err != nil {
		return model.DownstreamEffect{}, storeErr(ctx, err, "write audit log")
	}

	return model.DownstreamEffect{ResourceID: item.ID}, nil
}

func (e *effectExecutor) Discard(ctx context.Context, req *model.Request, step *model.ApprovalStep) error {
	if req.Type != model.RequestTypeInventoryChange {
		return nil
	}
	return e.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := e.inventory.FindBySKUForUpdate(txCtx, req.SKU)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return storeErr(txCtx, err, "load inventory item")
		}
		if item.Status != model.InventoryPending || item.PendingRequestID == nil || *item.PendingRequestID != req.ID {
			return nil
		}

		item.Status = model.InventoryDiscarded
		item.PendingRequestID = nil
		if err := e.inventory.Update(txCtx, item); err != nil {
			return storeErr(txCtx, err, "discard inventory placeholder")
		}
		return storeErr(txCtx, e.audit.Record(txCtx, actorOf(step), model.ActionDiscardInventory, item.ID.String(), item.SKU, map[string]interface{}{
			"request_id": req.ID.String(),
		}), "write audit log")
	})
}

func actorOf(step *model.ApprovalStep) *uuid.UUID {
	if step == nil {
		return nil
	}
	return step.ApproverID
}
