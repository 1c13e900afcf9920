package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideFullApprovalCreatesPurchaseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPurchase(t, "500")
	f.drain()

	res, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, res.Status)
	assert.Equal(t, model.DecisionApproved, res.Step.Decision)
	require.NotNil(t, res.Step.ApproverID)
	assert.Equal(t, f.manager.ID.String(), *res.Step.ApproverID)
	assert.Nil(t, res.Effect)

	res, err = f.decide(id, f.pm, model.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFullyApproved, res.Status)
	require.NotNil(t, res.Effect)
	assert.Equal(t, model.EffectPurchaseOrder, res.Effect.EffectType)
	assert.Equal(t, model.IdempotencyKey(id, model.EffectPurchaseOrder), res.Effect.IdempotencyKey)

	orderID, err := uuid.Parse(res.Effect.ResourceID)
	require.NoError(t, err)
	order, err := f.orders.FindByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseOrderPendingProcurement, order.Status)
	assert.Equal(t, id, order.RequestID)

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFullyApproved, req.Status)
	require.Len(t, req.Effects, 1)

	events := f.drain()
	require.Len(t, events, 4)
	for i, want := range []realtime.Entity{realtime.EntityApprovalStep, realtime.EntityRequest, realtime.EntityApprovalStep, realtime.EntityRequest} {
		assert.Equal(t, want, events[i].Entity)
		assert.Equal(t, realtime.OpUpdate, events[i].Operation)
		assert.Equal(t, id.String(), events[i].RequestID)
	}

	_, decided := f.notifier.counts()
	assert.Equal(t, 2, decided)
}

func TestDecideAfterRejectionIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPurchase(t, "500")

	res, err := f.decide(id, f.manager, model.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, res.Status)

	_, err = f.decide(id, f.pm, model.DecisionApproved)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, req.Status)
	assert.Equal(t, model.DecisionPending, req.Steps[1].Decision)
	assert.Empty(t, req.Effects)

	count, err := f.orders.CountByRequest(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDecideRejectsSecondDecisionForRole(t *testing.T) {
	f := newFixture(t)
	id := f.submitPurchase(t, "500")

	_, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)

	_, err = f.decide(id, f.manager2, model.DecisionRejected)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestDecideOutOfOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPurchase(t, "500")
	f.drain()

	_, err := f.decide(id, f.pm, model.DecisionApproved)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Empty(t, f.drain())

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	for _, s := range req.Steps {
		assert.Equal(t, model.DecisionPending, s.Decision)
	}
}

func TestDecideNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.submitPurchase(t, "500")

	_, err := f.decide(uuid.New(), f.manager, model.DecisionApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.decide(id, f.admin, model.DecisionApproved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecideValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPurchase(t, "500")

	_, err := f.decide(id, f.requester, model.DecisionApproved)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.decide(id, f.manager, model.DecisionPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.approvals.Decide(ctx, DecideInput{RequestID: id, Role: model.RoleManager, Decision: model.DecisionApproved})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecideOwnRequestIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.ledger.Submit(ctx, f.manager.ID, SubmitRequestDTO{
		Type: model.RequestTypePurchase, ItemName: "Headset", Amount: f.mustDecimal("80"),
	})
	require.NoError(t, err)

	_, err = f.decide(id, f.manager, model.DecisionApproved)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "approver_id", verr.Field)

	_, err = f.decide(id, f.manager2, model.DecisionApproved)
	assert.NoError(t, err)
}

func TestDecideConcurrentApproversOneWins(t *testing.T) {
	f := newFixture(t)
	id := f.submitPurchase(t, "500")

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for i := 0; i < n; i++ {
		approver := f.manager
		if i%2 == 1 {
			approver = f.manager2
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.decide(id, approver, model.DecisionApproved)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyDecided):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflict)
}

func TestDecideEffectFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitInventory(t, "DOCK-1", 3)

	_, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)

	item, err := f.inventory.FindBySKU(ctx, "DOCK-1")
	require.NoError(t, err)
	require.NoError(t, f.inventory.Delete(ctx, item.ID))
	f.drain()

	_, err = f.decide(id, f.pm, model.DecisionApproved)
	require.ErrorIs(t, err, ErrEffectExecution)
	var effErr *EffectError
	require.ErrorAs(t, err, &effErr)
	assert.Equal(t, model.EffectInventoryActivation, effErr.EffectType)
	assert.Empty(t, f.drain())

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)
	assert.Equal(t, model.DecisionApproved, req.Steps[0].Decision)
	assert.Equal(t, model.DecisionPending, req.Steps[1].Decision)
	assert.Empty(t, req.Effects)
}

func TestDecideTimesOutWithoutMutating(t *testing.T) {
	f := newFixture(t)
	id := f.submitPurchase(t, "500")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := f.approvals.Decide(ctx, DecideInput{
		RequestID: id, Role: model.RoleManager, ApproverID: f.manager.ID, Decision: model.DecisionApproved,
	})
	assert.ErrorIs(t, err, ErrTimeout)

	req, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionPending, req.Steps[0].Decision)
}

func TestDecideInventoryChangeActivatesPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitInventory(t, "MON-27", 5)

	_, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)
	res, err := f.decide(id, f.pm, model.DecisionApproved)
	require.NoError(t, err)
	require.NotNil(t, res.Effect)
	assert.Equal(t, model.EffectInventoryActivation, res.Effect.EffectType)

	item, err := f.inventory.FindBySKU(ctx, "MON-27")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryActive, item.Status)
	assert.Equal(t, 5, item.Quantity)
	assert.Nil(t, item.PendingRequestID)
	assert.Equal(t, item.ID.String(), res.Effect.ResourceID)

	txs, err := f.inventory.ListTransactions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeIn, txs[0].TransactionType)
	assert.Equal(t, 5, txs[0].StockAfter)
}

func TestDecideInventoryChangeTopsUpActiveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.inventory.Create(ctx, &model.InventoryItem{SKU: "CHAIR", Name: "Chair", Quantity: 4, Status: model.InventoryActive}))
	id := f.submitInventory(t, "CHAIR", 2)

	_, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)
	_, err = f.decide(id, f.pm, model.DecisionApproved)
	require.NoError(t, err)

	item, err := f.inventory.FindBySKU(ctx, "CHAIR")
	require.NoError(t, err)
	assert.Equal(t, 6, item.Quantity)
}

func TestRejectedInventoryChangeDiscardsPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitInventory(t, "HUB-7", 2)

	_, err := f.decide(id, f.manager, model.DecisionRejected)
	require.NoError(t, err)

	item, err := f.inventory.FindBySKU(ctx, "HUB-7")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryDiscarded, item.Status)
	assert.Nil(t, item.PendingRequestID)

	again := f.submitInventory(t, "HUB-7", 1)
	item, err = f.inventory.FindBySKU(ctx, "HUB-7")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryPending, item.Status)
	require.NotNil(t, item.PendingRequestID)
	assert.Equal(t, again, *item.PendingRequestID)
}

func TestExecuteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPurchase(t, "500")
	_, err := f.decide(id, f.manager, model.DecisionApproved)
	require.NoError(t, err)
	first, err := f.decide(id, f.pm, model.DecisionApproved)
	require.NoError(t, err)

	req, err := f.requests.FindByID(ctx, id)
	require.NoError(t, err)
	replay, err := f.executor.Execute(ctx, req, nil)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Effect.ResourceID, replay.Effect.ResourceID.String())

	count, err := f.orders.CountByRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEvaluateChain(t *testing.T) {
	steps := func(ds ...model.Decision) []model.ApprovalStep {
		out := make([]model.ApprovalStep, len(ds))
		for i, d := range ds {
			out[i] = model.ApprovalStep{Position: i, Decision: d}
		}
		return out
	}

	st := evaluate(steps(model.DecisionPending, model.DecisionPending))
	require.IsType(t, chainPending{}, st)
	assert.Equal(t, 0, st.(chainPending).completed)
	assert.Equal(t, model.RequestPending, st.status())

	st = evaluate(steps(model.DecisionApproved, model.DecisionPending))
	require.IsType(t, chainPending{}, st)
	assert.Equal(t, 1, st.(chainPending).completed)

	st = evaluate(steps(model.DecisionApproved, model.DecisionRejected))
	assert.IsType(t, chainRejected{}, st)
	assert.Equal(t, model.RequestRejected, st.status())

	st = evaluate(steps(model.DecisionApproved, model.DecisionApproved))
	assert.IsType(t, chainApproved{}, st)
	assert.Equal(t, model.RequestFullyApproved, st.status())
}
