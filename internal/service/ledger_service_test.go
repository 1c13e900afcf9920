package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitPurchaseBuildsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.submitPurchase(t, "500")

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)
	assert.True(t, strings.HasPrefix(req.RequestNo, "PR-"), req.RequestNo)
	assert.Equal(t, "500.00", req.Amount)
	assert.Equal(t, model.PriorityNormal, req.Priority)
	require.Len(t, req.Steps, 2)
	assert.Equal(t, model.RoleManager, req.Steps[0].Role)
	assert.Equal(t, model.RoleProjectManager, req.Steps[1].Role)
	for i, s := range req.Steps {
		assert.Equal(t, i, s.Position)
		assert.Equal(t, model.DecisionPending, s.Decision)
		assert.Nil(t, s.ApproverID)
	}
	assert.Empty(t, req.Effects)

	events := f.drain()
	require.Len(t, events, 3)
	assert.Equal(t, realtime.EntityRequest, events[0].Entity)
	assert.Equal(t, realtime.OpInsert, events[0].Operation)
	assert.Equal(t, realtime.EntityApprovalStep, events[1].Entity)
	assert.Equal(t, realtime.EntityApprovalStep, events[2].Entity)

	created, _ := f.notifier.counts()
	assert.Equal(t, 1, created)
}

func TestSubmitAdminThreshold(t *testing.T) {
	f := newFixture(t, withAdminThreshold("1000"))
	ctx := context.Background()

	below, err := f.ledger.Get(ctx, f.submitPurchase(t, "999.99"))
	require.NoError(t, err)
	assert.Len(t, below.Steps, 2)

	at, err := f.ledger.Get(ctx, f.submitPurchase(t, "1000"))
	require.NoError(t, err)
	require.Len(t, at.Steps, 3)
	assert.Equal(t, model.RoleAdmin, at.Steps[2].Role)
}

func TestSubmitInventoryChangeReservesPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.submitInventory(t, "MON-27", 5)

	req, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.RequestNo, "IC-"), req.RequestNo)
	require.Len(t, req.Steps, 2)

	item, err := f.inventory.FindBySKU(ctx, "MON-27")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryPending, item.Status)
	assert.Equal(t, 0, item.Quantity)
	require.NotNil(t, item.PendingRequestID)
	assert.Equal(t, id, *item.PendingRequestID)

	_, err = f.ledger.Submit(ctx, f.requester.ID, SubmitRequestDTO{
		Type: model.RequestTypeInventoryChange, ItemName: "Monitor", SKU: "MON-27", Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitInventoryChangeOnActiveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.inventory.Create(ctx, &model.InventoryItem{SKU: "CHAIR", Name: "Chair", Quantity: 4, Status: model.InventoryActive}))

	f.submitInventory(t, "CHAIR", 2)

	item, err := f.inventory.FindBySKU(ctx, "CHAIR")
	require.NoError(t, err)
	assert.Equal(t, model.InventoryActive, item.Status)
	assert.Equal(t, 4, item.Quantity)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]SubmitRequestDTO{
		"unknown type":          {Type: "lease", ItemName: "x", Amount: decimal.NewFromInt(1)},
		"missing item name":     {Type: model.RequestTypePurchase, Amount: decimal.NewFromInt(1)},
		"zero amount":           {Type: model.RequestTypePurchase, ItemName: "x"},
		"negative amount":       {Type: model.RequestTypePurchase, ItemName: "x", Amount: decimal.NewFromInt(-3)},
		"negative quantity":     {Type: model.RequestTypePurchase, ItemName: "x", Amount: decimal.NewFromInt(1), Quantity: -1},
		"bad priority":          {Type: model.RequestTypePurchase, ItemName: "x", Amount: decimal.NewFromInt(1), Priority: "asap"},
		"inventory without sku": {Type: model.RequestTypeInventoryChange, ItemName: "x", Quantity: 1},
		"inventory zero qty":    {Type: model.RequestTypeInventoryChange, ItemName: "x", SKU: "S"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ledger.Submit(ctx, f.requester.ID, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := f.ledger.Submit(ctx, uuid.New(), SubmitRequestDTO{Type: model.RequestTypePurchase, ItemName: "x", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)

	var count int64
	require.NoError(t, f.db.Model(&model.Request{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitClientTokenDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := SubmitRequestDTO{
		Type:        model.RequestTypePurchase,
		ItemName:    "Desk",
		Amount:      decimal.NewFromInt(120),
		ClientToken: "form-42",
	}

	first, err := f.ledger.Submit(ctx, f.requester.ID, in)
	require.NoError(t, err)
	second, err := f.ledger.Submit(ctx, f.requester.ID, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, f.db.Model(&model.Request{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmitTimesOut(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.ledger.Submit(ctx, f.requester.ID, SubmitRequestDTO{
		Type: model.RequestTypePurchase, ItemName: "x", Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGetUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingForRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.submitPurchase(t, "100")
	second := f.submitPurchase(t, "200")

	pending, total, err := f.ledger.ListPendingForRole(ctx, model.RoleManager, f.manager.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, pending, 2)
	assert.Equal(t, first.String(), pending[0].ID)
	assert.Equal(t, second.String(), pending[1].ID)

	pending, _, err = f.ledger.ListPendingForRole(ctx, model.RoleProjectManager, f.pm.ID, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.decide(first, f.manager, model.DecisionApproved)
	require.NoError(t, err)

	pending, _, err = f.ledger.ListPendingForRole(ctx, model.RoleManager, f.manager.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.String(), pending[0].ID)

	pending, _, err = f.ledger.ListPendingForRole(ctx, model.RoleProjectManager, f.pm.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.String(), pending[0].ID)

	_, _, err = f.ledger.ListPendingForRole(ctx, model.RoleRequester, f.requester.ID, 1, 20)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListPendingForRoleExcludesOwnRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Submit(ctx, f.manager.ID, SubmitRequestDTO{
		Type: model.RequestTypePurchase, ItemName: "Headset", Amount: decimal.NewFromInt(80),
	})
	require.NoError(t, err)

	mine, _, err := f.ledger.ListPendingForRole(ctx, model.RoleManager, f.manager.ID, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, _, err := f.ledger.ListPendingForRole(ctx, model.RoleManager, f.manager2.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestListByRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.submitPurchase(t, "10")
	}

	page, total, err := f.ledger.ListByRequester(ctx, f.requester.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	none, total, err := f.ledger.ListByRequester(ctx, f.pm.ID, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}
