package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"
	"procurement/internal/repository"
	"procurement/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []model.Request
	decided []model.ApprovalStep
}

func (n *recordingNotifier) RequestCreated(req model.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, req)
}

func (n *recordingNotifier) StepDecided(_ model.Request, step model.ApprovalStep) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, step)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created), len(n.decided)
}

type fixture struct {
	db *gorm.DB

	requests      repository.RequestRepository
	steps         repository.StepRepository
	effects       repository.EffectRepository
	orders        repository.PurchaseOrderRepository
	inventory     repository.InventoryRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	audit         repository.AuditRepository

	bus      *realtime.Bus
	events   *realtime.Subscription
	notifier *recordingNotifier

	ledger    LedgerService
	executor  EffectExecutor
	approvals ApprovalService
	notify    NotificationService

	requester model.User
	manager   model.User
	manager2  model.User
	pm        model.User
	admin     model.User
}

type fixtureOption func(*ChainPolicy)

func withAdminThreshold(v string) fixtureOption {
	return func(p *ChainPolicy) {
		p.AdminThreshold = decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	log := zap.NewNop()
	f := &fixture{
		db:            db,
		requests:      repository.NewRequestRepository(db),
		steps:         repository.NewStepRepository(db),
		effects:       repository.NewEffectRepository(db),
		orders:        repository.NewPurchaseOrderRepository(db),
		inventory:     repository.NewInventoryRepository(db),
		users:         repository.NewUserRepository(db),
		notifications: repository.NewNotificationRepository(db),
		audit:         repository.NewAuditRepository(db),
		bus:           realtime.NewBus(1024, log),
		notifier:      &recordingNotifier{},
	}
	f.events = f.bus.Subscribe(realtime.Filter{})
	t.Cleanup(f.bus.Close)

	var policy ChainPolicy
	for _, opt := range opts {
		opt(&policy)
	}

	txManager := repository.NewTransactionManager(db)
	locks := NewRequestLocks()
	timeout := 5 * time.Second

	f.ledger = NewLedgerService(LedgerDeps{
		Requests:  f.requests,
		Steps:     f.steps,
		Effects:   f.effects,
		Inventory: f.inventory,
		Users:     f.users,
		Audit:     f.audit,
		TxManager: txManager,
		Policy:    policy,
		Locks:     locks,
		Events:    f.bus,
		Notifier:  f.notifier,
		Timeout:   timeout,
		Log:       log,
	})
	f.executor = NewEffectExecutor(f.effects, f.orders, f.inventory, f.audit, txManager, log)
	f.approvals = NewApprovalService(ApprovalDeps{
		Requests:  f.requests,
		Steps:     f.steps,
		Audit:     f.audit,
		TxManager: txManager,
		Executor:  f.executor,
		Locks:     locks,
		Events:    f.bus,
		Notifier:  f.notifier,
		Timeout:   timeout,
		Log:       log,
	})
	f.notify = NewNotificationService(NotificationDeps{
		Notifications: f.notifications,
		Requests:      f.requests,
		Steps:         f.steps,
		Users:         f.users,
		TxManager:     txManager,
		Locks:         locks,
		Events:        f.bus,
		Timeout:       timeout,
		Log:           log,
	})

	f.requester = f.addUser(t, "alice", model.RoleRequester)
	f.manager = f.addUser(t, "bob", model.RoleManager)
	f.manager2 = f.addUser(t, "erin", model.RoleManager)
	f.pm = f.addUser(t, "carol", model.RoleProjectManager)
	f.admin = f.addUser(t, "dave", model.RoleAdmin)
	return f
}

func (f *fixture) addUser(t *testing.T, name string, role model.Role) model.User {
	t.Helper()
	u := model.User{Username: name, Email: name + "@example.com", Password: "x", Role: role}
	require.NoError(t, f.users.Create(context.Background(), &u))
	return u
}

func (f *fixture) submitPurchase(t *testing.T, amount string) uuid.UUID {
	t.Helper()
	id, err := f.ledger.Submit(context.Background(), f.requester.ID, SubmitRequestDTO{
		Type:     model.RequestTypePurchase,
		ItemName: "Laptop",
		Vendor:   "Acme",
		Amount:   decimal.RequireFromString(amount),
		Quantity: 1,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) submitInventory(t *testing.T, sku string, qty int) uuid.UUID {
	t.Helper()
	id, err := f.ledger.Submit(context.Background(), f.requester.ID, SubmitRequestDTO{
		Type:     model.RequestTypeInventoryChange,
		ItemName: "Monitor",
		SKU:      sku,
		Quantity: qty,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) decide(id uuid.UUID, approver model.User, decision model.Decision) (DecisionResult, error) {
	return f.approvals.Decide(context.Background(), DecideInput{
		RequestID:  id,
		Role:       approver.Role,
		ApproverID: approver.ID,
		Decision:   decision,
	})
}

// drain returns every event published so far.
func (f *fixture) drain() []realtime.Event {
	var out []realtime.Event
	for {
		select {
		case ev := <-f.events.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (f *fixture) mustDecimal(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
