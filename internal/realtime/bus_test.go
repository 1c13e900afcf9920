package realtime

import (
	"testing"

	"procurement/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRequest() *model.Request {
	return &model.Request{ID: uuid.New(), RequesterID: uuid.New(), Type: model.RequestTypePurchase}
}

var chain = []model.Role{model.RoleManager, model.RoleProjectManager}

func recv(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFilterMatch(t *testing.T) {
	req := testRequest()
	reqEv := RequestEvent(OpInsert, req, chain)
	n := &model.Notification{ID: uuid.New(), RecipientID: uuid.New(), RelatedRequestID: &req.ID}
	noteEv := NotificationEvent(OpInsert, n)

	tests := []struct {
		name   string
		filter Filter
		ev     Event
		want   bool
	}{
		{"empty filter matches everything", Filter{}, reqEv, true},
		{"entity excluded", Filter{Entities: []Entity{EntityNotification}}, reqEv, false},
		{"chain role", Filter{Role: model.RoleManager}, reqEv, true},
		{"role off chain", Filter{Role: model.RoleAdmin}, reqEv, false},
		{"requester by id", Filter{Role: model.RoleRequester, UserID: req.RequesterID}, reqEv, true},
		{"stranger", Filter{Role: model.RoleRequester, UserID: uuid.New()}, reqEv, false},
		{"notification recipient", Filter{Role: model.RoleManager, UserID: n.RecipientID}, noteEv, true},
		{"notification is private", Filter{Role: model.RoleManager, UserID: uuid.New()}, noteEv, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.ev))
		})
	}
	assert.Equal(t, req.ID.String(), noteEv.RequestID)
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	b := NewBus(16, zap.NewNop())
	defer b.Close()
	sub := b.Subscribe(Filter{Role: model.RoleManager})
	other := b.Subscribe(Filter{Role: model.RoleAdmin})

	req := testRequest()
	step := &model.ApprovalStep{ID: uuid.New(), RequestID: req.ID, Role: model.RoleManager}
	b.Publish(RequestEvent(OpInsert, req, chain), StepEvent(OpInsert, req, step, chain))
	b.Publish(StepEvent(OpUpdate, req, step, chain))

	got := recv(t, sub)
	require.Len(t, got, 3)
	assert.Equal(t, EntityRequest, got[0].Entity)
	assert.Equal(t, EntityApprovalStep, got[1].Entity)
	assert.Equal(t, OpUpdate, got[2].Operation)
	assert.Empty(t, recv(t, other))
}

func TestBusEvictsSlowSubscriber(t *testing.T) {
	b := NewBus(2, zap.NewNop())
	defer b.Close()
	slow := b.Subscribe(Filter{})
	fast := b.Subscribe(Filter{})

	req := testRequest()
	b.Publish(RequestEvent(OpInsert, req, chain), RequestEvent(OpUpdate, req, chain))
	require.Len(t, recv(t, fast), 2)

	b.Publish(RequestEvent(OpUpdate, req, chain))
	assert.True(t, slow.Evicted())
	assert.False(t, fast.Evicted())
	assert.Equal(t, 1, b.Len())

	// The evicted channel still yields what was buffered, then reports closed.
	assert.Len(t, recv(t, slow), 2)
	_, ok := <-slow.Events()
	assert.False(t, ok)

	assert.Len(t, recv(t, fast), 1)
}

func TestSubscriptionClose(t *testing.T) {
	b := NewBus(4, zap.NewNop())
	sub := b.Subscribe(Filter{})
	sub.Close()
	sub.Close()
	assert.Zero(t, b.Len())
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.False(t, sub.Evicted())

	b.Publish(RequestEvent(OpInsert, testRequest(), chain))

	live := b.Subscribe(Filter{})
	b.Close()
	_, ok = <-live.Events()
	assert.False(t, ok)

	late := b.Subscribe(Filter{})
	_, ok = <-late.Events()
	assert.False(t, ok)
	live.Close()
}
