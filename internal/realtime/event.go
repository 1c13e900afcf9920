// Package realtime fans committed workflow changes out to live dashboard sessions.
//
// Events for the same request reach a subscriber in commit order. There is no
// cross-request ordering, no deduplication and no replay: a session that
// reconnects, or that was evicted for falling behind, re-queries current state
// and merges incoming payloads by entity id, last updated_at wins.
package realtime

import (
	"slices"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
)

type Entity string

const (
	EntityRequest      Entity = "request"
	EntityApprovalStep Entity = "approval_step"
	EntityNotification Entity = "notification"
)

func (e Entity) Valid() bool {
	switch e {
	case EntityRequest, EntityApprovalStep, EntityNotification:
		return true
	}
	return false
}

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
)

// Event is the wire shape pushed to sessions.
type Event struct {
	Entity    Entity      `json:"entity"`
	Operation Operation   `json:"operation"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`

	Audience Audience `json:"-"`
}

// Audience says who an event concerns. Filters match against it.
type Audience struct {
	UserIDs []uuid.UUID
	Roles   []model.Role
}

// Filter scopes a subscription. Zero Role and UserID match every audience.
// When both are set an event matches if it concerns either.
type Filter struct {
	Entities []Entity
	Role     model.Role
	UserID   uuid.UUID
}

func (f Filter) Match(ev Event) bool {
	if len(f.Entities) > 0 && !slices.Contains(f.Entities, ev.Entity) {
		return false
	}
	if f.Role == "" && f.UserID == uuid.Nil {
		return true
	}
	if f.UserID != uuid.Nil && slices.Contains(ev.Audience.UserIDs, f.UserID) {
		return true
	}
	return f.Role != "" && slices.Contains(ev.Audience.Roles, f.Role)
}

// RequestEvent builds an event about a request row, addressed to its requester and chain roles.
func RequestEvent(op Operation, req *model.Request, roles []model.Role) Event {
	return Event{
		Entity:    EntityRequest,
		Operation: op,
		RequestID: req.ID.String(),
		Payload:   req,
		EmittedAt: time.Now(),
		Audience:  Audience{UserIDs: []uuid.UUID{req.RequesterID}, Roles: roles},
	}
}

func StepEvent(op Operation, req *model.Request, step *model.ApprovalStep, roles []model.Role) Event {
	return Event{
		Entity:    EntityApprovalStep,
		Operation: op,
		RequestID: req.ID.String(),
		Payload:   step,
		EmittedAt: time.Now(),
		Audience:  Audience{UserIDs: []uuid.UUID{req.RequesterID}, Roles: roles},
	}
}

func NotificationEvent(op Operation, n *model.Notification) Event {
	ev := Event{
		Entity:    EntityNotification,
		Operation: op,
		Payload:   n,
		EmittedAt: time.Now(),
		Audience:  Audience{UserIDs: []uuid.UUID{n.RecipientID}},
	}
	if n.RelatedRequestID != nil {
		ev.RequestID = n.RelatedRequestID.String()
	}
	return ev
}
