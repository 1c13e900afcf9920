package service

import (
	"time"

	"procurement/internal/model"

	"github.com/shopspring/decimal"
)

// --- DTOs ---

type SubmitRequestDTO struct {
	Type        model.RequestType `json:"type" binding:"required"`
	ItemName    string            `json:"item_name"`
	SKU         string            `json:"sku"`
	Vendor      string            `json:"vendor"`
	Amount      decimal.Decimal   `json:"amount"`
	Quantity    int               `json:"quantity"`
	Priority    model.Priority    `json:"priority"`
	Description string            `json:"description"`
	ClientToken string            `json:"client_token"` // Optional: makes resubmission of the same form a no-op
}

type DecideDTO struct {
	Decision model.Decision `json:"decision" binding:"required,oneof=approved rejected"`
	Comments string         `json:"comments"`
}

type StepResponse struct {
	Role       model.Role     `json:"approver_role"`
	Position   int            `json:"position"`
	Decision   model.Decision `json:"decision"`
	ApproverID *string        `json:"approver_id"`
	DecidedAt  *string        `json:"decided_at"`
	Comments   string         `json:"comments"`
}

type EffectResponse struct {
	EffectType     model.EffectType `json:"effect_type"`
	ResourceID     string           `json:"resource_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	ExecutedAt     string           `json:"executed_at"`
}

type RequestResponse struct {
	ID          string              `json:"id"`
	RequestNo   string              `json:"request_no"`
	Type        model.RequestType   `json:"type"`
	RequesterID string              `json:"requester_id"`
	ItemName    string              `json:"item_name"`
	SKU         string              `json:"sku,omitempty"`
	Vendor      string              `json:"vendor,omitempty"`
	Amount      string              `json:"amount"`
	Quantity    int                 `json:"quantity"`
	Priority    model.Priority      `json:"priority"`
	Description string              `json:"description"`
	Status      model.RequestStatus `json:"status"`
	Steps       []StepResponse      `json:"steps"`
	Effects     []EffectResponse    `json:"effects,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// DecisionResult is what decide() reports back to the caller.
type DecisionResult struct {
	RequestID string              `json:"request_id"`
	Status    model.RequestStatus `json:"status"`
	Step      StepResponse        `json:"step"`
	Effect    *EffectResponse     `json:"effect,omitempty"`
}

type NotificationResponse struct {
	ID               string                 `json:"id"`
	Kind             model.NotificationKind `json:"kind"`
	Title            string                 `json:"title"`
	Message          string                 `json:"message"`
	RelatedRequestID *string                `json:"related_request_id"`
	IsRead           bool                   `json:"is_read"`
	CreatedAt        string                 `json:"created_at"`
}

// --- Helpers ---

func toStepResponse(s model.ApprovalStep) StepResponse {
	resp := StepResponse{
		Role:     s.Role,
		Position: s.Position,
		Decision: s.Decision,
		Comments: s.Comments,
	}
	if s.ApproverID != nil {
		id := s.ApproverID.String()
		resp.ApproverID = &id
	}
	if s.DecidedAt != nil {
		at := s.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &at
	}
	return resp
}

func toEffectResponse(e model.DownstreamEffect) EffectResponse {
	return EffectResponse{
		EffectType:     e.EffectType,
		ResourceID:     e.ResourceID.String(),
		IdempotencyKey: e.IdempotencyKey,
		ExecutedAt:     e.ExecutedAt.Format(time.RFC3339),
	}
}

func toRequestResponse(r model.Request) RequestResponse {
	resp := RequestResponse{
		ID:          r.ID.String(),
		RequestNo:   r.RequestNo,
		Type:        r.Type,
		RequesterID: r.RequesterID.String(),
		ItemName:    r.ItemName,
		SKU:         r.SKU,
		Vendor:      r.Vendor,
		Amount:      r.Amount.StringFixed(2),
		Quantity:    r.Quantity,
		Priority:    r.Priority,
		Description: r.Description,
		Status:      r.Status,
		Steps:       make([]StepResponse, 0, len(r.Steps)),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339Nano),
	}
	for _, s := range r.Steps {
		resp.Steps = append(resp.Steps, toStepResponse(s))
	}
	return resp
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:        n.ID.String(),
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.RelatedRequestID != nil {
		id := n.RelatedRequestID.String()
		resp.RelatedRequestID = &id
	}
	return resp
}

func stepRoles(steps []model.ApprovalStep) []model.Role {
	roles := make([]model.Role, 0, len(steps))
	for _, s := range steps {
		roles = append(roles, s.Role)
	}
	return roles
}
