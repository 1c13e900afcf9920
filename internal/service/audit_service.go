package service

import (
	"context"
	"encoding/json"
	"time"

	"procurement/internal/repository"

	"github.com/google/uuid"
)

type AuditEntryResponse struct {
	Action    string          `json:"action"`
	UserID    *string         `json:"user_id"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// AuditService exposes the append-only trail written alongside each transition.
type AuditService interface {
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]AuditEntryResponse, error)
}

type auditService struct {
	repo    repository.AuditRepository
	timeout time.Duration
}

func NewAuditService(repo repository.AuditRepository, timeout time.Duration) AuditService {
	return &auditService{repo: repo, timeout: timeout}
}

func (s *auditService) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]AuditEntryResponse, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	logs, err := s.repo.ListByEntity(ctx, requestID.String())
	if err != nil {
		return nil, storeErr(ctx, err, "list audit trail")
	}
	result := make([]AuditEntryResponse, 0, len(logs))
	for _, l := range logs {
		entry := AuditEntryResponse{
			Action:    l.Action,
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		}
		if l.UserID != nil {
			id := l.UserID.String()
			entry.UserID = &id
		}
		if len(l.Details) > 0 {
			entry.Details = json.RawMessage(l.Details)
		}
		result = append(result, entry)
	}
	return result, nil
}
