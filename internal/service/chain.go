package service

import (
	"procurement/internal/model"

	"github.com/shopspring/decimal"
)

// ChainPolicy decides the ordered approval chain for a request.
type ChainPolicy struct {
	// AdminThreshold adds an admin step to purchase requests whose amount reaches it.
	// Invalid (unset) disables the admin level.
	AdminThreshold decimal.NullDecimal
}

// RequiredRoles returns the roles that must approve, in order.
func (p ChainPolicy) RequiredRoles(reqType model.RequestType, amount decimal.Decimal) []model.Role {
	switch reqType {
	case model.RequestTypePurchase:
		roles := []model.Role{model.RoleManager, model.RoleProjectManager}
		if p.AdminThreshold.Valid && amount.GreaterThanOrEqual(p.AdminThreshold.Decimal) {
			roles = append(roles, model.RoleAdmin)
		}
		return roles
	case model.RequestTypeInventoryChange:
		return []model.Role{model.RoleManager, model.RoleProjectManager}
	}
	return nil
}

// chainState is the authoritative evaluation of a request's steps.
// Exactly one of chainPending, chainRejected, chainApproved.
type chainState interface {
	status() model.RequestStatus
}

type chainPending struct {
	// completed is the number of leading approved steps; next is the role now due.
	completed int
	next      model.Role
}

type chainRejected struct {
	by model.Role
}

type chainApproved struct{}

func (chainPending) status() model.RequestStatus  { return model.RequestPending }
func (chainRejected) status() model.RequestStatus { return model.RequestRejected }
func (chainApproved) status() model.RequestStatus { return model.RequestFullyApproved }

// evaluate folds ordered steps into a chainState. Any rejection wins over everything else.
func evaluate(steps []model.ApprovalStep) chainState {
	for _, s := range steps {
		if s.Decision == model.DecisionRejected {
			return chainRejected{by: s.Role}
		}
	}
	for i, s := range steps {
		if s.Decision != model.DecisionApproved {
			return chainPending{completed: i, next: s.Role}
		}
	}
	return chainApproved{}
}
