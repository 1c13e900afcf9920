package model

// RequestType identifies which approval chain and downstream effect a request uses.
type RequestType string

const (
	RequestTypePurchase        RequestType = "purchase"
	RequestTypeInventoryChange RequestType = "inventory_change"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestTypePurchase, RequestTypeInventoryChange:
		return true
	}
	return false
}

// NumberPrefix is the request number prefix for the type, e.g. PR-20260101-00001.
func (t RequestType) NumberPrefix() string {
	switch t {
	case RequestTypePurchase:
		return "PR"
	case RequestTypeInventoryChange:
		return "IC"
	}
	return "RQ"
}

// RequestStatus is the stored overall status. It is always derived from the ApprovalStep rows.
type RequestStatus string

const (
	RequestPending       RequestStatus = "pending"
	RequestRejected      RequestStatus = "rejected"
	RequestFullyApproved RequestStatus = "fully_approved"
)

// Terminal reports whether no further transition is defined out of the status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestRejected, RequestFullyApproved:
		return true
	case RequestPending:
		return false
	}
	return false
}

// Decision is the state of a single ApprovalStep.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Role is a position in the fixed approval hierarchy.
type Role string

const (
	RoleRequester      Role = "requester"
	RoleManager        Role = "manager"
	RoleProjectManager Role = "project_manager"
	RoleAdmin          Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleManager, RoleProjectManager, RoleAdmin:
		return true
	}
	return false
}

// Approver reports whether the role can hold an approval step.
func (r Role) Approver() bool {
	switch r {
	case RoleManager, RoleProjectManager, RoleAdmin:
		return true
	case RoleRequester:
		return false
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
