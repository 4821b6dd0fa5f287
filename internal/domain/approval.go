package domain

import "time"

// PendingApproval is a parked admin login waiting on a decision from a present admin.
// ApprovalID is the only handle the requesting client holds.
type PendingApproval struct {
	ApprovalID          string
	RequestingAdminID   string
	RequestingAdminName string
	// RequesterAddress is empty until the requester registers its channel connection.
	RequesterAddress string
	ApproverAddress  string
	User             User
	CreatedAt        time.Time
}

// LoginApprovalEvent is the audit record published for every approval transition.
type LoginApprovalEvent struct {
	ApprovalID        string    `json:"approval_id"`
	RequestingAdminID string    `json:"requesting_admin_id"`
	DeciderID         string    `json:"decider_id,omitempty"`
	Outcome           string    `json:"outcome"`
	OccurredAt        time.Time `json:"occurred_at"`
}
