package domain

import "time"

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

// Approval statuses. APPROVED and REJECTED are terminal.
const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ApprovalRequest tracks review of one pinned template version. At most one
// non-terminal request may exist per (TemplateID, TemplateVersion).
type ApprovalRequest struct {
	ID              string
	TemplateID      string
	TemplateVersion int // pinned, never "latest"
	RequestedBy     string
	AssignedTo      string
	Status          ApprovalStatus
	Comments        string // required non-empty on rejection
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// Resolved reports whether the request reached a terminal state.
func (a *ApprovalRequest) Resolved() bool {
	return a.Status != ApprovalPending
}

// TemplateStatus returns the template status a terminal approval status
// implies. PENDING has no implied template status.
func (s ApprovalStatus) TemplateStatus() TemplateStatus {
	if s == ApprovalRejected {
		return TemplateRejected
	}
	return TemplateApproved
}
