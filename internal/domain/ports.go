package domain

import (
	"context"
	"time"
)

// ResultSet is the structured output of an executed statement.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// RowCount returns the number of rows in the result.
func (r *ResultSet) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ExecutionDriver runs an authorized statement against the target database.
// The engine never opens target connections itself; it hands the driver an
// already-enforced statement and a context carrying the statement timeout.
// Implemented by driver.SQLDriver.
type ExecutionDriver interface {
	Execute(ctx context.Context, sqlText string, args []interface{}) (*ResultSet, error)
}

// PolicyRepository persists security policies. Policies are soft-lifecycle:
// there is no delete, only SetEnabled(false).
type PolicyRepository interface {
	Create(ctx context.Context, p *Policy) (*Policy, error)
	Update(ctx context.Context, p *Policy) (*Policy, error)
	GetByID(ctx context.Context, id string) (*Policy, error)
	List(ctx context.Context, enabledOnly bool) ([]Policy, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// TemplateRepository persists SQL template versions by (template_id, version).
type TemplateRepository interface {
	Insert(ctx context.Context, t *SQLTemplate) (*SQLTemplate, error)
	GetVersion(ctx context.Context, templateID string, version int) (*SQLTemplate, error)
	GetLatest(ctx context.Context, templateID string) (*SQLTemplate, error)
	GetLatestByName(ctx context.Context, name string) (*SQLTemplate, error)
	List(ctx context.Context, page PageRequest) ([]SQLTemplate, int64, error)
	// UpdateStatus transitions (templateID, version) from one status to
	// another atomically. Returns false when the row was not in the
	// expected status, without error.
	UpdateStatus(ctx context.Context, templateID string, version int, from, to TemplateStatus) (bool, error)
}

// ApprovalRepository persists approval requests.
type ApprovalRepository interface {
	// Create inserts a new pending request. Fails with ConflictError when a
	// pending request already exists for the same (template_id, version).
	Create(ctx context.Context, a *ApprovalRequest) (*ApprovalRequest, error)
	GetByID(ctx context.Context, id string) (*ApprovalRequest, error)
	ListPending(ctx context.Context, page PageRequest) ([]ApprovalRequest, int64, error)
	// Resolve flips a PENDING request to a terminal status and moves the
	// reviewed template version out of PENDING_APPROVAL in the same
	// transaction, so a crash can never strand the template. Returns
	// false when the request was no longer pending, without error.
	Resolve(ctx context.Context, req *ApprovalRequest, to ApprovalStatus, comments string, resolvedAt time.Time) (bool, error)
}

// AuditRepository appends and reads audit records. Append-only by contract:
// the interface exposes no update or delete.
type AuditRepository interface {
	Insert(ctx context.Context, rec *AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, int64, error)
}
