package domain

import "time"

// Audit severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Audit actions recorded by the engine.
const (
	AuditActionQuery           = "EXECUTE_QUERY"
	AuditActionTemplateExecute = "EXECUTE_TEMPLATE"
	AuditActionTemplateSubmit  = "SUBMIT_TEMPLATE"
	AuditActionApprove         = "APPROVE_TEMPLATE"
	AuditActionReject          = "REJECT_TEMPLATE"
	AuditActionPolicyChange    = "POLICY_CHANGE"
)

// Execution outcomes recorded alongside the decision.
const (
	ExecOutcomeOK        = "OK"
	ExecOutcomeDenied    = "DENIED"
	ExecOutcomeError     = "ERROR"
	ExecOutcomeTimeout   = "TIMEOUT"
	ExecOutcomeUnaudited = "EXECUTED_UNAUDITED"
)

// AuditRecord is a single immutable audit trail entry. Once written it is
// never updated or deleted by any code path; only read and exported.
type AuditRecord struct {
	ID               string
	Actor            string
	Action           string
	ResourceType     string
	ResourceID       string
	StatementKind    string
	DecisionOutcome  string
	ExecutionOutcome string
	AppliedPolicyIDs []string
	RowCount         *int64
	DurationMs       *int64
	Severity         string
	Message          string
	DetailsJSON      string
	CreatedAt        time.Time
}

// AuditFilter narrows audit list queries. Nil fields match everything.
type AuditFilter struct {
	Actor    *string
	Action   *string
	Severity *string
	Since    *time.Time
	Page     PageRequest
}

// ExportColumns is the stable column order of the audit export format.
var ExportColumns = []string{
	"timestamp", "actor", "action", "resource_type",
	"resource_id", "severity", "message", "details_json",
}
