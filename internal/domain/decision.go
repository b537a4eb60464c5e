package domain

import "time"

// DecisionOutcome is the engine's verdict for one statement.
type DecisionOutcome string

// Decision outcomes.
const (
	OutcomeAllow          DecisionOutcome = "ALLOW"
	OutcomeAllowRewritten DecisionOutcome = "ALLOW_REWRITTEN"
	OutcomeDeny           DecisionOutcome = "DENY"
)

// Decision is the authorization verdict for a single statement. It is
// produced once per request by the enforcement pipeline and immutable
// afterwards; the post-processor and audit writer only read it.
type Decision struct {
	Outcome         DecisionOutcome
	Reason          string // denial code, set when Outcome is DENY
	RewrittenSQL    string // set when Outcome is ALLOW_REWRITTEN
	AppliedPolicies []Policy
	MaskingColumns  []string // sorted, deduplicated
	MaskingMode     MaskingMode
	Timeout         time.Duration // 0 means no statement timeout
	RowCap          int           // 0 means uncapped
}

// Allowed reports whether the statement may execute.
func (d *Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow || d.Outcome == OutcomeAllowRewritten
}

// SQL returns the statement to hand to the execution driver: the rewritten
// text when a rewrite was applied, the original otherwise.
func (d *Decision) SQL(original string) string {
	if d.Outcome == OutcomeAllowRewritten && d.RewrittenSQL != "" {
		return d.RewrittenSQL
	}
	return original
}

// AppliedPolicyIDs returns the ids of applied policies in application order.
func (d *Decision) AppliedPolicyIDs() []string {
	ids := make([]string, len(d.AppliedPolicies))
	for i, p := range d.AppliedPolicies {
		ids[i] = p.ID
	}
	return ids
}
