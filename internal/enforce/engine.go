// Package enforce implements the validation and enforcement pipeline that
// turns a classified statement plus the caller's effective policies into
// an authorization Decision.
package enforce

import (
	"log/slog"
	"sort"
	"strings"

	"sqlguard/internal/domain"
	"sqlguard/internal/policy"
	"sqlguard/internal/sqlparse"
)

// Engine evaluates statements against the current policy snapshot.
// Evaluation is pure and read-only; any number of requests may evaluate
// concurrently against the same snapshot.
type Engine struct {
	policies *policy.Store
	logger   *slog.Logger
}

// NewEngine creates an enforcement engine backed by the policy store.
func NewEngine(store *policy.Store, logger *slog.Logger) *Engine {
	return &Engine{
		policies: store,
		logger:   logger.With("component", "enforce"),
	}
}

// evalMode selects which relaxations apply during evaluation.
type evalMode int

const (
	// modeAdhoc is a statement typed by the caller. Full checks.
	modeAdhoc evalMode = iota
	// modeTemplateSubmit pre-validates a draft body at submit time:
	// blocklist and WHERE checks apply, but the submitter's row limits
	// do not, and DML is open to roles that may execute templates.
	modeTemplateSubmit
	// modeTemplateExec runs an already-approved template body. DML is
	// open to template-capable roles; everything else matches adhoc,
	// row limits included, because the executor's limits bind at run
	// time regardless of who authored the template.
	modeTemplateExec
)

// Evaluate runs the full pipeline for an ad hoc statement.
func (e *Engine) Evaluate(caller domain.CallerContext, stmt *sqlparse.Statement) (*domain.Decision, error) {
	return e.evaluate(caller, stmt, modeAdhoc)
}

// EvaluateTemplate runs the pipeline at template submit time.
func (e *Engine) EvaluateTemplate(caller domain.CallerContext, stmt *sqlparse.Statement) (*domain.Decision, error) {
	return e.evaluate(caller, stmt, modeTemplateSubmit)
}

// EvaluateApproved runs the pipeline for an approved template body on
// behalf of its executor.
func (e *Engine) EvaluateApproved(caller domain.CallerContext, stmt *sqlparse.Statement) (*domain.Decision, error) {
	return e.evaluate(caller, stmt, modeTemplateExec)
}

// evaluate applies the ordered checks, short-circuiting on the first
// DENY. The check order is part of the contract: a caller must see the
// same denial reason for the same statement every time.
func (e *Engine) evaluate(caller domain.CallerContext, stmt *sqlparse.Statement, mode evalMode) (*domain.Decision, error) {
	snap := e.policies.Current()
	d := &domain.Decision{Outcome: domain.OutcomeAllow}

	// 1. Role capability, interleaved with the blocklists: an active
	// block policy answers before the capability check does, so a VIEWER
	// hitting a global DDL_BLOCK sees BLOCKED_BY_POLICY, not a hint that
	// a bigger role would have gotten through.
	switch stmt.Kind {
	case sqlparse.KindDDL:
		blk, err := snap.Effective(domain.PolicyDDLBlock, caller, stmt.Tables)
		if err != nil {
			return nil, err
		}
		if blk != nil && blk.Params.(domain.BlockParams).Blocks(stmt.Verb) {
			return e.deny(d, domain.CodeBlockedByPolicy, stmt, blk), nil
		}
		if !caller.Role.Can(domain.CapExecuteDDL) {
			return e.deny(d, domain.CodeInsufficientPermission, stmt, nil), nil
		}
	case sqlparse.KindInsert, sqlparse.KindUpdate, sqlparse.KindDelete:
		allowed := caller.Role.Can(domain.CapExecuteDML) ||
			(mode != modeAdhoc && caller.Role.Can(domain.CapExecuteTemplates))
		if !allowed {
			return e.deny(d, domain.CodeInsufficientPermission, stmt, nil), nil
		}
		blk, err := snap.Effective(domain.PolicyDMLBlock, caller, stmt.Tables)
		if err != nil {
			return nil, err
		}
		if blk != nil && blk.Params.(domain.BlockParams).Blocks(stmt.Verb) {
			return e.deny(d, domain.CodeBlockedByPolicy, stmt, blk), nil
		}
	case sqlparse.KindSelect:
		if !caller.Role.Can(domain.CapExecuteSelect) {
			return e.deny(d, domain.CodeInsufficientPermission, stmt, nil), nil
		}
	default:
		// Unclassifiable statements need the widest write capability.
		if !caller.Role.Can(domain.CapExecuteDML) {
			return e.deny(d, domain.CodeInsufficientPermission, stmt, nil), nil
		}
	}

	// 2. WHERE_CLAUSE_REQUIRED for UPDATE/DELETE.
	if stmt.Kind == sqlparse.KindUpdate || stmt.Kind == sqlparse.KindDelete {
		p, err := snap.Effective(domain.PolicyWhereRequired, caller, stmt.Tables)
		if err != nil {
			return nil, err
		}
		if p != nil && p.Params.(domain.WhereRequiredParams).AppliesTo(string(stmt.Kind)) && !stmt.HasWhere {
			return e.deny(d, domain.CodeMissingWhereClause, stmt, p), nil
		}
	}

	// 3. Row limits for SELECT. Submit-time validation carries no caller
	// row limits; the limits of the eventual executor apply at run time.
	if stmt.Kind == sqlparse.KindSelect && mode != modeTemplateSubmit {
		if err := e.applyRowLimits(snap, caller, stmt, d); err != nil {
			return nil, err
		}
	}

	// 4. Statement timeout rides on the Decision; the execution driver
	// enforces it through context cancellation.
	to, err := snap.Effective(domain.PolicyStatementTimeout, caller, stmt.Tables)
	if err != nil {
		return nil, err
	}
	if to != nil {
		d.Timeout = to.Params.(domain.TimeoutParams).Timeout()
		d.AppliedPolicies = append(d.AppliedPolicies, *to)
	}

	// 5. PII masking columns for SELECT results.
	if stmt.Kind == sqlparse.KindSelect {
		e.applyMasking(snap, caller, stmt, d)
	}

	e.logger.Debug("statement evaluated",
		"kind", stmt.Kind,
		"outcome", d.Outcome,
		"applied_policies", len(d.AppliedPolicies))
	return d, nil
}

func (e *Engine) deny(d *domain.Decision, code string, stmt *sqlparse.Statement, applied *domain.Policy) *domain.Decision {
	d.Outcome = domain.OutcomeDeny
	d.Reason = code
	if applied != nil {
		d.AppliedPolicies = append(d.AppliedPolicies, *applied)
	}
	e.logger.Info("statement denied",
		"kind", stmt.Kind,
		"verb", stmt.Verb,
		"reason", code)
	return d
}

// applyRowLimits resolves MAX_ROWS and AUTO_LIMIT, injecting a LIMIT
// clause when the statement carries none. When both apply, the smaller
// limit wins. Both set the defensive row cap applied after execution
// even if the rewrite was bypassed.
func (e *Engine) applyRowLimits(snap *policy.Snapshot, caller domain.CallerContext, stmt *sqlparse.Statement, d *domain.Decision) error {
	limit := 0

	if p, err := snap.Effective(domain.PolicyMaxRows, caller, stmt.Tables); err != nil {
		return err
	} else if p != nil {
		n := p.Params.(domain.MaxRowsParams).MaxRows
		d.RowCap = n
		limit = n
		d.AppliedPolicies = append(d.AppliedPolicies, *p)
	}

	if p, err := snap.Effective(domain.PolicyAutoLimit, caller, stmt.Tables); err != nil {
		return err
	} else if p != nil {
		n := p.Params.(domain.AutoLimitParams).Limit
		if limit == 0 || n < limit {
			limit = n
		}
		// The cap backs the rewrite: even if the injected LIMIT were
		// somehow lost, the post-processor truncates.
		if d.RowCap == 0 || n < d.RowCap {
			d.RowCap = n
		}
		d.AppliedPolicies = append(d.AppliedPolicies, *p)
	}

	if limit == 0 || stmt.HasLimit {
		return nil
	}
	rewritten, err := sqlparse.InjectLimit(stmt.Raw, limit)
	if err != nil {
		return err
	}
	d.Outcome = domain.OutcomeAllowRewritten
	d.RewrittenSQL = rewritten
	return nil
}

// applyMasking computes the masking column set as the union of every
// matching PII_MASKING policy, intersected with the statement's own
// column list. Masking is cumulative rather than winner-take-all: a
// narrow policy never un-masks what a broader one protects. Full mode
// wins over partial when policies disagree.
func (e *Engine) applyMasking(snap *policy.Snapshot, caller domain.CallerContext, stmt *sqlparse.Statement, d *domain.Decision) {
	matching := snap.Matching(domain.PolicyPIIMasking, caller, stmt.Tables)
	if len(matching) == 0 {
		return
	}

	selected := make(map[string]bool, len(stmt.Columns))
	for _, c := range stmt.Columns {
		selected[strings.ToLower(c)] = true
	}

	mode := domain.MaskPartial
	cols := make(map[string]bool)
	for _, p := range matching {
		params := p.Params.(domain.PIIMaskingParams)
		hit := false
		for _, pc := range params.PIIColumns {
			lc := strings.ToLower(pc)
			if stmt.Star || selected[lc] {
				cols[lc] = true
				hit = true
			}
		}
		if hit {
			if params.Mode == domain.MaskFull {
				mode = domain.MaskFull
			}
			d.AppliedPolicies = append(d.AppliedPolicies, p)
		}
	}
	if len(cols) == 0 {
		return
	}

	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	sort.Strings(out)
	d.MaskingColumns = out
	d.MaskingMode = mode
}
