// Package query orchestrates the core request flow: decide, execute,
// audit, respond — in that order, fail-closed at the audit step.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sqlguard/internal/audit"
	"sqlguard/internal/domain"
	"sqlguard/internal/enforce"
	"sqlguard/internal/mask"
	"sqlguard/internal/sqlparse"
)

// Service authorizes, executes, and audits statements.
type Service struct {
	engine    *enforce.Engine
	driver    domain.ExecutionDriver
	templates domain.TemplateRepository
	audit     *audit.Writer
	logger    *slog.Logger
}

// NewService creates a query Service.
func NewService(engine *enforce.Engine, driver domain.ExecutionDriver, templates domain.TemplateRepository, writer *audit.Writer, logger *slog.Logger) *Service {
	return &Service{
		engine:    engine,
		driver:    driver,
		templates: templates,
		audit:     writer,
		logger:    logger.With("component", "query_service"),
	}
}

// AuthorizeAndPrepare classifies and evaluates a statement without
// executing it. Used by callers that open their own cursor and by the
// dry-run surface.
func (s *Service) AuthorizeAndPrepare(ctx context.Context, rawSQL string) (*domain.Decision, *sqlparse.Statement, error) {
	caller, ok := domain.CallerFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}
	stmt, err := sqlparse.Classify(rawSQL)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.engine.Evaluate(caller, stmt)
	if err != nil {
		return nil, nil, err
	}
	return d, stmt, nil
}

// Execute runs one ad hoc statement through the full pipeline and
// returns the masked result alongside its audit record.
func (s *Service) Execute(ctx context.Context, rawSQL string) (*domain.ResultSet, *domain.AuditRecord, error) {
	return s.run(ctx, rawSQL, nil, domain.AuditActionQuery, "statement", "", false)
}

// ExecuteTemplate runs an approved template version with the given
// parameter values. version 0 means latest.
func (s *Service) ExecuteTemplate(ctx context.Context, templateID string, version int, params map[string]interface{}) (*domain.ResultSet, *domain.AuditRecord, error) {
	caller, ok := domain.CallerFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}
	if !caller.Role.Can(domain.CapExecuteTemplates) {
		return nil, nil, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"capability %s required", domain.CapExecuteTemplates)
	}

	var (
		tpl *domain.SQLTemplate
		err error
	)
	if version > 0 {
		tpl, err = s.templates.GetVersion(ctx, templateID, version)
	} else {
		tpl, err = s.templates.GetLatest(ctx, templateID)
	}
	if err != nil {
		return nil, nil, err
	}
	if tpl.Status != domain.TemplateApproved {
		return nil, nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
			"template %s v%d is %s, not APPROVED", tpl.ID, tpl.Version, tpl.Status)
	}

	args, err := bindParams(tpl, params)
	if err != nil {
		return nil, nil, err
	}
	resourceID := fmt.Sprintf("%s@v%d", tpl.ID, tpl.Version)
	return s.run(ctx, tpl.SQLBody, args, domain.AuditActionTemplateExecute, "template", resourceID, true)
}

// run is the decide-execute-audit-respond sequence shared by ad hoc and
// template execution. approved marks an approved template body, which
// opens DML to template-capable roles; ad hoc writes stay admin-only.
func (s *Service) run(ctx context.Context, rawSQL string, args []interface{}, action, resourceType, resourceID string, approved bool) (*domain.ResultSet, *domain.AuditRecord, error) {
	caller, ok := domain.CallerFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}

	stmt, err := sqlparse.Classify(rawSQL)
	if err != nil {
		// Malformed input is still an auditable denial.
		rec := s.baseRecord(caller, action, resourceType, resourceID)
		rec.DecisionOutcome = string(domain.OutcomeDeny)
		rec.ExecutionOutcome = domain.ExecOutcomeDenied
		rec.Message = "statement rejected before classification"
		if aerr := s.audit.Record(ctx, rec, false); aerr != nil {
			return nil, nil, aerr
		}
		return nil, rec, err
	}

	decision, err := s.evaluate(caller, stmt, approved)
	if err != nil {
		return nil, nil, err
	}

	if !decision.Allowed() {
		rec := s.baseRecord(caller, action, resourceType, resourceID)
		rec.StatementKind = string(stmt.Kind)
		rec.DecisionOutcome = string(decision.Outcome)
		rec.ExecutionOutcome = domain.ExecOutcomeDenied
		rec.AppliedPolicyIDs = decision.AppliedPolicyIDs()
		rec.Message = "statement denied: " + decision.Reason
		rec.DetailsJSON = statementDetails(stmt)
		if aerr := s.audit.Record(ctx, rec, false); aerr != nil {
			return nil, nil, aerr
		}
		return nil, rec, domain.ErrAccessDenied(decision.Reason, "statement denied: %s", decision.Reason)
	}

	execCtx := ctx
	if decision.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, decision.Timeout)
		defer cancel()
	}

	start := time.Now()
	rs, execErr := s.driver.Execute(execCtx, decision.SQL(rawSQL), args)
	durationMs := time.Since(start).Milliseconds()

	masked, rec := s.Finalize(caller, decision, stmt, rs, execErr, durationMs)
	rec.Action = action
	rec.ResourceType = resourceType
	rec.ResourceID = resourceID

	// The statement already ran (or began to); an audit failure here
	// escalates and the caller gets no rows.
	if aerr := s.audit.Record(ctx, rec, true); aerr != nil {
		return nil, nil, aerr
	}
	if execErr != nil {
		return nil, rec, execErr
	}
	return masked, rec, nil
}

func (s *Service) evaluate(caller domain.CallerContext, stmt *sqlparse.Statement, approved bool) (*domain.Decision, error) {
	if approved {
		return s.engine.EvaluateApproved(caller, stmt)
	}
	return s.engine.Evaluate(caller, stmt)
}

// Finalize masks an executed result and builds its audit record. Pure
// with respect to storage; the caller persists the record.
func (s *Service) Finalize(caller domain.CallerContext, decision *domain.Decision, stmt *sqlparse.Statement, rs *domain.ResultSet, execErr error, durationMs int64) (*domain.ResultSet, *domain.AuditRecord) {
	rec := s.baseRecord(caller, domain.AuditActionQuery, "statement", "")
	rec.StatementKind = string(stmt.Kind)
	rec.DecisionOutcome = string(decision.Outcome)
	rec.AppliedPolicyIDs = decision.AppliedPolicyIDs()
	rec.DurationMs = &durationMs
	rec.DetailsJSON = statementDetails(stmt)

	switch {
	case execErr == nil:
		rec.ExecutionOutcome = domain.ExecOutcomeOK
		rec.Message = "statement executed"
	case errors.Is(execErr, context.DeadlineExceeded):
		rec.ExecutionOutcome = domain.ExecOutcomeTimeout
		rec.Severity = domain.SeverityWarning
		rec.Message = "statement cancelled at timeout"
	default:
		rec.ExecutionOutcome = domain.ExecOutcomeError
		rec.Severity = domain.SeverityWarning
		rec.Message = "statement execution failed"
	}

	var masked *domain.ResultSet
	if execErr == nil && rs != nil {
		masked = mask.Apply(rs, decision.MaskingColumns, decision.MaskingMode, decision.RowCap)
		n := int64(masked.RowCount())
		rec.RowCount = &n
	}
	return masked, rec
}

func (s *Service) baseRecord(caller domain.CallerContext, action, resourceType, resourceID string) *domain.AuditRecord {
	return &domain.AuditRecord{
		Actor:        caller.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Severity:     domain.SeverityInfo,
	}
}

// statementDetails records structural facts about the statement, never
// its text: literals in the raw SQL may themselves be sensitive.
func statementDetails(stmt *sqlparse.Statement) string {
	b, err := json.Marshal(map[string]interface{}{
		"verb":      stmt.Verb,
		"tables":    stmt.Tables,
		"has_where": stmt.HasWhere,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// bindParams validates provided values against the template's declared
// parameter schema and returns driver args in declaration order.
func bindParams(tpl *domain.SQLTemplate, provided map[string]interface{}) ([]interface{}, error) {
	args := make([]interface{}, 0, len(tpl.Params))
	for _, p := range tpl.Params {
		v, ok := provided[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
					"missing required parameter %q", p.Name)
			}
			args = append(args, sql.Named(p.Name, nil))
			continue
		}
		coerced, err := coerceParam(p, v)
		if err != nil {
			return nil, err
		}
		args = append(args, sql.Named(p.Name, coerced))
	}
	for name := range provided {
		if !declaredParam(tpl, name) {
			return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
				"unknown parameter %q", name)
		}
	}
	return args, nil
}

func declaredParam(tpl *domain.SQLTemplate, name string) bool {
	for _, p := range tpl.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// coerceParam checks a provided value against the declared type. JSON
// decoding hands numbers over as float64, so int accepts whole floats.
func coerceParam(p domain.TemplateParam, v interface{}) (interface{}, error) {
	switch p.Type {
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
	case "int":
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case "bool":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
		"parameter %q must be of type %s", p.Name, p.Type)
}
