package enforce

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/domain"
	"sqlguard/internal/policy"
	"sqlguard/internal/sqlparse"
)

type staticPolicyRepo struct {
	policies []domain.Policy
}

func (s *staticPolicyRepo) Create(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	return p, nil
}

func (s *staticPolicyRepo) Update(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	return p, nil
}

func (s *staticPolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	return nil, domain.ErrNotFound("policy %s not found", id)
}

func (s *staticPolicyRepo) List(ctx context.Context, enabledOnly bool) ([]domain.Policy, error) {
	return s.policies, nil
}

func (s *staticPolicyRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return nil
}

var policyTime = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, policies ...domain.Policy) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := policy.NewStore(&staticPolicyRepo{policies: policies}, logger)
	_, err := store.Reload(context.Background())
	require.NoError(t, err)
	return NewEngine(store, logger)
}

func globalPolicy(id string, typ domain.PolicyType, params domain.PolicyParams) domain.Policy {
	return domain.Policy{
		ID:        id,
		Name:      id,
		Type:      typ,
		Scope:     domain.ScopeGlobal,
		Priority:  domain.PriorityMedium,
		Params:    params,
		Enabled:   true,
		UpdatedAt: policyTime,
	}
}

func classify(t *testing.T, sql string) *sqlparse.Statement {
	t.Helper()
	stmt, err := sqlparse.Classify(sql)
	require.NoError(t, err)
	return stmt
}

func asCaller(role domain.Role) domain.CallerContext {
	return domain.CallerContext{UserID: "u-1", Role: role, Database: "prod", Schema: "public"}
}

func TestEvaluate_GlobalDDLBlockBeatsCapabilityCheck(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("ddl-block", domain.PolicyDDLBlock, domain.BlockParams{}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "DROP TABLE users;"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeny, d.Outcome)
	assert.Equal(t, domain.CodeBlockedByPolicy, d.Reason)
	assert.Equal(t, []string{"ddl-block"}, d.AppliedPolicyIDs())
}

func TestEvaluate_DDLWithoutBlockNeedsAdmin(t *testing.T) {
	eng := newTestEngine(t)

	d, err := eng.Evaluate(asCaller(domain.RoleOperator), classify(t, "DROP TABLE users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeny, d.Outcome)
	assert.Equal(t, domain.CodeInsufficientPermission, d.Reason)

	d, err = eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "DROP TABLE users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
}

func TestEvaluate_DMLCapabilityAndBlocklist(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("dml-block", domain.PolicyDMLBlock,
			domain.BlockParams{Statements: []string{"DELETE"}}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "DELETE FROM users WHERE id = 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeInsufficientPermission, d.Reason, "capability check runs before the DML blocklist")

	d, err = eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "DELETE FROM users WHERE id = 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeBlockedByPolicy, d.Reason)

	// The blocklist names DELETE only; INSERT passes.
	d, err = eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "INSERT INTO users (name) VALUES ('a')"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
}

func TestEvaluate_AdHocDMLIsAdminOnly(t *testing.T) {
	eng := newTestEngine(t)
	stmt := classify(t, "UPDATE users SET active = 0 WHERE id = 1")

	for _, role := range []domain.Role{domain.RoleViewer, domain.RoleOperator, domain.RoleApprover} {
		d, err := eng.Evaluate(asCaller(role), stmt)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeDeny, d.Outcome, "role %s", role)
		assert.Equal(t, domain.CodeInsufficientPermission, d.Reason, "role %s", role)
	}

	d, err := eng.Evaluate(asCaller(domain.RoleAdmin), stmt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)

	// An approved template body is the sanctioned write path for lesser
	// roles.
	d, err = eng.EvaluateApproved(asCaller(domain.RoleOperator), stmt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
}

func TestEvaluate_WhereClauseRequired(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("where", domain.PolicyWhereRequired, domain.WhereRequiredParams{}))

	d, err := eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "UPDATE users SET a = 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeny, d.Outcome)
	assert.Equal(t, domain.CodeMissingWhereClause, d.Reason)

	d, err = eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "UPDATE users SET a = 1 WHERE id = 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)

	// A WHERE buried in a subquery does not satisfy the policy.
	d, err = eng.Evaluate(asCaller(domain.RoleAdmin),
		classify(t, "DELETE FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeMissingWhereClause, d.Reason)
}

func TestEvaluate_WhereRequiredScopedToKind(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("where", domain.PolicyWhereRequired,
			domain.WhereRequiredParams{RequiredFor: []string{"UPDATE"}}))

	d, err := eng.Evaluate(asCaller(domain.RoleAdmin), classify(t, "DELETE FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
}

func TestEvaluate_MaxRowsRewritesSelect(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 1000}),
		globalPolicy("pii", domain.PolicyPIIMasking,
			domain.PIIMaskingParams{PIIColumns: []string{"email"}, Mode: domain.MaskPartial}))

	d, err := eng.Evaluate(asCaller(domain.RoleOperator), classify(t, "SELECT * FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllowRewritten, d.Outcome)
	assert.Equal(t, "SELECT * FROM users\nLIMIT 1000", d.RewrittenSQL)
	assert.Equal(t, 1000, d.RowCap)
	assert.Contains(t, d.MaskingColumns, "email")
}

func TestEvaluate_ExistingLimitIsKept(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 1000}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT * FROM users LIMIT 5"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
	assert.Empty(t, d.RewrittenSQL)
	assert.Equal(t, 1000, d.RowCap, "row cap still applies defensively")
}

func TestEvaluate_SmallerOfAutoLimitAndMaxRowsWins(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 1000}),
		globalPolicy("auto-limit", domain.PolicyAutoLimit, domain.AutoLimitParams{Limit: 200}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT * FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllowRewritten, d.Outcome)
	assert.Equal(t, "SELECT * FROM users\nLIMIT 200", d.RewrittenSQL)
	assert.Equal(t, 200, d.RowCap, "the smaller limit also backs the row cap")
}

func TestEvaluate_AutoLimitSetsRowCap(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("auto-limit", domain.PolicyAutoLimit, domain.AutoLimitParams{Limit: 50}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT * FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllowRewritten, d.Outcome)
	assert.Equal(t, 50, d.RowCap, "the cap truncates even if the rewritten text were not used")
}

func TestEvaluate_TimeoutAttachedToDecision(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("timeout", domain.PolicyStatementTimeout, domain.TimeoutParams{TimeoutSeconds: 30}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT 1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome)
	assert.Equal(t, 30*time.Second, d.Timeout)
	assert.Equal(t, []string{"timeout"}, d.AppliedPolicyIDs())
}

func TestEvaluate_MaskingIntersectsSelectedColumns(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("pii", domain.PolicyPIIMasking,
			domain.PIIMaskingParams{PIIColumns: []string{"email", "ssn"}, Mode: domain.MaskPartial}))

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT id, email FROM users"))
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, d.MaskingColumns, "only columns the statement selects are masked")
	assert.Equal(t, domain.MaskPartial, d.MaskingMode)

	d, err = eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT id, name FROM users"))
	require.NoError(t, err)
	assert.Empty(t, d.MaskingColumns)
}

func TestEvaluate_MaskingUnionsPoliciesAndFullModeWins(t *testing.T) {
	rolePII := domain.Policy{
		ID: "role-pii", Name: "role-pii",
		Type:      domain.PolicyPIIMasking,
		Scope:     domain.ScopeRole,
		ScopeRef:  "VIEWER",
		Priority:  domain.PriorityLow,
		Params:    domain.PIIMaskingParams{PIIColumns: []string{"ssn"}, Mode: domain.MaskFull},
		Enabled:   true,
		UpdatedAt: policyTime,
	}
	eng := newTestEngine(t,
		globalPolicy("pii", domain.PolicyPIIMasking,
			domain.PIIMaskingParams{PIIColumns: []string{"email"}, Mode: domain.MaskPartial}),
		rolePII)

	d, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT * FROM users"))
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "ssn"}, d.MaskingColumns)
	assert.Equal(t, domain.MaskFull, d.MaskingMode)
}

func TestEvaluateTemplate_SkipsRowLimitsKeepsBlocklist(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 100}),
		globalPolicy("where", domain.PolicyWhereRequired, domain.WhereRequiredParams{}))

	d, err := eng.EvaluateTemplate(asCaller(domain.RoleOperator), classify(t, "SELECT * FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllow, d.Outcome, "template mode applies no row limits")
	assert.Empty(t, d.RewrittenSQL)

	d, err = eng.EvaluateTemplate(asCaller(domain.RoleOperator), classify(t, "DELETE FROM users"))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeMissingWhereClause, d.Reason, "WHERE check still applies in template mode")
}

func TestEvaluate_PolicyConflictSurfaces(t *testing.T) {
	eng := newTestEngine(t,
		globalPolicy("a", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 10}),
		globalPolicy("b", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 20}))

	_, err := eng.Evaluate(asCaller(domain.RoleViewer), classify(t, "SELECT * FROM users"))
	require.Error(t, err)
	var conflict *domain.PolicyConflictError
	require.ErrorAs(t, err, &conflict)
}
