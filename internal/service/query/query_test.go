package query

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/audit"
	"sqlguard/internal/domain"
	"sqlguard/internal/enforce"
	"sqlguard/internal/policy"
	"sqlguard/internal/testutil"
)

var errTest = errors.New("test error")

type fixture struct {
	svc       *Service
	driver    *testutil.MockDriver
	auditRepo *testutil.MockAuditRepo
	templates *testutil.MockTemplateRepo
}

func newFixture(t *testing.T, policies ...domain.Policy) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := policy.NewStore(&testutil.MockPolicyRepo{Policies: policies}, logger)
	_, err := store.Reload(context.Background())
	require.NoError(t, err)

	f := &fixture{
		driver:    &testutil.MockDriver{},
		auditRepo: &testutil.MockAuditRepo{},
		templates: &testutil.MockTemplateRepo{},
	}
	f.svc = NewService(
		enforce.NewEngine(store, logger),
		f.driver,
		f.templates,
		audit.NewWriter(f.auditRepo, logger),
		logger)
	return f
}

func ctxAs(role domain.Role) context.Context {
	return domain.WithCaller(context.Background(), domain.CallerContext{
		UserID: "u-" + string(role), Role: role, Database: "prod", Schema: "public",
	})
}

func enabledPolicy(id string, typ domain.PolicyType, params domain.PolicyParams) domain.Policy {
	return domain.Policy{
		ID: id, Name: id, Type: typ,
		Scope: domain.ScopeGlobal, Priority: domain.PriorityMedium,
		Params: params, Enabled: true,
		UpdatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExecute_RewritesMasksAndAudits(t *testing.T) {
	f := newFixture(t,
		enabledPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 1000}),
		enabledPolicy("pii", domain.PolicyPIIMasking,
			domain.PIIMaskingParams{PIIColumns: []string{"email"}, Mode: domain.MaskPartial}))

	f.driver.ExecuteFn = func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
		return &domain.ResultSet{
			Columns: []string{"id", "email"},
			Rows:    [][]interface{}{{int64(1), "alice@example.com"}},
		}, nil
	}

	rs, rec, err := f.svc.Execute(ctxAs(domain.RoleOperator), "SELECT * FROM users")
	require.NoError(t, err)

	require.Len(t, f.driver.Executed, 1)
	assert.Equal(t, "SELECT * FROM users\nLIMIT 1000", f.driver.Executed[0])
	assert.Equal(t, "a****m", rs.Rows[0][1])

	require.NotNil(t, rec)
	assert.Equal(t, domain.ExecOutcomeOK, rec.ExecutionOutcome)
	assert.Equal(t, string(domain.OutcomeAllowRewritten), rec.DecisionOutcome)
	assert.Contains(t, rec.AppliedPolicyIDs, "max-rows")
	require.NotNil(t, rec.RowCount)
	assert.Equal(t, int64(1), *rec.RowCount)

	require.Len(t, f.auditRepo.Records, 1)
}

func TestExecute_DenialIsAuditedAndReturned(t *testing.T) {
	f := newFixture(t)

	_, rec, err := f.svc.Execute(ctxAs(domain.RoleViewer), "DELETE FROM users")
	require.Error(t, err)
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.CodeInsufficientPermission, denied.Code)

	assert.Empty(t, f.driver.Executed, "denied statements never reach the driver")
	require.NotNil(t, rec)
	assert.Equal(t, domain.ExecOutcomeDenied, rec.ExecutionOutcome)
	require.Len(t, f.auditRepo.Records, 1)
}

func TestExecute_MalformedInputIsAudited(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Execute(ctxAs(domain.RoleViewer), "SELECT 1; DROP TABLE users")
	require.Error(t, err)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeMultiStatement, verr.Code)
	require.Len(t, f.auditRepo.Records, 1)
	assert.Equal(t, domain.ExecOutcomeDenied, f.auditRepo.Records[0].ExecutionOutcome)
}

func TestExecute_AuditFailureWithholdsRows(t *testing.T) {
	f := newFixture(t)
	f.auditRepo.InsertFn = func(ctx context.Context, rec *domain.AuditRecord) error {
		return errTest
	}
	f.driver.ExecuteFn = func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
		return &domain.ResultSet{Columns: []string{"id"}, Rows: [][]interface{}{{int64(1)}}}, nil
	}

	rs, _, err := f.svc.Execute(ctxAs(domain.RoleViewer), "SELECT id FROM users")
	require.Error(t, err)
	var aerr *domain.AuditPersistenceError
	require.ErrorAs(t, err, &aerr)
	assert.True(t, aerr.Executed)
	assert.Nil(t, rs, "results are withheld when the audit trail cannot be written")
}

func TestExecute_TimeoutIsRecordedAsTimeout(t *testing.T) {
	f := newFixture(t,
		enabledPolicy("timeout", domain.PolicyStatementTimeout, domain.TimeoutParams{TimeoutSeconds: 1}))
	f.driver.ExecuteFn = func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
		return nil, context.DeadlineExceeded
	}

	_, rec, err := f.svc.Execute(ctxAs(domain.RoleViewer), "SELECT id FROM users")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, rec)
	assert.Equal(t, domain.ExecOutcomeTimeout, rec.ExecutionOutcome)
	assert.Equal(t, domain.SeverityWarning, rec.Severity)
}

func TestExecute_DriverErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.driver.ExecuteFn = func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
		return nil, errTest
	}

	_, rec, err := f.svc.Execute(ctxAs(domain.RoleViewer), "SELECT id FROM users")
	require.ErrorIs(t, err, errTest)
	assert.Equal(t, domain.ExecOutcomeError, rec.ExecutionOutcome)
}

func TestExecute_RequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Execute(context.Background(), "SELECT 1")
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
}

func approvedTemplate() domain.SQLTemplate {
	return domain.SQLTemplate{
		ID: "tpl-1", Version: 2, Name: "orders-by-region",
		SQLBody: "SELECT id, total FROM orders WHERE region = :region",
		Params: []domain.TemplateParam{
			{Name: "region", Type: "string", Required: true},
		},
		Status: domain.TemplateApproved,
	}
}

func TestExecuteTemplate_BindsNamedParams(t *testing.T) {
	f := newFixture(t)
	f.templates.Templates = []domain.SQLTemplate{approvedTemplate()}

	var gotArgs []interface{}
	f.driver.ExecuteFn = func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
		gotArgs = args
		return &domain.ResultSet{Columns: []string{"id", "total"}}, nil
	}

	_, rec, err := f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0,
		map[string]interface{}{"region": "emea"})
	require.NoError(t, err)
	require.Len(t, gotArgs, 1)
	assert.Equal(t, sql.Named("region", "emea"), gotArgs[0])
	assert.Equal(t, domain.AuditActionTemplateExecute, rec.Action)
	assert.Equal(t, "tpl-1@v2", rec.ResourceID)
}

func TestExecuteTemplate_RejectsUnapprovedAndBadParams(t *testing.T) {
	f := newFixture(t)
	draft := approvedTemplate()
	draft.Status = domain.TemplateDraft
	f.templates.Templates = []domain.SQLTemplate{draft}

	_, _, err := f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeTemplateInvalid, verr.Code)

	f.templates.Templates = []domain.SQLTemplate{approvedTemplate()}

	_, _, err = f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0,
		map[string]interface{}{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeTemplateInvalid, verr.Code)

	_, _, err = f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0,
		map[string]interface{}{"region": 7})
	require.ErrorAs(t, err, &verr)

	_, _, err = f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0,
		map[string]interface{}{"region": "emea", "bogus": 1})
	require.ErrorAs(t, err, &verr)
}

func TestExecute_AdHocDMLDeniedForOperator(t *testing.T) {
	f := newFixture(t)

	_, rec, err := f.svc.Execute(ctxAs(domain.RoleOperator), "UPDATE users SET active = 0 WHERE id = 1")
	require.Error(t, err)
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.CodeInsufficientPermission, denied.Code)
	assert.Empty(t, f.driver.Executed)
	require.NotNil(t, rec)
	assert.Equal(t, domain.ExecOutcomeDenied, rec.ExecutionOutcome)
}

func TestExecuteTemplate_ApprovedDMLRunsForOperator(t *testing.T) {
	f := newFixture(t)
	tpl := approvedTemplate()
	tpl.SQLBody = "UPDATE orders SET status = :status WHERE region = :region"
	tpl.Params = []domain.TemplateParam{
		{Name: "status", Type: "string", Required: true},
		{Name: "region", Type: "string", Required: true},
	}
	f.templates.Templates = []domain.SQLTemplate{tpl}

	_, rec, err := f.svc.ExecuteTemplate(ctxAs(domain.RoleOperator), "tpl-1", 0,
		map[string]interface{}{"status": "shipped", "region": "emea"})
	require.NoError(t, err)
	require.Len(t, f.driver.Executed, 1)
	assert.Equal(t, domain.ExecOutcomeOK, rec.ExecutionOutcome)
}

func TestExecuteTemplate_ViewerForbidden(t *testing.T) {
	f := newFixture(t)
	f.templates.Templates = []domain.SQLTemplate{approvedTemplate()}

	_, _, err := f.svc.ExecuteTemplate(ctxAs(domain.RoleViewer), "tpl-1", 0,
		map[string]interface{}{"region": "emea"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.CodeInsufficientPermission, denied.Code)
}

func TestAuthorizeAndPrepare_DoesNotExecute(t *testing.T) {
	f := newFixture(t,
		enabledPolicy("max-rows", domain.PolicyMaxRows, domain.MaxRowsParams{MaxRows: 50}))

	d, stmt, err := f.svc.AuthorizeAndPrepare(ctxAs(domain.RoleViewer), "SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAllowRewritten, d.Outcome)
	assert.Equal(t, "SELECT * FROM users\nLIMIT 50", d.RewrittenSQL)
	assert.Equal(t, []string{"users"}, stmt.Tables)
	assert.Empty(t, f.driver.Executed)
	assert.Empty(t, f.auditRepo.Records)
}
