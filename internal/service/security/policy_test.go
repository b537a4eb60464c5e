package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/audit"
	"sqlguard/internal/domain"
	"sqlguard/internal/policy"
	"sqlguard/internal/testutil"
)

type fixture struct {
	svc       *PolicyService
	repo      *testutil.MockPolicyRepo
	store     *policy.Store
	auditRepo *testutil.MockAuditRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:      &testutil.MockPolicyRepo{},
		auditRepo: &testutil.MockAuditRepo{},
	}
	f.store = policy.NewStore(f.repo, logger)
	f.svc = NewPolicyService(f.repo, f.store, audit.NewWriter(f.auditRepo, logger), logger)
	return f
}

func adminCtx() context.Context {
	return domain.WithCaller(context.Background(), domain.CallerContext{
		UserID: "admin-1", Role: domain.RoleAdmin,
	})
}

func operatorCtx() context.Context {
	return domain.WithCaller(context.Background(), domain.CallerContext{
		UserID: "op-1", Role: domain.RoleOperator,
	})
}

func validPolicy() *domain.Policy {
	return &domain.Policy{
		Name:     "cap-rows",
		Type:     domain.PolicyMaxRows,
		Scope:    domain.ScopeGlobal,
		Priority: domain.PriorityHigh,
		Params:   domain.MaxRowsParams{MaxRows: 1000},
		Enabled:  true,
	}
}

func TestPolicyService_CreatePublishesSnapshot(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(adminCtx(), validPolicy())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "admin-1", created.CreatedBy)

	assert.Equal(t, 1, f.store.Current().Len(), "snapshot published after create")
	assert.True(t, f.auditRepo.HasAction(domain.AuditActionPolicyChange))
}

func TestPolicyService_AdminOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(operatorCtx(), validPolicy())
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.CodeInsufficientPermission, denied.Code)

	_, err = f.svc.Create(context.Background(), validPolicy())
	require.ErrorAs(t, err, &denied)

	_, err = f.svc.List(operatorCtx(), false)
	require.ErrorAs(t, err, &denied)
}

func TestPolicyService_CreateValidates(t *testing.T) {
	f := newFixture(t)

	bad := validPolicy()
	bad.Params = domain.MaxRowsParams{MaxRows: -5}
	_, err := f.svc.Create(adminCtx(), bad)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	scoped := validPolicy()
	scoped.Scope = domain.ScopeTable
	scoped.ScopeRef = ""
	_, err = f.svc.Create(adminCtx(), scoped)
	require.ErrorAs(t, err, &verr)
}

func TestPolicyService_SetEnabledRefreshesSnapshot(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(adminCtx(), validPolicy())
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Current().Len())

	require.NoError(t, f.svc.SetEnabled(adminCtx(), created.ID, false))
	assert.Equal(t, 0, f.store.Current().Len(), "disabled policy leaves the snapshot")
}

func TestPolicyService_AuditFailureFailsTheChange(t *testing.T) {
	f := newFixture(t)
	f.auditRepo.InsertFn = func(ctx context.Context, rec *domain.AuditRecord) error {
		return errors.New("audit store down")
	}

	_, err := f.svc.Create(adminCtx(), validPolicy())
	var aerr *domain.AuditPersistenceError
	require.ErrorAs(t, err, &aerr)
}
