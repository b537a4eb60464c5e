package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/db"
	"sqlguard/internal/domain"
)

func newAuditRepo(t *testing.T) *AuditRepo {
	t.Helper()
	writeDB, readDB := db.OpenTest(t)
	return NewAuditRepo(writeDB, readDB)
}

func testAudit(actor, action string, at time.Time) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:               domain.NewID(),
		Actor:            actor,
		Action:           action,
		ResourceType:     "statement",
		StatementKind:    "SELECT",
		DecisionOutcome:  string(domain.OutcomeAllow),
		ExecutionOutcome: domain.ExecOutcomeOK,
		AppliedPolicyIDs: []string{"pol-1"},
		Severity:         domain.SeverityInfo,
		Message:          "query executed",
		CreatedAt:        at,
	}
}

func TestAuditRepo_InsertAndList(t *testing.T) {
	repo := newAuditRepo(t)
	ctx := context.Background()

	rows := int64(12)
	rec := testAudit("u-1", domain.AuditActionQuery, time.Now().UTC())
	rec.RowCount = &rows
	require.NoError(t, repo.Insert(ctx, rec))

	got, total, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].Actor)
	assert.Equal(t, []string{"pol-1"}, got[0].AppliedPolicyIDs)
	require.NotNil(t, got[0].RowCount)
	assert.Equal(t, rows, *got[0].RowCount)
	assert.Nil(t, got[0].DurationMs)
	assert.Equal(t, "{}", got[0].DetailsJSON)
}

func TestAuditRepo_ListFilters(t *testing.T) {
	repo := newAuditRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, testAudit("u-1", domain.AuditActionQuery, base)))
	require.NoError(t, repo.Insert(ctx, testAudit("u-2", domain.AuditActionApprove, base.Add(time.Hour))))
	critical := testAudit("u-2", domain.AuditActionQuery, base.Add(2*time.Hour))
	critical.Severity = domain.SeverityCritical
	require.NoError(t, repo.Insert(ctx, critical))

	actor := "u-2"
	got, total, err := repo.List(ctx, domain.AuditFilter{Actor: &actor})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	sev := domain.SeverityCritical
	got, total, err = repo.List(ctx, domain.AuditFilter{Severity: &sev})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, critical.ID, got[0].ID)

	since := base.Add(30 * time.Minute)
	_, total, err = repo.List(ctx, domain.AuditFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestAuditRepo_ListNewestFirstAndPaged(t *testing.T) {
	repo := newAuditRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx,
			testAudit("u-1", domain.AuditActionQuery, base.Add(time.Duration(i)*time.Minute))))
	}

	got, total, err := repo.List(ctx, domain.AuditFilter{Page: domain.PageRequest{MaxResults: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}
