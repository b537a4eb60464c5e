package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/db"
	"sqlguard/internal/domain"
)

func newTemplateRepo(t *testing.T) *TemplateRepo {
	t.Helper()
	writeDB, readDB := db.OpenTest(t)
	return NewTemplateRepo(writeDB, readDB)
}

func testTemplate(id, name string, version int) *domain.SQLTemplate {
	return &domain.SQLTemplate{
		ID:      id,
		Version: version,
		Name:    name,
		SQLBody: "SELECT * FROM orders WHERE region = :region",
		Params: []domain.TemplateParam{
			{Name: "region", Type: "string", Required: true},
		},
		Status:    domain.TemplateDraft,
		CreatedBy: "op-1",
	}
}

func TestTemplateRepo_InsertAndGetVersion(t *testing.T) {
	repo := newTemplateRepo(t)
	ctx := context.Background()

	id := domain.NewID()
	_, err := repo.Insert(ctx, testTemplate(id, "orders-by-region", 1))
	require.NoError(t, err)

	got, err := repo.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "orders-by-region", got.Name)
	assert.Equal(t, domain.TemplateDraft, got.Status)
	require.Len(t, got.Params, 1)
	assert.Equal(t, "region", got.Params[0].Name)
}

func TestTemplateRepo_VersionsAreImmutableRows(t *testing.T) {
	repo := newTemplateRepo(t)
	ctx := context.Background()

	id := domain.NewID()
	_, err := repo.Insert(ctx, testTemplate(id, "t", 1))
	require.NoError(t, err)

	// Same key again must conflict, not overwrite.
	_, err = repo.Insert(ctx, testTemplate(id, "t", 1))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = repo.Insert(ctx, testTemplate(id, "t", 2))
	require.NoError(t, err)

	latest, err := repo.GetLatest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	byName, err := repo.GetLatestByName(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 2, byName.Version)
}

func TestTemplateRepo_ListReturnsLatestPerTemplate(t *testing.T) {
	repo := newTemplateRepo(t)
	ctx := context.Background()

	aID, bID := domain.NewID(), domain.NewID()
	for _, tpl := range []*domain.SQLTemplate{
		testTemplate(aID, "alpha", 1),
		testTemplate(aID, "alpha", 2),
		testTemplate(bID, "beta", 1),
	} {
		_, err := repo.Insert(ctx, tpl)
		require.NoError(t, err)
	}

	got, total, err := repo.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "beta", got[1].Name)
}

func TestTemplateRepo_UpdateStatusCAS(t *testing.T) {
	repo := newTemplateRepo(t)
	ctx := context.Background()

	id := domain.NewID()
	_, err := repo.Insert(ctx, testTemplate(id, "cas", 1))
	require.NoError(t, err)

	ok, err := repo.UpdateStatus(ctx, id, 1, domain.TemplateDraft, domain.TemplatePendingApproval)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition from DRAFT fails: the row moved on.
	ok, err = repo.UpdateStatus(ctx, id, 1, domain.TemplateDraft, domain.TemplatePendingApproval)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TemplatePendingApproval, got.Status)
}
