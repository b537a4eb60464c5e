package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sqlguard/internal/domain"
)

// TemplateRepo implements domain.TemplateRepository. Every version is a
// separate immutable row; only the status column ever changes, and only
// through the compare-and-swap in UpdateStatus.
type TemplateRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewTemplateRepo creates a TemplateRepo over the write/read pool pair.
func NewTemplateRepo(write, read *sql.DB) *TemplateRepo {
	return &TemplateRepo{write: write, read: read}
}

var _ domain.TemplateRepository = (*TemplateRepo)(nil)

const templateColumns = `template_id, version, name, sql_body, params, status, created_by, created_at, updated_at`

// Insert writes a new template version.
func (r *TemplateRepo) Insert(ctx context.Context, t *domain.SQLTemplate) (*domain.SQLTemplate, error) {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return nil, fmt.Errorf("encode template params: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = r.write.ExecContext(ctx,
		`INSERT INTO sql_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Version, t.Name, t.SQLBody, string(params), string(t.Status),
		t.CreatedBy, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return nil, mapDBError(err)
	}
	return t, nil
}

// GetVersion returns one pinned template version.
func (r *TemplateRepo) GetVersion(ctx context.Context, templateID string, version int) (*domain.SQLTemplate, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM sql_templates
		 WHERE template_id = ? AND version = ?`, templateID, version)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return t, nil
}

// GetLatest returns the highest version of a template.
func (r *TemplateRepo) GetLatest(ctx context.Context, templateID string) (*domain.SQLTemplate, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM sql_templates
		 WHERE template_id = ?
		 ORDER BY version DESC LIMIT 1`, templateID)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return t, nil
}

// GetLatestByName returns the highest version of the named template.
func (r *TemplateRepo) GetLatestByName(ctx context.Context, name string) (*domain.SQLTemplate, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM sql_templates
		 WHERE name = ?
		 ORDER BY version DESC LIMIT 1`, name)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return t, nil
}

// List returns the latest version of each template, paged by name.
func (r *TemplateRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.SQLTemplate, int64, error) {
	var total int64
	err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT template_id) FROM sql_templates`).Scan(&total)
	if err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT t.template_id, t.version, t.name, t.sql_body, t.params,
		        t.status, t.created_by, t.created_at, t.updated_at
		 FROM sql_templates t
		 JOIN (SELECT template_id, MAX(version) AS v
		       FROM sql_templates GROUP BY template_id) latest
		   ON t.template_id = latest.template_id AND t.version = latest.v
		 ORDER BY t.name
		 LIMIT ? OFFSET ?`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SQLTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatus transitions (templateID, version) from one status to
// another atomically. Returns false when the row was not in the expected
// status; the caller decides whether that is a lost race or a bug.
func (r *TemplateRepo) UpdateStatus(ctx context.Context, templateID string, version int, from, to domain.TemplateStatus) (bool, error) {
	res, err := r.write.ExecContext(ctx,
		`UPDATE sql_templates SET status = ?, updated_at = ?
		 WHERE template_id = ? AND version = ? AND status = ?`,
		string(to), formatTime(time.Now().UTC()),
		templateID, version, string(from))
	if err != nil {
		return false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanTemplate(row rowScanner) (*domain.SQLTemplate, error) {
	var (
		t                    domain.SQLTemplate
		params, status       string
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Version, &t.Name, &t.SQLBody, &params,
		&status, &t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
		return nil, fmt.Errorf("template %s v%d: decode params: %w", t.ID, t.Version, err)
	}
	t.Status = domain.TemplateStatus(status)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
