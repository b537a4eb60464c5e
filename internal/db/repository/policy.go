package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sqlguard/internal/domain"
)

// PolicyRepo implements domain.PolicyRepository. Policies are never
// deleted; disabling is the only way to retire one, keeping historical
// audit records interpretable.
type PolicyRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewPolicyRepo creates a PolicyRepo over the write/read pool pair.
func NewPolicyRepo(write, read *sql.DB) *PolicyRepo {
	return &PolicyRepo{write: write, read: read}
}

var _ domain.PolicyRepository = (*PolicyRepo)(nil)

const policyColumns = `id, name, type, scope, scope_ref, priority, params, enabled, created_by, created_at, updated_at`

// Create inserts a new policy record.
func (r *PolicyRepo) Create(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	params, err := domain.EncodeParams(p.Params)
	if err != nil {
		return nil, fmt.Errorf("encode policy params: %w", err)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = r.write.ExecContext(ctx,
		`INSERT INTO policies (`+policyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Type), string(p.Scope), p.ScopeRef,
		string(p.Priority), string(params), boolToInt(p.Enabled),
		p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// Update replaces the mutable fields of an existing policy.
func (r *PolicyRepo) Update(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	params, err := domain.EncodeParams(p.Params)
	if err != nil {
		return nil, fmt.Errorf("encode policy params: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := r.write.ExecContext(ctx,
		`UPDATE policies
		 SET name = ?, scope = ?, scope_ref = ?, priority = ?, params = ?,
		     enabled = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, string(p.Scope), p.ScopeRef, string(p.Priority),
		string(params), boolToInt(p.Enabled), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return nil, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrNotFound("policy %s not found", p.ID)
	}
	return p, nil
}

// GetByID returns one policy by id.
func (r *PolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// List returns all policies, optionally only enabled ones, ordered by
// creation time for stable output.
func (r *PolicyRepo) List(ctx context.Context, enabledOnly bool) ([]domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.read.QueryContext(ctx, query)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetEnabled flips a policy's enabled flag.
func (r *PolicyRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.write.ExecContext(ctx,
		`UPDATE policies SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), formatTime(time.Now().UTC()), id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("policy %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (*domain.Policy, error) {
	var (
		p                    domain.Policy
		typ, scope, priority string
		params               string
		enabled              int64
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &scope, &p.ScopeRef, &priority,
		&params, &enabled, &p.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PolicyType(typ)
	p.Scope = domain.PolicyScope(scope)
	p.Priority = domain.PolicyPriority(priority)
	p.Enabled = enabled != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	p.Params, err = domain.DecodeParams(p.Type, []byte(params))
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", p.ID, err)
	}
	return &p, nil
}
