package repository

import (
	"context"
	"database/sql"
	"time"

	"sqlguard/internal/domain"
)

// ApprovalRepo implements domain.ApprovalRepository. The one-pending-per-
// version invariant is enforced by a partial unique index, so concurrent
// submitters race on the database rather than in application code.
type ApprovalRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewApprovalRepo creates an ApprovalRepo over the write/read pool pair.
func NewApprovalRepo(write, read *sql.DB) *ApprovalRepo {
	return &ApprovalRepo{write: write, read: read}
}

var _ domain.ApprovalRepository = (*ApprovalRepo)(nil)

const approvalColumns = `id, template_id, template_version, requested_by, assigned_to, status, comments, created_at, resolved_at`

// Create inserts a new pending request. A second pending request for the
// same template version fails with DUPLICATE_APPROVAL.
func (r *ApprovalRepo) Create(ctx context.Context, a *domain.ApprovalRequest) (*domain.ApprovalRequest, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO approval_requests (`+approvalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TemplateID, a.TemplateVersion, a.RequestedBy, a.AssignedTo,
		string(a.Status), a.Comments, formatTime(a.CreatedAt),
		formatNullTime(a.ResolvedAt))
	if isUniqueViolation(err) {
		return nil, domain.ErrConflict(domain.CodeDuplicateApproval,
			"a pending approval already exists for template %s v%d",
			a.TemplateID, a.TemplateVersion)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return a, nil
}

// GetByID returns one approval request.
func (r *ApprovalRepo) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return a, nil
}

// ListPending returns pending requests, oldest first.
func (r *ApprovalRepo) ListPending(ctx context.Context, page domain.PageRequest) ([]domain.ApprovalRequest, int64, error) {
	var total int64
	err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approval_requests WHERE status = ?`,
		string(domain.ApprovalPending)).Scan(&total)
	if err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE status = ?
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		string(domain.ApprovalPending), page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Resolve flips a PENDING request to a terminal status and moves its
// template version to the matching status in one transaction. The WHERE
// on status makes the request transition a compare-and-swap: of two
// concurrent reviewers, exactly one sees true. The template update rides
// in the same transaction so the pair commits or rolls back together.
func (r *ApprovalRepo) Resolve(ctx context.Context, req *domain.ApprovalRequest, to domain.ApprovalStatus, comments string, resolvedAt time.Time) (bool, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return false, mapDBError(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status = ?, comments = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), comments, formatTime(resolvedAt),
		req.ID, string(domain.ApprovalPending))
	if err != nil {
		return false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sql_templates SET status = ?, updated_at = ?
		 WHERE template_id = ? AND version = ? AND status = ?`,
		string(to.TemplateStatus()), formatTime(resolvedAt),
		req.TemplateID, req.TemplateVersion,
		string(domain.TemplatePendingApproval))
	if err != nil {
		return false, mapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return false, mapDBError(err)
	}
	return true, nil
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var (
		a          domain.ApprovalRequest
		status     string
		createdAt  string
		resolvedAt sql.NullString
	)
	err := row.Scan(&a.ID, &a.TemplateID, &a.TemplateVersion, &a.RequestedBy,
		&a.AssignedTo, &status, &a.Comments, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	a.Status = domain.ApprovalStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.ResolvedAt = parseNullTime(resolvedAt)
	return &a, nil
}
