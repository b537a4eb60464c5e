package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sqlguard/internal/domain"
)

// AuditRepo implements domain.AuditRepository. Append-only: this type
// deliberately has no update or delete method, and the schema carries no
// code path that could produce one.
type AuditRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewAuditRepo creates an AuditRepo over the write/read pool pair.
func NewAuditRepo(write, read *sql.DB) *AuditRepo {
	return &AuditRepo{write: write, read: read}
}

var _ domain.AuditRepository = (*AuditRepo)(nil)

const auditColumns = `id, actor, action, resource_type, resource_id, statement_kind, decision_outcome, execution_outcome, applied_policy_ids, row_count, duration_ms, severity, message, details_json, created_at`

// Insert appends one audit record.
func (r *AuditRepo) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	ids, err := json.Marshal(rec.AppliedPolicyIDs)
	if err != nil {
		return fmt.Errorf("encode applied policy ids: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.DetailsJSON == "" {
		rec.DetailsJSON = "{}"
	}

	_, err = r.write.ExecContext(ctx,
		`INSERT INTO audit_records (`+auditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Actor, rec.Action, rec.ResourceType, rec.ResourceID,
		rec.StatementKind, rec.DecisionOutcome, rec.ExecutionOutcome,
		string(ids), rec.RowCount, rec.DurationMs, rec.Severity,
		rec.Message, rec.DetailsJSON, formatTime(rec.CreatedAt))
	return mapDBError(err)
}

// List returns audit records matching the filter, newest first.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	where, args := buildAuditWhere(filter)

	var total int64
	err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_records`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, mapDBError(err)
	}

	listArgs := append(append([]interface{}{}, args...),
		filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_records`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func buildAuditWhere(filter domain.AuditFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Actor != nil {
		clauses = append(clauses, "actor = ?")
		args = append(args, *filter.Actor)
	}
	if filter.Action != nil {
		clauses = append(clauses, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.Severity != nil {
		clauses = append(clauses, "severity = ?")
		args = append(args, *filter.Severity)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanAudit(row rowScanner) (*domain.AuditRecord, error) {
	var (
		rec                  domain.AuditRecord
		ids                  string
		rowCount, durationMs sql.NullInt64
		createdAt            string
	)
	err := row.Scan(&rec.ID, &rec.Actor, &rec.Action, &rec.ResourceType,
		&rec.ResourceID, &rec.StatementKind, &rec.DecisionOutcome,
		&rec.ExecutionOutcome, &ids, &rowCount, &durationMs,
		&rec.Severity, &rec.Message, &rec.DetailsJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &rec.AppliedPolicyIDs); err != nil {
		return nil, fmt.Errorf("audit %s: decode policy ids: %w", rec.ID, err)
	}
	if rowCount.Valid {
		rec.RowCount = &rowCount.Int64
	}
	if durationMs.Valid {
		rec.DurationMs = &durationMs.Int64
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
