// Package driver executes enforced statements against the target
// database. It is the only component that touches target connections;
// the engine hands it statement text that already passed enforcement,
// with the statement timeout carried on the context.
package driver

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"sqlguard/internal/domain"
	"sqlguard/internal/sqlparse"
)

// SQLDriver implements domain.ExecutionDriver over a database/sql pool.
type SQLDriver struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLDriver creates a driver for the given target pool.
func NewSQLDriver(db *sql.DB, logger *slog.Logger) *SQLDriver {
	return &SQLDriver{db: db, logger: logger.With("component", "driver")}
}

var _ domain.ExecutionDriver = (*SQLDriver)(nil)

// Execute runs one statement and returns its result set. SELECTs return
// their rows; writes return a single rows_affected row. Transient
// connectivity failures are retried a bounded number of times, and only
// before any row has been produced; once rows flow there is no retry.
func (d *SQLDriver) Execute(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
	stmt, err := sqlparse.Classify(sqlText)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var rs *domain.ResultSet
	backoff := retry.WithMaxRetries(2, retry.NewExponential(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var execErr error
		if stmt.Kind == sqlparse.KindSelect {
			rs, execErr = d.query(ctx, sqlText, args)
		} else {
			rs, execErr = d.exec(ctx, sqlText, args)
		}
		if execErr != nil && isTransient(execErr) {
			d.logger.Warn("transient execution failure, retrying", "error", execErr)
			return retry.RetryableError(execErr)
		}
		return execErr
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("statement executed",
		"kind", stmt.Kind,
		"rows", rs.RowCount(),
		"duration_ms", time.Since(start).Milliseconds())
	return rs, nil
}

func (d *SQLDriver) query(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &domain.ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			// Drivers hand back []byte for TEXT; callers want strings.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (d *SQLDriver) exec(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
	res, err := d.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &domain.ResultSet{
		Columns: []string{"rows_affected"},
		Rows:    [][]interface{}{{affected}},
	}, nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}
