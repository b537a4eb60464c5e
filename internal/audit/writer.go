// Package audit writes the append-only audit trail. The trail is
// fail-closed: a request that cannot be audited must not succeed.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"sqlguard/internal/domain"
)

// maxAttempts bounds retries of a failing audit insert. Transient
// persistence errors get retried; after that the failure escalates
// instead of being logged-and-ignored.
const maxAttempts = 3

// Writer appends audit records with bounded retry.
type Writer struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewWriter creates a Writer over the audit repository.
func NewWriter(repo domain.AuditRepository, logger *slog.Logger) *Writer {
	return &Writer{repo: repo, logger: logger.With("component", "audit")}
}

// Record persists one audit record, retrying transient failures.
//
// executed says whether the audited statement already ran. It decides
// how a persistence failure escalates: before execution the request is
// simply aborted; after execution the record is re-marked
// EXECUTED_UNAUDITED at CRITICAL severity for one final attempt, and
// the returned AuditPersistenceError carries Executed so the caller
// withholds results either way.
func (w *Writer) Record(ctx context.Context, rec *domain.AuditRecord, executed bool) error {
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.Severity == "" {
		rec.Severity = domain.SeverityInfo
	}

	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := w.repo.Insert(ctx, rec); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if executed {
		w.logger.Error("audit persistence failed after execution",
			"actor", rec.Actor,
			"action", rec.Action,
			"error", err)
		escalated := *rec
		escalated.ID = domain.NewID()
		escalated.Severity = domain.SeverityCritical
		escalated.ExecutionOutcome = domain.ExecOutcomeUnaudited
		escalated.Message = "statement executed but audit persistence failed"
		// Best effort; even if the escalation record lands, the
		// original outcome is unaudited and the request must fail.
		_ = w.repo.Insert(ctx, &escalated)
		return &domain.AuditPersistenceError{Executed: true, Err: err}
	}

	w.logger.Error("audit persistence failed, aborting request",
		"actor", rec.Actor,
		"action", rec.Action,
		"error", err)
	return &domain.AuditPersistenceError{Executed: false, Err: err}
}
