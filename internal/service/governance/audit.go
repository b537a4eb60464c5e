// Package governance exposes the audit trail: filtered listing and the
// stable-column CSV export, plus the scheduled export job.
package governance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"sqlguard/internal/domain"
)

// AuditService reads and exports the audit trail. Read-only by
// construction; writes only ever happen through the audit writer.
type AuditService struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewAuditService creates an AuditService.
func NewAuditService(repo domain.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger.With("component", "governance")}
}

// List returns audit records matching the filter. Approver and above.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	if err := requireApprover(ctx); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// ExportCSV streams matching records as CSV in the stable export column
// order, newest first. Approver and above.
func (s *AuditService) ExportCSV(ctx context.Context, filter domain.AuditFilter, w io.Writer) error {
	if err := requireApprover(ctx); err != nil {
		return err
	}
	return s.exportCSV(ctx, filter, w)
}

// exportCSV walks all pages. Separate from ExportCSV so the scheduled
// job can export without a caller in context.
func (s *AuditService) exportCSV(ctx context.Context, filter domain.AuditFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.ExportColumns); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	filter.Page.MaxResults = domain.MaxPageSize
	filter.Page.PageToken = ""
	offset := 0
	for {
		records, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list audit records: %w", err)
		}
		for _, rec := range records {
			row := []string{
				rec.CreatedAt.UTC().Format(time.RFC3339Nano),
				rec.Actor,
				rec.Action,
				rec.ResourceType,
				rec.ResourceID,
				rec.Severity,
				rec.Message,
				rec.DetailsJSON,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write export row: %w", err)
			}
		}
		offset += len(records)
		if int64(offset) >= total || len(records) == 0 {
			break
		}
		filter.Page.PageToken = domain.EncodePageToken(offset)
	}
	cw.Flush()
	return cw.Error()
}

func requireApprover(ctx context.Context) error {
	c, ok := domain.CallerFromContext(ctx)
	if !ok {
		return domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}
	if !c.Role.Can(domain.CapApproveTemplates) {
		return domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"audit access requires approver or admin role")
	}
	return nil
}
