package governance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"sqlguard/internal/domain"
)

// Exporter writes periodic CSV snapshots of the audit trail to a
// directory, on a cron schedule. Each run exports the records since the
// previous run so files never overlap.
type Exporter struct {
	svc    *AuditService
	dir    string
	logger *slog.Logger

	cron *cron.Cron
	last time.Time
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(svc *AuditService, dir string, logger *slog.Logger) *Exporter {
	return &Exporter{
		svc:    svc,
		dir:    dir,
		logger: logger.With("component", "audit_exporter"),
	}
}

// Start registers the export job with the given cron expression and
// starts the scheduler. Stop with Stop.
func (e *Exporter) Start(schedule string) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	e.cron = cron.New()
	if _, err := e.cron.AddFunc(schedule, e.runOnce); err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", schedule, err)
	}
	e.last = time.Now().UTC()
	e.cron.Start()
	e.logger.Info("audit export scheduled", "schedule", schedule, "dir", e.dir)
	return nil
}

// Stop halts the scheduler and waits for a running export to finish.
func (e *Exporter) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}

func (e *Exporter) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	since := e.last
	now := time.Now().UTC()
	name := filepath.Join(e.dir, fmt.Sprintf("audit-%s.csv", now.Format("20060102T150405Z")))

	f, err := os.Create(name)
	if err != nil {
		e.logger.Error("audit export failed", "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	filter := domain.AuditFilter{Since: &since}
	if err := e.svc.exportCSV(ctx, filter, f); err != nil {
		e.logger.Error("audit export failed", "file", name, "error", err)
		return
	}
	e.last = now
	e.logger.Info("audit export written", "file", name)
}
