// Package app provides application-level wiring and dependency injection
// for the sqlguard server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"sqlguard/internal/audit"
	"sqlguard/internal/config"
	"sqlguard/internal/db/repository"
	"sqlguard/internal/driver"
	"sqlguard/internal/enforce"
	"sqlguard/internal/policy"
	"sqlguard/internal/service/governance"
	"sqlguard/internal/service/query"
	"sqlguard/internal/service/security"
	"sqlguard/internal/service/workflow"
)

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// database handles, config, and the logger.
type Deps struct {
	Cfg          *config.Config
	GuardWriteDB *sql.DB // control-plane write pool (policies, templates, audit)
	GuardReadDB  *sql.DB // control-plane read pool
	TargetDB     *sql.DB // the database enforced statements execute against
	Logger       *slog.Logger
}

// Services groups the service pointers the API handler needs.
type Services struct {
	Query    *query.Service
	Workflow *workflow.Service
	Policy   *security.PolicyService
	Audit    *governance.AuditService
}

// App holds the fully-wired application.
type App struct {
	Services Services
	Store    *policy.Store
	Engine   *enforce.Engine
	Exporter *governance.Exporter // nil when AUDIT_EXPORT_DIR is not set
}

// New wires all repositories, services, and the enforcement engine from
// the provided deps. It also runs optional policy seeding and loads the
// initial policy snapshot.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	// === Repositories ===
	policyRepo := repository.NewPolicyRepo(deps.GuardWriteDB, deps.GuardReadDB)
	templateRepo := repository.NewTemplateRepo(deps.GuardWriteDB, deps.GuardReadDB)
	approvalRepo := repository.NewApprovalRepo(deps.GuardWriteDB, deps.GuardReadDB)
	auditRepo := repository.NewAuditRepo(deps.GuardWriteDB, deps.GuardReadDB)

	// === Seed policies (optional, idempotent) ===
	if cfg.PolicySeedPath != "" {
		if err := seedPolicies(ctx, policyRepo, cfg.PolicySeedPath, deps.Logger); err != nil {
			deps.Logger.Warn("policy seed failed", "path", cfg.PolicySeedPath, "error", err)
		}
	}

	// === Policy snapshot + enforcement engine ===
	store := policy.NewStore(policyRepo, deps.Logger)
	if _, err := store.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load initial policy snapshot: %w", err)
	}
	engine := enforce.NewEngine(store, deps.Logger)

	// === Audit trail ===
	writer := audit.NewWriter(auditRepo, deps.Logger)

	// === Execution driver (target database) ===
	drv := driver.NewSQLDriver(deps.TargetDB, deps.Logger)

	// === Services ===
	auditSvc := governance.NewAuditService(auditRepo, deps.Logger)
	querySvc := query.NewService(engine, drv, templateRepo, writer, deps.Logger)
	workflowSvc := workflow.NewService(templateRepo, approvalRepo, engine, writer, deps.Logger)
	policySvc := security.NewPolicyService(policyRepo, store, writer, deps.Logger)

	var exporter *governance.Exporter
	if cfg.ExportDir != "" {
		exporter = governance.NewExporter(auditSvc, cfg.ExportDir, deps.Logger)
	}

	return &App{
		Services: Services{
			Query:    querySvc,
			Workflow: workflowSvc,
			Policy:   policySvc,
			Audit:    auditSvc,
		},
		Store:    store,
		Engine:   engine,
		Exporter: exporter,
	}, nil
}
