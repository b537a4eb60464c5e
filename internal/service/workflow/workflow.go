// Package workflow implements the template approval state machine:
// DRAFT -> PENDING_APPROVAL -> APPROVED | REJECTED, with separation of
// duties between submitter and reviewer.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"sqlguard/internal/audit"
	"sqlguard/internal/domain"
	"sqlguard/internal/enforce"
	"sqlguard/internal/sqlparse"
)

// Service manages SQL templates and their approval requests.
type Service struct {
	templates domain.TemplateRepository
	approvals domain.ApprovalRepository
	engine    *enforce.Engine
	audit     *audit.Writer
	logger    *slog.Logger
}

// NewService creates a workflow Service.
func NewService(templates domain.TemplateRepository, approvals domain.ApprovalRepository, engine *enforce.Engine, writer *audit.Writer, logger *slog.Logger) *Service {
	return &Service{
		templates: templates,
		approvals: approvals,
		engine:    engine,
		audit:     writer,
		logger:    logger.With("component", "workflow"),
	}
}

// CreateDraft creates version 1 of a new template.
func (s *Service) CreateDraft(ctx context.Context, name, sqlBody string, params []domain.TemplateParam) (*domain.SQLTemplate, error) {
	caller, err := s.requireCaller(ctx, domain.CapExecuteTemplates)
	if err != nil {
		return nil, err
	}
	tpl := &domain.SQLTemplate{
		ID:        domain.NewID(),
		Version:   1,
		Name:      name,
		SQLBody:   sqlBody,
		Params:    params,
		Status:    domain.TemplateDraft,
		CreatedBy: caller.UserID,
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return s.templates.Insert(ctx, tpl)
}

// NewDraft creates the next version of a template from its latest
// version. The source row is never touched; history stays referencable
// by past approvals.
func (s *Service) NewDraft(ctx context.Context, templateID string) (*domain.SQLTemplate, error) {
	caller, err := s.requireCaller(ctx, domain.CapExecuteTemplates)
	if err != nil {
		return nil, err
	}
	latest, err := s.templates.GetLatest(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if latest.Status != domain.TemplateApproved && latest.Status != domain.TemplateRejected {
		return nil, domain.ErrValidation("template %s v%d is %s, re-draft needs a terminal version",
			latest.ID, latest.Version, latest.Status)
	}
	return s.templates.Insert(ctx, latest.NewDraftFrom(caller.UserID))
}

// Submit moves a draft into PENDING_APPROVAL after pre-validating it in
// template mode. An invalid template never enters the review queue.
func (s *Service) Submit(ctx context.Context, templateID string, version int) (*domain.ApprovalRequest, error) {
	caller, err := s.requireCaller(ctx, domain.CapExecuteTemplates)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.GetVersion(ctx, templateID, version)
	if err != nil {
		return nil, err
	}
	if tpl.Status != domain.TemplateDraft {
		return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
			"template %s v%d is %s, only drafts can be submitted", tpl.ID, tpl.Version, tpl.Status)
	}

	stmt, err := sqlparse.Classify(tpl.SQLBody)
	if err != nil {
		return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
			"template does not classify: %v", err)
	}
	decision, err := s.engine.EvaluateTemplate(caller, stmt)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed() {
		return nil, domain.ErrValidationCode(domain.CodeTemplateInvalid,
			"template fails policy pre-validation: %s", decision.Reason)
	}

	ok, err := s.templates.UpdateStatus(ctx, tpl.ID, tpl.Version,
		domain.TemplateDraft, domain.TemplatePendingApproval)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConflict(domain.CodeDuplicateApproval,
			"template %s v%d was submitted concurrently", tpl.ID, tpl.Version)
	}

	req, err := s.approvals.Create(ctx, &domain.ApprovalRequest{
		ID:              domain.NewID(),
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		RequestedBy:     caller.UserID,
		Status:          domain.ApprovalPending,
	})
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, caller, domain.AuditActionTemplateSubmit, req,
		"template submitted for approval"); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve resolves a pending request as APPROVED. The reviewer must
// hold the approver capability and must not be the submitter.
func (s *Service) Approve(ctx context.Context, requestID, comments string) (*domain.ApprovalRequest, error) {
	return s.resolve(ctx, requestID, domain.ApprovalApproved, comments)
}

// Reject resolves a pending request as REJECTED. Comments are required:
// a submitter must always learn why.
func (s *Service) Reject(ctx context.Context, requestID, comments string) (*domain.ApprovalRequest, error) {
	if comments == "" {
		return nil, domain.ErrValidationCode(domain.CodeCommentsRequired,
			"rejection requires comments")
	}
	return s.resolve(ctx, requestID, domain.ApprovalRejected, comments)
}

func (s *Service) resolve(ctx context.Context, requestID string, to domain.ApprovalStatus, comments string) (*domain.ApprovalRequest, error) {
	caller, err := s.requireCaller(ctx, domain.CapApproveTemplates)
	if err != nil {
		return nil, err
	}
	req, err := s.approvals.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequestedBy == caller.UserID {
		return nil, domain.ErrAccessDenied(domain.CodeSelfApprovalForbidden,
			"a request cannot be resolved by its submitter")
	}
	if req.Resolved() {
		return nil, domain.ErrConflict(domain.CodeDuplicateApproval,
			"request %s is already %s", req.ID, req.Status)
	}

	// Resolve commits the request flip and the template status in one
	// transaction; a failure leaves both untouched.
	resolvedAt := time.Now().UTC()
	ok, err := s.approvals.Resolve(ctx, req, to, comments, resolvedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: another reviewer resolved first.
		return nil, domain.ErrConflict(domain.CodeDuplicateApproval,
			"request %s was resolved concurrently", req.ID)
	}

	action := domain.AuditActionApprove
	message := "template approved"
	if to == domain.ApprovalRejected {
		action = domain.AuditActionReject
		message = "template rejected"
	}

	req.Status = to
	req.Comments = comments
	req.ResolvedAt = &resolvedAt
	if err := s.record(ctx, caller, action, req, message); err != nil {
		return nil, err
	}
	return req, nil
}

// GetTemplate returns one pinned template version.
func (s *Service) GetTemplate(ctx context.Context, templateID string, version int) (*domain.SQLTemplate, error) {
	if _, err := s.requireCaller(ctx, domain.CapExecuteSelect); err != nil {
		return nil, err
	}
	if version > 0 {
		return s.templates.GetVersion(ctx, templateID, version)
	}
	return s.templates.GetLatest(ctx, templateID)
}

// ListTemplates returns the latest version of each template.
func (s *Service) ListTemplates(ctx context.Context, page domain.PageRequest) ([]domain.SQLTemplate, int64, error) {
	if _, err := s.requireCaller(ctx, domain.CapExecuteSelect); err != nil {
		return nil, 0, err
	}
	return s.templates.List(ctx, page)
}

// ListPending returns the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, page domain.PageRequest) ([]domain.ApprovalRequest, int64, error) {
	if _, err := s.requireCaller(ctx, domain.CapApproveTemplates); err != nil {
		return nil, 0, err
	}
	return s.approvals.ListPending(ctx, page)
}

func (s *Service) requireCaller(ctx context.Context, capability string) (domain.CallerContext, error) {
	c, ok := domain.CallerFromContext(ctx)
	if !ok {
		return c, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}
	if !c.Role.Can(capability) {
		return c, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"capability %s required", capability)
	}
	return c, nil
}

func (s *Service) record(ctx context.Context, caller domain.CallerContext, action string, req *domain.ApprovalRequest, message string) error {
	return s.audit.Record(ctx, &domain.AuditRecord{
		Actor:        caller.UserID,
		Action:       action,
		ResourceType: "approval_request",
		ResourceID:   req.ID,
		Message:      message,
		Severity:     domain.SeverityInfo,
	}, true)
}
