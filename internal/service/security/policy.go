package security

import (
	"context"
	"fmt"
	"log/slog"

	"sqlguard/internal/audit"
	"sqlguard/internal/domain"
	"sqlguard/internal/policy"
)

// PolicyService manages security policies. Every change is audited
// fail-closed and immediately published as a new policy snapshot, so
// in-flight requests keep their consistent view while the next request
// sees the edit.
type PolicyService struct {
	repo   domain.PolicyRepository
	store  *policy.Store
	audit  *audit.Writer
	logger *slog.Logger
}

// NewPolicyService creates a PolicyService.
func NewPolicyService(repo domain.PolicyRepository, store *policy.Store, writer *audit.Writer, logger *slog.Logger) *PolicyService {
	return &PolicyService{
		repo:   repo,
		store:  store,
		audit:  writer,
		logger: logger.With("component", "policy_service"),
	}
}

// Create validates and persists a new policy. Admin only.
func (s *PolicyService) Create(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	caller, err := requireCapability(ctx, domain.CapManagePolicies)
	if err != nil {
		return nil, err
	}
	p.ID = domain.NewID()
	p.CreatedBy = caller.UserID
	if err := p.Validate(); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, caller, created.ID, fmt.Sprintf("policy %q created", created.Name)); err != nil {
		return nil, err
	}
	s.publish(ctx)
	return created, nil
}

// Update replaces the mutable fields of a policy. Admin only.
func (s *PolicyService) Update(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	caller, err := requireCapability(ctx, domain.CapManagePolicies)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, caller, updated.ID, fmt.Sprintf("policy %q updated", updated.Name)); err != nil {
		return nil, err
	}
	s.publish(ctx)
	return updated, nil
}

// SetEnabled enables or disables a policy. Admin only. Disabling is the
// only retirement path; there is no delete.
func (s *PolicyService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	caller, err := requireCapability(ctx, domain.CapManagePolicies)
	if err != nil {
		return err
	}
	if err := s.repo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	if err := s.recordChange(ctx, caller, id, "policy "+verb); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// GetByID returns one policy. Admin only.
func (s *PolicyService) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	if _, err := requireCapability(ctx, domain.CapManagePolicies); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// List returns all policies. Admin only.
func (s *PolicyService) List(ctx context.Context, enabledOnly bool) ([]domain.Policy, error) {
	if _, err := requireCapability(ctx, domain.CapManagePolicies); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, enabledOnly)
}

func (s *PolicyService) recordChange(ctx context.Context, caller domain.CallerContext, policyID, message string) error {
	return s.audit.Record(ctx, &domain.AuditRecord{
		Actor:        caller.UserID,
		Action:       domain.AuditActionPolicyChange,
		ResourceType: "policy",
		ResourceID:   policyID,
		Severity:     domain.SeverityWarning,
		Message:      message,
	}, true)
}

// publish refreshes the snapshot after a committed change. A failed
// reload is logged, not returned: the change is durable and the
// periodic refresh will pick it up.
func (s *PolicyService) publish(ctx context.Context) {
	if _, err := s.store.Reload(ctx); err != nil {
		s.logger.Error("snapshot publish after policy change failed", "error", err)
	}
}
