// Package testutil provides shared mock implementations of the domain
// repository and driver interfaces for tests across the codebase.
package testutil

import (
	"context"
	"time"

	"sqlguard/internal/domain"
)

// === Audit repository ===

// MockAuditRepo implements domain.AuditRepository for testing.
type MockAuditRepo struct {
	InsertFn func(ctx context.Context, rec *domain.AuditRecord) error
	ListFn   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error)
	Records  []*domain.AuditRecord // collected records for assertions
}

func (m *MockAuditRepo) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, rec); err != nil {
			return err
		}
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	out := make([]domain.AuditRecord, len(m.Records))
	for i, r := range m.Records {
		out[i] = *r
	}
	return out, int64(len(out)), nil
}

// LastRecord returns the last collected record, or nil if none.
func (m *MockAuditRepo) LastRecord() *domain.AuditRecord {
	if len(m.Records) == 0 {
		return nil
	}
	return m.Records[len(m.Records)-1]
}

// HasAction reports whether any collected record has the given action.
func (m *MockAuditRepo) HasAction(action string) bool {
	for _, r := range m.Records {
		if r.Action == action {
			return true
		}
	}
	return false
}

var _ domain.AuditRepository = (*MockAuditRepo)(nil)

// === Policy repository ===

// MockPolicyRepo implements domain.PolicyRepository in memory.
type MockPolicyRepo struct {
	CreateFn func(ctx context.Context, p *domain.Policy) (*domain.Policy, error)
	ListFn   func(ctx context.Context, enabledOnly bool) ([]domain.Policy, error)
	Policies []domain.Policy
}

func (m *MockPolicyRepo) Create(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	m.Policies = append(m.Policies, *p)
	return p, nil
}

func (m *MockPolicyRepo) Update(ctx context.Context, p *domain.Policy) (*domain.Policy, error) {
	for i := range m.Policies {
		if m.Policies[i].ID == p.ID {
			m.Policies[i] = *p
			return p, nil
		}
	}
	return nil, domain.ErrNotFound("policy %s not found", p.ID)
}

func (m *MockPolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	for i := range m.Policies {
		if m.Policies[i].ID == id {
			p := m.Policies[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound("policy %s not found", id)
}

func (m *MockPolicyRepo) List(ctx context.Context, enabledOnly bool) ([]domain.Policy, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, enabledOnly)
	}
	var out []domain.Policy
	for _, p := range m.Policies {
		if enabledOnly && !p.Enabled {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MockPolicyRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	for i := range m.Policies {
		if m.Policies[i].ID == id {
			m.Policies[i].Enabled = enabled
			return nil
		}
	}
	return domain.ErrNotFound("policy %s not found", id)
}

var _ domain.PolicyRepository = (*MockPolicyRepo)(nil)

// === Template repository ===

// MockTemplateRepo implements domain.TemplateRepository in memory.
type MockTemplateRepo struct {
	Templates []domain.SQLTemplate
}

func (m *MockTemplateRepo) Insert(ctx context.Context, t *domain.SQLTemplate) (*domain.SQLTemplate, error) {
	for _, existing := range m.Templates {
		if existing.ID == t.ID && existing.Version == t.Version {
			return nil, &domain.ConflictError{Message: "template version already exists"}
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.Templates = append(m.Templates, *t)
	return t, nil
}

func (m *MockTemplateRepo) GetVersion(ctx context.Context, templateID string, version int) (*domain.SQLTemplate, error) {
	for i := range m.Templates {
		if m.Templates[i].ID == templateID && m.Templates[i].Version == version {
			t := m.Templates[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound("template %s v%d not found", templateID, version)
}

func (m *MockTemplateRepo) GetLatest(ctx context.Context, templateID string) (*domain.SQLTemplate, error) {
	var best *domain.SQLTemplate
	for i := range m.Templates {
		t := m.Templates[i]
		if t.ID == templateID && (best == nil || t.Version > best.Version) {
			best = &t
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound("template %s not found", templateID)
	}
	out := *best
	return &out, nil
}

func (m *MockTemplateRepo) GetLatestByName(ctx context.Context, name string) (*domain.SQLTemplate, error) {
	var best *domain.SQLTemplate
	for i := range m.Templates {
		t := m.Templates[i]
		if t.Name == name && (best == nil || t.Version > best.Version) {
			best = &t
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound("template %q not found", name)
	}
	out := *best
	return &out, nil
}

func (m *MockTemplateRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.SQLTemplate, int64, error) {
	latest := map[string]domain.SQLTemplate{}
	for _, t := range m.Templates {
		if cur, ok := latest[t.ID]; !ok || t.Version > cur.Version {
			latest[t.ID] = t
		}
	}
	var out []domain.SQLTemplate
	for _, t := range latest {
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (m *MockTemplateRepo) UpdateStatus(ctx context.Context, templateID string, version int, from, to domain.TemplateStatus) (bool, error) {
	for i := range m.Templates {
		t := &m.Templates[i]
		if t.ID == templateID && t.Version == version && t.Status == from {
			t.Status = to
			return true, nil
		}
	}
	return false, nil
}

var _ domain.TemplateRepository = (*MockTemplateRepo)(nil)

// === Approval repository ===

// MockApprovalRepo implements domain.ApprovalRepository in memory.
// Templates, when set, receives the template status flip that the real
// repository commits in the same transaction as the request flip.
type MockApprovalRepo struct {
	Requests  []domain.ApprovalRequest
	Templates *MockTemplateRepo
	ResolveFn func(ctx context.Context, req *domain.ApprovalRequest, to domain.ApprovalStatus) (bool, error)
}

func (m *MockApprovalRepo) Create(ctx context.Context, a *domain.ApprovalRequest) (*domain.ApprovalRequest, error) {
	for _, existing := range m.Requests {
		if existing.TemplateID == a.TemplateID &&
			existing.TemplateVersion == a.TemplateVersion &&
			existing.Status == domain.ApprovalPending {
			return nil, domain.ErrConflict(domain.CodeDuplicateApproval,
				"a pending approval already exists for template %s v%d",
				a.TemplateID, a.TemplateVersion)
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.Requests = append(m.Requests, *a)
	return a, nil
}

func (m *MockApprovalRepo) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	for i := range m.Requests {
		if m.Requests[i].ID == id {
			a := m.Requests[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound("approval request %s not found", id)
}

func (m *MockApprovalRepo) ListPending(ctx context.Context, page domain.PageRequest) ([]domain.ApprovalRequest, int64, error) {
	var out []domain.ApprovalRequest
	for _, a := range m.Requests {
		if a.Status == domain.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (m *MockApprovalRepo) Resolve(ctx context.Context, req *domain.ApprovalRequest, to domain.ApprovalStatus, comments string, resolvedAt time.Time) (bool, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, req, to)
	}
	for i := range m.Requests {
		a := &m.Requests[i]
		if a.ID == req.ID && a.Status == domain.ApprovalPending {
			a.Status = to
			a.Comments = comments
			t := resolvedAt
			a.ResolvedAt = &t
			if m.Templates != nil {
				_, _ = m.Templates.UpdateStatus(ctx, req.TemplateID, req.TemplateVersion,
					domain.TemplatePendingApproval, to.TemplateStatus())
			}
			return true, nil
		}
	}
	return false, nil
}

var _ domain.ApprovalRepository = (*MockApprovalRepo)(nil)

// === Execution driver ===

// MockDriver implements domain.ExecutionDriver for testing.
type MockDriver struct {
	ExecuteFn func(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error)
	Executed  []string // statement texts, in call order
}

func (m *MockDriver) Execute(ctx context.Context, sqlText string, args []interface{}) (*domain.ResultSet, error) {
	m.Executed = append(m.Executed, sqlText)
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, sqlText, args)
	}
	return &domain.ResultSet{}, nil
}

var _ domain.ExecutionDriver = (*MockDriver)(nil)
