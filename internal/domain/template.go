package domain

import "time"

// TemplateStatus is the lifecycle state of a SQL template version.
type TemplateStatus string

// Template statuses.
const (
	TemplateDraft           TemplateStatus = "DRAFT"
	TemplatePendingApproval TemplateStatus = "PENDING_APPROVAL"
	TemplateApproved        TemplateStatus = "APPROVED"
	TemplateRejected        TemplateStatus = "REJECTED"
)

var templateTransitions = map[TemplateStatus][]TemplateStatus{
	TemplateDraft:           {TemplatePendingApproval},
	TemplatePendingApproval: {TemplateApproved, TemplateRejected},
}

// CanTransition reports whether a template may move from s to next.
// APPROVED and REJECTED are terminal; a new edit creates a new version.
func (s TemplateStatus) CanTransition(next TemplateStatus) bool {
	for _, t := range templateTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TemplateParam declares one parameter of a SQL template.
type TemplateParam struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"` // "string", "int", "float", "bool"
	Required bool   `json:"required" yaml:"required"`
}

// SQLTemplate is one immutable version of a named template. Versions are
// keyed by (TemplateID, Version) and never overwritten; "latest" is derived
// by query, not stored on the record.
type SQLTemplate struct {
	ID        string // stable across versions
	Version   int
	Name      string // unique across templates
	SQLBody   string
	Params    []TemplateParam
	Status    TemplateStatus
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the template is well-formed.
func (t *SQLTemplate) Validate() error {
	if t.Name == "" {
		return ErrValidation("template name is required")
	}
	if t.SQLBody == "" {
		return ErrValidation("sql_body is required")
	}
	for _, p := range t.Params {
		if p.Name == "" {
			return ErrValidation("template parameter name is required")
		}
		switch p.Type {
		case "string", "int", "float", "bool":
		default:
			return ErrValidation("unknown parameter type %q for %q", p.Type, p.Name)
		}
	}
	return nil
}

// NewDraftFrom creates the next draft version of an approved or rejected
// template. The source record is left untouched.
func (t *SQLTemplate) NewDraftFrom(editor string) *SQLTemplate {
	return &SQLTemplate{
		ID:        t.ID,
		Version:   t.Version + 1,
		Name:      t.Name,
		SQLBody:   t.SQLBody,
		Params:    append([]TemplateParam(nil), t.Params...),
		Status:    TemplateDraft,
		CreatedBy: editor,
	}
}
