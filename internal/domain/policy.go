package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PolicyType identifies what a policy enforces.
type PolicyType string

// Policy types.
const (
	PolicyStatementTimeout PolicyType = "STATEMENT_TIMEOUT"
	PolicyMaxRows          PolicyType = "MAX_ROWS"
	PolicyAutoLimit        PolicyType = "AUTO_LIMIT"
	PolicyDDLBlock         PolicyType = "DDL_BLOCK"
	PolicyDMLBlock         PolicyType = "DML_BLOCK"
	PolicyWhereRequired    PolicyType = "WHERE_CLAUSE_REQUIRED"
	PolicyPIIMasking       PolicyType = "PII_MASKING"
	PolicyCustom           PolicyType = "CUSTOM"
)

// Valid reports whether t is a known policy type.
func (t PolicyType) Valid() bool {
	switch t {
	case PolicyStatementTimeout, PolicyMaxRows, PolicyAutoLimit,
		PolicyDDLBlock, PolicyDMLBlock, PolicyWhereRequired,
		PolicyPIIMasking, PolicyCustom:
		return true
	}
	return false
}

// PolicyScope is the breadth at which a policy applies.
type PolicyScope string

// Policy scopes, narrowest to widest: TABLE > SCHEMA > DATABASE > ROLE > USER > GLOBAL.
const (
	ScopeGlobal   PolicyScope = "GLOBAL"
	ScopeDatabase PolicyScope = "DATABASE"
	ScopeSchema   PolicyScope = "SCHEMA"
	ScopeTable    PolicyScope = "TABLE"
	ScopeUser     PolicyScope = "USER"
	ScopeRole     PolicyScope = "ROLE"
)

// Specificity returns the scope's rank for effective-policy resolution.
// Higher wins.
func (s PolicyScope) Specificity() int {
	switch s {
	case ScopeTable:
		return 6
	case ScopeSchema:
		return 5
	case ScopeDatabase:
		return 4
	case ScopeRole:
		return 3
	case ScopeUser:
		return 2
	case ScopeGlobal:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known scope.
func (s PolicyScope) Valid() bool { return s.Specificity() > 0 }

// PolicyPriority breaks ties between policies of equal scope specificity.
type PolicyPriority string

// Policy priorities.
const (
	PriorityLow      PolicyPriority = "LOW"
	PriorityMedium   PolicyPriority = "MEDIUM"
	PriorityHigh     PolicyPriority = "HIGH"
	PriorityCritical PolicyPriority = "CRITICAL"
)

// Rank returns the priority's numeric rank. Higher wins.
func (p PolicyPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority.
func (p PolicyPriority) Valid() bool { return p.Rank() > 0 }

// MaskingMode selects how a PII column value is redacted.
type MaskingMode string

// Masking modes.
const (
	MaskPartial MaskingMode = "partial" // keep first and last rune
	MaskFull    MaskingMode = "full"    // constant redaction token
)

// PolicyParams is the tagged union of per-type policy parameters.
// Each PolicyType has exactly one parameter struct, eliminating the
// loosely typed key/value maps of the administration surface.
type PolicyParams interface {
	policyParams()
	Validate() error
}

// TimeoutParams configures STATEMENT_TIMEOUT.
type TimeoutParams struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

func (TimeoutParams) policyParams() {}

// Validate checks the parameters.
func (p TimeoutParams) Validate() error {
	if p.TimeoutSeconds <= 0 {
		return ErrValidation("timeout_seconds must be positive")
	}
	return nil
}

// Timeout returns the configured timeout as a duration.
func (p TimeoutParams) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MaxRowsParams configures MAX_ROWS.
type MaxRowsParams struct {
	MaxRows int `json:"max_rows"`
}

func (MaxRowsParams) policyParams() {}

// Validate checks the parameters.
func (p MaxRowsParams) Validate() error {
	if p.MaxRows <= 0 {
		return ErrValidation("max_rows must be positive")
	}
	return nil
}

// AutoLimitParams configures AUTO_LIMIT.
type AutoLimitParams struct {
	Limit int `json:"limit"`
}

func (AutoLimitParams) policyParams() {}

// Validate checks the parameters.
func (p AutoLimitParams) Validate() error {
	if p.Limit <= 0 {
		return ErrValidation("limit must be positive")
	}
	return nil
}

// BlockParams configures DDL_BLOCK and DML_BLOCK. An empty statement list
// blocks every statement of the policy's class.
type BlockParams struct {
	Statements []string `json:"statements,omitempty"`
}

func (BlockParams) policyParams() {}

// Validate checks the parameters.
func (p BlockParams) Validate() error { return nil }

// Blocks reports whether the given statement verb is blocked.
func (p BlockParams) Blocks(verb string) bool {
	if len(p.Statements) == 0 {
		return true
	}
	for _, s := range p.Statements {
		if s == verb {
			return true
		}
	}
	return false
}

// WhereRequiredParams configures WHERE_CLAUSE_REQUIRED.
type WhereRequiredParams struct {
	// RequiredFor limits enforcement to these kinds; empty means UPDATE and DELETE.
	RequiredFor []string `json:"required_for,omitempty"`
}

func (WhereRequiredParams) policyParams() {}

// Validate checks the parameters.
func (p WhereRequiredParams) Validate() error { return nil }

// AppliesTo reports whether the kind is covered by this policy.
func (p WhereRequiredParams) AppliesTo(kind string) bool {
	if len(p.RequiredFor) == 0 {
		return kind == "UPDATE" || kind == "DELETE"
	}
	for _, k := range p.RequiredFor {
		if k == kind {
			return true
		}
	}
	return false
}

// PIIMaskingParams configures PII_MASKING.
type PIIMaskingParams struct {
	PIIColumns []string    `json:"pii_columns"`
	Mode       MaskingMode `json:"masking_type"`
}

func (PIIMaskingParams) policyParams() {}

// Validate checks the parameters.
func (p PIIMaskingParams) Validate() error {
	if len(p.PIIColumns) == 0 {
		return ErrValidation("pii_columns is required")
	}
	if p.Mode != MaskPartial && p.Mode != MaskFull {
		return ErrValidation("masking_type must be %q or %q", MaskPartial, MaskFull)
	}
	return nil
}

// CustomParams carries opaque configuration for CUSTOM policies. The engine
// records but does not interpret them.
type CustomParams struct {
	Config map[string]string `json:"config,omitempty"`
}

func (CustomParams) policyParams() {}

// Validate checks the parameters.
func (p CustomParams) Validate() error { return nil }

// Policy is a single security policy record. Policies are never deleted,
// only disabled, so historical audit records stay interpretable.
type Policy struct {
	ID        string
	Name      string
	Type      PolicyType
	Scope     PolicyScope
	ScopeRef  string // role name, user id, or database/schema/table address
	Priority  PolicyPriority
	Params    PolicyParams
	Enabled   bool
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the policy record is well-formed.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return ErrValidation("policy name is required")
	}
	if !p.Type.Valid() {
		return ErrValidation("unknown policy type %q", p.Type)
	}
	if !p.Scope.Valid() {
		return ErrValidation("unknown policy scope %q", p.Scope)
	}
	if p.Scope != ScopeGlobal && p.ScopeRef == "" {
		return ErrValidation("scope_ref is required for scope %s", p.Scope)
	}
	if !p.Priority.Valid() {
		return ErrValidation("unknown policy priority %q", p.Priority)
	}
	if p.Params == nil {
		return ErrValidation("policy parameters are required")
	}
	return p.Params.Validate()
}

// EncodeParams serialises policy parameters for storage.
func EncodeParams(p PolicyParams) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// DecodeParams deserialises stored parameters into the variant for the
// given policy type.
func DecodeParams(t PolicyType, raw []byte) (PolicyParams, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		p   PolicyParams
		err error
	)
	switch t {
	case PolicyStatementTimeout:
		var v TimeoutParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyMaxRows:
		var v MaxRowsParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyAutoLimit:
		var v AutoLimitParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyDDLBlock, PolicyDMLBlock:
		var v BlockParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyWhereRequired:
		var v WhereRequiredParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyPIIMasking:
		var v PIIMaskingParams
		err = json.Unmarshal(raw, &v)
		p = v
	case PolicyCustom:
		var v CustomParams
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown policy type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", t, err)
	}
	return p, nil
}
