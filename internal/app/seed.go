package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"sqlguard/internal/domain"
)

// seedEntry is one policy in the seed file. Params is free-form YAML
// decoded against the declared policy type.
type seedEntry struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Scope    string         `yaml:"scope"`
	ScopeRef string         `yaml:"scope_ref"`
	Priority string         `yaml:"priority"`
	Params   map[string]any `yaml:"params"`
	Enabled  *bool          `yaml:"enabled"`
}

type seedFile struct {
	Policies []seedEntry `yaml:"policies"`
}

// seedPolicies loads baseline policies from a YAML file on first startup.
// Idempotent — a non-empty policy table means seeding already happened.
func seedPolicies(ctx context.Context, repo domain.PolicyRepository, path string, logger *slog.Logger) error {
	existing, err := repo.List(ctx, false)
	if err != nil {
		return fmt.Errorf("check existing policies: %w", err)
	}
	if len(existing) > 0 {
		return nil // already seeded
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, entry := range file.Policies {
		p, err := entry.toDomain()
		if err != nil {
			return fmt.Errorf("seed policy %q: %w", entry.Name, err)
		}
		if _, err := repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create seed policy %q: %w", entry.Name, err)
		}
	}
	logger.Info("seeded policies", "path", path, "count", len(file.Policies))
	return nil
}

func (e seedEntry) toDomain() (*domain.Policy, error) {
	typ := domain.PolicyType(e.Type)
	if !typ.Valid() {
		return nil, domain.ErrValidation("unknown policy type %q", e.Type)
	}
	// Round-trip through JSON so DecodeParams picks the right variant.
	rawParams, err := json.Marshal(e.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	params, err := domain.DecodeParams(typ, rawParams)
	if err != nil {
		return nil, err
	}
	p := &domain.Policy{
		ID:        domain.NewID(),
		Name:      e.Name,
		Type:      typ,
		Scope:     domain.PolicyScope(e.Scope),
		ScopeRef:  e.ScopeRef,
		Priority:  domain.PolicyPriority(e.Priority),
		Params:    params,
		Enabled:   true,
		CreatedBy: "system",
	}
	if e.Enabled != nil {
		p.Enabled = *e.Enabled
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
