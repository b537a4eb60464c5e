// Package policy resolves the effective security policies for a request.
//
// Policies live in the database; the engine reads them through immutable
// snapshots so a request sees one consistent policy set even while an
// administrator is editing. Writers publish a whole new snapshot, readers
// never lock.
package policy

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"sqlguard/internal/domain"
)

// Snapshot is an immutable view of all enabled policies at a point in time.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time

	byType map[domain.PolicyType][]domain.Policy
}

// newSnapshot indexes enabled policies by type. Disabled policies are
// dropped here so resolution never has to re-check.
func newSnapshot(version int64, policies []domain.Policy) *Snapshot {
	byType := make(map[domain.PolicyType][]domain.Policy)
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		byType[p.Type] = append(byType[p.Type], p)
	}
	return &Snapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		byType:   byType,
	}
}

// Len returns the number of enabled policies in the snapshot.
func (s *Snapshot) Len() int {
	n := 0
	for _, ps := range s.byType {
		n += len(ps)
	}
	return n
}

// Effective returns the single winning policy of the given type for this
// caller and the tables the statement touches, or nil when none applies.
//
// Narrower scope beats wider scope (TABLE > SCHEMA > DATABASE > ROLE >
// USER > GLOBAL), then higher priority, then the more recently updated
// policy. Two enabled policies tied on all three with different params
// are a configuration defect and resolve to a PolicyConflictError rather
// than an arbitrary pick: resolution must be deterministic or the audit
// trail lies. Tied policies whose params agree are mere duplicates, and
// the lowest ID wins.
func (s *Snapshot) Effective(t domain.PolicyType, caller domain.CallerContext, tables []string) (*domain.Policy, error) {
	candidates := s.Matching(t, caller, tables)
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if as, bs := a.Scope.Specificity(), b.Scope.Specificity(); as != bs {
			return as > bs
		}
		if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
			return ar > br
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})

	winner := candidates[0]
	tied := []domain.Policy{winner}
	for _, c := range candidates[1:] {
		if c.Scope.Specificity() == winner.Scope.Specificity() &&
			c.Priority.Rank() == winner.Priority.Rank() &&
			c.UpdatedAt.Equal(winner.UpdatedAt) {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		sort.Slice(tied, func(i, j int) bool { return tied[i].ID < tied[j].ID })
		for _, c := range tied[1:] {
			if !reflect.DeepEqual(c.Params, tied[0].Params) {
				ids := make([]string, len(tied))
				for i, p := range tied {
					ids[i] = p.ID
				}
				return nil, &domain.PolicyConflictError{PolicyType: string(t), PolicyIDs: ids}
			}
		}
		winner = tied[0]
	}
	return &winner, nil
}

// Matching returns every enabled policy of the given type whose scope
// covers this caller and table set, in no particular order.
func (s *Snapshot) Matching(t domain.PolicyType, caller domain.CallerContext, tables []string) []domain.Policy {
	var out []domain.Policy
	for _, p := range s.byType[t] {
		if scopeMatches(&p, caller, tables) {
			out = append(out, p)
		}
	}
	return out
}

func scopeMatches(p *domain.Policy, caller domain.CallerContext, tables []string) bool {
	switch p.Scope {
	case domain.ScopeGlobal:
		return true
	case domain.ScopeRole:
		return strings.EqualFold(p.ScopeRef, string(caller.Role))
	case domain.ScopeUser:
		return p.ScopeRef == caller.UserID
	case domain.ScopeDatabase, domain.ScopeSchema, domain.ScopeTable:
		for _, t := range tables {
			if addressMatches(p.Scope, p.ScopeRef, t, caller) {
				return true
			}
		}
		return false
	}
	return false
}

// addressMatches compares a scope reference against one table address.
// Table names may be bare or qualified; missing qualifiers fall back to
// the caller's current database and schema. Identifiers compare
// case-insensitively, matching SQL identifier semantics.
func addressMatches(scope domain.PolicyScope, ref, table string, caller domain.CallerContext) bool {
	db, schema, tbl := splitAddress(table, caller)
	switch scope {
	case domain.ScopeDatabase:
		return strings.EqualFold(ref, db)
	case domain.ScopeSchema:
		return suffixMatch(ref, []string{db, schema})
	case domain.ScopeTable:
		return suffixMatch(ref, []string{db, schema, tbl})
	}
	return false
}

// splitAddress normalises a possibly qualified table name into
// (database, schema, table) using the caller's defaults for missing parts.
func splitAddress(table string, caller domain.CallerContext) (db, schema, tbl string) {
	parts := strings.Split(table, ".")
	db, schema = caller.Database, caller.Schema
	switch len(parts) {
	case 1:
		tbl = parts[0]
	case 2:
		schema, tbl = parts[0], parts[1]
	default:
		db, schema, tbl = parts[0], parts[1], parts[len(parts)-1]
	}
	return db, schema, tbl
}

// suffixMatch compares a dotted scope reference right-aligned against an
// address, so a SCHEMA ref "public" matches any database's public schema
// while "prod.public" pins the database too.
func suffixMatch(ref string, address []string) bool {
	refParts := strings.Split(ref, ".")
	if len(refParts) > len(address) {
		return false
	}
	offset := len(address) - len(refParts)
	for i, rp := range refParts {
		if !strings.EqualFold(rp, address[offset+i]) {
			return false
		}
	}
	return true
}
