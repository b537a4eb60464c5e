package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sqlguard/internal/domain"
)

type policyRequest struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Scope    string          `json:"scope"`
	ScopeRef string          `json:"scope_ref,omitempty"`
	Priority string          `json:"priority"`
	Params   json.RawMessage `json:"params"`
	Enabled  *bool           `json:"enabled,omitempty"`
}

// toDomain decodes the params payload against the declared policy type.
func (req policyRequest) toDomain() (*domain.Policy, error) {
	typ := domain.PolicyType(req.Type)
	if !typ.Valid() {
		return nil, domain.ErrValidation("unknown policy type %q", req.Type)
	}
	params, err := domain.DecodeParams(typ, req.Params)
	if err != nil {
		return nil, domain.ErrValidation("invalid params: %v", err)
	}
	p := &domain.Policy{
		Name:     req.Name,
		Type:     typ,
		Scope:    domain.PolicyScope(req.Scope),
		ScopeRef: req.ScopeRef,
		Priority: domain.PolicyPriority(req.Priority),
		Params:   params,
		Enabled:  true,
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	return p, nil
}

type policyResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Scope     string          `json:"scope"`
	ScopeRef  string          `json:"scope_ref,omitempty"`
	Priority  string          `json:"priority"`
	Params    json.RawMessage `json:"params"`
	Enabled   bool            `json:"enabled"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func policyToAPI(p *domain.Policy) policyResponse {
	raw, err := domain.EncodeParams(p.Params)
	if err != nil {
		raw = []byte("{}")
	}
	return policyResponse{
		ID:        p.ID,
		Name:      p.Name,
		Type:      string(p.Type),
		Scope:     string(p.Scope),
		ScopeRef:  p.ScopeRef,
		Priority:  string(p.Priority),
		Params:    raw,
		Enabled:   p.Enabled,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.policies.Create(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, policyToAPI(created))
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p.ID = chi.URLParam(r, "policyID")
	updated, err := h.policies.Update(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policyToAPI(updated))
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.GetByID(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policyToAPI(p))
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"
	policies, err := h.policies.List(r.Context(), enabledOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := make([]policyResponse, len(policies))
	for i := range policies {
		data[i] = policyToAPI(&policies[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setPolicyEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.policies.SetEnabled(r.Context(), chi.URLParam(r, "policyID"), req.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
