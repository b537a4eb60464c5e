package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sqlguard/internal/domain"
)

type templateResponse struct {
	ID        string                 `json:"id"`
	Version   int                    `json:"version"`
	Name      string                 `json:"name"`
	SQLBody   string                 `json:"sql_body"`
	Params    []domain.TemplateParam `json:"params"`
	Status    string                 `json:"status"`
	CreatedBy string                 `json:"created_by"`
	CreatedAt time.Time              `json:"created_at"`
}

func templateToAPI(t *domain.SQLTemplate) templateResponse {
	params := t.Params
	if params == nil {
		params = []domain.TemplateParam{}
	}
	return templateResponse{
		ID:        t.ID,
		Version:   t.Version,
		Name:      t.Name,
		SQLBody:   t.SQLBody,
		Params:    params,
		Status:    string(t.Status),
		CreatedBy: t.CreatedBy,
		CreatedAt: t.CreatedAt,
	}
}

type createTemplateRequest struct {
	Name    string                 `json:"name"`
	SQLBody string                 `json:"sql_body"`
	Params  []domain.TemplateParam `json:"params,omitempty"`
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	tpl, err := h.workflow.CreateDraft(r.Context(), req.Name, req.SQLBody, req.Params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, templateToAPI(tpl))
}

func (h *Handler) newTemplateVersion(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.workflow.NewDraft(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, templateToAPI(tpl))
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.writeError(w, r, domain.ErrValidation("invalid template version %q", raw))
			return
		}
		version = v
	}
	tpl, err := h.workflow.GetTemplate(r.Context(), chi.URLParam(r, "templateID"), version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, templateToAPI(tpl))
}

type listTemplatesResponse struct {
	Data          []templateResponse `json:"data"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	templates, total, err := h.workflow.ListTemplates(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := make([]templateResponse, len(templates))
	for i := range templates {
		data[i] = templateToAPI(&templates[i])
	}
	writeJSON(w, http.StatusOK, listTemplatesResponse{
		Data:          data,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

type approvalResponse struct {
	ID              string     `json:"id"`
	TemplateID      string     `json:"template_id"`
	TemplateVersion int        `json:"template_version"`
	RequestedBy     string     `json:"requested_by"`
	Status          string     `json:"status"`
	Comments        string     `json:"comments,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func approvalToAPI(a *domain.ApprovalRequest) approvalResponse {
	return approvalResponse{
		ID:              a.ID,
		TemplateID:      a.TemplateID,
		TemplateVersion: a.TemplateVersion,
		RequestedBy:     a.RequestedBy,
		Status:          string(a.Status),
		Comments:        a.Comments,
		CreatedAt:       a.CreatedAt,
		ResolvedAt:      a.ResolvedAt,
	}
}

func (h *Handler) submitTemplate(w http.ResponseWriter, r *http.Request) {
	version, err := versionParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := h.workflow.Submit(r.Context(), chi.URLParam(r, "templateID"), version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approvalToAPI(req))
}

type listApprovalsResponse struct {
	Data          []approvalResponse `json:"data"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

func (h *Handler) listPendingApprovals(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	requests, total, err := h.workflow.ListPending(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := make([]approvalResponse, len(requests))
	for i := range requests {
		data[i] = approvalToAPI(&requests[i])
	}
	writeJSON(w, http.StatusOK, listApprovalsResponse{
		Data:          data,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

type resolveRequest struct {
	Comments string `json:"comments,omitempty"`
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resolved, err := h.workflow.Approve(r.Context(), chi.URLParam(r, "requestID"), req.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToAPI(resolved))
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resolved, err := h.workflow.Reject(r.Context(), chi.URLParam(r, "requestID"), req.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToAPI(resolved))
}
