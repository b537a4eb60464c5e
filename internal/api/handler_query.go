package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sqlguard/internal/domain"
)

type executeQueryRequest struct {
	SQL string `json:"sql"`
}

type executeQueryResponse struct {
	Columns         []string        `json:"columns"`
	Rows            [][]interface{} `json:"rows"`
	RowCount        int             `json:"row_count"`
	DecisionOutcome string          `json:"decision_outcome"`
	AuditRecordID   string          `json:"audit_record_id,omitempty"`
}

func (h *Handler) executeQuery(w http.ResponseWriter, r *http.Request) {
	var req executeQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rs, rec, err := h.query.Execute(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(rs, rec))
}

type authorizeQueryResponse struct {
	Outcome        string   `json:"outcome"`
	Reason         string   `json:"reason,omitempty"`
	RewrittenSQL   string   `json:"rewritten_sql,omitempty"`
	AppliedPolicy  []string `json:"applied_policy_ids"`
	MaskedColumns  []string `json:"masked_columns,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Tables         []string `json:"tables"`
	StatementKind  string   `json:"statement_kind"`
}

// authorizeQuery is the dry-run surface: decide without executing.
func (h *Handler) authorizeQuery(w http.ResponseWriter, r *http.Request) {
	var req executeQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, stmt, err := h.query.AuthorizeAndPrepare(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizeQueryResponse{
		Outcome:        string(d.Outcome),
		Reason:         d.Reason,
		RewrittenSQL:   d.RewrittenSQL,
		AppliedPolicy:  d.AppliedPolicyIDs(),
		MaskedColumns:  d.MaskingColumns,
		TimeoutSeconds: int(d.Timeout.Seconds()),
		Tables:         stmt.Tables,
		StatementKind:  string(stmt.Kind),
	})
}

type executeTemplateRequest struct {
	Version int                    `json:"version,omitempty"` // 0 means latest
	Params  map[string]interface{} `json:"params,omitempty"`
}

func (h *Handler) executeTemplate(w http.ResponseWriter, r *http.Request) {
	var req executeTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rs, rec, err := h.query.ExecuteTemplate(r.Context(), chi.URLParam(r, "templateID"), req.Version, req.Params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(rs, rec))
}

func resultToResponse(rs *domain.ResultSet, rec *domain.AuditRecord) executeQueryResponse {
	resp := executeQueryResponse{
		Columns: []string{},
		Rows:    [][]interface{}{},
	}
	if rs != nil {
		resp.Columns = rs.Columns
		resp.Rows = rs.Rows
		resp.RowCount = rs.RowCount()
	}
	if rec != nil {
		resp.DecisionOutcome = rec.DecisionOutcome
		resp.AuditRecordID = rec.ID
	}
	return resp
}

func versionParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "version")
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, domain.ErrValidation("invalid template version %q", raw)
	}
	return v, nil
}
