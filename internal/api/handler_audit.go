package api

import (
	"bytes"
	"net/http"
	"time"

	"sqlguard/internal/domain"
)

type auditRecordResponse struct {
	ID               string    `json:"id"`
	Actor            string    `json:"actor"`
	Action           string    `json:"action"`
	ResourceType     string    `json:"resource_type"`
	ResourceID       string    `json:"resource_id,omitempty"`
	StatementKind    string    `json:"statement_kind,omitempty"`
	DecisionOutcome  string    `json:"decision_outcome,omitempty"`
	ExecutionOutcome string    `json:"execution_outcome,omitempty"`
	AppliedPolicyIDs []string  `json:"applied_policy_ids,omitempty"`
	RowCount         *int64    `json:"row_count,omitempty"`
	DurationMs       *int64    `json:"duration_ms,omitempty"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	DetailsJSON      string    `json:"details_json"`
	CreatedAt        time.Time `json:"created_at"`
}

func auditRecordToAPI(rec domain.AuditRecord) auditRecordResponse {
	return auditRecordResponse{
		ID:               rec.ID,
		Actor:            rec.Actor,
		Action:           rec.Action,
		ResourceType:     rec.ResourceType,
		ResourceID:       rec.ResourceID,
		StatementKind:    rec.StatementKind,
		DecisionOutcome:  rec.DecisionOutcome,
		ExecutionOutcome: rec.ExecutionOutcome,
		AppliedPolicyIDs: rec.AppliedPolicyIDs,
		RowCount:         rec.RowCount,
		DurationMs:       rec.DurationMs,
		Severity:         rec.Severity,
		Message:          rec.Message,
		DetailsJSON:      rec.DetailsJSON,
		CreatedAt:        rec.CreatedAt,
	}
}

// auditFilterFromQuery builds the filter from query parameters. since
// accepts RFC 3339.
func auditFilterFromQuery(r *http.Request) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{Page: pageFromQuery(r)}
	q := r.URL.Query()
	if v := q.Get("actor"); v != "" {
		filter.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Action = &v
	}
	if v := q.Get("severity"); v != "" {
		filter.Severity = &v
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, domain.ErrValidation("invalid since timestamp %q", v)
		}
		filter.Since = &t
	}
	return filter, nil
}

type listAuditResponse struct {
	Data          []auditRecordResponse `json:"data"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, total, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := make([]auditRecordResponse, len(records))
	for i, rec := range records {
		data[i] = auditRecordToAPI(rec)
	}
	writeJSON(w, http.StatusOK, listAuditResponse{
		Data:          data,
		NextPageToken: domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total),
	})
}

func (h *Handler) exportAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Buffered so a failure mid-export still gets a proper error status.
	var buf bytes.Buffer
	if err := h.audit.ExportCSV(r.Context(), filter, &buf); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
