// Package api provides the HTTP surface of the enforcement engine.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"sqlguard/internal/domain"
	"sqlguard/internal/middleware"
	"sqlguard/internal/service/governance"
	"sqlguard/internal/service/query"
	"sqlguard/internal/service/security"
	"sqlguard/internal/service/workflow"
)

// Handler holds the service dependencies for all routes.
type Handler struct {
	query    *query.Service
	workflow *workflow.Service
	policies *security.PolicyService
	audit    *governance.AuditService
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(q *query.Service, wf *workflow.Service, policies *security.PolicyService, audit *governance.AuditService, logger *slog.Logger) *Handler {
	return &Handler{
		query:    q,
		workflow: wf,
		policies: policies,
		audit:    audit,
		logger:   logger.With("component", "api"),
	}
}

// RouterConfig carries the request-level middleware configuration.
type RouterConfig struct {
	Validator      middleware.TokenValidator
	AllowedOrigins []string
	RateLimit      middleware.RateLimitConfig
}

// Router builds the chi router with the full middleware chain. The
// health endpoint is the only unauthenticated route.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(cfg.RateLimit))
	}

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Validator, h.logger))

		r.Post("/queries", h.executeQuery)
		r.Post("/queries/authorize", h.authorizeQuery)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.listTemplates)
			r.Post("/", h.createTemplate)
			r.Get("/{templateID}", h.getTemplate)
			r.Post("/{templateID}/versions", h.newTemplateVersion)
			r.Post("/{templateID}/versions/{version}/submit", h.submitTemplate)
			r.Post("/{templateID}/execute", h.executeTemplate)
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.listPendingApprovals)
			r.Post("/{requestID}/approve", h.approveRequest)
			r.Post("/{requestID}/reject", h.rejectRequest)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.listPolicies)
			r.Post("/", h.createPolicy)
			r.Get("/{policyID}", h.getPolicy)
			r.Put("/{policyID}", h.updatePolicy)
			r.Put("/{policyID}/enabled", h.setPolicyEnabled)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", h.listAudit)
			r.Get("/export", h.exportAudit)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()))
	}
	writeJSON(w, status, errorBody{
		Code:    status,
		Reason:  errorCode(err),
		Message: err.Error(),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// pageFromQuery extracts a PageRequest from max_results/page_token
// query parameters.
func pageFromQuery(r *http.Request) domain.PageRequest {
	p := domain.PageRequest{PageToken: r.URL.Query().Get("page_token")}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.MaxResults = n
		}
	}
	return p
}
