package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// AuditHandler handles physical count audit endpoints
type AuditHandler struct {
	service *service.AuditService
	logger  *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(svc *service.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  log,
	}
}

// Create opens a new audit in draft
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAuditRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.CreateAudit(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// List lists audits
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.AuditStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.AuditStatus(raw)
		if !s.Valid() {
			httputil.Error(w, errors.BadRequest("invalid audit status"))
			return
		}
		status = &s
	}

	audits, err := h.service.ListAudits(r.Context(), status)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, audits)
}

// Get returns an audit with its lines
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Start moves a draft audit into counting
func (h *AuditHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.StartAudit(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.GetAudit(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// RecordCount records a counted quantity on one audit line
func (h *AuditHandler) RecordCount(w http.ResponseWriter, r *http.Request) {
	var req service.RecordCountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	line, err := h.service.RecordCount(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, line)
}

// CompleteRequest controls whether differences post as ledger adjustments
type CompleteRequest struct {
	ApplyAdjustments bool `json:"apply_adjustments"`
}

// Complete closes an in-progress audit
func (h *AuditHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.CompleteAudit(r.Context(), chi.URLParam(r, "id"), req.ApplyAdjustments)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Cancel abandons an audit with no ledger effect
func (h *AuditHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelAudit(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// ItemHistory returns the count trail of one audit line
func (h *AuditHandler) ItemHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetItemHistory(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, history)
}
