package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/production/repository"
	"github.com/craftline/craftline-backend/internal/production/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// BatchHandler handles production batch endpoints
type BatchHandler struct {
	service *service.BatchService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Create plans a new production batch
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.CreateBatch(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, batch)
}

// List lists batches
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *repository.BatchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := repository.BatchStatus(raw)
		status = &s
	}

	batches, err := h.service.ListBatches(r.Context(), status)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batches)
}

// Get returns a batch with reservations and consumptions
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// CheckAvailability reports whether a recipe can be produced right now
func (h *BatchHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid quantity"))
		return
	}

	result, err := h.service.CheckAvailability(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Start reserves components and moves the batch into progress
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.StartProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Complete consumes reserved components and stocks the output
func (h *BatchHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req service.CompleteBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.CompleteProduction(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// ReasonRequest carries the reason for a cancel or failure report
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Cancel abandons a planned or in-progress batch
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.CancelProduction(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// Fail marks an in-progress batch failed after an external failure report
func (h *BatchHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.ReportFailure(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// EstimateTime scales the recipe's production time to a quantity
func (h *BatchHandler) EstimateTime(w http.ResponseWriter, r *http.Request) {
	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid quantity"))
		return
	}

	duration, err := h.service.EstimateProductionTime(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"duration_minutes": duration.Minutes(),
	})
}
