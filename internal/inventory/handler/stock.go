package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// StockHandler handles stock ledger endpoints
type StockHandler struct {
	ledger      *service.LedgerService
	costing     *service.CostingService
	conversions *repository.ConversionRepository
	logger      *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger *service.LedgerService, costing *service.CostingService, conversions *repository.ConversionRepository, log *logger.Logger) *StockHandler {
	return &StockHandler{
		ledger:      ledger,
		costing:     costing,
		conversions: conversions,
		logger:      log,
	}
}

// AddStock receives a stock delivery
func (h *StockHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req service.AddStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.ledger.AddStock(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, lot)
}

// RemoveStock draws stock down across lots
func (h *StockHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req service.RemoveStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	draws, err := h.ledger.RemoveStock(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, draws)
}

// AdjustStock posts a manual reconciliation adjustment
func (h *StockHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req service.AdjustStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	balance, err := h.ledger.Adjust(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, balance)
}

// GetBalance returns an item's balance
func (h *StockHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), ref)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, balance)
}

// ListBalances returns all balances
func (h *StockHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.ListBalances(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, balances)
}

// ListLowStock returns balances at or below a quantity threshold
func (h *StockHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := decimal.NewFromInt(10)
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid threshold"))
			return
		}
		threshold = parsed
	}

	balances, err := h.ledger.ListLowStock(r.Context(), threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, balances)
}

// GetHistory returns an item's transaction history, oldest first
func (h *StockHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	filter := repository.TransactionFilter{}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid from date, expected RFC3339"))
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid to date, expected RFC3339"))
			return
		}
		filter.To = &to
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		txType := domain.TransactionType(raw)
		filter.Type = &txType
	}

	txns, total, err := h.ledger.GetHistory(r.Context(), ref, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}
	httputil.JSONWithMeta(w, http.StatusOK, txns, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// EstimateCost prices a hypothetical consumption without mutating the ledger
func (h *StockHandler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid quantity"))
		return
	}
	strategy := domain.CostStrategyFIFO
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		strategy, err = domain.ParseCostStrategy(raw)
		if err != nil {
			httputil.Error(w, err)
			return
		}
	}

	estimate, err := h.costing.Estimate(r.Context(), ref, quantity, strategy)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, estimate)
}

// CreateConversionRequest registers a unit conversion rule for an item
type CreateConversionRequest struct {
	FromUnit string          `json:"from_unit" validate:"required"`
	ToUnit   string          `json:"to_unit" validate:"required"`
	Factor   decimal.Decimal `json:"factor" validate:"required"`
}

// CreateConversion registers a unit conversion rule
func (h *StockHandler) CreateConversion(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateConversionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if !req.Factor.IsPositive() {
		httputil.Error(w, errors.BadRequest("conversion factor must be positive"))
		return
	}

	conv := &repository.UnitConversion{
		ItemKind: ref.Kind,
		ItemID:   ref.ID,
		FromUnit: req.FromUnit,
		ToUnit:   req.ToUnit,
		Factor:   req.Factor,
	}
	if err := h.conversions.Create(r.Context(), conv); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, conv)
}

// ListConversions lists an item's conversion rules
func (h *StockHandler) ListConversions(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	convs, err := h.conversions.ListByItem(r.Context(), ref)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, convs)
}

// DeleteConversion removes a conversion rule
func (h *StockHandler) DeleteConversion(w http.ResponseWriter, r *http.Request) {
	if err := h.conversions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// refFromURL builds an item reference from {kind}/{id} URL params.
func refFromURL(r *http.Request) (domain.ItemRef, error) {
	kind, err := domain.ParseItemKind(chi.URLParam(r, "kind"))
	if err != nil {
		return domain.ItemRef{}, err
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return domain.ItemRef{}, errors.BadRequest("item id is required")
	}
	return domain.ItemRef{Kind: kind, ID: id}, nil
}
