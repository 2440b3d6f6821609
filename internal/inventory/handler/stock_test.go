package handler_test

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/handler"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	suite.Cleanup(ctx)
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

// newStockRouter mounts the stock routes the way the service binary does.
func newStockRouter(t *testing.T) chi.Router {
	t.Helper()
	suite.Reset(t, context.Background())

	balances := repository.NewBalanceRepository(suite.DB)
	lots := repository.NewLotRepository(suite.DB)
	txns := repository.NewTransactionRepository(suite.DB)
	conversions := repository.NewConversionRepository(suite.DB)
	items := repository.NewItemCacheRepository(suite.DB)

	ledger := service.NewLedgerService(
		suite.DB, balances, lots, txns, items,
		service.NewUnitConverter(conversions),
		service.NewItemLocker(), nil, domain.SystemClock{},
		domain.CostStrategyFIFO, suite.Logger,
	)
	costing := service.NewCostingService(balances, lots, suite.Logger)
	h := handler.NewStockHandler(ledger, costing, conversions, suite.Logger)

	r := chi.NewRouter()
	r.Route("/stock", func(r chi.Router) {
		r.Get("/", h.ListBalances)
		r.Get("/low", h.ListLowStock)
		r.Post("/add", h.AddStock)
		r.Post("/remove", h.RemoveStock)
		r.Post("/adjust", h.AdjustStock)
		r.Route("/{kind}/{id}", func(r chi.Router) {
			r.Get("/", h.GetBalance)
			r.Get("/history", h.GetHistory)
			r.Get("/estimate", h.EstimateCost)
			r.Get("/conversions", h.ListConversions)
			r.Post("/conversions", h.CreateConversion)
		})
	})
	return r
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) (*httptest.ResponseRecorder, *httputil.Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, &envelope
}

func TestStockHandler_AddAndGetBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)
	ctx := context.Background()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	rec, envelope := doJSON(t, router, http.MethodPost, "/stock/add",
		`{"item_kind":"material","item_id":"flour","quantity":"25","price_per_unit":"1.8"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, envelope.Success)

	rec, envelope = doJSON(t, router, http.MethodGet, "/stock/material/flour", "")
	require.Equal(t, http.StatusOK, rec.Code)
	balance, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "25", balance["total_quantity"])
	assert.Equal(t, "1.8", balance["average_price"])
}

func TestStockHandler_RemoveInsufficientReturnsConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)
	ctx := context.Background()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	rec, _ := doJSON(t, router, http.MethodPost, "/stock/add",
		`{"item_kind":"material","item_id":"flour","quantity":"5","price_per_unit":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodPost, "/stock/remove",
		`{"item_kind":"material","item_id":"flour","quantity":"9"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", envelope.Error.Code)
}

func TestStockHandler_AddRejectsMissingFields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)

	rec, envelope := doJSON(t, router, http.MethodPost, "/stock/add", `{"item_kind":"material"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
}

func TestStockHandler_EstimateCost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)
	ctx := context.Background()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	rec, _ := doJSON(t, router, http.MethodPost, "/stock/add",
		`{"item_kind":"material","item_id":"flour","quantity":"5","price_per_unit":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, router, http.MethodPost, "/stock/add",
		`{"item_kind":"material","item_id":"flour","quantity":"5","price_per_unit":"20"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodGet, "/stock/material/flour/estimate?quantity=7&strategy=fifo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	estimate, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "90", estimate["total_cost"])
	assert.Equal(t, false, estimate["partial"])
}

func TestStockHandler_UnknownKindIs400(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)

	rec, envelope := doJSON(t, router, http.MethodGet, "/stock/widget/flour", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
}

func TestStockHandler_Conversions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	router := newStockRouter(t)
	ctx := context.Background()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	rec, _ := doJSON(t, router, http.MethodPost, "/stock/material/flour/conversions",
		`{"from_unit":"sack","to_unit":"kg","factor":"25"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodGet, "/stock/material/flour/conversions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rules, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, rules, 1)

	// Non-positive factors are rejected before they reach the database.
	rec, envelope = doJSON(t, router, http.MethodPost, "/stock/material/flour/conversions",
		`{"from_unit":"sack","to_unit":"kg","factor":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
}
