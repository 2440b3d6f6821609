package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/craftline/craftline-backend/internal/inventory/consumers"
	"github.com/craftline/craftline-backend/internal/inventory/domain"
	inventoryevents "github.com/craftline/craftline-backend/internal/inventory/events"
	inventoryhandler "github.com/craftline/craftline-backend/internal/inventory/handler"
	inventoryrepo "github.com/craftline/craftline-backend/internal/inventory/repository"
	inventoryservice "github.com/craftline/craftline-backend/internal/inventory/service"
	productionevents "github.com/craftline/craftline-backend/internal/production/events"
	productionhandler "github.com/craftline/craftline-backend/internal/production/handler"
	productionrepo "github.com/craftline/craftline-backend/internal/production/repository"
	productionservice "github.com/craftline/craftline-backend/internal/production/service"
	"github.com/craftline/craftline-backend/pkg/config"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/logger"
	"github.com/craftline/craftline-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publishers
	stockPublisher, err := inventoryevents.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stock event publisher")
	}
	batchPublisher, err := productionevents.NewBatchEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create batch event publisher")
	}

	// Initialize repositories
	balanceRepo := inventoryrepo.NewBalanceRepository(db)
	lotRepo := inventoryrepo.NewLotRepository(db)
	txnRepo := inventoryrepo.NewTransactionRepository(db)
	conversionRepo := inventoryrepo.NewConversionRepository(db)
	auditRepo := inventoryrepo.NewAuditRepository(db)
	itemCacheRepo := inventoryrepo.NewItemCacheRepository(db)
	recipeRepo := productionrepo.NewRecipeRepository(db)
	batchRepo := productionrepo.NewBatchRepository(db)

	defaultStrategy, err := domain.ParseCostStrategy(cfg.Production.CostingStrategy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid costing strategy")
	}

	// Initialize services
	clock := domain.SystemClock{}
	locks := inventoryservice.NewItemLocker()
	converter := inventoryservice.NewUnitConverter(conversionRepo)
	ledgerService := inventoryservice.NewLedgerService(
		db, balanceRepo, lotRepo, txnRepo, itemCacheRepo, converter, locks,
		stockPublisher, clock, defaultStrategy, log,
	)
	costingService := inventoryservice.NewCostingService(balanceRepo, lotRepo, log)
	auditService := inventoryservice.NewAuditService(
		db, auditRepo, balanceRepo, ledgerService, itemCacheRepo, stockPublisher, log,
	)
	expander := productionservice.NewRecipeExpander(recipeRepo, converter, itemCacheRepo)
	recipeService := productionservice.NewRecipeService(db, recipeRepo, expander, itemCacheRepo, log)
	batchService := productionservice.NewBatchService(
		db, batchRepo, recipeRepo, expander, ledgerService, converter, itemCacheRepo,
		batchPublisher, clock, cfg.Production.ReservationTTL, log,
	)

	// Initialize handlers
	stockHandler := inventoryhandler.NewStockHandler(ledgerService, costingService, conversionRepo, log)
	auditHandler := inventoryhandler.NewAuditHandler(auditService, log)
	recipeHandler := productionhandler.NewRecipeHandler(recipeService, log)
	batchHandler := productionhandler.NewBatchHandler(batchService, log)

	// Start catalog event consumer
	catalogConsumer, err := consumers.NewCatalogEventConsumer(rmq, itemCacheRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := catalogConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start catalog event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(httputil.ActorMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Stock ledger routes
		r.Route("/stock", func(r chi.Router) {
			r.Get("/", stockHandler.ListBalances)
			r.Get("/low", stockHandler.ListLowStock)
			r.Post("/add", stockHandler.AddStock)
			r.Post("/remove", stockHandler.RemoveStock)
			r.Post("/adjust", stockHandler.AdjustStock)
			r.Route("/{kind}/{id}", func(r chi.Router) {
				r.Get("/", stockHandler.GetBalance)
				r.Get("/history", stockHandler.GetHistory)
				r.Get("/estimate", stockHandler.EstimateCost)
				r.Get("/conversions", stockHandler.ListConversions)
				r.Post("/conversions", stockHandler.CreateConversion)
			})
		})
		r.Delete("/conversions/{id}", stockHandler.DeleteConversion)

		// Recipe routes
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", recipeHandler.List)
			r.Post("/", recipeHandler.Create)
			r.Get("/{id}", recipeHandler.Get)
			r.Delete("/{id}", recipeHandler.Deactivate)
			r.Get("/{id}/expand", recipeHandler.Expand)
			r.Get("/{id}/availability", batchHandler.CheckAvailability)
			r.Get("/{id}/production-time", batchHandler.EstimateTime)
		})

		// Production batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Post("/", batchHandler.Create)
			r.Get("/{id}", batchHandler.Get)
			r.Post("/{id}/start", batchHandler.Start)
			r.Post("/{id}/complete", batchHandler.Complete)
			r.Post("/{id}/cancel", batchHandler.Cancel)
			r.Post("/{id}/fail", batchHandler.Fail)
		})

		// Audit routes
		r.Route("/audits", func(r chi.Router) {
			r.Get("/", auditHandler.List)
			r.Post("/", auditHandler.Create)
			r.Get("/{id}", auditHandler.Get)
			r.Post("/{id}/start", auditHandler.Start)
			r.Post("/{id}/complete", auditHandler.Complete)
			r.Post("/{id}/cancel", auditHandler.Cancel)
			r.Put("/{id}/items/{itemId}/count", auditHandler.RecordCount)
			r.Get("/{id}/items/{itemId}/history", auditHandler.ItemHistory)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
