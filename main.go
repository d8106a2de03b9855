package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/voyago/fulfillment/api"
	"github.com/voyago/fulfillment/config"
	"github.com/voyago/fulfillment/db"
	"github.com/voyago/fulfillment/middleware"
	"github.com/voyago/fulfillment/providers"
	"github.com/voyago/fulfillment/services"
	"github.com/voyago/fulfillment/stores"
	"github.com/voyago/fulfillment/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logger := utils.NewLogger("fulfillment")
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get database instance: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(gdb); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}
	logger.Info(ctx, "database ready", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})

	bookingStore := stores.CreateBookingStore(gdb)
	lockStore := stores.CreateActionLockStore(gdb)
	failureStore := stores.CreateFailureStore(gdb)

	supplierRegistry := providers.NewRegistry(
		providers.NewAmadeusProvider(cfg.Supplier.BaseURL, cfg.Supplier.APIKey),
	)
	documentsClient := services.NewDocumentServiceClient(cfg.Documents.BaseURL)

	lifecycleService := services.NewLifecycleService(bookingStore)
	actionGuard := services.NewActionGuard(lockStore, cfg.Automation.ExecTimeout)
	eventService := services.NewEventService(bookingStore, lifecycleService, actionGuard, documentsClient, supplierRegistry)
	automationService := services.NewAutomationService(eventService, failureStore, bookingStore)
	retryService := services.NewRetryService(failureStore, eventService, cfg.Automation.ScanLimit, cfg.Automation.ProcessLimit)

	webhookHandler := api.CreateWebhookHandler(automationService, cfg.Stripe.WebhookSecret, cfg.Supplier.CallbackSecret)
	automationHandler := api.CreateAutomationHandler(automationService, retryService, failureStore, lockStore, cfg.Automation.StaleLockAge)
	cronHandler := api.CreateCronHandler(retryService, cfg.Automation.CronSecret)

	rateLimiter := middleware.NewRateLimiter(50, 100)
	defer rateLimiter.Close()

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.RateLimitMiddleware(rateLimiter))

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/health", api.HealthCheckHandler).Methods("GET")

	apiRouter.HandleFunc("/webhooks/stripe", webhookHandler.HandleStripeWebhook).Methods("POST")
	apiRouter.HandleFunc("/webhooks/supplier", webhookHandler.HandleSupplierWebhook).Methods("POST")

	apiRouter.HandleFunc("/automation/events", automationHandler.HandleDispatchEvent).Methods("POST")
	apiRouter.HandleFunc("/automation/failures", automationHandler.HandleListFailures).Methods("GET")
	apiRouter.HandleFunc("/automation/failures/{id}/retry", automationHandler.HandleRetryFailure).Methods("POST")
	apiRouter.HandleFunc("/automation/locks", automationHandler.HandleListLocks).Methods("GET")
	apiRouter.HandleFunc("/automation/locks/{key}/unlock", automationHandler.HandleUnlock).Methods("POST")

	apiRouter.HandleFunc("/internal/cron/retry", cronHandler.HandleRetryRun).Methods("POST")

	// The in-process schedule covers single-instance deployments; larger
	// deployments point an external cron at /internal/cron/retry instead.
	// Overlapping triggers are safe either way.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Automation.CronSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()

		summary, err := retryService.Run(runCtx)
		if err != nil {
			utils.LogError(runCtx, err, "scheduled retry run failed", nil)
			return
		}
		logger.Info(runCtx, "scheduled retry run finished", map[string]interface{}{
			"processed":    summary.Processed,
			"resolved":     summary.Resolved,
			"still_failed": summary.StillFailed,
		})
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to schedule retry runs: %v\n", err)
		os.Exit(1)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "starting HTTP server", map[string]interface{}{
			"port":        cfg.Server.Port,
			"environment": cfg.Environment,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server failed to start: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down", nil)

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "server forced to shutdown: %v\n", err)
		os.Exit(1)
	}

	logger.Info(ctx, "server stopped", nil)
}
