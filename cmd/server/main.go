package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"spscan/application"
	"spscan/database"
	"spscan/domain/contracts"
	jobsdom "spscan/domain/jobs"
	"spscan/infrastructure/config"
	"spscan/infrastructure/directory"
	"spscan/infrastructure/jobstore"
	"spscan/infrastructure/registry"
	"spscan/infrastructure/report"
	"spscan/interfaces/web/handlers"
	"spscan/logging"
	"spscan/platform/events"
	"spscan/platform/executors"
	"spscan/platform/factories"
)

func main() {
	// Create app-wide context for graceful shutdown
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Initialize configuration
	loadEnvironment()
	cfg := config.LoadAppConfigFromEnv()

	// Initialize logging
	logger := initializeLogging(cfg)

	// Initialize database
	db := initializeDatabase(cfg, logger)
	defer db.Close()

	// Build dependencies with app context
	deps := buildDependencies(appCtx, cfg, db, logger)

	// Setup routes and start server
	router := setupRoutes(deps, cfg)
	startServer(router, cfg.HTTPAddr, logger, deps, appCancel)
}

// ApplicationServices holds application services.
type ApplicationServices struct {
	JobService  application.JobService
	ScanService application.ScanService
	EventBus    *events.JobEventBus
}

// PresentationLayer groups all presentation components
type PresentationLayer struct {
	ScanHandlers *handlers.ScanHandlers
	SiteHandlers *handlers.SiteHandlers
	JobHandlers  *handlers.JobHandlers
	SSEManager   *handlers.SSEManager
}

// Dependencies holds all application dependencies organized by layer
type Dependencies struct {
	// Infrastructure
	DB     *database.Database
	Logger *logging.Logger

	// Stores
	JobRepo      contracts.JobRepository
	ScanHistory  contracts.ScanHistory
	SiteRegistry contracts.SiteRegistry

	// Application Layer
	Services *ApplicationServices

	// Presentation Layer
	Presentation *PresentationLayer
}

func loadEnvironment() {
	if err := godotenv.Load(); err != nil {
		println("No .env file found, using environment variables")
	} else {
		println("Loaded configuration from .env file")
	}
}

func initializeLogging(cfg *config.AppConfig) *logging.Logger {
	logger := logging.NewLogger(cfg.Logging)
	logging.SetDefault(logger)

	logger.Info("Application starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
		"db_path", cfg.Database.Path,
	)

	return logger
}

func initializeDatabase(cfg *config.AppConfig, logger *logging.Logger) *database.Database {
	db, err := database.New(*cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	return db
}

// StorageBundle holds the durable stores backing the scan engine.
type StorageBundle struct {
	JobRepo      contracts.JobRepository
	ScanHistory  contracts.ScanHistory
	SiteRegistry contracts.SiteRegistry
	GroupCache   directory.GroupCache
	ReportSink   contracts.ReportSink
	FS           afero.Fs
}

// buildStorage creates the stores. Jobs are operational state and live
// in memory; terminal scan runs are recorded durably in sqlite.
func buildStorage(cfg *config.AppConfig, db *database.Database) *StorageBundle {
	fs := afero.NewOsFs()

	return &StorageBundle{
		JobRepo:      jobstore.NewMemoryJobRepository(),
		ScanHistory:  jobstore.NewSqliteScanHistory(db),
		SiteRegistry: registry.NewFilesystemRegistry(fs, cfg.RegistryDir),
		GroupCache:   directory.NewGroupCache(db),
		ReportSink:   report.NewFilesystemSink(fs, cfg.ReportsDir),
		FS:           fs,
	}
}

// buildApplicationServices creates application services with dependency injection.
func buildApplicationServices(cfg *config.AppConfig, storage *StorageBundle) *ApplicationServices {
	// Create event bus for job events
	eventBus := events.NewJobEventBus()

	// Directory client for group membership expansion
	graphBaseURL := cfg.GraphBaseURL
	if graphBaseURL == "" {
		graphBaseURL = directory.DefaultGraphBaseURL
	}
	graphHTTPClient := &http.Client{Timeout: 60 * time.Second}
	dirClient := directory.NewGraphClient(graphHTTPClient, graphBaseURL,
		directory.StaticTokenProvider(cfg.GraphToken))

	// Create platform factories
	runnerFactory := factories.NewScanRunnerFactory(
		dirClient,
		storage.GroupCache,
		storage.ReportSink,
		storage.FS,
		cfg.StagingDir,
	)

	// Create platform executors
	siteScanExecutor := executors.NewSiteScanExecutor(runnerFactory)

	// Create job executor registry and register executors
	execRegistry := application.NewJobExecutorRegistry()
	execRegistry.RegisterExecutor(jobsdom.JobTypeSiteScan, siteScanExecutor)

	// Create job and scan services
	jobService := application.NewJobService(storage.JobRepo, storage.ScanHistory, execRegistry, nil, eventBus)
	scanService := application.NewScanService(jobService, storage.SiteRegistry, storage.GroupCache, storage.ScanHistory)

	return &ApplicationServices{
		JobService:  jobService,
		ScanService: scanService,
		EventBus:    eventBus,
	}
}

// buildPresentationLayer creates all handlers
func buildPresentationLayer(services *ApplicationServices, storage *StorageBundle) *PresentationLayer {
	sseManager := handlers.NewSSEManager()
	scanHandlers := handlers.NewScanHandlers(services.ScanService)
	siteHandlers := handlers.NewSiteHandlers(storage.SiteRegistry)
	jobHandlers := handlers.NewJobHandlers(services.JobService)

	// Wire up update notifications
	services.JobService.SetUpdateNotifier(sseManager)

	// Setup event system for job notifications
	setupEventHandlers(services, sseManager)

	return &PresentationLayer{
		ScanHandlers: scanHandlers,
		SiteHandlers: siteHandlers,
		JobHandlers:  jobHandlers,
		SSEManager:   sseManager,
	}
}

// buildDependencies creates all application dependencies
func buildDependencies(appCtx context.Context, cfg *config.AppConfig, db *database.Database, logger *logging.Logger) *Dependencies {
	storage := buildStorage(cfg, db)
	services := buildApplicationServices(cfg, storage)
	presentation := buildPresentationLayer(services, storage)

	return &Dependencies{
		DB:           db,
		Logger:       logger,
		JobRepo:      storage.JobRepo,
		ScanHistory:  storage.ScanHistory,
		SiteRegistry: storage.SiteRegistry,
		Services:     services,
		Presentation: presentation,
	}
}

func setupRoutes(deps *Dependencies, cfg *config.AppConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	setupHTTPLogging(r, deps, cfg)
	r.Use(middleware.Recoverer)

	// System endpoints
	setupSystemRoutes(r, deps)

	// Scan and job routes
	setupAPIRoutes(r, deps)

	return r
}

func setupHTTPLogging(r *chi.Mux, deps *Dependencies, cfg *config.AppConfig) {
	if cfg.HTTPLogPath == "" {
		// No HTTP logging configured, skip
		return
	}

	logFile, err := os.OpenFile(cfg.HTTPLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		deps.Logger.Error("Failed to open HTTP log file", "error", err, "path", cfg.HTTPLogPath)
		return
	}
	// Note: logFile is not closed here as it needs to stay open for the server lifetime

	httpLogger := httplog.NewLogger("spscan", httplog.Options{
		Writer: logFile,
		JSON:   true,
	})
	r.Use(httplog.RequestLogger(httpLogger))

	deps.Logger.Info("HTTP request logging enabled", "path", cfg.HTTPLogPath)
}

func setupSystemRoutes(r *chi.Mux, deps *Dependencies) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.DB.Health()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		response := map[string]interface{}{
			"status":   "ok",
			"database": stats,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	r.Get("/events", deps.Presentation.SSEManager.HandleSSEConnection)
}

func setupAPIRoutes(r *chi.Mux, deps *Dependencies) {
	// Site registry
	r.Get("/api/sites", deps.Presentation.SiteHandlers.ListSites)
	r.Put("/api/sites/{siteID}", deps.Presentation.SiteHandlers.RegisterSite)
	r.Get("/api/sites/{siteID}", deps.Presentation.SiteHandlers.GetSite)

	// Scan operations
	r.Post("/api/sites/{siteID}/scans", deps.Presentation.ScanHandlers.StartScan)
	r.Get("/api/sites/{siteID}/scan", deps.Presentation.ScanHandlers.GetScanStatus)
	r.Delete("/api/sites/{siteID}/scan", deps.Presentation.ScanHandlers.CancelScan)
	r.Get("/api/scans/active", deps.Presentation.ScanHandlers.ListActiveScans)
	r.Get("/api/scans/history", deps.Presentation.ScanHandlers.GetScanHistory)

	// Job management
	r.Get("/api/jobs", deps.Presentation.JobHandlers.ListJobs)
	r.Get("/api/jobs/{jobID}", deps.Presentation.JobHandlers.GetJobStatus)
	r.Post("/api/jobs/{jobID}/cancel", deps.Presentation.JobHandlers.CancelJob)
}

func startServer(router *chi.Mux, addr string, logger *logging.Logger, deps *Dependencies, appCancel context.CancelFunc) {
	server := &http.Server{Addr: addr, Handler: router}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sig
		logger.Info("Shutdown signal received")

		// Cancel app-wide context first to signal all services to shutdown
		logger.Info("Cancelling app context...")
		appCancel()

		// Close SSE connections immediately
		logger.Info("Closing SSE connections...")
		deps.Presentation.SSEManager.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				logger.Error("Graceful shutdown timed out, forcing exit")
				os.Exit(1)
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
		serverStopCtx()
	}()

	logger.Info("Server starting", "address", addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-serverCtx.Done()
	logger.Info("Server stopped")
}

// setupEventHandlers wires up the event handlers for job notifications
func setupEventHandlers(services *ApplicationServices, sseManager *handlers.SSEManager) {
	// Create event handlers using the event bus from services
	notificationHandlers := events.NewNotificationEventHandlers(sseManager)

	// Register all event handlers with the existing event bus
	notificationHandlers.RegisterHandlers(services.EventBus)
}
