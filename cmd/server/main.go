package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"segrun-orchestrator/api/rest/handlers"
	"segrun-orchestrator/api/rest/routes"
	"segrun-orchestrator/config"
	"segrun-orchestrator/core/diagnostics"
	"segrun-orchestrator/core/executor"
	"segrun-orchestrator/core/monitoring"
	"segrun-orchestrator/core/postprocess"
	"segrun-orchestrator/core/repository"
	"segrun-orchestrator/core/scheduler"
	"segrun-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

func main() {
	cfg := config.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// Select the object store backing run state
	var objects storage.ObjectStore
	if cfg.StorageBucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.StorageBucket, cfg.StoragePrefix)
		if err != nil {
			logger.Error("failed to initialize S3 store", "error", err)
			os.Exit(1)
		}
		objects = s3Store
		logger.Info("using S3 object store", "bucket", cfg.StorageBucket, "prefix", cfg.StoragePrefix)
	} else {
		objects = storage.NewLocalStore(cfg.DataDir)
		logger.Info("using local object store", "dir", cfg.DataDir)
	}

	// Optional run-event ledger
	var eventRepo *repository.EventRepository
	var events scheduler.EventRecorder
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		eventRepo = repository.NewEventRepository(db)
		if err := eventRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure event schema", "error", err)
			os.Exit(1)
		}
		events = eventRepo
		logger.Info("event ledger enabled")
	}

	runs := storage.NewRunStore(objects, logger)
	post := postprocess.NewPostProcessor(objects, logger)
	runner := executor.NewExecRunner(cfg.SegmentCommand, logger)
	sched := scheduler.NewScheduler(runs, post, runner, events, logger)

	cache := diagnostics.NewCache(objects, nil, logger)
	compute := diagnostics.ExecCompute(cfg.DiagnosticsCommand, nil)

	monitor := monitoring.NewMonitor(monitoring.NewExecStatusReader(cfg.JobStatusCommand), nil, logger)
	monitor.PollInterval = cfg.PollInterval

	runHandler := handlers.NewRunHandler(sched, cache, compute, monitor, cfg.PollDeadline, eventRepo, logger)

	r := mux.NewRouter()
	routes.SetupRoutes(r, runHandler)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
