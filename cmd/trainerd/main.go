package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robolab/trainerd/internal/api"
	"github.com/robolab/trainerd/internal/api/handler"
	"github.com/robolab/trainerd/internal/api/middleware"
	"github.com/robolab/trainerd/internal/config"
	"github.com/robolab/trainerd/internal/jobs"
	"github.com/robolab/trainerd/internal/jobstore"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/monitor"
	"github.com/robolab/trainerd/internal/pods"
	"github.com/robolab/trainerd/internal/provider"
	"github.com/robolab/trainerd/internal/repository"
	"github.com/robolab/trainerd/internal/session"
	"github.com/robolab/trainerd/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "trainerd",
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Local job tier: store, session executor, monitor registry.
	store, err := jobstore.New(cfg.Jobs.Dir, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("failed to initialize job store")
	}

	executor := session.NewExecutor(session.NewTmuxRunner(), cfg.Jobs, cfg.Training, appLog)

	var uploader monitor.ArtifactUploader
	if cfg.Artifacts.Enabled {
		s3Store, err := storage.NewS3Store(&storage.S3Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			Region:    cfg.Artifacts.Region,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			UseSSL:    cfg.Artifacts.UseSSL,
		})
		if err != nil {
			appLog.WithError(err).Fatal("failed to initialize artifact storage")
		}
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			appLog.WithError(err).Fatal("failed to ensure artifact bucket")
		}
		uploader = s3Store
	}

	mon := monitor.New(store, cfg.Jobs, uploader, appLog)
	jobService := jobs.NewService(store, executor, mon, appLog)
	jobHandler := handler.NewJobHandler(jobService)

	// Remote pod tier, served only when a provider key is configured.
	var podHandler *handler.PodHandler
	if cfg.Provider.Enabled() {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLog.WithError(err).Fatal("failed to initialize database")
		}

		providerClient := provider.NewClient(cfg.Provider)
		orchestrator := pods.NewOrchestrator(providerClient, repository.NewPodRepository(db), appLog)
		poller := pods.NewStatusPoller(orchestrator, repository.NewJobMirrorRepository(db), cfg.Provider.AppPort, appLog)
		podHandler = handler.NewPodHandler(orchestrator, poller)
	} else {
		appLog.Warn("PROVIDER_API_KEY not set; pod management endpoints disabled")
	}

	router := api.SetupRouter(jobHandler, podHandler, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.Infof("starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("server forced to shutdown")
	}

	// Detach outstanding job watchers; their jobs keep their last persisted
	// state and are picked up again from disk on restart.
	if err := mon.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("job monitors did not drain cleanly")
	}

	appLog.Info("server exited")
}
