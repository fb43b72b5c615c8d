package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/apigateway"
	"greek-asr-platform/backend/internal/auth"
	"greek-asr-platform/backend/internal/config"
	"greek-asr-platform/backend/internal/coreengine/workerclient"
	"greek-asr-platform/backend/internal/datastore"
	"greek-asr-platform/backend/internal/jobmanagement"
	"greek-asr-platform/backend/internal/objectstore"
	"greek-asr-platform/backend/internal/progresshub"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := datastore.Open(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	objects, err := objectstore.NewMinioClient(context.Background(), cfg.Minio, log)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO client: %v", err)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	hub := progresshub.NewHub(verifier, log)
	dispatcher := workerclient.NewClient(cfg.Workers, log)
	reconciler := jobmanagement.NewReconciler(store, hub, cfg.FallbackLanguage, log)
	service := jobmanagement.NewJobService(store, objects, dispatcher, reconciler, hub, log)

	router := apigateway.SetupRouter(apigateway.Deps{
		Verifier:  verifier,
		Jobs:      jobmanagement.NewJobHandlers(service, store, log),
		Callbacks: jobmanagement.NewCallbackHandlers(reconciler, log),
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("address", cfg.Server.Address).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Info("server exited")
}
