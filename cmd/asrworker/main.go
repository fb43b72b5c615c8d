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

	"greek-asr-platform/backend/internal/asrworker"
	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	transcriber := asrworker.NewModelServerClient(cfg.ModelServerURL, cfg.ModelTimeout, log)
	notifier := callbackclient.NewClient(cfg.Callback, cfg.ModelName, log)
	handlers := asrworker.NewHandlers(transcriber, notifier, cfg.ModelName, log)
	router := asrworker.SetupRouter(handlers)

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: router,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"address": cfg.Address,
			"model":   cfg.ModelName,
		}).Info("asr worker starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Worker failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Worker forced to shutdown: %v", err)
	}
	log.Info("worker exited")
}
