package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llama-lora/api/rest/routes"
	"llama-lora/config"
	"llama-lora/core/monitoring"
	"llama-lora/core/service"
	"llama-lora/core/training"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	service.SetupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Training runs outlive the request that started them
	launcher := training.NewLauncher(ctx, svc.Training)

	services := routes.Services{
		App:         svc.App,
		Predictor:   svc.Predictor,
		Launcher:    launcher,
		Checkpoints: svc.Checkpoints,
		DB:          svc.DB,
	}
	if svc.Planner != nil {
		services.Planner = svc.Planner
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, services)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", monitoring.Handler()).Methods("GET")

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop an in-flight training worker and wait for its run to be recorded
	cancel()
	launcher.Wait()
	slog.Info("server exited")
}
