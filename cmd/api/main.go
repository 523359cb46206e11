package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwebster45206/last-signal/internal/app"
	"github.com/jwebster45206/last-signal/internal/config"
	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/logger"
	"github.com/jwebster45206/last-signal/internal/middleware"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/services/queue"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Last Signal API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model_name", cfg.ModelName)

	graph, personas, err := app.LoadContent(cfg, log)
	if err != nil {
		log.Error("Failed to load story content", "error", err)
		os.Exit(1)
	}
	log.Info("Story loaded", "title", graph.Title, "nodes", graph.Len(), "personas", len(personas.IDs()))

	backend := app.Backend(context.Background(), cfg, log)
	log.Info("Narrator ready", "mode", backend.Mode())

	store := storage.NewRedisStorage(cfg.RedisURL, log,
		storage.WithMaxSlots(cfg.MaxSaveSlots),
		storage.WithSessionTTL(cfg.SessionTTL))
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	queueClient := queue.NewClient(store.Client(), log)
	processor := turns.NewProcessor(store, graph, app.Narrators(cfg, backend, personas, log), log,
		turns.WithBroadcaster(events.NewBroadcaster(store.Client(), log)),
		turns.WithLocker(queue.NewSessionLock(queueClient, cfg.SessionLockTTL)))

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, backend.Mode(), log))

	sessionsHandler := handlers.NewSessionsHandler(processor, queue.NewTurnQueue(queueClient), log)
	mux.Handle("/v1/sessions", sessionsHandler)
	mux.Handle("/v1/sessions/", sessionsHandler)

	savesHandler := handlers.NewSavesHandler(store, log)
	mux.Handle("/v1/saves", savesHandler)
	mux.Handle("/v1/saves/", savesHandler)

	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(log, mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events endpoint streams.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
