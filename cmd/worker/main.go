package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/last-signal/internal/app"
	"github.com/jwebster45206/last-signal/internal/config"
	"github.com/jwebster45206/last-signal/internal/logger"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/services/queue"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Last Signal Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL)

	graph, personas, err := app.LoadContent(cfg, log)
	if err != nil {
		log.Error("Failed to load story content", "error", err)
		os.Exit(1)
	}

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
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage connection", "error", err)
		}
	}()
	log.Info("Storage service initialized successfully")

	queueClient := queue.NewClient(store.Client(), log)
	broadcaster := events.NewBroadcaster(store.Client(), log)
	processor := turns.NewProcessor(store, graph, app.Narrators(cfg, backend, personas, log), log,
		turns.WithBroadcaster(broadcaster),
		turns.WithLocker(queue.NewSessionLock(queueClient, cfg.SessionLockTTL)))

	w := worker.New(queue.NewTurnQueue(queueClient), processor, broadcaster, log, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")

	// Give the worker time to finish its current turn.
	w.Stop(30 * time.Second)

	log.Info("Worker exited")
}
