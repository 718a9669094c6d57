package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/compass-engine/internal/config"
	"github.com/jwebster45206/compass-engine/internal/logger"
	"github.com/jwebster45206/compass-engine/internal/progression"
	"github.com/jwebster45206/compass-engine/internal/queue"
	"github.com/jwebster45206/compass-engine/internal/storage"
	"github.com/jwebster45206/compass-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Compass Engine Worker",
		"environment", cfg.Environment,
		"storage_driver", cfg.StorageDriver,
		"data_dir", cfg.DataDir)

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()

	requestQueue := queue.NewRequestQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	store, err := storage.Open(storageCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()
	log.Info("Storage service initialized successfully")

	engine := progression.NewEngine(store, log, progression.Options{
		DefaultCompassThreshold: cfg.DefaultCompassThreshold,
	})

	// Create and start worker; locks and events share the queue connection
	w := worker.New(requestQueue, engine, queueClient.GetRedisClient(), log, worker.Options{
		ID:      cfg.WorkerID,
		LockTTL: cfg.SessionLockTTL,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- w.Start()
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	select {
	case <-quit:
		log.Info("Worker shutdown signal received")
		w.Stop()
		// Let the current request finish
		if err := <-done; err != nil {
			log.Error("Worker error", "error", err)
		}
	case err := <-done:
		if err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}

	log.Info("Worker exited")
}
