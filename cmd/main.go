package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cosmeon-io/cosmeon/pkg/api"
	"github.com/cosmeon-io/cosmeon/pkg/cluster"
	"github.com/cosmeon-io/cosmeon/pkg/config"
	"github.com/cosmeon-io/cosmeon/pkg/storage"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, err := storage.NewStore(cfg.StoragePath, cfg.StorageNodes)
	if err != nil {
		log.Fatal(err)
	}

	meta, err := storage.NewMetadataStore(cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}

	registry := cluster.NewRegistry()
	manager := storage.NewManager(store, meta, registry, logger)

	// Initialize API
	api, err := api.NewAPI(manager, registry, cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Start API server
	go func() {
		if err := api.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Stop(ctx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}
}
