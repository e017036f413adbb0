// Package main provides the portfolio tracker server entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/badge"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/fetcher"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
	"github.com/portfolio-tracker/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	// Connect to Redis for the durable store area
	redisClient, err := store.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	stateStore := store.NewStateStore(redisClient)

	// Seed the wallet address from config when the store has none yet
	if cfg.Refresh.Wallet != "" {
		seedAddress(stateStore, cfg.Refresh.Wallet, logger)
	}

	// Fetchers
	polymarket := fetcher.NewPolymarketClient(&cfg.Polymarket)
	cashClient, err := fetcher.NewCashClient(&cfg.Polygon)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Polygon cash client")
	}
	defer cashClient.Close()

	var trades service.TradesFetcher
	if cfg.Refresh.FetchTrades {
		trades = polymarket
	}

	snapshotService := service.NewSnapshotService(
		polymarket,
		cashClient,
		trades,
		stateStore,
		badge.NewStoreUpdater(stateStore),
	)

	refreshWorker, err := worker.NewRefreshWorker(snapshotService, stateStore, cfg.Refresh.PollInterval)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := refreshWorker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh worker")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0, // the event stream stays open indefinitely
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, stateStore, refreshWorker)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":          cfg.Server.Host,
		"port":          cfg.Server.Port,
		"poll_interval": cfg.Refresh.PollInterval.String(),
	}).Info("Portfolio tracker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if err := refreshWorker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Refresh worker stop failed")
	}

	logger.Info("Shutdown complete")
}

// seedAddress writes the configured wallet into the store unless an
// address is already stored.
func seedAddress(st store.Store, wallet string, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := st.Get(ctx, store.KeyAddress)
	if err != nil {
		logger.WithError(err).Warn("Failed to read stored address")
		return
	}

	var stored string
	if raw, ok := values[store.KeyAddress]; ok {
		if json.Unmarshal(raw, &stored) == nil && stored != "" {
			return
		}
	}

	if err := st.Set(ctx, map[string]interface{}{store.KeyAddress: wallet}); err != nil {
		logger.WithError(err).Warn("Failed to seed wallet address")
		return
	}
	logger.WithField("wallet", wallet).Info("Seeded wallet address from config")
}
