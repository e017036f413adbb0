// Package main provides a one-shot refresh: fetch the portfolio for a
// wallet once, print the snapshot as JSON, and exit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/portfolio-tracker/internal/badge"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/fetcher"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
)

func main() {
	addrFlag := flag.String("address", "", "Wallet address to refresh (overrides WALLET_ADDRESS)")
	tradesFlag := flag.Bool("trades", false, "Also fetch trade history")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep structured log output out of the JSON result
	logging.InitGlobalLogger(logging.LevelError, logging.ParseLogFormat(cfg.Logging.Format))

	wallet := *addrFlag
	if wallet == "" {
		wallet = cfg.Refresh.Wallet
	}
	if wallet == "" {
		fmt.Println("No wallet address: pass -address or set WALLET_ADDRESS")
		os.Exit(1)
	}

	// Everything stays in memory for a one-shot run
	stateStore := store.NewStateStore(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := stateStore.Set(ctx, map[string]interface{}{store.KeyAddress: wallet}); err != nil {
		fmt.Printf("Error storing address: %v\n", err)
		os.Exit(1)
	}

	polymarket := fetcher.NewPolymarketClient(&cfg.Polymarket)
	cashClient, err := fetcher.NewCashClient(&cfg.Polygon)
	if err != nil {
		fmt.Printf("Error creating Polygon client: %v\n", err)
		os.Exit(1)
	}
	defer cashClient.Close()

	var trades service.TradesFetcher
	if *tradesFlag || cfg.Refresh.FetchTrades {
		trades = polymarket
	}

	snapshotService := service.NewSnapshotService(
		polymarket,
		cashClient,
		trades,
		stateStore,
		badge.NewStoreUpdater(stateStore),
	)

	result, err := snapshotService.Refresh(ctx)
	if err != nil {
		fmt.Printf("Refresh failed: %v\n", err)
		os.Exit(1)
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))

	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", result.Error)
	}
}
