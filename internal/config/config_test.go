package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("WALLET_ADDRESS", "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("Failed to set WALLET_ADDRESS: %v", err)
	}
	if err := os.Setenv("POLL_INTERVAL", "30s"); err != nil {
		t.Fatalf("Failed to set POLL_INTERVAL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("WALLET_ADDRESS")
		_ = os.Unsetenv("POLL_INTERVAL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Refresh.Wallet != "0x1111111111111111111111111111111111111111" {
		t.Errorf("Refresh.Wallet = %v, want the test address", cfg.Refresh.Wallet)
	}

	if cfg.Refresh.PollInterval != 30*time.Second {
		t.Errorf("Refresh.PollInterval = %v, want %v", cfg.Refresh.PollInterval, 30*time.Second)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"POLYMARKET_API_BASE", "POLYGON_RPC_URL", "USDC_CONTRACT", "USDC_DECIMALS", "POLL_INTERVAL"} {
		_ = os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Polymarket.APIBase != "https://data-api.polymarket.com" {
		t.Errorf("Polymarket.APIBase = %v, want the default data API", cfg.Polymarket.APIBase)
	}
	if cfg.Polygon.RPCURL != "https://polygon-rpc.com/" {
		t.Errorf("Polygon.RPCURL = %v, want the default Polygon RPC", cfg.Polygon.RPCURL)
	}
	if cfg.Polygon.USDCContract != "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174" {
		t.Errorf("Polygon.USDCContract = %v, want the USDC contract", cfg.Polygon.USDCContract)
	}
	if cfg.Polygon.USDCDecimals != 6 {
		t.Errorf("Polygon.USDCDecimals = %v, want 6", cfg.Polygon.USDCDecimals)
	}
	if cfg.Refresh.PollInterval != 5*time.Minute {
		t.Errorf("Refresh.PollInterval = %v, want 5m", cfg.Refresh.PollInterval)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "TEST_KEY_UNSET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set %s: %v", tt.key, err)
				}
				defer func() { _ = os.Unsetenv(tt.key) }()
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv(%q, %q) = %v, want %v", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	if err := os.Setenv("TEST_DURATION", "2m30s"); err != nil {
		t.Fatalf("Failed to set TEST_DURATION: %v", err)
	}
	defer func() { _ = os.Unsetenv("TEST_DURATION") }()

	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 2*time.Minute+30*time.Second {
		t.Errorf("getEnvAsDuration = %v, want 2m30s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_UNSET", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration default = %v, want 1s", got)
	}

	if err := os.Setenv("TEST_DURATION", "not-a-duration"); err != nil {
		t.Fatalf("Failed to set TEST_DURATION: %v", err)
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration invalid = %v, want fallback 1s", got)
	}
}
