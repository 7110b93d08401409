package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"depthbook/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depthbook.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Feed.Product != "BTC-USD" {
		t.Errorf("Expected BTC-USD, got %s", cfg.Feed.Product)
	}
	if cfg.Feed.URL != "wss://ws-feed.exchange.coinbase.com" {
		t.Errorf("Unexpected feed url %s", cfg.Feed.URL)
	}
	if cfg.Book.BatchThreshold != 25 || cfg.Book.DisplayLevels != 25 || cfg.Book.MobileWidth != 800 {
		t.Errorf("Unexpected book defaults %+v", cfg.Book)
	}
	if cfg.Server.Port != "8086" {
		t.Errorf("Expected port 8086, got %s", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("DEPTHBOOK_CONFIG", "")
	path := writeConfig(t, `
feed:
  product: ETH-USD
  reconnect_delay: 2s
book:
  batch_threshold: 10
  flush_interval: 500ms
  default_tick: 10
server:
  push_interval: 1s
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Feed.Product != "ETH-USD" {
		t.Errorf("Expected ETH-USD, got %s", cfg.Feed.Product)
	}
	if cfg.Feed.ReconnectDelay != 2*time.Second {
		t.Errorf("Expected 2s reconnect delay, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Book.BatchThreshold != 10 {
		t.Errorf("Expected threshold 10, got %d", cfg.Book.BatchThreshold)
	}
	if cfg.Book.FlushInterval != 500*time.Millisecond {
		t.Errorf("Expected 500ms flush interval, got %v", cfg.Book.FlushInterval)
	}
	if cfg.Book.DefaultTick != types.Tick10 {
		t.Errorf("Expected tick 10, got %v", cfg.Book.DefaultTick)
	}
	if !cfg.Logging.Pretty || cfg.Logging.Level != "debug" {
		t.Errorf("Unexpected logging %+v", cfg.Logging)
	}
	// untouched keys keep their defaults
	if cfg.Book.DisplayLevels != 25 {
		t.Errorf("Expected display levels 25, got %d", cfg.Book.DisplayLevels)
	}
	if cfg.Feed.Channel != "level2" {
		t.Errorf("Expected channel level2, got %s", cfg.Feed.Channel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9000\"\n")
	t.Setenv("DEPTHBOOK_CONFIG", path)
	t.Setenv("DEPTHBOOK_PRODUCT", "eth-usd")
	t.Setenv("DEPTHBOOK_FEED_URL", "ws://localhost:1234")
	t.Setenv("DEPTHBOOK_PORT", "9100")
	t.Setenv("DEPTHBOOK_LOG_LEVEL", "warn")
	t.Setenv("DEPTHBOOK_BATCH_THRESHOLD", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Feed.Product != "ETH-USD" {
		t.Errorf("Expected ETH-USD, got %s", cfg.Feed.Product)
	}
	if cfg.Feed.URL != "ws://localhost:1234" {
		t.Errorf("Unexpected feed url %s", cfg.Feed.URL)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("Expected env port to win over file, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected warn, got %s", cfg.Logging.Level)
	}
	if cfg.Book.BatchThreshold != 5 {
		t.Errorf("Expected threshold 5, got %d", cfg.Book.BatchThreshold)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("DEPTHBOOK_CONFIG", "")

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		env     string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yaml") },
			wantErr: "read config",
		},
		{
			name:    "bad yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "feed: [1, 2") },
			wantErr: "parse config",
		},
		{
			name:    "bad threshold env",
			path:    func(t *testing.T) string { return "" },
			env:     "many",
			wantErr: "DEPTHBOOK_BATCH_THRESHOLD",
		},
		{
			name:    "invalid values",
			path:    func(t *testing.T) string { return writeConfig(t, "book:\n  default_tick: 7\n") },
			wantErr: "book.default_tick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEPTHBOOK_BATCH_THRESHOLD", tt.env)
			_, err := Load(tt.path(t))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty url", func(c *Config) { c.Feed.URL = "" }, "feed.url"},
		{"unknown product", func(c *Config) { c.Feed.Product = "DOGE-USD" }, "feed.products"},
		{"negative threshold", func(c *Config) { c.Book.BatchThreshold = -1 }, "book.batch_threshold"},
		{"backoff below base", func(c *Config) { c.Feed.MaxReconnectDelay = time.Millisecond }, "max_reconnect_delay"},
		{"zero push interval", func(c *Config) { c.Server.PushInterval = 0 }, "server.push_interval"},
		{"zero threshold is allowed", func(c *Config) { c.Book.BatchThreshold = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAllowsProduct(t *testing.T) {
	cfg := Default()

	if !cfg.AllowsProduct("ETH-USD") {
		t.Error("Expected ETH-USD to be allowed")
	}
	if cfg.AllowsProduct("DOGE-USD") {
		t.Error("Expected DOGE-USD to be rejected")
	}

	cfg.Feed.Products = nil
	if !cfg.AllowsProduct("DOGE-USD") {
		t.Error("Expected any product when the list is empty")
	}
}

func TestSetters(t *testing.T) {
	cfg := Default()
	cfg.SetProduct("eth-usd")
	cfg.SetTickLevel(types.Tick50)
	cfg.SetDisplayLevels(10)
	cfg.SetLogInterval(time.Minute)

	if cfg.Feed.Product != "ETH-USD" || cfg.Book.DefaultTick != types.Tick50 ||
		cfg.Book.DisplayLevels != 10 || cfg.App.LogInterval != time.Minute {
		t.Errorf("Setters not applied: %+v", cfg)
	}
}
