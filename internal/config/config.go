package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"depthbook/internal/types"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Book    BookConfig    `yaml:"book"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	App     AppConfig     `yaml:"app"`
}

// FeedConfig holds the exchange feed configuration
type FeedConfig struct {
	URL               string        `yaml:"url"`
	Product           string        `yaml:"product"`
	Products          []string      `yaml:"products"`
	Channel           string        `yaml:"channel"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	FrameBuffer       int           `yaml:"frame_buffer"`
}

// BookConfig holds reconciliation and display configuration
type BookConfig struct {
	BatchThreshold int             `yaml:"batch_threshold"`
	DisplayLevels  int             `yaml:"display_levels"`
	MobileWidth    int             `yaml:"mobile_width"`
	FlushInterval  time.Duration   `yaml:"flush_interval"`
	DefaultTick    types.TickLevel `yaml:"default_tick"`
}

// ServerConfig holds the renderer gateway configuration
type ServerConfig struct {
	Port         string        `yaml:"port"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogInterval time.Duration `yaml:"log_interval"`
}

// Default returns the default configuration for BTC-USD on the Coinbase level2 feed
func Default() Config {
	return Config{
		Feed: FeedConfig{
			URL:               "wss://ws-feed.exchange.coinbase.com",
			Product:           "BTC-USD",
			Products:          []string{"BTC-USD", "ETH-USD"},
			Channel:           "level2",
			HandshakeTimeout:  10 * time.Second,
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
			FrameBuffer:       1000,
		},
		Book: BookConfig{
			BatchThreshold: 25,
			DisplayLevels:  25,
			MobileWidth:    800,
			FlushInterval:  time.Second,
			DefaultTick:    types.TickNone,
		},
		Server: ServerConfig{
			Port:         "8086",
			PushInterval: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		App: AppConfig{
			LogInterval: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// DEPTHBOOK_* environment variables, in that order. An empty path falls back
// to DEPTHBOOK_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("DEPTHBOOK_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DEPTHBOOK_PRODUCT"); v != "" {
		c.Feed.Product = strings.ToUpper(v)
	}
	if v := os.Getenv("DEPTHBOOK_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("DEPTHBOOK_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DEPTHBOOK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEPTHBOOK_BATCH_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPTHBOOK_BATCH_THRESHOLD: %w", err)
		}
		c.Book.BatchThreshold = n
	}
	return nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error

	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	if c.Feed.Channel == "" {
		errs = append(errs, errors.New("feed.channel is required"))
	}
	if c.Feed.Product == "" {
		errs = append(errs, errors.New("feed.product is required"))
	} else if len(c.Feed.Products) > 0 && !slices.Contains(c.Feed.Products, c.Feed.Product) {
		errs = append(errs, fmt.Errorf("feed.product %s is not in feed.products %v", c.Feed.Product, c.Feed.Products))
	}
	if c.Feed.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("feed.reconnect_delay must be positive"))
	}
	if c.Feed.MaxReconnectDelay < c.Feed.ReconnectDelay {
		errs = append(errs, errors.New("feed.max_reconnect_delay must not be below feed.reconnect_delay"))
	}
	if c.Feed.FrameBuffer <= 0 {
		errs = append(errs, errors.New("feed.frame_buffer must be positive"))
	}
	if c.Book.BatchThreshold < 0 {
		errs = append(errs, errors.New("book.batch_threshold must not be negative"))
	}
	if c.Book.DisplayLevels < 0 {
		errs = append(errs, errors.New("book.display_levels must not be negative"))
	}
	if c.Book.MobileWidth < 0 {
		errs = append(errs, errors.New("book.mobile_width must not be negative"))
	}
	if c.Book.FlushInterval <= 0 {
		errs = append(errs, errors.New("book.flush_interval must be positive"))
	}
	if !types.ValidTickLevel(c.Book.DefaultTick) {
		errs = append(errs, fmt.Errorf("book.default_tick %v is not one of %v", c.Book.DefaultTick, types.AvailableTickLevels))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.PushInterval <= 0 {
		errs = append(errs, errors.New("server.push_interval must be positive"))
	}
	if c.App.LogInterval <= 0 {
		errs = append(errs, errors.New("app.log_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AllowsProduct reports whether product may be selected by a client
func (c Config) AllowsProduct(product string) bool {
	if len(c.Feed.Products) == 0 {
		return product != ""
	}
	return slices.Contains(c.Feed.Products, product)
}

// SetProduct updates the initial product
func (c *Config) SetProduct(product string) {
	c.Feed.Product = strings.ToUpper(product)
}

// SetTickLevel updates the default tick level
func (c *Config) SetTickLevel(tick types.TickLevel) {
	c.Book.DefaultTick = tick
}

// SetDisplayLevels updates how many levels per side are rendered
func (c *Config) SetDisplayLevels(levels int) {
	c.Book.DisplayLevels = levels
}

// SetLogInterval updates the stats log interval
func (c *Config) SetLogInterval(interval time.Duration) {
	c.App.LogInterval = interval
}
