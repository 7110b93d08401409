package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depthbook/internal/config"
	"depthbook/internal/depth"
	"depthbook/internal/engine"
	"depthbook/internal/exchange"
	"depthbook/internal/exchange/coinbase"
	"depthbook/internal/lifecycle"
	"depthbook/internal/logging"
	"depthbook/internal/metrics"
	"depthbook/internal/orderbook"
	"depthbook/internal/types"
	"depthbook/internal/websocket"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	colorReset   = "\033[0m"
	colorYellow  = "\033[33m"
	colorGreen   = "\033[32m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
	colorBold    = "\033[1m"
)

func main() {
	// Parse command line flags
	var configPath = flag.String("config", "", "Path to a YAML config file (defaults to $DEPTHBOOK_CONFIG)")
	var product = flag.String("product", "", "Product to monitor, e.g. BTC-USD")
	var logInterval = flag.Duration("log-interval", 0, "Interval for logging orderbook stats")
	var tick = flag.Float64("tick", -1, "Default price grouping tick (0, 0.1, 1, 10, 50, 100)")
	var levels = flag.Int("levels", 0, "Number of levels per side to render")
	flag.Parse()

	// A missing .env is not an error
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *product != "" {
		cfg.SetProduct(coinbase.ProductID(*product))
	}
	if *logInterval > 0 {
		cfg.SetLogInterval(*logInterval)
	}
	if *tick >= 0 {
		cfg.SetTickLevel(types.TickLevel(*tick))
	}
	if *levels > 0 {
		cfg.SetDisplayLevels(*levels)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().
		Str("product", cfg.Feed.Product).
		Str("feed", cfg.Feed.URL).
		Int("batch_threshold", cfg.Book.BatchThreshold).
		Dur("log_interval", cfg.App.LogInterval).
		Msg("Starting orderbook monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("Feed closed. Goodbye!")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	registry := metrics.Init(logger)

	feed := coinbase.NewFeed(coinbase.Config{
		URL:               cfg.Feed.URL,
		Channel:           cfg.Feed.Channel,
		HandshakeTimeout:  cfg.Feed.HandshakeTimeout,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
		MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		FrameBuffer:       cfg.Feed.FrameBuffer,
	}, logger)

	book := orderbook.New(cfg.Feed.Product, cfg.Book.BatchThreshold, logger)
	control := lifecycle.New(feed, book, cfg.Feed.Product, cfg.Feed.Channel, logger)
	eng := engine.New(book, control, feed, cfg.Book.FlushInterval, logger)
	server := websocket.NewServer(eng, cfg, registry, logger)

	if err := control.Start(); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Feed.Product, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error {
		logStats(ctx, eng, feed, cfg)
		return nil
	})

	return g.Wait()
}

// logStats prints a summary of the book every log interval
func logStats(ctx context.Context, eng *engine.Engine, feed exchange.Feed, cfg config.Config) {
	ticker := time.NewTicker(cfg.App.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStats(eng, feed.Health(), cfg)
		}
	}
}

func printStats(eng *engine.Engine, health exchange.HealthStatus, cfg config.Config) {
	book := eng.Book(types.ViewOptions{
		Layout: depth.LayoutFor(0, cfg.Book.MobileWidth),
		Tick:   cfg.Book.DefaultTick,
		Limit:  cfg.Book.DisplayLevels,
	})
	stats := eng.Stats()

	fmt.Println()

	state := colorGreen + "live" + colorReset
	switch {
	case eng.Killed():
		state = colorRed + "killed" + colorReset
	case !book.Synced:
		state = colorYellow + "awaiting snapshot" + colorReset
	}

	mid := decimal.Zero
	if !book.BestBid.IsZero() && !book.BestAsk.IsZero() {
		mid = book.BestBid.Add(book.BestAsk).Div(decimal.NewFromInt(2))
	}

	// print product name
	fmt.Printf("%s%s%s [%s]", colorBold, book.ProductID, colorReset, state)
	fmt.Printf("  Mid: %s%10s%s │ Spread: %s%8s%s (%s%%) | BB: %s%10s%s │ BA: %s%10s%s\n",
		colorYellow, mid.StringFixed(2), colorReset,
		colorMagenta, book.Spread.StringFixed(4), colorReset, book.SpreadPercent.StringFixed(2),
		colorGreen, book.BestBid.StringFixed(2), colorReset,
		colorRed, book.BestAsk.StringFixed(2), colorReset)

	fmt.Printf("  LEVELS    Bids: %s%9d%s │ Asks: %s%9d%s │ Pending: %d\n",
		colorGreen, book.BidLevels, colorReset,
		colorRed, book.AskLevels, colorReset,
		book.Pending)

	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		fmt.Printf("  DEPTH %-3d Bids: %s%9s%s │ Asks: %s%9s%s\n",
			cfg.Book.DisplayLevels,
			colorGreen, book.Bids[len(book.Bids)-1].Total.StringFixed(2), colorReset,
			colorRed, book.Asks[len(book.Asks)-1].Total.StringFixed(2), colorReset)
	}

	fmt.Printf("  FEED      msgs: %d │ errors: %d │ dropped: %d │ reconnects: %d │ snapshots: %d │ discarded: %d\n",
		health.MessageCount, health.ErrorCount, health.DroppedFrames, health.Reconnects,
		stats.SnapshotsApplied, stats.ChangesDiscarded)
}
