// quantgate — market-data and trading proxy gateway.
//
// The process fronts a vendor's native market-data/trading library behind two
// stable surfaces (HTTP+WebSocket and gRPC). The deployment mode decides what
// sits upstream: mock runs a self-contained simulator, dev proxies live data
// with order mutations refused, prod proxies everything with real trading
// still behind an explicit config flag.
//
//	cmd/quantgate         — entry point: config, logger, signals
//	internal/gateway      — wiring and start/stop ordering
//	internal/upstream     — adapter variants (simulator, read-live, live)
//	internal/stream       — subscription manager, per-subscription queues
//	internal/session      — trading session registry and simulated orders
//	internal/service      — validation, retries, error taxonomy
//	internal/api          — gin HTTP surface and the quote WebSocket
//	internal/rpc          — gRPC surface (JSON codec, hand-written descs)
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quantgate/internal/config"
	"quantgate/internal/gateway"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "quantgate",
	Short: "Market-data and trading proxy gateway",
	Long: `quantgate fronts a native market-data/trading library behind stable
HTTP and gRPC surfaces. The APP_MODE environment variable selects the
upstream: mock (simulator), dev (live data, no order mutations), or
prod (live data and trading, orders still gated by config).`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway until SIGINT/SIGTERM",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quantgate %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (empty runs on built-in defaults)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	path := cfgPath
	if path == "" {
		path = os.Getenv("QG_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	g, err := gateway.New(*cfg, logger)
	if err != nil {
		return err
	}
	if err := g.Start(); err != nil {
		return err
	}
	logger.Info().
		Str("version", version).
		Str("mode", string(cfg.Mode)).
		Str("http_addr", g.HTTPAddr()).
		Str("rpc_addr", g.RPCAddr()).
		Bool("real_trading", cfg.Trading.AllowRealTrading).
		Msg("quantgate started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return g.Stop(ctx)
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
