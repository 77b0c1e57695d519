// Package config defines all configuration for the gateway.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via QG_* environment variables. The run mode
// comes from APP_MODE and defaults to dev.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"quantgate/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure. Loaded once at startup and treated as immutable afterwards.
type Config struct {
	Mode     types.Mode     `mapstructure:"-"` // from APP_MODE, not the file
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Security SecurityConfig `mapstructure:"security"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name            string        `mapstructure:"name"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ServerConfig is the HTTP surface listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RPCConfig is the binary RPC surface listener.
type RPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port listen address.
func (r RPCConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// UpstreamConfig points the live adapter at the vendor's local gateway.
//
//   - Endpoint/WSEndpoint: REST and quote-feed URLs of the native gateway.
//   - Token: upstream access token, overridable via QG_UPSTREAM_TOKEN.
//   - DataDir: where downloads and custom sectors live.
//   - MaxWorkers: cap on concurrent blocking calls into the adapter.
type UpstreamConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	WSEndpoint     string        `mapstructure:"ws_endpoint"`
	Token          string        `mapstructure:"token"`
	DataDir        string        `mapstructure:"data_dir"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StreamConfig caps the subscription manager.
type StreamConfig struct {
	MaxSubscriptions int           `mapstructure:"max_subscriptions"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	FirehoseEnabled  bool          `mapstructure:"firehose_enabled"`
}

// TradingConfig feeds the policy gate and the risk summary.
type TradingConfig struct {
	AllowRealTrading   bool    `mapstructure:"allow_real_trading"`
	DefaultAccountType string  `mapstructure:"default_account_type"`
	MaxPositionValue   float64 `mapstructure:"max_position_value"`
}

// SecurityConfig lists the accepted bearer tokens. An empty list disables
// authentication, which is how mock configs run.
type SecurityConfig struct {
	Tokens []string `mapstructure:"tokens"`
	Header string   `mapstructure:"header"`
}

// CORSConfig controls cross-origin access to the HTTP surface.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads config from a YAML file with env var overrides. An empty path
// runs on defaults alone so the mock mode needs no file at all.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	mode, err := types.ParseMode(os.Getenv("APP_MODE"))
	if err != nil {
		return nil, fmt.Errorf("APP_MODE: %w", err)
	}
	cfg.Mode = mode

	// Override sensitive fields from env
	if token := os.Getenv("QG_UPSTREAM_TOKEN"); token != "" {
		cfg.Upstream.Token = token
	}
	if tokens := os.Getenv("QG_AUTH_TOKENS"); tokens != "" {
		cfg.Security.Tokens = splitTokens(tokens)
	}
	if os.Getenv("QG_ALLOW_REAL_TRADING") == "true" || os.Getenv("QG_ALLOW_REAL_TRADING") == "1" {
		cfg.Trading.AllowRealTrading = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quantgate")
	v.SetDefault("app.shutdown_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("rpc.host", "0.0.0.0")
	v.SetDefault("rpc.port", 50051)
	v.SetDefault("upstream.endpoint", "")
	v.SetDefault("upstream.ws_endpoint", "")
	v.SetDefault("upstream.data_dir", "data")
	v.SetDefault("upstream.max_workers", 8)
	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("stream.max_subscriptions", 100)
	v.SetDefault("stream.queue_depth", 1000)
	v.SetDefault("stream.heartbeat_timeout", "60s")
	v.SetDefault("stream.firehose_enabled", false)
	v.SetDefault("trading.allow_real_trading", false)
	v.SetDefault("trading.default_account_type", "SECURITY")
	v.SetDefault("trading.max_position_value", 0)
	v.SetDefault("security.tokens", []string{})
	v.SetDefault("security.header", "Authorization")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("metrics.enabled", true)
}

func splitTokens(s string) []string {
	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.RPC.Port < 0 || c.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port %d out of range", c.RPC.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Mode != types.ModeMock && c.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required in %s mode", c.Mode)
	}
	if c.Upstream.MaxWorkers <= 0 {
		return fmt.Errorf("upstream.max_workers must be > 0")
	}
	if c.Stream.MaxSubscriptions <= 0 {
		return fmt.Errorf("stream.max_subscriptions must be > 0")
	}
	if c.Stream.QueueDepth <= 0 {
		return fmt.Errorf("stream.queue_depth must be > 0")
	}
	if c.Stream.HeartbeatTimeout <= 0 {
		return fmt.Errorf("stream.heartbeat_timeout must be > 0")
	}
	if _, err := types.ParseAccountType(c.Trading.DefaultAccountType); err != nil {
		return fmt.Errorf("trading.default_account_type: %w", err)
	}
	if c.Trading.AllowRealTrading && c.Mode != types.ModeProd {
		return fmt.Errorf("trading.allow_real_trading requires prod mode, got %s", c.Mode)
	}
	return nil
}
