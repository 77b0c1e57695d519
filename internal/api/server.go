// Package api is the HTTP surface of the gateway: the /api/v1 request-reply
// catalogue, the health and metrics endpoints, and the /ws/quote streaming
// socket. Handlers only decode, call a service, and encode; every business
// decision lives behind the service layer shared with the RPC surface.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/internal/service"
	"quantgate/internal/session"
	"quantgate/internal/stream"
	"quantgate/pkg/types"
)

// Server owns the gin router and the http.Server around it.
type Server struct {
	cfg      config.Config
	data     *service.Data
	trading  *service.Trading
	manager  *stream.Manager
	registry *session.Registry
	metrics  *metrics.Registry
	logger   zerolog.Logger

	router  *gin.Engine
	http    *http.Server
	started time.Time
	ready   atomic.Bool
}

var ginModeOnce sync.Once

// NewServer wires the router. It does not listen; call Serve with a listener.
func NewServer(
	cfg config.Config,
	data *service.Data,
	trading *service.Trading,
	manager *stream.Manager,
	registry *session.Registry,
	m *metrics.Registry,
	logger zerolog.Logger,
) *Server {
	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })

	s := &Server{
		cfg:      cfg,
		data:     data,
		trading:  trading,
		manager:  manager,
		registry: registry,
		metrics:  m,
		logger:   logger.With().Str("component", "http").Logger(),
		started:  time.Now(),
	}
	s.ready.Store(true)

	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
		if len(corsCfg.AllowOrigins) == 1 && corsCfg.AllowOrigins[0] == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowOrigins = nil
		}
		if len(cfg.CORS.AllowedMethods) > 0 {
			corsCfg.AllowMethods = cfg.CORS.AllowedMethods
		}
		if len(cfg.CORS.AllowedHeaders) > 0 {
			corsCfg.AllowHeaders = cfg.CORS.AllowedHeaders
		}
		router.Use(cors.New(corsCfg))
	}

	s.router = router
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	// Health and metrics stay outside auth and outside the envelope so
	// probes and scrapers need no credentials.
	health := s.router.Group("/health")
	health.GET("", s.handleHealth)
	health.GET("/", s.handleHealth)
	health.GET("/ready", s.handleReady)
	health.GET("/live", s.handleLive)

	if s.cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1", s.auth())
	v1.GET("/status", s.handleStatus)

	data := v1.Group("/data")
	{
		data.POST("/market", s.handleMarketData)
		data.POST("/financial", s.handleFinancial)
		data.POST("/ticks", s.handleTickRange)
		data.POST("/klines", s.handleKlineRange)
		data.POST("/full-tick", s.handleFullTick)
		data.POST("/l2/quote", s.handleL2Quote)
		data.POST("/l2/order", s.handleL2Order)
		data.POST("/l2/transaction", s.handleL2Transaction)

		data.GET("/sectors", s.handleSectors)
		data.POST("/sector", s.handleSectorLookup)
		data.PUT("/sector/:name", s.handleSectorUpsert)
		data.DELETE("/sector/:name", s.handleSectorRemove)
		data.POST("/index-weight", s.handleIndexWeight)
		data.GET("/trading-calendar/:year", s.handleTradingCalendar)
		data.GET("/instrument/:code", s.handleInstrument)
		data.GET("/holidays", s.handleHolidays)
		data.GET("/periods", s.handlePeriods)
		data.GET("/data-dir", s.handleDataDir)
		data.GET("/cb-info", s.handleCBInfo)
		data.GET("/ipo-info", s.handleIPOInfo)
		data.GET("/dividend-factors/:code", s.handleDividFactors)

		data.POST("/download", s.handleStartDownload)
		data.GET("/download/:id", s.handleDownloadStatus)

		data.POST("/subscription", s.handleCreateSubscription)
		data.GET("/subscription/:id", s.handleGetSubscription)
		data.DELETE("/subscription/:id", s.handleRemoveSubscription)
		data.GET("/subscriptions", s.handleListSubscriptions)
	}

	trading := v1.Group("/trading")
	{
		trading.POST("/connect", s.handleConnect)
		trading.POST("/disconnect/:sid", s.handleDisconnect)
		trading.GET("/account/:sid", s.handleAccount)
		trading.GET("/positions/:sid", s.handlePositions)
		trading.GET("/asset/:sid", s.handleAsset)
		trading.GET("/risk/:sid", s.handleRisk)
		trading.GET("/orders/:sid", s.handleOrders)
		trading.GET("/trades/:sid", s.handleTrades)
		trading.POST("/order/:sid", s.handlePlaceOrder)
		trading.POST("/cancel/:sid", s.handleCancelOrder)
	}

	s.router.GET("/ws/quote/:id", s.auth(), s.handleQuoteSocket)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("http server listening")
	if err := s.http.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SetReady flips the readiness probe. The gateway clears it first thing on
// shutdown so load balancers drain before the listener closes.
func (s *Server) SetReady(ok bool) {
	s.ready.Store(ok)
}

// Shutdown stops accepting and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"mode":           s.cfg.Mode,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Status is the operational snapshot served at /api/v1/status.
type Status struct {
	Mode          types.Mode `json:"mode"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Subscriptions int        `json:"subscriptions"`
	Sessions      int        `json:"sessions"`
	FirehoseOn    bool       `json:"firehose_enabled"`
}

func (s *Server) handleStatus(c *gin.Context) {
	respond(c, Status{
		Mode:          s.cfg.Mode,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Subscriptions: len(s.manager.List()),
		Sessions:      s.registry.Count(),
		FirehoseOn:    s.cfg.Stream.FirehoseEnabled,
	})
}
