// Package gateway wires the whole process: one upstream adapter picked by
// mode, the session registry, the subscription manager, the service layer,
// and the two client surfaces (HTTP and gRPC).
//
// Lifecycle: New() → Start() → [runs until signalled] → Stop(ctx).
package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"quantgate/internal/api"
	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/internal/rpc"
	"quantgate/internal/service"
	"quantgate/internal/session"
	"quantgate/internal/stream"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// Gateway owns every component and the goroutines that run them.
type Gateway struct {
	cfg      config.Config
	logger   zerolog.Logger
	metrics  *metrics.Registry
	adapter  upstream.Adapter
	manager  *stream.Manager
	registry *session.Registry
	data     *service.Data
	trading  *service.Trading
	httpSrv  *api.Server
	rpcSrv   *rpc.Server

	httpLis net.Listener
	rpcLis  net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires all components for the configured mode. Nothing is listening or
// polling yet; call Start.
func New(cfg config.Config, logger zerolog.Logger) (*Gateway, error) {
	m := metrics.New()

	adapter, err := newAdapter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("upstream adapter: %w", err)
	}

	manager := stream.NewManager(adapter, cfg.Stream, logger, m)
	registry := session.NewRegistry(adapter, logger)
	data := service.NewData(adapter, manager, logger, m)
	trading := service.NewTrading(adapter, registry, cfg.Mode, cfg.Trading, logger, m)

	ctx, cancel := context.WithCancel(context.Background())

	return &Gateway{
		cfg:      cfg,
		logger:   logger.With().Str("component", "gateway").Logger(),
		metrics:  m,
		adapter:  adapter,
		manager:  manager,
		registry: registry,
		data:     data,
		trading:  trading,
		httpSrv:  api.NewServer(cfg, data, trading, manager, registry, m, logger),
		rpcSrv:   rpc.NewServer(cfg, data, trading, m, logger),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// newAdapter selects the upstream variant for the mode: the simulator for
// mock, the live client wrapped read-only for dev, the live client for prod.
func newAdapter(cfg config.Config, logger zerolog.Logger) (upstream.Adapter, error) {
	switch cfg.Mode {
	case types.ModeMock:
		return upstream.NewSimulator(cfg.Upstream, logger)
	case types.ModeDev:
		live, err := upstream.NewLive(cfg.Upstream, logger)
		if err != nil {
			return nil, err
		}
		return upstream.NewReadLive(live), nil
	case types.ModeProd:
		return upstream.NewLive(cfg.Upstream, logger)
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// Start connects the adapter feed into the manager, launches the idle
// sweeper, binds both listeners, and flips readiness. Port 0 binds an
// ephemeral port; HTTPAddr/RPCAddr report what was bound.
func (g *Gateway) Start() error {
	if err := g.adapter.Start(g.ctx, g.manager); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.manager.Run(g.ctx)
	}()

	httpLis, err := net.Listen("tcp", g.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	g.httpLis = httpLis

	rpcLis, err := net.Listen("tcp", g.cfg.RPC.Addr())
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen rpc: %w", err)
	}
	g.rpcLis = rpcLis

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.httpSrv.Serve(httpLis); err != nil {
			g.logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.rpcSrv.Serve(rpcLis); err != nil {
			g.logger.Error().Err(err).Msg("rpc server stopped")
		}
	}()

	g.httpSrv.SetReady(true)
	g.logger.Info().
		Str("mode", string(g.cfg.Mode)).
		Str("http_addr", httpLis.Addr().String()).
		Str("rpc_addr", rpcLis.Addr().String()).
		Msg("gateway started")
	return nil
}

// Stop drains in order: surfaces stop accepting, sessions disconnect, the
// manager closes every subscription, the adapter closes last. ctx bounds the
// whole teardown; when it expires the remains are stopped hard.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info().Msg("gateway stopping")

	var firstErr error
	if err := g.httpSrv.Shutdown(ctx); err != nil {
		firstErr = err
		g.logger.Error().Err(err).Msg("http shutdown")
	}

	// GracefulStop has no context; fall back to a hard stop at the deadline
	// so hung watchers cannot wedge shutdown.
	done := make(chan struct{})
	go func() {
		g.rpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.rpcSrv.Stop()
		<-done
	}

	g.registry.Shutdown(ctx)
	g.manager.Shutdown(ctx)
	g.cancel()

	if err := g.adapter.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		g.logger.Error().Err(err).Msg("adapter close")
	}

	g.wg.Wait()
	g.logger.Info().Msg("gateway stopped")
	return firstErr
}

// HTTPAddr returns the bound HTTP listen address, or "" before Start.
func (g *Gateway) HTTPAddr() string {
	if g.httpLis == nil {
		return ""
	}
	return g.httpLis.Addr().String()
}

// RPCAddr returns the bound gRPC listen address, or "" before Start.
func (g *Gateway) RPCAddr() string {
	if g.rpcLis == nil {
		return ""
	}
	return g.rpcLis.Addr().String()
}
