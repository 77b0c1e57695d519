package rpc

import (
	"context"
	"crypto/subtle"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/internal/service"
)

// maxMessageBytes accommodates bulk history responses, which run well past
// the 4 MiB gRPC default.
const maxMessageBytes = 50 * 1024 * 1024

const healthMethodPrefix = "/grpc.health.v1.Health/"

// Server is the gRPC surface. It shares the service layer with the HTTP
// server, so both answer through the same policy gate and subscription
// manager.
type Server struct {
	cfg     config.Config
	grpc    *grpc.Server
	health  *health.Server
	metrics *metrics.Registry
	logger  zerolog.Logger
}

func NewServer(cfg config.Config, data *service.Data, trading *service.Trading, m *metrics.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "rpc").Logger(),
	}
	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.recoverUnary, s.observeUnary, s.authUnary),
		grpc.ChainStreamInterceptor(s.authStream),
	)
	s.grpc.RegisterService(&DataService_ServiceDesc, NewDataServer(data))
	s.grpc.RegisterService(&TradingService_ServiceDesc, NewTradingServer(trading))

	// The health service answers with the standard proto codec, so stock
	// grpc_health_v1 clients and probes work unchanged.
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(DataServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(TradingServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks serving lis until Stop or GracefulStop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("rpc server listening")
	return s.grpc.Serve(lis)
}

// GracefulStop flips health to NOT_SERVING, then drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Stop tears the server down without draining.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.Stop()
}

func (s *Server) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("method", info.FullMethod).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			// Panic detail stays in the log, clients get a bare INTERNAL.
			err = status.Error(codes.Internal, "INTERNAL: internal error")
		}
	}()
	return handler(ctx, req)
}

func (s *Server) observeUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
		return handler(ctx, req)
	}
	start := time.Now()
	resp, err := handler(ctx, req)
	elapsed := time.Since(start)
	code := status.Code(err)
	s.metrics.ObserveRequest("rpc", info.FullMethod, code.String(), elapsed.Seconds())

	evt := s.logger.Info()
	if err != nil {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("elapsed", elapsed).
		Msg("rpc call")
	return resp, err
}

func (s *Server) authUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := s.authorize(ctx, info.FullMethod); err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *Server) authStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := s.authorize(ss.Context(), info.FullMethod); err != nil {
		return err
	}
	return handler(srv, ss)
}

// authorize checks the bearer token in the authorization metadata entry.
// Health methods stay open so orchestrators can probe without credentials,
// matching the HTTP health endpoints.
func (s *Server) authorize(ctx context.Context, fullMethod string) error {
	tokens := s.cfg.Security.Tokens
	if len(tokens) == 0 {
		return nil
	}
	if strings.HasPrefix(fullMethod, healthMethodPrefix) {
		return nil
	}
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = vals[0]
		}
	}
	if raw == "" {
		return rpcError(apperr.AuthMissing())
	}
	token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	for _, want := range tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
			return nil
		}
	}
	return rpcError(apperr.AuthInvalid())
}
