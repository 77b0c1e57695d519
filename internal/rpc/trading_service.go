package rpc

import (
	"context"

	"google.golang.org/grpc"

	"quantgate/internal/service"
	"quantgate/pkg/types"
)

// TradingServiceName is the fully qualified name of the trading service.
const TradingServiceName = "quantgate.v1.TradingService"

// TradingServiceServer is the server contract of quantgate.v1.TradingService.
type TradingServiceServer interface {
	Connect(ctx context.Context, req *ConnectRequest) (*Response[service.ConnectResult], error)
	Disconnect(ctx context.Context, req *SessionRequest) (*Response[Empty], error)
	GetAccountInfo(ctx context.Context, req *SessionRequest) (*Response[types.AccountInfo], error)
	GetPositions(ctx context.Context, req *SessionRequest) (*Response[PositionList], error)
	GetAsset(ctx context.Context, req *SessionRequest) (*Response[types.Asset], error)
	GetRiskSummary(ctx context.Context, req *SessionRequest) (*Response[types.RiskSummary], error)
	GetOrders(ctx context.Context, req *SessionRequest) (*Response[OrderList], error)
	GetTrades(ctx context.Context, req *SessionRequest) (*Response[TradeList], error)
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*Response[types.OrderRecord], error)
	CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Response[types.CancelResult], error)
}

// TradingServer serves quantgate.v1.TradingService on top of the trading
// service, so the policy gate applies identically on both surfaces.
type TradingServer struct {
	svc *service.Trading
}

func NewTradingServer(svc *service.Trading) *TradingServer {
	return &TradingServer{svc: svc}
}

func (s *TradingServer) Connect(ctx context.Context, req *ConnectRequest) (*Response[service.ConnectResult], error) {
	accountType, err := fromWire(req.AccountType, types.AccountTypeFromValue)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Connect(ctx, req.AccountID, req.Password, string(accountType))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(res), nil
}

func (s *TradingServer) Disconnect(ctx context.Context, req *SessionRequest) (*Response[Empty], error) {
	if err := s.svc.Disconnect(ctx, req.SessionID); err != nil {
		return nil, rpcError(err)
	}
	return reply(Empty{}), nil
}

func (s *TradingServer) GetAccountInfo(ctx context.Context, req *SessionRequest) (*Response[types.AccountInfo], error) {
	info, err := s.svc.AccountInfo(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(info), nil
}

func (s *TradingServer) GetPositions(ctx context.Context, req *SessionRequest) (*Response[PositionList], error) {
	positions, err := s.svc.Positions(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(PositionList{Positions: positions, Total: len(positions)}), nil
}

func (s *TradingServer) GetAsset(ctx context.Context, req *SessionRequest) (*Response[types.Asset], error) {
	asset, err := s.svc.Asset(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(asset), nil
}

func (s *TradingServer) GetRiskSummary(ctx context.Context, req *SessionRequest) (*Response[types.RiskSummary], error) {
	summary, err := s.svc.RiskSummary(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(summary), nil
}

func (s *TradingServer) GetOrders(ctx context.Context, req *SessionRequest) (*Response[OrderList], error) {
	orders, err := s.svc.Orders(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(OrderList{Orders: orders, Total: len(orders)}), nil
}

func (s *TradingServer) GetTrades(ctx context.Context, req *SessionRequest) (*Response[TradeList], error) {
	trades, err := s.svc.Trades(ctx, req.SessionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(TradeList{Trades: trades, Total: len(trades)}), nil
}

func (s *TradingServer) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*Response[types.OrderRecord], error) {
	side, err := fromWire(req.Side, types.OrderSideFromValue)
	if err != nil {
		return nil, err
	}
	orderType, err := fromWire(req.OrderType, types.OrderTypeFromValue)
	if err != nil {
		return nil, err
	}
	rec, err := s.svc.PlaceOrder(ctx, req.SessionID, req.StockCode, string(side), string(orderType), req.Volume, req.Price)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(rec), nil
}

func (s *TradingServer) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Response[types.CancelResult], error) {
	res, err := s.svc.CancelOrder(ctx, req.SessionID, req.OrderID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(res), nil
}

// TradingService_ServiceDesc is the hand-written descriptor for
// quantgate.v1.TradingService, in the shape protoc would emit.
var TradingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: TradingServiceName,
	HandlerType: (*TradingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(TradingServiceName, "Connect", func(ctx context.Context, srv any, req *ConnectRequest) (any, error) {
			return srv.(TradingServiceServer).Connect(ctx, req)
		}),
		unary(TradingServiceName, "Disconnect", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).Disconnect(ctx, req)
		}),
		unary(TradingServiceName, "GetAccountInfo", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetAccountInfo(ctx, req)
		}),
		unary(TradingServiceName, "GetPositions", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetPositions(ctx, req)
		}),
		unary(TradingServiceName, "GetAsset", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetAsset(ctx, req)
		}),
		unary(TradingServiceName, "GetRiskSummary", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetRiskSummary(ctx, req)
		}),
		unary(TradingServiceName, "GetOrders", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetOrders(ctx, req)
		}),
		unary(TradingServiceName, "GetTrades", func(ctx context.Context, srv any, req *SessionRequest) (any, error) {
			return srv.(TradingServiceServer).GetTrades(ctx, req)
		}),
		unary(TradingServiceName, "PlaceOrder", func(ctx context.Context, srv any, req *PlaceOrderRequest) (any, error) {
			return srv.(TradingServiceServer).PlaceOrder(ctx, req)
		}),
		unary(TradingServiceName, "CancelOrder", func(ctx context.Context, srv any, req *CancelOrderRequest) (any, error) {
			return srv.(TradingServiceServer).CancelOrder(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantgate/v1/trading_service",
}
