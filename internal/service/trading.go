package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/internal/policy"
	"quantgate/internal/session"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// ConnectResult is the payload returned by a successful connect.
type ConnectResult struct {
	SessionID string            `json:"session_id"`
	Account   types.AccountInfo `json:"account_info"`
}

// Trading serves session and order operations. Whether an order reaches the
// broker is decided by the policy gate; refused orders are synthesized as
// simulated successes and recorded on the session.
type Trading struct {
	adapter  upstream.Adapter
	registry *session.Registry
	mode     types.Mode
	cfg      config.TradingConfig
	logger   zerolog.Logger
	metrics  *metrics.Registry
}

func NewTrading(adapter upstream.Adapter, registry *session.Registry, mode types.Mode, cfg config.TradingConfig, logger zerolog.Logger, m *metrics.Registry) *Trading {
	return &Trading{
		adapter:  adapter,
		registry: registry,
		mode:     mode,
		cfg:      cfg,
		logger:   logger.With().Str("component", "trading_service").Logger(),
		metrics:  m,
	}
}

func (t *Trading) upstream(op string, err error) error {
	if err != nil {
		t.metrics.RecordUpstreamCall(op, "error")
		return classify(err)
	}
	t.metrics.RecordUpstreamCall(op, "ok")
	return nil
}

// Connect validates credentials shape and opens a session via the registry.
// An omitted account type falls back to the configured default.
func (t *Trading) Connect(ctx context.Context, accountID, password, accountType string) (ConnectResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return ConnectResult{}, apperr.InvalidArgument("account_id is required")
	}
	if password == "" {
		return ConnectResult{}, apperr.InvalidArgument("password is required")
	}
	if accountType == "" {
		accountType = t.cfg.DefaultAccountType
	}
	at, err := types.ParseAccountType(accountType)
	if err != nil {
		return ConnectResult{}, apperr.InvalidArgument("%v", err)
	}

	view, err := t.registry.Connect(ctx, accountID, password, at)
	if err != nil {
		t.metrics.RecordUpstreamCall("connect", "error")
		return ConnectResult{}, err
	}
	t.metrics.RecordUpstreamCall("connect", "ok")
	return ConnectResult{SessionID: view.SessionID, Account: view.Account}, nil
}

// Disconnect closes a session. Unknown ids succeed.
func (t *Trading) Disconnect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperr.InvalidArgument("session id is required")
	}
	return t.registry.Disconnect(ctx, sessionID)
}

// AccountInfo queries the adapter and refreshes the session snapshot.
func (t *Trading) AccountInfo(ctx context.Context, sessionID string) (types.AccountInfo, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return types.AccountInfo{}, err
	}
	info, err := t.adapter.QueryAccount(ctx, view.AccountID)
	if err := t.upstream("query_account", err); err != nil {
		return types.AccountInfo{}, err
	}
	t.registry.UpdateAccount(sessionID, info)
	return info, nil
}

func (t *Trading) Positions(ctx context.Context, sessionID string) ([]types.Position, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	out, err := t.adapter.QueryPositions(ctx, view.AccountID)
	return out, t.upstream("query_positions", err)
}

func (t *Trading) Asset(ctx context.Context, sessionID string) (types.Asset, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return types.Asset{}, err
	}
	out, err := t.adapter.QueryAsset(ctx, view.AccountID)
	return out, t.upstream("query_asset", err)
}

// Orders merges the broker's order book with the session's simulated
// orders, so clients see every ack this gateway ever gave them.
func (t *Trading) Orders(ctx context.Context, sessionID string) ([]types.OrderRecord, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	real, err := t.adapter.QueryOrders(ctx, view.AccountID)
	if err := t.upstream("query_orders", err); err != nil {
		return nil, err
	}
	sim, err := t.registry.SimulatedOrders(sessionID)
	if err != nil {
		return nil, err
	}
	return append(real, sim...), nil
}

func (t *Trading) Trades(ctx context.Context, sessionID string) ([]types.TradeFill, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	out, err := t.adapter.QueryTrades(ctx, view.AccountID)
	return out, t.upstream("query_trades", err)
}

// RiskSummary aggregates the account's exposure: totals, concentration in
// the largest position, and breaches of the configured per-position cap.
func (t *Trading) RiskSummary(ctx context.Context, sessionID string) (types.RiskSummary, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return types.RiskSummary{}, err
	}
	asset, err := t.adapter.QueryAsset(ctx, view.AccountID)
	if err := t.upstream("query_asset", err); err != nil {
		return types.RiskSummary{}, err
	}
	positions, err := t.adapter.QueryPositions(ctx, view.AccountID)
	if err := t.upstream("query_positions", err); err != nil {
		return types.RiskSummary{}, err
	}

	summary := types.RiskSummary{
		AccountID:        view.AccountID,
		TotalValue:       asset.TotalValue,
		Cash:             asset.Cash,
		MarketValue:      asset.MarketValue,
		PositionCount:    len(positions),
		MaxPositionValue: t.cfg.MaxPositionValue,
	}

	var largest float64
	var breaches []string
	for _, pos := range positions {
		if pos.MarketValue > largest {
			largest = pos.MarketValue
		}
		if t.cfg.MaxPositionValue > 0 && pos.MarketValue > t.cfg.MaxPositionValue {
			breaches = append(breaches, pos.StockCode)
		}
	}
	if asset.MarketValue > 0 {
		summary.Concentration = largest / asset.MarketValue
	}
	sort.Strings(breaches)
	summary.Breaches = breaches
	return summary, nil
}

// PlaceOrder validates the order and dispatches it if the policy gate
// allows real trading. Refused orders come back as simulated SUBMITTED
// acks; the client cannot tell the difference except for the marker.
func (t *Trading) PlaceOrder(ctx context.Context, sessionID, stockCode, side, orderType string, volume int64, price float64) (types.OrderRecord, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return types.OrderRecord{}, err
	}
	req, err := buildOrderRequest(stockCode, side, orderType, volume, price)
	if err != nil {
		return types.OrderRecord{}, err
	}

	if !policy.Allowed(policy.OpPlaceOrder, t.mode, t.cfg) {
		rec := types.OrderRecord{
			OrderID:     uuid.NewString(),
			StockCode:   req.StockCode,
			Side:        req.Side,
			Type:        req.Type,
			Volume:      req.Volume,
			Price:       req.Price,
			Status:      types.StatusSubmitted,
			SubmittedAt: time.Now().UTC(),
			Simulated:   true,
		}
		if err := t.registry.RecordSimulated(sessionID, rec); err != nil {
			return types.OrderRecord{}, err
		}
		t.metrics.OrdersPlaced.WithLabelValues(string(t.mode), "true").Inc()
		t.logger.Info().
			Str("session_id", sessionID).
			Str("stock_code", req.StockCode).
			Str("side", string(req.Side)).
			Int64("volume", req.Volume).
			Msg("order simulated by policy gate")
		return rec, nil
	}

	rec, err := t.adapter.PlaceOrder(ctx, view.AccountID, req)
	if err := t.upstream("place_order", err); err != nil {
		return types.OrderRecord{}, err
	}
	t.metrics.OrdersPlaced.WithLabelValues(string(t.mode), "false").Inc()
	t.logger.Info().
		Str("session_id", sessionID).
		Str("order_id", rec.OrderID).
		Str("stock_code", req.StockCode).
		Msg("order placed")
	return rec, nil
}

// CancelOrder follows the same gate as PlaceOrder: when real trading is
// off, only the session's simulated orders are cancellable.
func (t *Trading) CancelOrder(ctx context.Context, sessionID, orderID string) (types.CancelResult, error) {
	view, err := t.registry.Lookup(sessionID)
	if err != nil {
		return types.CancelResult{}, err
	}
	if strings.TrimSpace(orderID) == "" {
		return types.CancelResult{}, apperr.InvalidArgument("order id is required")
	}

	if !policy.Allowed(policy.OpCancelOrder, t.mode, t.cfg) {
		return t.registry.CancelSimulated(sessionID, orderID)
	}

	res, err := t.adapter.CancelOrder(ctx, view.AccountID, orderID)
	return res, t.upstream("cancel_order", err)
}

func buildOrderRequest(stockCode, side, orderType string, volume int64, price float64) (types.OrderRequest, error) {
	if !types.ValidSymbol(stockCode) {
		return types.OrderRequest{}, apperr.InvalidArgument("invalid stock code %q", stockCode)
	}
	s, err := types.ParseOrderSide(side)
	if err != nil {
		return types.OrderRequest{}, apperr.InvalidArgument("%v", err)
	}
	ot, err := types.ParseOrderType(orderType)
	if err != nil {
		return types.OrderRequest{}, apperr.InvalidArgument("%v", err)
	}
	if volume <= 0 {
		return types.OrderRequest{}, apperr.InvalidArgument("volume must be positive, got %d", volume)
	}
	if ot == types.OrderTypeLimit && price <= 0 {
		return types.OrderRequest{}, apperr.InvalidArgument("limit orders require a positive price")
	}
	if ot == types.OrderTypeMarket {
		price = 0
	}
	return types.OrderRequest{
		StockCode: stockCode,
		Side:      s,
		Type:      ot,
		Volume:    volume,
		Price:     price,
	}, nil
}
