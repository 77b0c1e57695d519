package service

import (
	"context"

	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/metrics"
	"quantgate/internal/stream"
	"quantgate/internal/upstream"
	"quantgate/pkg/types"
)

// Bar fields the market-data endpoints understand. Requests naming anything
// else are rejected rather than silently narrowed.
var knownBarFields = map[string]bool{
	"time": true, "open": true, "high": true, "low": true,
	"close": true, "volume": true, "amount": true,
}

// Financial tables pulled when a request does not name any.
var defaultFinancialTables = []string{"Balance", "Income", "CashFlow"}

// Data serves market data, reference data, downloads, and subscription
// management.
type Data struct {
	adapter upstream.Adapter
	manager *stream.Manager
	logger  zerolog.Logger
	metrics *metrics.Registry
}

func NewData(adapter upstream.Adapter, manager *stream.Manager, logger zerolog.Logger, m *metrics.Registry) *Data {
	return &Data{
		adapter: adapter,
		manager: manager,
		logger:  logger.With().Str("component", "data_service").Logger(),
		metrics: m,
	}
}

// upstream classifies one adapter call result and counts it.
func (d *Data) upstream(op string, err error) error {
	if err != nil {
		d.metrics.RecordUpstreamCall(op, "error")
		return classify(err)
	}
	d.metrics.RecordUpstreamCall(op, "ok")
	return nil
}

// MarketData returns historical bars. The tick pseudo-period is refused
// here; tick history has its own operation.
func (d *Data) MarketData(ctx context.Context, symbols []string, startDate, endDate, period string, fields []string, adjustType string) ([]types.SymbolBars, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	p, err := types.ParsePeriod(period)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}
	if p == types.PeriodTick {
		return nil, apperr.InvalidArgument("period tick is served by the tick history operation")
	}
	adjust, err := types.ParseAdjust(adjustType)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if !knownBarFields[f] {
			return nil, apperr.InvalidArgument("unknown field %q", f)
		}
	}

	out, err := d.adapter.MarketData(ctx, types.MarketDataQuery{
		Symbols:   syms,
		StartDate: startDate,
		EndDate:   endDate,
		Period:    p,
		Fields:    fields,
		Adjust:    adjust,
	})
	return out, d.upstream("get_market_data", err)
}

func (d *Data) Financial(ctx context.Context, symbols, tables []string, startDate, endDate string) ([]types.FinancialTable, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	if err := checkOptionalRange(startDate, endDate); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		tables = defaultFinancialTables
	}

	out, err := d.adapter.Financial(ctx, syms, tables, startDate, endDate)
	return out, d.upstream("get_financial_data", err)
}

func (d *Data) TickRange(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.TickFrame, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	out, err := d.adapter.TickRange(ctx, syms, startDate, endDate)
	return out, d.upstream("get_tick_range", err)
}

func (d *Data) KlineRange(ctx context.Context, symbols []string, startDate, endDate, period string) ([]types.SymbolBars, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	p, err := types.ParsePeriod(period)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}
	if p == types.PeriodTick {
		return nil, apperr.InvalidArgument("period tick is served by the tick history operation")
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	out, err := d.adapter.KlineRange(ctx, syms, startDate, endDate, p)
	return out, d.upstream("get_kline_range", err)
}

func (d *Data) FullTick(ctx context.Context, symbols []string) ([]types.TickFrame, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	out, err := d.adapter.FullTick(ctx, syms)
	return out, d.upstream("get_full_tick", err)
}

func (d *Data) L2Quote(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Quote, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	out, err := d.adapter.L2Quote(ctx, syms, startDate, endDate)
	return out, d.upstream("get_l2_quote", err)
}

func (d *Data) L2Order(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Order, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	out, err := d.adapter.L2Order(ctx, syms, startDate, endDate)
	return out, d.upstream("get_l2_order", err)
}

func (d *Data) L2Transaction(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Transaction, error) {
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return nil, err
	}
	if err := checkRange(startDate, endDate); err != nil {
		return nil, err
	}
	out, err := d.adapter.L2Transaction(ctx, syms, startDate, endDate)
	return out, d.upstream("get_l2_transaction", err)
}

func (d *Data) Sectors(ctx context.Context) ([]string, error) {
	out, err := d.adapter.SectorList(ctx)
	return out, d.upstream("get_sector_list", err)
}

func (d *Data) Sector(ctx context.Context, name string) (types.Sector, error) {
	if name == "" {
		return types.Sector{}, apperr.InvalidArgument("sector name is required")
	}
	out, err := d.adapter.StocksInSector(ctx, name)
	return out, d.upstream("get_stock_list_in_sector", err)
}

func (d *Data) CreateSector(ctx context.Context, name string, symbols []string) (types.Sector, error) {
	if name == "" {
		return types.Sector{}, apperr.InvalidArgument("sector name is required")
	}
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return types.Sector{}, err
	}
	out, err := d.adapter.CreateSector(ctx, name, syms)
	return out, d.upstream("create_sector", err)
}

func (d *Data) RemoveSector(ctx context.Context, name string) error {
	if name == "" {
		return apperr.InvalidArgument("sector name is required")
	}
	return d.upstream("remove_sector", d.adapter.RemoveSector(ctx, name))
}

func (d *Data) IndexWeight(ctx context.Context, indexCode, date string) (types.IndexWeights, error) {
	if !types.ValidSymbol(indexCode) {
		return types.IndexWeights{}, apperr.InvalidArgument("invalid index code %q", indexCode)
	}
	if date != "" && !types.ValidDate(date) {
		return types.IndexWeights{}, apperr.InvalidArgument("invalid date %q, want YYYYMMDD", date)
	}
	out, err := d.adapter.IndexWeight(ctx, indexCode, date)
	return out, d.upstream("get_index_weight", err)
}

// TradingCalendar retries once on transport failure. The call is idempotent
// and cheap upstream, and clients treat the calendar as critical path.
func (d *Data) TradingCalendar(ctx context.Context, year int) (types.TradingCalendar, error) {
	cal, err := d.adapter.TradingCalendar(ctx, year)
	if retryable(ctx, err) {
		d.logger.Warn().Err(err).Int("year", year).Msg("retrying trading calendar")
		cal, err = d.adapter.TradingCalendar(ctx, year)
	}
	return cal, d.upstream("get_trading_calendar", err)
}

// InstrumentInfo retries once on transport failure, like TradingCalendar.
func (d *Data) InstrumentInfo(ctx context.Context, code string) (types.Instrument, error) {
	if !types.ValidSymbol(code) {
		return types.Instrument{}, apperr.InvalidArgument("invalid stock code %q", code)
	}
	inst, err := d.adapter.InstrumentInfo(ctx, code)
	if retryable(ctx, err) {
		d.logger.Warn().Err(err).Str("code", code).Msg("retrying instrument info")
		inst, err = d.adapter.InstrumentInfo(ctx, code)
	}
	return inst, d.upstream("get_instrument_detail", err)
}

// retryable is true for plain transport errors only; typed refusals like
// NOT_FOUND would just fail identically again.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	_, typed := apperr.AsError(err)
	return !typed
}

func (d *Data) Holidays(ctx context.Context) ([]string, error) {
	out, err := d.adapter.Holidays(ctx)
	return out, d.upstream("get_holidays", err)
}

func (d *Data) Periods(ctx context.Context) ([]string, error) {
	out, err := d.adapter.PeriodList(ctx)
	return out, d.upstream("get_period_list", err)
}

func (d *Data) DataDir(ctx context.Context) (string, error) {
	out, err := d.adapter.DataDir(ctx)
	return out, d.upstream("get_data_dir", err)
}

func (d *Data) CBInfo(ctx context.Context) ([]types.ConvertibleBond, error) {
	out, err := d.adapter.CBInfo(ctx)
	return out, d.upstream("get_cb_info", err)
}

func (d *Data) IPOInfo(ctx context.Context) ([]types.IPO, error) {
	out, err := d.adapter.IPOInfo(ctx)
	return out, d.upstream("get_ipo_info", err)
}

func (d *Data) DividFactors(ctx context.Context, code string) ([]types.DividFactor, error) {
	if !types.ValidSymbol(code) {
		return nil, apperr.InvalidArgument("invalid stock code %q", code)
	}
	out, err := d.adapter.DividFactors(ctx, code)
	return out, d.upstream("get_divid_factors", err)
}

func (d *Data) StartDownload(ctx context.Context, kind string, symbols []string, period, startDate, endDate string) (types.DownloadTask, error) {
	switch kind {
	case "history", "financial":
	default:
		return types.DownloadTask{}, apperr.InvalidArgument("unknown download_type %q", kind)
	}
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return types.DownloadTask{}, err
	}
	p, err := types.ParsePeriod(period)
	if err != nil {
		return types.DownloadTask{}, apperr.InvalidArgument("%v", err)
	}
	if err := checkOptionalRange(startDate, endDate); err != nil {
		return types.DownloadTask{}, err
	}

	task, err := d.adapter.StartDownload(ctx, types.DownloadRequest{
		Kind:      kind,
		Symbols:   syms,
		Period:    p,
		StartDate: startDate,
		EndDate:   endDate,
	})
	return task, d.upstream("download_history_data", err)
}

func (d *Data) DownloadStatus(ctx context.Context, taskID string) (types.DownloadTask, error) {
	if taskID == "" {
		return types.DownloadTask{}, apperr.InvalidArgument("task id is required")
	}
	task, err := d.adapter.DownloadStatus(ctx, taskID)
	return task, d.upstream("download_status", err)
}

// Subscribe opens a quote or firehose subscription through the manager.
// Firehose requests ignore symbols and adjustment.
func (d *Data) Subscribe(ctx context.Context, symbols []string, adjustType, subscriptionType string) (types.SubscriptionInfo, error) {
	kind, err := types.ParseSubscriptionKind(subscriptionType)
	if err != nil {
		return types.SubscriptionInfo{}, apperr.InvalidArgument("%v", err)
	}
	if kind == types.KindFirehose {
		return d.manager.SubscribeFirehose(ctx)
	}

	adjust, err := types.ParseAdjust(adjustType)
	if err != nil {
		return types.SubscriptionInfo{}, apperr.InvalidArgument("%v", err)
	}
	syms, err := cleanSymbols(symbols)
	if err != nil {
		return types.SubscriptionInfo{}, err
	}
	return d.manager.Subscribe(ctx, syms, adjust)
}

// Unsubscribe tears a subscription down. Unknown ids succeed.
func (d *Data) Unsubscribe(ctx context.Context, id string) error {
	if id == "" {
		return apperr.InvalidArgument("subscription id is required")
	}
	return d.manager.Unsubscribe(ctx, id)
}

func (d *Data) Subscription(id string) (types.SubscriptionInfo, error) {
	if id == "" {
		return types.SubscriptionInfo{}, apperr.InvalidArgument("subscription id is required")
	}
	return d.manager.Describe(id)
}

func (d *Data) Subscriptions() []types.SubscriptionInfo {
	return d.manager.List()
}
