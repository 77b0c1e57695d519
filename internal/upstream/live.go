package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/pkg/types"
)

// Upstream call categories. The vendor gateway throttles history pulls much
// harder than quote lookups, so each category gets its own limiter.
type callCategory int

const (
	catQuote callCategory = iota
	catHistory
	catTrading
)

// Live delegates every operation to the vendor's local gateway process over
// REST, and to its quote feed over websocket. Calls pass a per-category rate
// limiter, a shared circuit breaker, and a worker cap sized by
// upstream.max_workers, in that order.
type Live struct {
	cfg    config.UpstreamConfig
	logger zerolog.Logger

	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	limiters map[callCategory]*rate.Limiter
	workers  chan struct{}
	feed     *feed

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLive builds the REST client and the (not yet connected) quote feed.
func NewLive(cfg config.UpstreamConfig, logger zerolog.Logger) (*Live, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("upstream endpoint not configured")
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("upstream breaker state changed")
		},
	})

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 8
	}

	return &Live{
		cfg:     cfg,
		logger:  logger,
		http:    client,
		breaker: breaker,
		limiters: map[callCategory]*rate.Limiter{
			catQuote:   rate.NewLimiter(20, 40),
			catHistory: rate.NewLimiter(5, 10),
			catTrading: rate.NewLimiter(10, 20),
		},
		workers: make(chan struct{}, workers),
		feed:    newFeed(cfg.WSEndpoint, cfg.Token, logger),
	}, nil
}

// Start connects the quote feed and begins dispatching frames to sink.
func (l *Live) Start(ctx context.Context, sink FrameSink) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("live adapter already started")
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.feed.run(runCtx, sink)
	}()
	l.logger.Info().Str("endpoint", l.cfg.Endpoint).Msg("live adapter started")
	return nil
}

// Close stops the feed and waits for it to wind down.
func (l *Live) Close() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return nil
}

// call runs one REST operation under the category limiter, the worker cap,
// and the breaker. The breaker sees only transport and 5xx failures; fn
// converts vendor 4xx responses into typed errors before returning.
func (l *Live) call(ctx context.Context, cat callCategory, op string, fn func(ctx context.Context) error) error {
	if err := l.limiters[cat].Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	select {
	case l.workers <- struct{}{}:
		defer func() { <-l.workers }()
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}

	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if e, ok := apperr.AsError(err); ok {
			return e
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Live) get(ctx context.Context, path string, pathParams map[string]string, out any) error {
	req := l.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

func (l *Live) post(ctx context.Context, path string, body, out any) error {
	req := l.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

func (l *Live) delete(ctx context.Context, path string, pathParams map[string]string) error {
	req := l.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	resp, err := req.Delete(path)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// checkStatus maps vendor responses: 404 stays a typed miss so the surfaces
// answer 404 rather than 502, anything else non-200 is an upstream failure.
func checkStatus(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		msg := strings.TrimSpace(resp.String())
		if msg == "" {
			msg = "not found"
		}
		return apperr.New(apperr.CodeNotFound, msg)
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
}

type liveRangeReq struct {
	StockCodes []string `json:"stock_codes"`
	StartDate  string   `json:"start_date,omitempty"`
	EndDate    string   `json:"end_date,omitempty"`
	Period     string   `json:"period,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	AdjustType string   `json:"adjust_type,omitempty"`
	TableList  []string `json:"table_list,omitempty"`
}

func (l *Live) MarketData(ctx context.Context, q types.MarketDataQuery) ([]types.SymbolBars, error) {
	var out []types.SymbolBars
	err := l.call(ctx, catHistory, "get_market_data", func(ctx context.Context) error {
		return l.post(ctx, "/market/history", liveRangeReq{
			StockCodes: q.Symbols,
			StartDate:  q.StartDate,
			EndDate:    q.EndDate,
			Period:     string(q.Period),
			Fields:     q.Fields,
			AdjustType: string(q.Adjust),
		}, &out)
	})
	return out, err
}

func (l *Live) Financial(ctx context.Context, symbols, tables []string, startDate, endDate string) ([]types.FinancialTable, error) {
	var out []types.FinancialTable
	err := l.call(ctx, catHistory, "get_financial_data", func(ctx context.Context) error {
		return l.post(ctx, "/market/financial", liveRangeReq{
			StockCodes: symbols,
			TableList:  tables,
			StartDate:  startDate,
			EndDate:    endDate,
		}, &out)
	})
	return out, err
}

func (l *Live) TickRange(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.TickFrame, error) {
	out := make(map[string][]types.TickFrame)
	err := l.call(ctx, catHistory, "get_tick_range", func(ctx context.Context) error {
		return l.post(ctx, "/market/ticks", liveRangeReq{StockCodes: symbols, StartDate: startDate, EndDate: endDate}, &out)
	})
	return out, err
}

func (l *Live) KlineRange(ctx context.Context, symbols []string, startDate, endDate string, period types.Period) ([]types.SymbolBars, error) {
	var out []types.SymbolBars
	err := l.call(ctx, catHistory, "get_kline_range", func(ctx context.Context) error {
		return l.post(ctx, "/market/klines", liveRangeReq{
			StockCodes: symbols,
			StartDate:  startDate,
			EndDate:    endDate,
			Period:     string(period),
		}, &out)
	})
	return out, err
}

func (l *Live) FullTick(ctx context.Context, symbols []string) ([]types.TickFrame, error) {
	var out []types.TickFrame
	err := l.call(ctx, catQuote, "get_full_tick", func(ctx context.Context) error {
		return l.post(ctx, "/market/full-tick", liveRangeReq{StockCodes: symbols}, &out)
	})
	return out, err
}

func (l *Live) L2Quote(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Quote, error) {
	out := make(map[string][]types.L2Quote)
	err := l.call(ctx, catHistory, "get_l2_quote", func(ctx context.Context) error {
		return l.post(ctx, "/market/l2/quote", liveRangeReq{StockCodes: symbols, StartDate: startDate, EndDate: endDate}, &out)
	})
	return out, err
}

func (l *Live) L2Order(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Order, error) {
	out := make(map[string][]types.L2Order)
	err := l.call(ctx, catHistory, "get_l2_order", func(ctx context.Context) error {
		return l.post(ctx, "/market/l2/order", liveRangeReq{StockCodes: symbols, StartDate: startDate, EndDate: endDate}, &out)
	})
	return out, err
}

func (l *Live) L2Transaction(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Transaction, error) {
	out := make(map[string][]types.L2Transaction)
	err := l.call(ctx, catHistory, "get_l2_transaction", func(ctx context.Context) error {
		return l.post(ctx, "/market/l2/transaction", liveRangeReq{StockCodes: symbols, StartDate: startDate, EndDate: endDate}, &out)
	})
	return out, err
}

func (l *Live) SectorList(ctx context.Context) ([]string, error) {
	var out []string
	err := l.call(ctx, catQuote, "get_sector_list", func(ctx context.Context) error {
		return l.get(ctx, "/reference/sectors", nil, &out)
	})
	return out, err
}

func (l *Live) StocksInSector(ctx context.Context, name string) (types.Sector, error) {
	var out types.Sector
	err := l.call(ctx, catQuote, "get_stock_list_in_sector", func(ctx context.Context) error {
		return l.get(ctx, "/reference/sectors/{name}", map[string]string{"name": name}, &out)
	})
	return out, err
}

func (l *Live) CreateSector(ctx context.Context, name string, symbols []string) (types.Sector, error) {
	var out types.Sector
	err := l.call(ctx, catQuote, "create_sector", func(ctx context.Context) error {
		return l.post(ctx, "/reference/sectors", types.Sector{Name: name, StockList: symbols}, &out)
	})
	return out, err
}

func (l *Live) RemoveSector(ctx context.Context, name string) error {
	return l.call(ctx, catQuote, "remove_sector", func(ctx context.Context) error {
		return l.delete(ctx, "/reference/sectors/{name}", map[string]string{"name": name})
	})
}

func (l *Live) IndexWeight(ctx context.Context, indexCode, date string) (types.IndexWeights, error) {
	var out types.IndexWeights
	err := l.call(ctx, catQuote, "get_index_weight", func(ctx context.Context) error {
		return l.post(ctx, "/reference/index-weight", map[string]string{"index_code": indexCode, "date": date}, &out)
	})
	return out, err
}

func (l *Live) TradingCalendar(ctx context.Context, year int) (types.TradingCalendar, error) {
	var out types.TradingCalendar
	err := l.call(ctx, catQuote, "get_trading_calendar", func(ctx context.Context) error {
		return l.get(ctx, "/reference/calendar/{year}", map[string]string{"year": fmt.Sprint(year)}, &out)
	})
	return out, err
}

func (l *Live) InstrumentInfo(ctx context.Context, code string) (types.Instrument, error) {
	var out types.Instrument
	err := l.call(ctx, catQuote, "get_instrument_detail", func(ctx context.Context) error {
		return l.get(ctx, "/reference/instruments/{code}", map[string]string{"code": code}, &out)
	})
	return out, err
}

func (l *Live) Holidays(ctx context.Context) ([]string, error) {
	var out []string
	err := l.call(ctx, catQuote, "get_holidays", func(ctx context.Context) error {
		return l.get(ctx, "/reference/holidays", nil, &out)
	})
	return out, err
}

func (l *Live) PeriodList(ctx context.Context) ([]string, error) {
	var out []string
	err := l.call(ctx, catQuote, "get_period_list", func(ctx context.Context) error {
		return l.get(ctx, "/reference/periods", nil, &out)
	})
	return out, err
}

func (l *Live) DataDir(ctx context.Context) (string, error) {
	var out struct {
		DataDir string `json:"data_dir"`
	}
	err := l.call(ctx, catQuote, "get_data_dir", func(ctx context.Context) error {
		return l.get(ctx, "/reference/data-dir", nil, &out)
	})
	return out.DataDir, err
}

func (l *Live) CBInfo(ctx context.Context) ([]types.ConvertibleBond, error) {
	var out []types.ConvertibleBond
	err := l.call(ctx, catQuote, "get_cb_info", func(ctx context.Context) error {
		return l.get(ctx, "/reference/cb-info", nil, &out)
	})
	return out, err
}

func (l *Live) IPOInfo(ctx context.Context) ([]types.IPO, error) {
	var out []types.IPO
	err := l.call(ctx, catQuote, "get_ipo_info", func(ctx context.Context) error {
		return l.get(ctx, "/reference/ipo-info", nil, &out)
	})
	return out, err
}

func (l *Live) DividFactors(ctx context.Context, code string) ([]types.DividFactor, error) {
	var out []types.DividFactor
	err := l.call(ctx, catQuote, "get_divid_factors", func(ctx context.Context) error {
		return l.get(ctx, "/reference/divid-factors/{code}", map[string]string{"code": code}, &out)
	})
	return out, err
}

func (l *Live) StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadTask, error) {
	var out types.DownloadTask
	err := l.call(ctx, catHistory, "download_history_data", func(ctx context.Context) error {
		return l.post(ctx, "/downloads", req, &out)
	})
	return out, err
}

func (l *Live) DownloadStatus(ctx context.Context, taskID string) (types.DownloadTask, error) {
	var out types.DownloadTask
	err := l.call(ctx, catQuote, "download_status", func(ctx context.Context) error {
		return l.get(ctx, "/downloads/{id}", map[string]string{"id": taskID}, &out)
	})
	return out, err
}

// Subscribe registers the symbol on the feed. The feed owns the tracked set
// so a reconnect replays it; no REST round trip is involved.
func (l *Live) Subscribe(ctx context.Context, symbol string) error {
	return l.feed.subscribe(symbol, types.AdjustNone)
}

// SubscribeAdjusted registers a symbol with upstream price adjustment.
func (l *Live) SubscribeAdjusted(ctx context.Context, symbol string, adjust types.AdjustMode) error {
	return l.feed.subscribe(symbol, adjust)
}

// SubscribeFirehose asks the feed for every frame on the market.
func (l *Live) SubscribeFirehose(ctx context.Context) error {
	return l.feed.subscribeAll()
}

// Unsubscribe drops a symbol, or the whole firehose for "*".
func (l *Live) Unsubscribe(ctx context.Context, symbol string) error {
	return l.feed.unsubscribe(symbol)
}

type liveConnectReq struct {
	AccountID   string `json:"account_id"`
	Password    string `json:"password"`
	AccountType int32  `json:"account_type"`
}

func (l *Live) Connect(ctx context.Context, accountID, password string, accountType types.AccountType) (types.AccountInfo, error) {
	var out types.AccountInfo
	err := l.call(ctx, catTrading, "connect", func(ctx context.Context) error {
		return l.post(ctx, "/trading/connect", liveConnectReq{
			AccountID:   accountID,
			Password:    password,
			AccountType: accountType.Value(),
		}, &out)
	})
	return out, err
}

func (l *Live) Disconnect(ctx context.Context, accountID string) error {
	return l.call(ctx, catTrading, "disconnect", func(ctx context.Context) error {
		return l.post(ctx, "/trading/disconnect", map[string]string{"account_id": accountID}, nil)
	})
}

func (l *Live) QueryAccount(ctx context.Context, accountID string) (types.AccountInfo, error) {
	var out types.AccountInfo
	err := l.call(ctx, catTrading, "query_account", func(ctx context.Context) error {
		return l.get(ctx, "/trading/accounts/{id}", map[string]string{"id": accountID}, &out)
	})
	return out, err
}

func (l *Live) QueryPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	var out []types.Position
	err := l.call(ctx, catTrading, "query_positions", func(ctx context.Context) error {
		return l.get(ctx, "/trading/accounts/{id}/positions", map[string]string{"id": accountID}, &out)
	})
	return out, err
}

func (l *Live) QueryAsset(ctx context.Context, accountID string) (types.Asset, error) {
	var out types.Asset
	err := l.call(ctx, catTrading, "query_asset", func(ctx context.Context) error {
		return l.get(ctx, "/trading/accounts/{id}/asset", map[string]string{"id": accountID}, &out)
	})
	return out, err
}

func (l *Live) QueryOrders(ctx context.Context, accountID string) ([]types.OrderRecord, error) {
	var out []types.OrderRecord
	err := l.call(ctx, catTrading, "query_orders", func(ctx context.Context) error {
		return l.get(ctx, "/trading/accounts/{id}/orders", map[string]string{"id": accountID}, &out)
	})
	return out, err
}

func (l *Live) QueryTrades(ctx context.Context, accountID string) ([]types.TradeFill, error) {
	var out []types.TradeFill
	err := l.call(ctx, catTrading, "query_trades", func(ctx context.Context) error {
		return l.get(ctx, "/trading/accounts/{id}/trades", map[string]string{"id": accountID}, &out)
	})
	return out, err
}

type livePlaceOrderReq struct {
	AccountID string  `json:"account_id"`
	StockCode string  `json:"stock_code"`
	Side      int32   `json:"side"`
	OrderType int32   `json:"order_type"`
	Volume    int64   `json:"volume"`
	Price     float64 `json:"price,omitempty"`
}

func (l *Live) PlaceOrder(ctx context.Context, accountID string, req types.OrderRequest) (types.OrderRecord, error) {
	var out types.OrderRecord
	err := l.call(ctx, catTrading, "place_order", func(ctx context.Context) error {
		return l.post(ctx, "/trading/orders", livePlaceOrderReq{
			AccountID: accountID,
			StockCode: req.StockCode,
			Side:      req.Side.Value(),
			OrderType: req.Type.Value(),
			Volume:    req.Volume,
			Price:     req.Price,
		}, &out)
	})
	return out, err
}

func (l *Live) CancelOrder(ctx context.Context, accountID, orderID string) (types.CancelResult, error) {
	var out types.CancelResult
	err := l.call(ctx, catTrading, "cancel_order", func(ctx context.Context) error {
		return l.post(ctx, "/trading/orders/cancel", map[string]string{"account_id": accountID, "order_id": orderID}, &out)
	})
	return out, err
}
