package upstream

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/internal/store"
	"quantgate/pkg/types"
)

const (
	simTickInterval = 200 * time.Millisecond
	simStartingCash = 1_000_000
)

type simAccount struct {
	info      types.AccountInfo
	cash      float64
	frozen    float64
	positions map[string]*types.Position
	orders    []*types.OrderRecord
	byOrderID map[string]*types.OrderRecord
	trades    []types.TradeFill
}

// Simulator is the mock-mode adapter. It generates plausible quotes and
// reference data locally and runs an instant-execution paper broker, so the
// gateway builds and tests on any box without the native library.
//
// Resting limit orders stay SUBMITTED until a cancel; marketable ones fill
// immediately at the better of limit and market price.
type Simulator struct {
	cfg    config.UpstreamConfig
	logger zerolog.Logger
	store  *store.Store

	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	subscribed map[string]bool
	custom     map[string]types.Sector
	accounts   map[string]*simAccount
	downloads  map[string]types.DownloadTask
	started    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulator opens the sector store under the data dir and restores any
// custom sectors persisted by a previous run.
func NewSimulator(cfg config.UpstreamConfig, logger zerolog.Logger) (*Simulator, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open sector store: %w", err)
	}

	custom := make(map[string]types.Sector)
	saved, err := st.ListSectors()
	if err != nil {
		return nil, fmt.Errorf("load custom sectors: %w", err)
	}
	for _, sec := range saved {
		custom[sec.Name] = sec
	}

	return &Simulator{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:     make(map[string]float64),
		subscribed: make(map[string]bool),
		custom:     custom,
		accounts:   make(map[string]*simAccount),
		downloads:  make(map[string]types.DownloadTask),
	}, nil
}

// Start launches the feed goroutine. Frames are generated for every
// subscribed symbol on a fixed cadence and handed to sink one at a time.
func (s *Simulator) Start(ctx context.Context, sink FrameSink) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("simulator already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.feedLoop(runCtx, sink)
	s.logger.Info().Msg("simulation feed started")
	return nil
}

func (s *Simulator) feedLoop(ctx context.Context, sink FrameSink) {
	defer s.wg.Done()
	ticker := time.NewTicker(simTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Generate under the lock, deliver outside it: the sink may
			// take its own locks and must not see ours held.
			for _, frame := range s.nextFrames() {
				sink.OnFrame(frame)
			}
		}
	}
}

// Close stops the feed goroutine and waits for in-flight work.
func (s *Simulator) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return s.store.Close()
}

func (s *Simulator) nextFrames() []types.TickFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := make([]types.TickFrame, 0, len(s.subscribed))
	for sym := range s.subscribed {
		frames = append(frames, s.frameLocked(sym, time.Now()))
	}
	return frames
}

// walkLocked advances the random walk for one symbol and returns the new
// price rounded to the exchange tick of 0.01.
func (s *Simulator) walkLocked(symbol string) float64 {
	price, ok := s.prices[symbol]
	if !ok {
		price = s.basePrice(symbol)
	}
	change := (s.rng.Float64() - 0.5) * 0.004 // ±0.2% per step
	price = decimal.NewFromFloat(price * (1 + change)).Round(2).InexactFloat64()
	if price < 0.01 {
		price = 0.01
	}
	s.prices[symbol] = price
	return price
}

func (s *Simulator) priceLocked(symbol string) float64 {
	if p, ok := s.prices[symbol]; ok {
		return p
	}
	p := s.basePrice(symbol)
	s.prices[symbol] = p
	return p
}

func (s *Simulator) basePrice(symbol string) float64 {
	if l, ok := simUniverse[symbol]; ok {
		return l.price
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return float64(500+h.Sum32()%9500) / 100 // 5.00 .. 99.99
}

func (s *Simulator) frameLocked(symbol string, now time.Time) types.TickFrame {
	prev := s.priceLocked(symbol)
	price := s.walkLocked(symbol)

	bidPrices := make([]float64, 5)
	askPrices := make([]float64, 5)
	bidVols := make([]int64, 5)
	askVols := make([]int64, 5)
	for i := 0; i < 5; i++ {
		step := float64(i+1) * 0.01
		bidPrices[i] = decimal.NewFromFloat(price - step).Round(2).InexactFloat64()
		askPrices[i] = decimal.NewFromFloat(price + step).Round(2).InexactFloat64()
		bidVols[i] = int64(100 * (1 + s.rng.Intn(50)))
		askVols[i] = int64(100 * (1 + s.rng.Intn(50)))
	}

	volume := int64(100 + s.rng.Intn(10000))
	return types.TickFrame{
		StockCode:  symbol,
		Time:       now.UnixMilli(),
		LastPrice:  price,
		Open:       decimal.NewFromFloat(prev * 0.998).Round(2).InexactFloat64(),
		High:       decimal.NewFromFloat(price * 1.004).Round(2).InexactFloat64(),
		Low:        decimal.NewFromFloat(price * 0.996).Round(2).InexactFloat64(),
		LastClose:  prev,
		Volume:     volume,
		Amount:     decimal.NewFromFloat(price * float64(volume)).Round(2).InexactFloat64(),
		BidPrices:  bidPrices,
		BidVolumes: bidVols,
		AskPrices:  askPrices,
		AskVolumes: askVols,
	}
}

// Subscribe marks a symbol for the feed loop. Duplicate subscribes are
// harmless.
func (s *Simulator) Subscribe(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[symbol] = true
	s.priceLocked(symbol)
	return nil
}

// SubscribeFirehose is not available without the native library feed.
func (s *Simulator) SubscribeFirehose(ctx context.Context) error {
	return apperr.NotSupportedInSim("subscribe_whole_quote")
}

// Unsubscribe drops a symbol from the feed loop. The firehose token "*" and
// unknown symbols are tolerated.
func (s *Simulator) Unsubscribe(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, symbol)
	return nil
}

// Connect opens (or re-opens) a paper account funded with starting cash.
func (s *Simulator) Connect(ctx context.Context, accountID, password string, accountType types.AccountType) (types.AccountInfo, error) {
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(password) == "" {
		return types.AccountInfo{}, apperr.New(apperr.CodeUpstreamFailure, "account authentication failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		acct = &simAccount{
			cash:      simStartingCash,
			positions: make(map[string]*types.Position),
			byOrderID: make(map[string]*types.OrderRecord),
		}
		s.accounts[accountID] = acct
	}
	acct.info = types.AccountInfo{
		AccountID:   accountID,
		AccountType: accountType,
		Status:      "connected",
		ConnectedAt: time.Now().UTC(),
	}
	return acct.info, nil
}

// Disconnect is idempotent. Account state survives so a reconnect resumes
// with the same positions.
func (s *Simulator) Disconnect(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[accountID]; ok {
		acct.info.Status = "disconnected"
	}
	return nil
}

func (s *Simulator) accountLocked(accountID string) (*simAccount, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeUpstreamFailure, "account %s not connected", accountID)
	}
	return acct, nil
}

func (s *Simulator) QueryAccount(ctx context.Context, accountID string) (types.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return types.AccountInfo{}, err
	}
	return acct.info, nil
}

func (s *Simulator) QueryPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(acct.positions))
	for _, pos := range acct.positions {
		p := *pos
		p.MarketValue = decimal.NewFromFloat(s.priceLocked(p.StockCode) * float64(p.Volume)).Round(2).InexactFloat64()
		out = append(out, p)
	}
	return out, nil
}

func (s *Simulator) QueryAsset(ctx context.Context, accountID string) (types.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return types.Asset{}, err
	}

	market := 0.0
	for _, pos := range acct.positions {
		market += s.priceLocked(pos.StockCode) * float64(pos.Volume)
	}
	market = decimal.NewFromFloat(market).Round(2).InexactFloat64()
	return types.Asset{
		AccountID:   accountID,
		Cash:        decimal.NewFromFloat(acct.cash).Round(2).InexactFloat64(),
		FrozenCash:  decimal.NewFromFloat(acct.frozen).Round(2).InexactFloat64(),
		MarketValue: market,
		TotalValue:  decimal.NewFromFloat(acct.cash + acct.frozen + market).Round(2).InexactFloat64(),
	}, nil
}

func (s *Simulator) QueryOrders(ctx context.Context, accountID string) ([]types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return nil, err
	}

	out := make([]types.OrderRecord, 0, len(acct.orders))
	for _, rec := range acct.orders {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Simulator) QueryTrades(ctx context.Context, accountID string) ([]types.TradeFill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return nil, err
	}
	return append([]types.TradeFill(nil), acct.trades...), nil
}

// PlaceOrder executes against the walk price. Marketable orders fill in
// full immediately; passive limit orders rest as SUBMITTED with the funds
// or shares frozen until cancel. Orders that fail broker checks come back
// REJECTED rather than as an error.
func (s *Simulator) PlaceOrder(ctx context.Context, accountID string, req types.OrderRequest) (types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return types.OrderRecord{}, err
	}

	market := s.priceLocked(req.StockCode)
	rec := &types.OrderRecord{
		OrderID:     uuid.NewString(),
		StockCode:   req.StockCode,
		Side:        req.Side,
		Type:        req.Type,
		Volume:      req.Volume,
		Price:       req.Price,
		Status:      types.StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	acct.orders = append(acct.orders, rec)
	acct.byOrderID[rec.OrderID] = rec

	fillPrice, marketable := simExecutionPrice(req, market)
	if !marketable {
		if err := s.freezeLocked(acct, req); err != nil {
			rec.Status = types.StatusRejected
			return *rec, nil
		}
		return *rec, nil
	}

	if err := s.fillLocked(acct, rec, fillPrice); err != nil {
		rec.Status = types.StatusRejected
		return *rec, nil
	}
	return *rec, nil
}

// simExecutionPrice decides whether the order crosses the market and at
// what price it fills. Marketable buys fill at the limit capped by market,
// sells at the limit floored by market; MARKET orders always cross.
func simExecutionPrice(req types.OrderRequest, market float64) (float64, bool) {
	if req.Type == types.OrderTypeMarket {
		return market, true
	}
	switch req.Side {
	case types.SideBuy:
		if req.Price >= market {
			return market, true
		}
	case types.SideSell:
		if req.Price <= market {
			return market, true
		}
	}
	return 0, false
}

// freezeLocked reserves cash or shares for a resting order.
func (s *Simulator) freezeLocked(acct *simAccount, req types.OrderRequest) error {
	if req.Side == types.SideBuy {
		amount := decimal.NewFromFloat(req.Price).Mul(decimal.NewFromInt(req.Volume))
		need := amount.InexactFloat64()
		if acct.cash < need {
			return fmt.Errorf("insufficient cash")
		}
		acct.cash -= need
		acct.frozen += need
		return nil
	}
	pos := acct.positions[req.StockCode]
	if pos == nil || pos.AvailableVolume < req.Volume {
		return fmt.Errorf("insufficient position")
	}
	pos.AvailableVolume -= req.Volume
	return nil
}

// fillLocked executes the full volume at price, updating cash, the average
// cost of the position, and the trade tape.
func (s *Simulator) fillLocked(acct *simAccount, rec *types.OrderRecord, price float64) error {
	volume := decimal.NewFromInt(rec.Volume)
	amount := decimal.NewFromFloat(price).Mul(volume).Round(2)

	if rec.Side == types.SideBuy {
		if acct.cash < amount.InexactFloat64() {
			return fmt.Errorf("insufficient cash")
		}
		acct.cash -= amount.InexactFloat64()

		pos := acct.positions[rec.StockCode]
		if pos == nil {
			pos = &types.Position{StockCode: rec.StockCode}
			acct.positions[rec.StockCode] = pos
		}
		// Volume-weighted average entry across fills.
		oldCost := decimal.NewFromFloat(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Volume))
		newVolume := pos.Volume + rec.Volume
		pos.AvgPrice = oldCost.Add(amount).Div(decimal.NewFromInt(newVolume)).Round(4).InexactFloat64()
		pos.Volume = newVolume
		pos.AvailableVolume += rec.Volume
	} else {
		pos := acct.positions[rec.StockCode]
		if pos == nil || pos.AvailableVolume < rec.Volume {
			return fmt.Errorf("insufficient position")
		}
		acct.cash += amount.InexactFloat64()
		pos.Volume -= rec.Volume
		pos.AvailableVolume -= rec.Volume
		if pos.Volume == 0 {
			delete(acct.positions, rec.StockCode)
		}
	}

	rec.Status = types.StatusFilled
	rec.FilledVolume = rec.Volume
	rec.FilledAmount = amount.InexactFloat64()
	rec.AvgPrice = price

	acct.trades = append(acct.trades, types.TradeFill{
		TradeID:   uuid.NewString(),
		OrderID:   rec.OrderID,
		StockCode: rec.StockCode,
		Side:      rec.Side,
		Price:     price,
		Volume:    rec.Volume,
		Amount:    amount.InexactFloat64(),
		TradedAt:  time.Now().UTC(),
	})
	return nil
}

// CancelOrder cancels a resting order and releases its frozen funds or
// shares. Terminal orders report Cancelled false.
func (s *Simulator) CancelOrder(ctx context.Context, accountID, orderID string) (types.CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err := s.accountLocked(accountID)
	if err != nil {
		return types.CancelResult{}, err
	}

	rec, ok := acct.byOrderID[orderID]
	if !ok {
		return types.CancelResult{}, apperr.NotFound("order", orderID)
	}
	if rec.Status.Terminal() {
		return types.CancelResult{OrderID: orderID, Cancelled: false}, nil
	}

	if rec.Side == types.SideBuy {
		amount := decimal.NewFromFloat(rec.Price).Mul(decimal.NewFromInt(rec.Volume)).InexactFloat64()
		acct.frozen -= amount
		acct.cash += amount
	} else if pos := acct.positions[rec.StockCode]; pos != nil {
		pos.AvailableVolume += rec.Volume
	}
	rec.Status = types.StatusCancelled
	return types.CancelResult{OrderID: orderID, Cancelled: true}, nil
}

// StartDownload records a task and completes it asynchronously, writing a
// manifest into the data dir the way the native library drops history files.
func (s *Simulator) StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadTask, error) {
	task := types.DownloadTask{
		TaskID:    uuid.NewString(),
		Kind:      req.Kind,
		Symbols:   req.Symbols,
		Period:    req.Period,
		State:     types.DownloadPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.downloads[task.TaskID] = task
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runDownload(task)
	return task, nil
}

func (s *Simulator) runDownload(task types.DownloadTask) {
	defer s.wg.Done()

	s.setDownloadState(task.TaskID, types.DownloadRunning, 0.5, "")
	time.Sleep(50 * time.Millisecond)

	manifest := fmt.Sprintf("download_%s.json", task.TaskID)
	if err := s.store.WriteFile(manifest, task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("download manifest write failed")
		s.setDownloadState(task.TaskID, types.DownloadFailed, 0.5, err.Error())
		return
	}
	s.setDownloadState(task.TaskID, types.DownloadCompleted, 1, "")
}

func (s *Simulator) setDownloadState(taskID string, state types.DownloadState, progress float64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.downloads[taskID]
	if !ok {
		return
	}
	task.State = state
	task.Progress = progress
	task.Error = errMsg
	task.UpdatedAt = time.Now().UTC()
	s.downloads[taskID] = task
}

func (s *Simulator) DownloadStatus(ctx context.Context, taskID string) (types.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.downloads[taskID]
	if !ok {
		return types.DownloadTask{}, apperr.NotFound("download task", taskID)
	}
	return task, nil
}
