package upstream

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/pkg/types"
)

type captureSink struct {
	mu     sync.Mutex
	frames []types.TickFrame
}

func (c *captureSink) OnFrame(frame types.TickFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
}

func (c *captureSink) snapshot() []types.TickFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.TickFrame(nil), c.frames...)
}

func newTestSim(t *testing.T) *Simulator {
	t.Helper()
	sim, err := NewSimulator(config.UpstreamConfig{DataDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return sim
}

func TestSimulatorFeedDeliversSubscribedSymbol(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()
	sink := &captureSink{}

	if err := sim.Subscribe(ctx, "600519.SH"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sim.Start(ctx, sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sim.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.snapshot()) >= 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	frames := sink.snapshot()
	if len(frames) < 3 {
		t.Fatalf("got %d frames, want at least 3", len(frames))
	}
	for _, f := range frames {
		if f.StockCode != "600519.SH" {
			t.Fatalf("frame for %q, want 600519.SH", f.StockCode)
		}
		if f.LastPrice <= 0 {
			t.Fatalf("frame has non-positive price %v", f.LastPrice)
		}
		if len(f.BidPrices) != 5 || len(f.AskPrices) != 5 {
			t.Fatalf("book depth = %d/%d, want 5/5", len(f.BidPrices), len(f.AskPrices))
		}
	}
}

func TestSimulatorFirehoseUnsupported(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	err := sim.SubscribeFirehose(context.Background())
	if !apperr.IsCode(err, apperr.CodeNotSupportedInSim) {
		t.Fatalf("SubscribeFirehose err = %v, want NOT_SUPPORTED_IN_SIM", err)
	}
}

func TestSimulatorConnectRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		accountID string
		password  string
	}{
		{name: "empty account", accountID: "", password: "pw"},
		{name: "empty password", accountID: "acct", password: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := sim.Connect(ctx, tt.accountID, tt.password, types.AccountSecurity)
			if !apperr.IsCode(err, apperr.CodeUpstreamFailure) {
				t.Fatalf("Connect err = %v, want UPSTREAM_FAILURE", err)
			}
			if got := apperr.MessageOf(err); got != "account authentication failed" {
				t.Fatalf("Connect message = %q", got)
			}
		})
	}
}

func TestSimulatorPaperTradingRoundTrip(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()

	info, err := sim.Connect(ctx, "acct-1", "pw", types.AccountSecurity)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if info.AccountID != "acct-1" || info.Status != "connected" {
		t.Fatalf("Connect info = %+v", info)
	}

	rec, err := sim.PlaceOrder(ctx, "acct-1", types.OrderRequest{
		StockCode: "600000.SH",
		Side:      types.SideBuy,
		Type:      types.OrderTypeMarket,
		Volume:    200,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if rec.Status != types.StatusFilled {
		t.Fatalf("market buy status = %v, want FILLED", rec.Status)
	}
	if rec.FilledVolume != 200 || rec.AvgPrice <= 0 {
		t.Fatalf("fill = %d @ %v", rec.FilledVolume, rec.AvgPrice)
	}

	positions, err := sim.QueryPositions(ctx, "acct-1")
	if err != nil {
		t.Fatalf("QueryPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].StockCode != "600000.SH" || positions[0].Volume != 200 {
		t.Fatalf("positions = %+v", positions)
	}

	asset, err := sim.QueryAsset(ctx, "acct-1")
	if err != nil {
		t.Fatalf("QueryAsset: %v", err)
	}
	if asset.Cash >= simStartingCash {
		t.Fatalf("cash %v not reduced by buy", asset.Cash)
	}
	if asset.MarketValue <= 0 {
		t.Fatalf("market value = %v, want > 0", asset.MarketValue)
	}

	trades, err := sim.QueryTrades(ctx, "acct-1")
	if err != nil {
		t.Fatalf("QueryTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].OrderID != rec.OrderID {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestSimulatorRestingOrderFreezesAndCancelReleases(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()
	if _, err := sim.Connect(ctx, "acct-2", "pw", types.AccountSecurity); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Far below market, so the limit order rests.
	rec, err := sim.PlaceOrder(ctx, "acct-2", types.OrderRequest{
		StockCode: "600000.SH",
		Side:      types.SideBuy,
		Type:      types.OrderTypeLimit,
		Volume:    100,
		Price:     1.00,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if rec.Status != types.StatusSubmitted {
		t.Fatalf("resting order status = %v, want SUBMITTED", rec.Status)
	}

	asset, err := sim.QueryAsset(ctx, "acct-2")
	if err != nil {
		t.Fatalf("QueryAsset: %v", err)
	}
	if asset.FrozenCash != 100.00 {
		t.Fatalf("frozen = %v, want 100.00", asset.FrozenCash)
	}

	res, err := sim.CancelOrder(ctx, "acct-2", rec.OrderID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !res.Cancelled {
		t.Fatalf("cancel result = %+v, want cancelled", res)
	}

	asset, err = sim.QueryAsset(ctx, "acct-2")
	if err != nil {
		t.Fatalf("QueryAsset: %v", err)
	}
	if asset.FrozenCash != 0 || asset.Cash != simStartingCash {
		t.Fatalf("after cancel cash/frozen = %v/%v, want %v/0", asset.Cash, asset.FrozenCash, float64(simStartingCash))
	}

	if _, err := sim.CancelOrder(ctx, "acct-2", "no-such-order"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("cancel unknown order err = %v, want NOT_FOUND", err)
	}
}

func TestSimulatorSellWithoutPositionRejected(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()
	if _, err := sim.Connect(ctx, "acct-3", "pw", types.AccountSecurity); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rec, err := sim.PlaceOrder(ctx, "acct-3", types.OrderRequest{
		StockCode: "600000.SH",
		Side:      types.SideSell,
		Type:      types.OrderTypeMarket,
		Volume:    100,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if rec.Status != types.StatusRejected {
		t.Fatalf("naked sell status = %v, want REJECTED", rec.Status)
	}
}

func TestSimulatorMarketDataDeterministic(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()
	query := types.MarketDataQuery{
		Symbols:   []string{"600519.SH"},
		StartDate: "20250707",
		EndDate:   "20250711",
		Period:    types.Period1d,
		Adjust:    types.AdjustNone,
	}

	first, err := sim.MarketData(ctx, query)
	if err != nil {
		t.Fatalf("MarketData: %v", err)
	}
	second, err := sim.MarketData(ctx, query)
	if err != nil {
		t.Fatalf("MarketData: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical queries returned different bars")
	}

	if len(first) != 1 {
		t.Fatalf("got %d symbol groups, want 1", len(first))
	}
	bars := first[0].Bars
	// Five full trading days in that week.
	if len(bars) != 5 {
		t.Fatalf("got %d daily bars, want 5", len(bars))
	}
	for _, bar := range bars {
		day := time.UnixMilli(bar.Time).In(cst).Format("20060102")
		if day < "20250707" || day > "20250711" {
			t.Fatalf("bar day %s outside range", day)
		}
		if bar.High < bar.Low || bar.Open <= 0 || bar.Close <= 0 {
			t.Fatalf("implausible bar %+v", bar)
		}
	}
}

func TestSimulatorMarketDataRejectsBadDates(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	_, err := sim.MarketData(context.Background(), types.MarketDataQuery{
		Symbols:   []string{"600519.SH"},
		StartDate: "2025-07-07",
		EndDate:   "20250711",
		Period:    types.Period1d,
	})
	if err == nil {
		t.Fatal("MarketData accepted a malformed date")
	}
}

func TestSimulatorKlineRangeCapped(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	out, err := sim.KlineRange(context.Background(), []string{"000001.SZ"}, "20240101", "20251231", types.Period1m)
	if err != nil {
		t.Fatalf("KlineRange: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d symbol groups, want 1", len(out))
	}
	if got := len(out[0].Bars); got != maxSimBars {
		t.Fatalf("got %d minute bars, want cap of %d", got, maxSimBars)
	}
}

func TestSimulatorTradingCalendar(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	cal, err := sim.TradingCalendar(context.Background(), 2026)
	if err != nil {
		t.Fatalf("TradingCalendar: %v", err)
	}
	if cal.Year != 2026 || len(cal.TradingDates) == 0 {
		t.Fatalf("calendar = %+v", cal)
	}

	prev := ""
	for _, d := range cal.TradingDates {
		if d <= prev {
			t.Fatalf("dates not strictly ascending at %s", d)
		}
		prev = d
		day, err := time.ParseInLocation("20060102", d, cst)
		if err != nil {
			t.Fatalf("bad date %q: %v", d, err)
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend %s listed as trading day", d)
		}
		if d == "20260101" {
			t.Fatal("holiday 20260101 listed as trading day")
		}
	}

	foundNewYear := false
	for _, h := range cal.Holidays {
		if h == "20260101" {
			foundNewYear = true
		}
	}
	if !foundNewYear {
		t.Fatal("holidays missing 20260101")
	}

	if _, err := sim.TradingCalendar(context.Background(), 1234); err == nil {
		t.Fatal("TradingCalendar accepted out-of-range year")
	}
}

func TestSimulatorSectorLookup(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()

	names, err := sim.SectorList(ctx)
	if err != nil {
		t.Fatalf("SectorList: %v", err)
	}
	hasBanks := false
	for _, n := range names {
		if n == "Banks" {
			hasBanks = true
		}
	}
	if !hasBanks {
		t.Fatalf("SectorList %v missing Banks", names)
	}

	sec, err := sim.StocksInSector(ctx, "Banks")
	if err != nil {
		t.Fatalf("StocksInSector: %v", err)
	}
	found := false
	for _, code := range sec.StockList {
		if code == "600036.SH" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Banks = %v, missing 600036.SH", sec.StockList)
	}

	if _, err := sim.StocksInSector(ctx, "No Such Sector"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown sector err = %v, want NOT_FOUND", err)
	}
}

func TestSimulatorCustomSectorPersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewSimulator(config.UpstreamConfig{DataDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if _, err := first.CreateSector(ctx, "My Picks", []string{"600519.SH", "000001.SZ"}); err != nil {
		t.Fatalf("CreateSector: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewSimulator(config.UpstreamConfig{DataDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSimulator(restart): %v", err)
	}
	sec, err := second.StocksInSector(ctx, "My Picks")
	if err != nil {
		t.Fatalf("StocksInSector after restart: %v", err)
	}
	if !reflect.DeepEqual(sec.StockList, []string{"600519.SH", "000001.SZ"}) {
		t.Fatalf("restored sector = %v", sec.StockList)
	}
	if !sec.Custom {
		t.Fatal("restored sector not marked custom")
	}

	if err := second.RemoveSector(ctx, "My Picks"); err != nil {
		t.Fatalf("RemoveSector: %v", err)
	}
	if _, err := second.StocksInSector(ctx, "My Picks"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("removed sector err = %v, want NOT_FOUND", err)
	}
}

func TestSimulatorRemoveBuiltinSectorRefused(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	err := sim.RemoveSector(context.Background(), "Banks")
	if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Fatalf("RemoveSector(builtin) err = %v, want INVALID_ARGUMENT", err)
	}
}

func TestSimulatorIndexWeight(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	ctx := context.Background()

	weights, err := sim.IndexWeight(ctx, "000300.SH", "20250630")
	if err != nil {
		t.Fatalf("IndexWeight: %v", err)
	}
	var total float64
	for _, w := range weights.Weights {
		total += w.Weight
	}
	if total < 99.0 || total > 101.0 {
		t.Fatalf("weights sum to %v, want ~100", total)
	}

	if _, err := sim.IndexWeight(ctx, "999999.SH", ""); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown index err = %v, want NOT_FOUND", err)
	}
}

func TestSimulatorInstrumentInfo(t *testing.T) {
	t.Parallel()

	sim := newTestSim(t)
	inst, err := sim.InstrumentInfo(context.Background(), "600519.SH")
	if err != nil {
		t.Fatalf("InstrumentInfo: %v", err)
	}
	if inst.DisplayName != "Kweichow Moutai" || inst.ExchangeID != "SH" || inst.LotSize != 100 {
		t.Fatalf("instrument = %+v", inst)
	}
	if inst.UpStopPrice <= inst.PreClose || inst.DownStopPrice >= inst.PreClose {
		t.Fatalf("stop band %v/%v around %v", inst.UpStopPrice, inst.DownStopPrice, inst.PreClose)
	}
}

func TestSimulatorDownloadLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sim, err := NewSimulator(config.UpstreamConfig{DataDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx := context.Background()

	task, err := sim.StartDownload(ctx, types.DownloadRequest{
		Kind:    "history",
		Symbols: []string{"600519.SH"},
		Period:  types.Period1d,
	})
	if err != nil {
		t.Fatalf("StartDownload: %v", err)
	}
	if task.State != types.DownloadPending {
		t.Fatalf("initial state = %v, want PENDING", task.State)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err = sim.DownloadStatus(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("DownloadStatus: %v", err)
		}
		if task.State == types.DownloadCompleted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if task.State != types.DownloadCompleted || task.Progress != 1 {
		t.Fatalf("final task = %+v, want COMPLETED", task)
	}

	manifest := filepath.Join(dir, "download_"+task.TaskID+".json")
	if _, err := os.Stat(manifest); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	if _, err := sim.DownloadStatus(ctx, "missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown task err = %v, want NOT_FOUND", err)
	}
}
