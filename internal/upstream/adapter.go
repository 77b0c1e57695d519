// Package upstream fronts the native brokerage gateway behind one adapter
// interface with three variants: Simulator generates everything locally,
// Live delegates to the vendor's local gateway process, and ReadLive wraps
// Live but refuses order mutations. Which variant runs is decided once at
// startup from the run mode.
package upstream

import (
	"context"

	"quantgate/pkg/types"
)

// FrameSink receives quote frames from the adapter's feed goroutine. The
// adapter guarantees OnFrame is invoked from a single goroutine and that
// the callback never re-enters the adapter.
type FrameSink interface {
	OnFrame(frame types.TickFrame)
}

// Adapter is the uniform facade over the native market-data and trading
// library. All blocking calls take a context; the feed goroutine is started
// by Start and stopped by Close.
type Adapter interface {
	Start(ctx context.Context, sink FrameSink) error
	Close() error

	// Market data
	MarketData(ctx context.Context, q types.MarketDataQuery) ([]types.SymbolBars, error)
	Financial(ctx context.Context, symbols, tables []string, startDate, endDate string) ([]types.FinancialTable, error)
	TickRange(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.TickFrame, error)
	KlineRange(ctx context.Context, symbols []string, startDate, endDate string, period types.Period) ([]types.SymbolBars, error)
	FullTick(ctx context.Context, symbols []string) ([]types.TickFrame, error)
	L2Quote(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Quote, error)
	L2Order(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Order, error)
	L2Transaction(ctx context.Context, symbols []string, startDate, endDate string) (map[string][]types.L2Transaction, error)

	// Reference data
	SectorList(ctx context.Context) ([]string, error)
	StocksInSector(ctx context.Context, name string) (types.Sector, error)
	IndexWeight(ctx context.Context, indexCode, date string) (types.IndexWeights, error)
	TradingCalendar(ctx context.Context, year int) (types.TradingCalendar, error)
	InstrumentInfo(ctx context.Context, code string) (types.Instrument, error)
	Holidays(ctx context.Context) ([]string, error)
	PeriodList(ctx context.Context) ([]string, error)
	DataDir(ctx context.Context) (string, error)
	CBInfo(ctx context.Context) ([]types.ConvertibleBond, error)
	IPOInfo(ctx context.Context) ([]types.IPO, error)
	DividFactors(ctx context.Context, code string) ([]types.DividFactor, error)

	// Sector management
	CreateSector(ctx context.Context, name string, symbols []string) (types.Sector, error)
	RemoveSector(ctx context.Context, name string) error

	// History downloads
	StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadTask, error)
	DownloadStatus(ctx context.Context, taskID string) (types.DownloadTask, error)

	// Quote stream. Unsubscribe accepts the literal "*" to tear down a
	// firehose subscription.
	Subscribe(ctx context.Context, symbol string) error
	SubscribeFirehose(ctx context.Context) error
	Unsubscribe(ctx context.Context, symbol string) error

	// Trading
	Connect(ctx context.Context, accountID, password string, accountType types.AccountType) (types.AccountInfo, error)
	Disconnect(ctx context.Context, accountID string) error
	QueryAccount(ctx context.Context, accountID string) (types.AccountInfo, error)
	QueryPositions(ctx context.Context, accountID string) ([]types.Position, error)
	QueryAsset(ctx context.Context, accountID string) (types.Asset, error)
	QueryOrders(ctx context.Context, accountID string) ([]types.OrderRecord, error)
	QueryTrades(ctx context.Context, accountID string) ([]types.TradeFill, error)
	PlaceOrder(ctx context.Context, accountID string, req types.OrderRequest) (types.OrderRecord, error)
	CancelOrder(ctx context.Context, accountID, orderID string) (types.CancelResult, error)
}

var (
	_ Adapter = (*Simulator)(nil)
	_ Adapter = (*Live)(nil)
	_ Adapter = (*ReadLive)(nil)
)
