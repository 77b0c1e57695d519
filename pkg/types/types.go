// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the gateway: tick frames, bars,
// reference data, orders, sessions, and the enumerations shared by the HTTP
// and RPC surfaces. It has no dependencies on internal packages, so it can be
// imported by any layer. Enumerations that appear on the RPC contract carry
// explicit stable integer values via their Value methods.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mode selects the process-wide run policy. It controls which upstream
// adapter is wired at startup and feeds the trading policy gate.
type Mode string

const (
	ModeMock Mode = "mock" // simulation adapter, native library never touched
	ModeDev  Mode = "dev"  // live reads, order mutations refused
	ModeProd Mode = "prod" // live reads and, if configured, live trading
)

// ParseMode normalizes a mode string. Empty input defaults to dev.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ModeDev, nil
	case "mock":
		return ModeMock, nil
	case "dev":
		return ModeDev, nil
	case "prod":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// AdjustMode is the price adjustment applied to historical quotes.
type AdjustMode string

const (
	AdjustNone  AdjustMode = "none"
	AdjustFront AdjustMode = "front"
	AdjustBack  AdjustMode = "back"
)

// ParseAdjust validates an adjust_type value. Empty input defaults to none;
// anything outside the three known modes is an error, never a downgrade.
func ParseAdjust(s string) (AdjustMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return AdjustNone, nil
	case "none":
		return AdjustNone, nil
	case "front":
		return AdjustFront, nil
	case "back":
		return AdjustBack, nil
	default:
		return "", fmt.Errorf("unknown adjust_type %q", s)
	}
}

// Value returns the stable wire integer for the adjust mode.
func (a AdjustMode) Value() int32 {
	switch a {
	case AdjustFront:
		return 1
	case AdjustBack:
		return 2
	default:
		return 0
	}
}

// AdjustFromValue maps a wire integer back to an adjust mode. Zero is none.
func AdjustFromValue(v int32) (AdjustMode, error) {
	switch v {
	case 0:
		return AdjustNone, nil
	case 1:
		return AdjustFront, nil
	case 2:
		return AdjustBack, nil
	default:
		return "", fmt.Errorf("unknown adjust_type value %d", v)
	}
}

// SubscriptionKind distinguishes per-symbol subscriptions from the firehose.
type SubscriptionKind string

const (
	KindQuote    SubscriptionKind = "quote"       // explicit symbol list
	KindFirehose SubscriptionKind = "whole_quote" // every frame, all symbols
)

// ParseSubscriptionKind validates a subscription_type value. Empty input
// defaults to a per-symbol quote subscription.
func ParseSubscriptionKind(s string) (SubscriptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quote":
		return KindQuote, nil
	case "whole_quote", "firehose":
		return KindFirehose, nil
	default:
		return "", fmt.Errorf("unknown subscription_type %q", s)
	}
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// ParseOrderSide validates a side string.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Value returns the stable wire integer for the side.
func (s OrderSide) Value() int32 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return 2
	default:
		return 0
	}
}

// OrderSideFromValue maps a wire integer back to a side.
func OrderSideFromValue(v int32) (OrderSide, error) {
	switch v {
	case 1:
		return SideBuy, nil
	case 2:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side value %d", v)
	}
}

// OrderType enumerates the supported order price types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// ParseOrderType validates an order_type string.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIMIT":
		return OrderTypeLimit, nil
	case "MARKET":
		return OrderTypeMarket, nil
	default:
		return "", fmt.Errorf("unknown order_type %q", s)
	}
}

// Value returns the stable wire integer for the order type.
func (t OrderType) Value() int32 {
	switch t {
	case OrderTypeLimit:
		return 1
	case OrderTypeMarket:
		return 2
	default:
		return 0
	}
}

// OrderTypeFromValue maps a wire integer back to an order type.
func OrderTypeFromValue(v int32) (OrderType, error) {
	switch v {
	case 1:
		return OrderTypeLimit, nil
	case 2:
		return OrderTypeMarket, nil
	default:
		return "", fmt.Errorf("unknown order_type value %d", v)
	}
}

// OrderStatus is the lifecycle state of an order record.
//
// Transitions: PENDING → SUBMITTED → (PARTIAL_FILLED →)* FILLED, or to
// CANCELLED / REJECTED. FILLED, CANCELLED and REJECTED are terminal.
type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusSubmitted     OrderStatus = "SUBMITTED"
	StatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	StatusFilled        OrderStatus = "FILLED"
	StatusCancelled     OrderStatus = "CANCELLED"
	StatusRejected      OrderStatus = "REJECTED"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Value returns the stable wire integer for the status.
func (s OrderStatus) Value() int32 {
	switch s {
	case StatusPending:
		return 1
	case StatusSubmitted:
		return 2
	case StatusPartialFilled:
		return 3
	case StatusFilled:
		return 4
	case StatusCancelled:
		return 5
	case StatusRejected:
		return 6
	default:
		return 0
	}
}

// AccountType identifies the brokerage account category.
type AccountType string

const (
	AccountSecurity AccountType = "SECURITY"
	AccountCredit   AccountType = "CREDIT"
	AccountFuture   AccountType = "FUTURE"
)

// ParseAccountType validates an account_type string. Empty defaults to
// SECURITY, the common cash equity account.
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "SECURITY":
		return AccountSecurity, nil
	case "CREDIT":
		return AccountCredit, nil
	case "FUTURE":
		return AccountFuture, nil
	default:
		return "", fmt.Errorf("unknown account_type %q", s)
	}
}

// Value returns the stable wire integer for the account type.
func (t AccountType) Value() int32 {
	switch t {
	case AccountSecurity:
		return 1
	case AccountCredit:
		return 2
	case AccountFuture:
		return 3
	default:
		return 0
	}
}

// AccountTypeFromValue maps a wire integer back to an account type. Zero
// defaults to SECURITY, matching ParseAccountType's empty-string default.
func AccountTypeFromValue(v int32) (AccountType, error) {
	switch v {
	case 0, 1:
		return AccountSecurity, nil
	case 2:
		return AccountCredit, nil
	case 3:
		return AccountFuture, nil
	default:
		return "", fmt.Errorf("unknown account_type value %d", v)
	}
}

// Period is a bar aggregation interval.
type Period string

const (
	PeriodTick Period = "tick"
	Period1m   Period = "1m"
	Period5m   Period = "5m"
	Period15m  Period = "15m"
	Period30m  Period = "30m"
	Period1h   Period = "1h"
	Period1d   Period = "1d"
	Period1w   Period = "1w"
	Period1mon Period = "1mon"
)

// Periods lists every supported interval in ascending granularity order.
func Periods() []Period {
	return []Period{PeriodTick, Period1m, Period5m, Period15m, Period30m, Period1h, Period1d, Period1w, Period1mon}
}

// ParsePeriod validates a period string. Empty input defaults to daily bars.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return Period1d, nil
	}
	for _, known := range Periods() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Value returns the stable wire integer for the period.
func (p Period) Value() int32 {
	for i, known := range Periods() {
		if p == known {
			return int32(i + 1)
		}
	}
	return 0
}

// PeriodFromValue maps a wire integer back to a period. Zero defaults to
// daily bars, matching ParsePeriod's empty-string default.
func PeriodFromValue(v int32) (Period, error) {
	if v == 0 {
		return Period1d, nil
	}
	known := Periods()
	if int(v) >= 1 && int(v) <= len(known) {
		return known[v-1], nil
	}
	return "", fmt.Errorf("unknown period value %d", v)
}

// Duration returns the bar span. Tick has no fixed span and returns zero;
// weekly and monthly use calendar approximations.
func (p Period) Duration() time.Duration {
	switch p {
	case Period1m:
		return time.Minute
	case Period5m:
		return 5 * time.Minute
	case Period15m:
		return 15 * time.Minute
	case Period30m:
		return 30 * time.Minute
	case Period1h:
		return time.Hour
	case Period1d:
		return 24 * time.Hour
	case Period1w:
		return 7 * 24 * time.Hour
	case Period1mon:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// DownloadState is the lifecycle state of a history download task.
type DownloadState string

const (
	DownloadPending   DownloadState = "PENDING"
	DownloadRunning   DownloadState = "RUNNING"
	DownloadCompleted DownloadState = "COMPLETED"
	DownloadFailed    DownloadState = "FAILED"
)

// Value returns the stable wire integer for the download state.
func (s DownloadState) Value() int32 {
	switch s {
	case DownloadPending:
		return 1
	case DownloadRunning:
		return 2
	case DownloadCompleted:
		return 3
	case DownloadFailed:
		return 4
	default:
		return 0
	}
}

var symbolPattern = regexp.MustCompile(`^[0-9]{6}\.(SH|SZ|BJ)$`)

// ValidSymbol reports whether code has the native library's symbol shape,
// a six digit code and an exchange suffix, e.g. "000001.SZ" or "600519.SH".
func ValidSymbol(code string) bool {
	return symbolPattern.MatchString(code)
}

// ValidDate reports whether s is a real calendar date in YYYYMMDD form.
func ValidDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	_, err := time.Parse("20060102", s)
	return err == nil
}

// TickFrame is one market snapshot for a single symbol as pushed by the
// upstream feed. Frames are immutable once handed to the subscription
// manager. Book levels are aligned arrays, best price first.
type TickFrame struct {
	StockCode  string    `json:"stock_code"`
	Time       int64     `json:"time"` // ms since epoch
	LastPrice  float64   `json:"last_price"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	LastClose  float64   `json:"last_close"`
	Volume     int64     `json:"volume"`
	Amount     float64   `json:"amount"`
	BidPrices  []float64 `json:"bid_prices,omitempty"`
	BidVolumes []int64   `json:"bid_volumes,omitempty"`
	AskPrices  []float64 `json:"ask_prices,omitempty"`
	AskVolumes []int64   `json:"ask_volumes,omitempty"`
}

// KlineBar is one OHLCV bar.
type KlineBar struct {
	Time   int64   `json:"time"` // bar open, ms since epoch
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	Amount float64 `json:"amount"`
}

// SymbolBars groups the bars returned for one symbol of a market-data query.
type SymbolBars struct {
	StockCode string     `json:"stock_code"`
	Period    Period     `json:"period"`
	Adjust    AdjustMode `json:"adjust_type"`
	Bars      []KlineBar `json:"bars"`
}

// MarketDataQuery is the validated input of a historical bar request.
type MarketDataQuery struct {
	Symbols   []string
	StartDate string // YYYYMMDD inclusive
	EndDate   string // YYYYMMDD inclusive
	Period    Period
	Fields    []string // empty means all fields
	Adjust    AdjustMode
}

// FinancialTable is one financial-statement table for one symbol. Row keys
// are the native library's report field names and vary per table.
type FinancialTable struct {
	StockCode string           `json:"stock_code"`
	Table     string           `json:"table"`
	Rows      []map[string]any `json:"rows"`
}

// Sector is a named stock list. Custom sectors are user-created through the
// sector-management operations and survive in the data dir.
type Sector struct {
	Name      string   `json:"sector_name"`
	StockList []string `json:"stock_list"`
	Custom    bool     `json:"custom,omitempty"`
}

// IndexWeight is one constituent weight of an index on a given date.
type IndexWeight struct {
	StockCode string  `json:"stock_code"`
	Weight    float64 `json:"weight"` // percent
}

// IndexWeights is the full weight table of an index.
type IndexWeights struct {
	IndexCode string        `json:"index_code"`
	Date      string        `json:"date"`
	Weights   []IndexWeight `json:"weights"`
}

// TradingCalendar lists the trading dates and holidays of one year.
type TradingCalendar struct {
	Year         int      `json:"year"`
	TradingDates []string `json:"trading_dates"`
	Holidays     []string `json:"holidays"`
}

// Instrument is the static reference record of one listed instrument.
type Instrument struct {
	StockCode      string  `json:"stock_code"`
	DisplayName    string  `json:"display_name"`
	ExchangeID     string  `json:"exchange_id"`
	InstrumentType string  `json:"instrument_type"`
	LotSize        int64   `json:"lot_size"`
	PreClose       float64 `json:"pre_close"`
	UpStopPrice    float64 `json:"up_stop_price"`
	DownStopPrice  float64 `json:"down_stop_price"`
	ListedDate     string  `json:"listed_date"`
	TotalVolume    int64   `json:"total_volume"`
	FloatVolume    int64   `json:"float_volume"`
}

// ConvertibleBond is one row of the convertible bond reference table.
type ConvertibleBond struct {
	BondCode     string  `json:"bond_code"`
	BondName     string  `json:"bond_name"`
	StockCode    string  `json:"stock_code"`
	ConvertPrice float64 `json:"convert_price"`
	ListedDate   string  `json:"listed_date"`
	MaturityDate string  `json:"maturity_date"`
}

// IPO is one row of the new-issue reference table.
type IPO struct {
	StockCode  string  `json:"stock_code"`
	Name       string  `json:"name"`
	Market     string  `json:"market"`
	IssuePrice float64 `json:"issue_price"`
	ListedDate string  `json:"listed_date"`
}

// DividFactor is one ex-dividend adjustment record for a symbol.
type DividFactor struct {
	Date          string  `json:"date"`
	CashDividend  float64 `json:"cash_dividend"`  // per share
	ShareDividend float64 `json:"share_dividend"` // bonus shares per share
	Factor        float64 `json:"factor"`         // cumulative adjust factor
}

// L2Quote is one level-2 quote snapshot with ten book levels.
type L2Quote struct {
	StockCode  string    `json:"stock_code"`
	Time       int64     `json:"time"`
	LastPrice  float64   `json:"last_price"`
	BidPrices  []float64 `json:"bid_prices"`
	BidVolumes []int64   `json:"bid_volumes"`
	AskPrices  []float64 `json:"ask_prices"`
	AskVolumes []int64   `json:"ask_volumes"`
}

// L2Order is one level-2 order event.
type L2Order struct {
	StockCode string    `json:"stock_code"`
	Time      int64     `json:"time"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Side      OrderSide `json:"side"`
	OrderNo   int64     `json:"order_no"`
}

// L2Transaction is one level-2 trade print.
type L2Transaction struct {
	StockCode string  `json:"stock_code"`
	Time      int64   `json:"time"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Amount    float64 `json:"amount"`
	BuyNo     int64   `json:"buy_no"`
	SellNo    int64   `json:"sell_no"`
	TradeFlag string  `json:"trade_flag"`
}

// DownloadRequest asks the adapter to pull history into the data dir.
type DownloadRequest struct {
	Kind      string   `json:"download_type"` // "history" or "financial"
	Symbols   []string `json:"stock_codes"`
	Period    Period   `json:"period"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

// DownloadTask is the server-side record of a history download.
type DownloadTask struct {
	TaskID    string        `json:"task_id"`
	Kind      string        `json:"download_type"`
	Symbols   []string      `json:"stock_codes"`
	Period    Period        `json:"period"`
	State     DownloadState `json:"status"`
	Progress  float64       `json:"progress"` // 0..1
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// OrderRequest is the validated input of a place-order call.
type OrderRequest struct {
	StockCode string
	Side      OrderSide
	Type      OrderType
	Volume    int64
	Price     float64 // required for LIMIT, ignored for MARKET
}

// OrderRecord is the gateway's view of one order. Simulated marks records
// synthesized by the policy gate that never reached the broker.
type OrderRecord struct {
	OrderID      string      `json:"order_id"`
	StockCode    string      `json:"stock_code"`
	Side         OrderSide   `json:"side"`
	Type         OrderType   `json:"order_type"`
	Volume       int64       `json:"volume"`
	Price        float64     `json:"price,omitempty"`
	Status       OrderStatus `json:"status"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	FilledVolume int64       `json:"filled_volume"`
	FilledAmount float64     `json:"filled_amount"`
	AvgPrice     float64     `json:"avg_price,omitempty"`
	Simulated    bool        `json:"simulated"`
}

// CancelResult acknowledges a cancel request.
type CancelResult struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
	Simulated bool   `json:"simulated"`
}

// Position is one holding of an account.
type Position struct {
	StockCode       string  `json:"stock_code"`
	Volume          int64   `json:"volume"`
	AvailableVolume int64   `json:"available_volume"`
	AvgPrice        float64 `json:"avg_price"`
	MarketValue     float64 `json:"market_value"`
}

// Asset is the cash and value snapshot of an account.
type Asset struct {
	AccountID   string  `json:"account_id"`
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
	TotalValue  float64 `json:"total_value"`
}

// TradeFill is one execution of an order.
type TradeFill struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	StockCode string    `json:"stock_code"`
	Side      OrderSide `json:"side"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Amount    float64   `json:"amount"`
	TradedAt  time.Time `json:"traded_at"`
}

// AccountInfo is the session-scoped account descriptor returned by connect
// and the account endpoint.
type AccountInfo struct {
	AccountID   string      `json:"account_id"`
	AccountType AccountType `json:"account_type"`
	Status      string      `json:"status"`
	ConnectedAt time.Time   `json:"connected_at"`
}

// RiskSummary aggregates a session's exposure for the risk endpoint.
type RiskSummary struct {
	AccountID        string   `json:"account_id"`
	TotalValue       float64  `json:"total_value"`
	Cash             float64  `json:"cash"`
	MarketValue      float64  `json:"market_value"`
	PositionCount    int      `json:"position_count"`
	MaxPositionValue float64  `json:"max_position_value"` // configured cap, 0 = unlimited
	Concentration    float64  `json:"concentration"`      // largest position / market value
	Breaches         []string `json:"breaches,omitempty"`
}

// SubscriptionInfo is the introspection view of one live subscription.
type SubscriptionInfo struct {
	SubscriptionID string           `json:"subscription_id"`
	Symbols        []string         `json:"symbols"`
	Adjust         AdjustMode       `json:"adjust_type"`
	Kind           SubscriptionKind `json:"subscription_type"`
	Status         string           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	QueueLength    int              `json:"queue_length"`
	Dropped        uint64           `json:"dropped"`
}
