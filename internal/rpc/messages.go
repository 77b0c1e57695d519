package rpc

import (
	"quantgate/internal/apperr"
	"quantgate/pkg/types"
)

// Status heads every unary response. Code carries the gateway's stable error
// code, zero is OK. Failed calls surface as gRPC status errors rather than
// response bodies, so Code is zero on every message actually delivered.
type Status struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func okStatus() Status {
	return Status{Code: int32(apperr.CodeOK), Message: "ok"}
}

// Response is the unary reply envelope. Data uses the same field names and
// shapes as the HTTP surface, so the two codecs stay interchangeable.
type Response[T any] struct {
	Status Status `json:"status"`
	Data   T      `json:"data"`
}

func reply[T any](data T) *Response[T] {
	return &Response[T]{Status: okStatus(), Data: data}
}

// Empty is the request and payload type of operations that carry nothing.
type Empty struct{}

// Enum-valued request fields travel as stable integers, matching the vendor
// library's wire constants: periods 1..9 (tick..1mon, 0 means daily), adjust
// 0..2 (none, front, back), sides 1..2 (buy, sell), order types 1..2 (limit,
// market), account types 1..3 (security, credit, future, 0 means security).

type GetMarketDataRequest struct {
	StockCodes []string `json:"stock_codes"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Period     int32    `json:"period"`
	Fields     []string `json:"fields"`
	AdjustType int32    `json:"adjust_type"`
}

type GetFinancialRequest struct {
	StockCodes []string `json:"stock_codes"`
	TableList  []string `json:"table_list"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
}

// GetRangeRequest is shared by the tick and level-2 history operations.
type GetRangeRequest struct {
	StockCodes []string `json:"stock_codes"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
}

type GetKlineRangeRequest struct {
	StockCodes []string `json:"stock_codes"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Period     int32    `json:"period"`
}

type GetFullTickRequest struct {
	StockCodes []string `json:"stock_codes"`
}

type GetStocksInSectorRequest struct {
	SectorName string `json:"sector_name"`
}

type CreateSectorRequest struct {
	SectorName string   `json:"sector_name"`
	StockList  []string `json:"stock_list"`
}

type RemoveSectorRequest struct {
	SectorName string `json:"sector_name"`
}

type GetIndexWeightRequest struct {
	IndexCode string `json:"index_code"`
	Date      string `json:"date"`
}

type GetTradingCalendarRequest struct {
	Year int32 `json:"year"`
}

type GetInstrumentInfoRequest struct {
	StockCode string `json:"stock_code"`
}

type GetDividFactorsRequest struct {
	StockCode string `json:"stock_code"`
}

type StartDownloadRequest struct {
	DownloadType string   `json:"download_type"`
	StockCodes   []string `json:"stock_codes"`
	Period       int32    `json:"period"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
}

type GetDownloadStatusRequest struct {
	TaskID string `json:"task_id"`
}

type CreateSubscriptionRequest struct {
	Symbols          []string `json:"symbols"`
	AdjustType       int32    `json:"adjust_type"`
	SubscriptionType string   `json:"subscription_type"`
}

// SubscriptionRequest addresses an existing subscription by id.
type SubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

type ConnectRequest struct {
	AccountID   string `json:"account_id"`
	Password    string `json:"password"`
	AccountType int32  `json:"account_type"`
}

// SessionRequest addresses an established trading session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type PlaceOrderRequest struct {
	SessionID string  `json:"session_id"`
	StockCode string  `json:"stock_code"`
	Side      int32   `json:"side"`
	OrderType int32   `json:"order_type"`
	Volume    int64   `json:"volume"`
	Price     float64 `json:"price"`
}

type CancelOrderRequest struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// List payloads mirror the HTTP handlers' wrapped collections.

type SectorList struct {
	Sectors []string `json:"sectors"`
	Total   int      `json:"total"`
}

type HolidayList struct {
	Holidays []string `json:"holidays"`
}

type PeriodList struct {
	Periods []string `json:"periods"`
}

type DataDirInfo struct {
	DataDir string `json:"data_dir"`
}

type SubscriptionList struct {
	Subscriptions []types.SubscriptionInfo `json:"subscriptions"`
	Total         int                      `json:"total"`
}

type PositionList struct {
	Positions []types.Position `json:"positions"`
	Total     int              `json:"total"`
}

type OrderList struct {
	Orders []types.OrderRecord `json:"orders"`
	Total  int                 `json:"total"`
}

type TradeList struct {
	Trades []types.TradeFill `json:"trades"`
	Total  int               `json:"total"`
}
