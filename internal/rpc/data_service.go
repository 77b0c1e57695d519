package rpc

import (
	"context"

	"google.golang.org/grpc"

	"quantgate/internal/service"
	"quantgate/pkg/types"
)

// DataServiceName is the fully qualified name of the market data service.
const DataServiceName = "quantgate.v1.DataService"

// DataServiceServer is the server contract of quantgate.v1.DataService. It
// mirrors the HTTP data routes one to one.
type DataServiceServer interface {
	GetMarketData(ctx context.Context, req *GetMarketDataRequest) (*Response[[]types.SymbolBars], error)
	GetFinancial(ctx context.Context, req *GetFinancialRequest) (*Response[[]types.FinancialTable], error)
	GetTickRange(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.TickFrame], error)
	GetKlineRange(ctx context.Context, req *GetKlineRangeRequest) (*Response[[]types.SymbolBars], error)
	GetFullTick(ctx context.Context, req *GetFullTickRequest) (*Response[[]types.TickFrame], error)
	GetL2Quote(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Quote], error)
	GetL2Order(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Order], error)
	GetL2Transaction(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Transaction], error)
	GetSectorList(ctx context.Context, req *Empty) (*Response[SectorList], error)
	GetStocksInSector(ctx context.Context, req *GetStocksInSectorRequest) (*Response[types.Sector], error)
	CreateSector(ctx context.Context, req *CreateSectorRequest) (*Response[types.Sector], error)
	RemoveSector(ctx context.Context, req *RemoveSectorRequest) (*Response[Empty], error)
	GetIndexWeight(ctx context.Context, req *GetIndexWeightRequest) (*Response[types.IndexWeights], error)
	GetTradingCalendar(ctx context.Context, req *GetTradingCalendarRequest) (*Response[types.TradingCalendar], error)
	GetInstrumentInfo(ctx context.Context, req *GetInstrumentInfoRequest) (*Response[types.Instrument], error)
	GetHolidays(ctx context.Context, req *Empty) (*Response[HolidayList], error)
	GetPeriodList(ctx context.Context, req *Empty) (*Response[PeriodList], error)
	GetDataDir(ctx context.Context, req *Empty) (*Response[DataDirInfo], error)
	GetCBInfo(ctx context.Context, req *Empty) (*Response[[]types.ConvertibleBond], error)
	GetIPOInfo(ctx context.Context, req *Empty) (*Response[[]types.IPO], error)
	GetDividFactors(ctx context.Context, req *GetDividFactorsRequest) (*Response[[]types.DividFactor], error)
	StartDownload(ctx context.Context, req *StartDownloadRequest) (*Response[types.DownloadTask], error)
	GetDownloadStatus(ctx context.Context, req *GetDownloadStatusRequest) (*Response[types.DownloadTask], error)
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*Response[types.SubscriptionInfo], error)
	RemoveSubscription(ctx context.Context, req *SubscriptionRequest) (*Response[Empty], error)
	GetSubscription(ctx context.Context, req *SubscriptionRequest) (*Response[types.SubscriptionInfo], error)
	ListSubscriptions(ctx context.Context, req *Empty) (*Response[SubscriptionList], error)
}

// DataServer serves quantgate.v1.DataService on top of the data service.
type DataServer struct {
	svc *service.Data
}

func NewDataServer(svc *service.Data) *DataServer {
	return &DataServer{svc: svc}
}

func (s *DataServer) GetMarketData(ctx context.Context, req *GetMarketDataRequest) (*Response[[]types.SymbolBars], error) {
	period, err := fromWire(req.Period, types.PeriodFromValue)
	if err != nil {
		return nil, err
	}
	adjust, err := fromWire(req.AdjustType, types.AdjustFromValue)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.MarketData(ctx, req.StockCodes, req.StartDate, req.EndDate, string(period), req.Fields, string(adjust))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetFinancial(ctx context.Context, req *GetFinancialRequest) (*Response[[]types.FinancialTable], error) {
	out, err := s.svc.Financial(ctx, req.StockCodes, req.TableList, req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetTickRange(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.TickFrame], error) {
	out, err := s.svc.TickRange(ctx, req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetKlineRange(ctx context.Context, req *GetKlineRangeRequest) (*Response[[]types.SymbolBars], error) {
	period, err := fromWire(req.Period, types.PeriodFromValue)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.KlineRange(ctx, req.StockCodes, req.StartDate, req.EndDate, string(period))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetFullTick(ctx context.Context, req *GetFullTickRequest) (*Response[[]types.TickFrame], error) {
	out, err := s.svc.FullTick(ctx, req.StockCodes)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetL2Quote(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Quote], error) {
	out, err := s.svc.L2Quote(ctx, req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetL2Order(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Order], error) {
	out, err := s.svc.L2Order(ctx, req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetL2Transaction(ctx context.Context, req *GetRangeRequest) (*Response[map[string][]types.L2Transaction], error) {
	out, err := s.svc.L2Transaction(ctx, req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetSectorList(ctx context.Context, _ *Empty) (*Response[SectorList], error) {
	names, err := s.svc.Sectors(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(SectorList{Sectors: names, Total: len(names)}), nil
}

func (s *DataServer) GetStocksInSector(ctx context.Context, req *GetStocksInSectorRequest) (*Response[types.Sector], error) {
	sector, err := s.svc.Sector(ctx, req.SectorName)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(sector), nil
}

func (s *DataServer) CreateSector(ctx context.Context, req *CreateSectorRequest) (*Response[types.Sector], error) {
	sector, err := s.svc.CreateSector(ctx, req.SectorName, req.StockList)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(sector), nil
}

func (s *DataServer) RemoveSector(ctx context.Context, req *RemoveSectorRequest) (*Response[Empty], error) {
	if err := s.svc.RemoveSector(ctx, req.SectorName); err != nil {
		return nil, rpcError(err)
	}
	return reply(Empty{}), nil
}

func (s *DataServer) GetIndexWeight(ctx context.Context, req *GetIndexWeightRequest) (*Response[types.IndexWeights], error) {
	out, err := s.svc.IndexWeight(ctx, req.IndexCode, req.Date)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetTradingCalendar(ctx context.Context, req *GetTradingCalendarRequest) (*Response[types.TradingCalendar], error) {
	out, err := s.svc.TradingCalendar(ctx, int(req.Year))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetInstrumentInfo(ctx context.Context, req *GetInstrumentInfoRequest) (*Response[types.Instrument], error) {
	out, err := s.svc.InstrumentInfo(ctx, req.StockCode)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetHolidays(ctx context.Context, _ *Empty) (*Response[HolidayList], error) {
	days, err := s.svc.Holidays(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(HolidayList{Holidays: days}), nil
}

func (s *DataServer) GetPeriodList(ctx context.Context, _ *Empty) (*Response[PeriodList], error) {
	periods, err := s.svc.Periods(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(PeriodList{Periods: periods}), nil
}

func (s *DataServer) GetDataDir(ctx context.Context, _ *Empty) (*Response[DataDirInfo], error) {
	dir, err := s.svc.DataDir(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(DataDirInfo{DataDir: dir}), nil
}

func (s *DataServer) GetCBInfo(ctx context.Context, _ *Empty) (*Response[[]types.ConvertibleBond], error) {
	out, err := s.svc.CBInfo(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetIPOInfo(ctx context.Context, _ *Empty) (*Response[[]types.IPO], error) {
	out, err := s.svc.IPOInfo(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) GetDividFactors(ctx context.Context, req *GetDividFactorsRequest) (*Response[[]types.DividFactor], error) {
	out, err := s.svc.DividFactors(ctx, req.StockCode)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(out), nil
}

func (s *DataServer) StartDownload(ctx context.Context, req *StartDownloadRequest) (*Response[types.DownloadTask], error) {
	period, err := fromWire(req.Period, types.PeriodFromValue)
	if err != nil {
		return nil, err
	}
	task, err := s.svc.StartDownload(ctx, req.DownloadType, req.StockCodes, string(period), req.StartDate, req.EndDate)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(task), nil
}

func (s *DataServer) GetDownloadStatus(ctx context.Context, req *GetDownloadStatusRequest) (*Response[types.DownloadTask], error) {
	task, err := s.svc.DownloadStatus(ctx, req.TaskID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(task), nil
}

func (s *DataServer) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*Response[types.SubscriptionInfo], error) {
	adjust, err := fromWire(req.AdjustType, types.AdjustFromValue)
	if err != nil {
		return nil, err
	}
	sub, err := s.svc.Subscribe(ctx, req.Symbols, string(adjust), req.SubscriptionType)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(sub), nil
}

func (s *DataServer) RemoveSubscription(ctx context.Context, req *SubscriptionRequest) (*Response[Empty], error) {
	if err := s.svc.Unsubscribe(ctx, req.SubscriptionID); err != nil {
		return nil, rpcError(err)
	}
	return reply(Empty{}), nil
}

func (s *DataServer) GetSubscription(ctx context.Context, req *SubscriptionRequest) (*Response[types.SubscriptionInfo], error) {
	sub, err := s.svc.Subscription(req.SubscriptionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(sub), nil
}

func (s *DataServer) ListSubscriptions(ctx context.Context, _ *Empty) (*Response[SubscriptionList], error) {
	subs := s.svc.Subscriptions()
	return reply(SubscriptionList{Subscriptions: subs, Total: len(subs)}), nil
}

// DataService_ServiceDesc is the hand-written descriptor for
// quantgate.v1.DataService, in the shape protoc would emit.
var DataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: DataServiceName,
	HandlerType: (*DataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(DataServiceName, "GetMarketData", func(ctx context.Context, srv any, req *GetMarketDataRequest) (any, error) {
			return srv.(DataServiceServer).GetMarketData(ctx, req)
		}),
		unary(DataServiceName, "GetFinancial", func(ctx context.Context, srv any, req *GetFinancialRequest) (any, error) {
			return srv.(DataServiceServer).GetFinancial(ctx, req)
		}),
		unary(DataServiceName, "GetTickRange", func(ctx context.Context, srv any, req *GetRangeRequest) (any, error) {
			return srv.(DataServiceServer).GetTickRange(ctx, req)
		}),
		unary(DataServiceName, "GetKlineRange", func(ctx context.Context, srv any, req *GetKlineRangeRequest) (any, error) {
			return srv.(DataServiceServer).GetKlineRange(ctx, req)
		}),
		unary(DataServiceName, "GetFullTick", func(ctx context.Context, srv any, req *GetFullTickRequest) (any, error) {
			return srv.(DataServiceServer).GetFullTick(ctx, req)
		}),
		unary(DataServiceName, "GetL2Quote", func(ctx context.Context, srv any, req *GetRangeRequest) (any, error) {
			return srv.(DataServiceServer).GetL2Quote(ctx, req)
		}),
		unary(DataServiceName, "GetL2Order", func(ctx context.Context, srv any, req *GetRangeRequest) (any, error) {
			return srv.(DataServiceServer).GetL2Order(ctx, req)
		}),
		unary(DataServiceName, "GetL2Transaction", func(ctx context.Context, srv any, req *GetRangeRequest) (any, error) {
			return srv.(DataServiceServer).GetL2Transaction(ctx, req)
		}),
		unary(DataServiceName, "GetSectorList", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetSectorList(ctx, req)
		}),
		unary(DataServiceName, "GetStocksInSector", func(ctx context.Context, srv any, req *GetStocksInSectorRequest) (any, error) {
			return srv.(DataServiceServer).GetStocksInSector(ctx, req)
		}),
		unary(DataServiceName, "CreateSector", func(ctx context.Context, srv any, req *CreateSectorRequest) (any, error) {
			return srv.(DataServiceServer).CreateSector(ctx, req)
		}),
		unary(DataServiceName, "RemoveSector", func(ctx context.Context, srv any, req *RemoveSectorRequest) (any, error) {
			return srv.(DataServiceServer).RemoveSector(ctx, req)
		}),
		unary(DataServiceName, "GetIndexWeight", func(ctx context.Context, srv any, req *GetIndexWeightRequest) (any, error) {
			return srv.(DataServiceServer).GetIndexWeight(ctx, req)
		}),
		unary(DataServiceName, "GetTradingCalendar", func(ctx context.Context, srv any, req *GetTradingCalendarRequest) (any, error) {
			return srv.(DataServiceServer).GetTradingCalendar(ctx, req)
		}),
		unary(DataServiceName, "GetInstrumentInfo", func(ctx context.Context, srv any, req *GetInstrumentInfoRequest) (any, error) {
			return srv.(DataServiceServer).GetInstrumentInfo(ctx, req)
		}),
		unary(DataServiceName, "GetHolidays", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetHolidays(ctx, req)
		}),
		unary(DataServiceName, "GetPeriodList", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetPeriodList(ctx, req)
		}),
		unary(DataServiceName, "GetDataDir", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetDataDir(ctx, req)
		}),
		unary(DataServiceName, "GetCBInfo", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetCBInfo(ctx, req)
		}),
		unary(DataServiceName, "GetIPOInfo", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).GetIPOInfo(ctx, req)
		}),
		unary(DataServiceName, "GetDividFactors", func(ctx context.Context, srv any, req *GetDividFactorsRequest) (any, error) {
			return srv.(DataServiceServer).GetDividFactors(ctx, req)
		}),
		unary(DataServiceName, "StartDownload", func(ctx context.Context, srv any, req *StartDownloadRequest) (any, error) {
			return srv.(DataServiceServer).StartDownload(ctx, req)
		}),
		unary(DataServiceName, "GetDownloadStatus", func(ctx context.Context, srv any, req *GetDownloadStatusRequest) (any, error) {
			return srv.(DataServiceServer).GetDownloadStatus(ctx, req)
		}),
		unary(DataServiceName, "CreateSubscription", func(ctx context.Context, srv any, req *CreateSubscriptionRequest) (any, error) {
			return srv.(DataServiceServer).CreateSubscription(ctx, req)
		}),
		unary(DataServiceName, "RemoveSubscription", func(ctx context.Context, srv any, req *SubscriptionRequest) (any, error) {
			return srv.(DataServiceServer).RemoveSubscription(ctx, req)
		}),
		unary(DataServiceName, "GetSubscription", func(ctx context.Context, srv any, req *SubscriptionRequest) (any, error) {
			return srv.(DataServiceServer).GetSubscription(ctx, req)
		}),
		unary(DataServiceName, "ListSubscriptions", func(ctx context.Context, srv any, req *Empty) (any, error) {
			return srv.(DataServiceServer).ListSubscriptions(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantgate/v1/data_service",
}
