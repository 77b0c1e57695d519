package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"quantgate/internal/apperr"
)

// bindJSON decodes the request body, converting decode failures into the
// taxonomy instead of gin's default 400 text.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.InvalidArgument("malformed request body: %v", err))
		return false
	}
	return true
}

type rangeRequest struct {
	StockCodes []string `json:"stock_codes"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Period     string   `json:"period"`
	Fields     []string `json:"fields"`
	AdjustType string   `json:"adjust_type"`
	TableList  []string `json:"table_list"`
}

func (s *Server) handleMarketData(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.MarketData(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate, req.Period, req.Fields, req.AdjustType)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleFinancial(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.Financial(c.Request.Context(), req.StockCodes, req.TableList, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleTickRange(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.TickRange(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleKlineRange(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.KlineRange(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate, req.Period)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleFullTick(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.FullTick(c.Request.Context(), req.StockCodes)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleL2Quote(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.L2Quote(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleL2Order(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.L2Order(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleL2Transaction(c *gin.Context) {
	var req rangeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.L2Transaction(c.Request.Context(), req.StockCodes, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleSectors(c *gin.Context) {
	out, err := s.data.Sectors(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"sectors": out, "total": len(out)})
}

func (s *Server) handleSectorLookup(c *gin.Context) {
	var req struct {
		SectorName string `json:"sector_name"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.Sector(c.Request.Context(), req.SectorName)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleSectorUpsert(c *gin.Context) {
	var req struct {
		StockList []string `json:"stock_list"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.CreateSector(c.Request.Context(), c.Param("name"), req.StockList)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleSectorRemove(c *gin.Context) {
	if err := s.data.RemoveSector(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	respond(c, nil)
}

func (s *Server) handleIndexWeight(c *gin.Context) {
	var req struct {
		IndexCode string `json:"index_code"`
		Date      string `json:"date"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.data.IndexWeight(c.Request.Context(), req.IndexCode, req.Date)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleTradingCalendar(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		fail(c, apperr.InvalidArgument("invalid year %q", c.Param("year")))
		return
	}
	out, err := s.data.TradingCalendar(c.Request.Context(), year)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleInstrument(c *gin.Context) {
	out, err := s.data.InstrumentInfo(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleHolidays(c *gin.Context) {
	out, err := s.data.Holidays(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"holidays": out})
}

func (s *Server) handlePeriods(c *gin.Context) {
	out, err := s.data.Periods(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"periods": out})
}

func (s *Server) handleDataDir(c *gin.Context) {
	out, err := s.data.DataDir(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"data_dir": out})
}

func (s *Server) handleCBInfo(c *gin.Context) {
	out, err := s.data.CBInfo(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleIPOInfo(c *gin.Context) {
	out, err := s.data.IPOInfo(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleDividFactors(c *gin.Context) {
	out, err := s.data.DividFactors(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, out)
}

func (s *Server) handleStartDownload(c *gin.Context) {
	var req struct {
		DownloadType string   `json:"download_type"`
		StockCodes   []string `json:"stock_codes"`
		Period       string   `json:"period"`
		StartDate    string   `json:"start_date"`
		EndDate      string   `json:"end_date"`
	}
	if !bindJSON(c, &req) {
		return
	}
	task, err := s.data.StartDownload(c.Request.Context(), req.DownloadType, req.StockCodes, req.Period, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, task)
}

func (s *Server) handleDownloadStatus(c *gin.Context) {
	task, err := s.data.DownloadStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, task)
}

func (s *Server) handleCreateSubscription(c *gin.Context) {
	var req struct {
		Symbols          []string `json:"symbols"`
		AdjustType       string   `json:"adjust_type"`
		SubscriptionType string   `json:"subscription_type"`
	}
	if !bindJSON(c, &req) {
		return
	}
	info, err := s.data.Subscribe(c.Request.Context(), req.Symbols, req.AdjustType, req.SubscriptionType)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, info)
}

func (s *Server) handleGetSubscription(c *gin.Context) {
	info, err := s.data.Subscription(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, info)
}

func (s *Server) handleRemoveSubscription(c *gin.Context) {
	if err := s.data.Unsubscribe(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respond(c, nil)
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	subs := s.data.Subscriptions()
	respond(c, gin.H{"subscriptions": subs, "total": len(subs)})
}
