package api

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) handleConnect(c *gin.Context) {
	var req struct {
		AccountID   string `json:"account_id"`
		Password    string `json:"password"`
		AccountType string `json:"account_type"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.trading.Connect(c.Request.Context(), req.AccountID, req.Password, req.AccountType)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, res)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.trading.Disconnect(c.Request.Context(), c.Param("sid")); err != nil {
		fail(c, err)
		return
	}
	respond(c, nil)
}

func (s *Server) handleAccount(c *gin.Context) {
	info, err := s.trading.AccountInfo(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, info)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.trading.Positions(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"positions": positions, "total": len(positions)})
}

func (s *Server) handleAsset(c *gin.Context) {
	asset, err := s.trading.Asset(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, asset)
}

func (s *Server) handleRisk(c *gin.Context) {
	summary, err := s.trading.RiskSummary(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, summary)
}

func (s *Server) handleOrders(c *gin.Context) {
	orders, err := s.trading.Orders(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"orders": orders, "total": len(orders)})
}

func (s *Server) handleTrades(c *gin.Context) {
	trades, err := s.trading.Trades(c.Request.Context(), c.Param("sid"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"trades": trades, "total": len(trades)})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req struct {
		StockCode string  `json:"stock_code"`
		Side      string  `json:"side"`
		OrderType string  `json:"order_type"`
		Volume    int64   `json:"volume"`
		Price     float64 `json:"price"`
	}
	if !bindJSON(c, &req) {
		return
	}
	rec, err := s.trading.PlaceOrder(c.Request.Context(), c.Param("sid"), req.StockCode, req.Side, req.OrderType, req.Volume, req.Price)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, rec)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.trading.CancelOrder(c.Request.Context(), c.Param("sid"), req.OrderID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, res)
}
