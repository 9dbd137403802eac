package spot

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradesim/tradesim-api/pkg/middleware"
	"github.com/tradesim/tradesim-api/pkg/response"
)

// GinHandlers contains HTTP handlers for spot trade endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// OpenTradeHandler handles POST requests to open a position.
func (h *GinHandlers) OpenTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var body struct {
			Side   string  `json:"side" binding:"required"`
			Amount float64 `json:"amount" binding:"required"`
			Symbol string  `json:"symbol"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Open(userID, body.Side, body.Amount, body.Symbol)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		ov, err := h.service.Overview(userID, 20)
		response.Handle(c, gin.H{"trade": trade, "overview": ov}, err)
	}
}

// CloseTradeHandler handles POST requests to close one position.
// URL parameter: trade_id.
func (h *GinHandlers) CloseTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		trade, err := h.service.Close(userID, c.Param("trade_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		ov, err := h.service.Overview(userID, 20)
		response.Handle(c, gin.H{"trade": trade, "realized_pnl": trade.RealizedPnl, "overview": ov}, err)
	}
}

// CloseAllTradesHandler handles POST requests to close every open position.
func (h *GinHandlers) CloseAllTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		result, err := h.service.CloseAll(userID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		result.Overview, err = h.service.Overview(userID, 20)
		response.Handle(c, result, err)
	}
}

// OverviewHandler handles GET requests for the spot account overview.
// Query parameter: limit.
func (h *GinHandlers) OverviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		ov, err := h.service.Overview(userID, limit)
		response.Handle(c, ov, err)
	}
}

// LeaderboardHandler handles GET requests for the realized-P&L ranking.
func (h *GinHandlers) LeaderboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.service.Leaderboard()
		response.Handle(c, entries, err)
	}
}
