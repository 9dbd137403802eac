package binary

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradesim/tradesim-api/pkg/middleware"
	"github.com/tradesim/tradesim-api/pkg/response"
)

// GinHandlers contains HTTP handlers for binary option endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PlaceTradeHandler handles POST requests to place a contract.
func (h *GinHandlers) PlaceTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var body struct {
			Direction string  `json:"direction" binding:"required"`
			Stake     float64 `json:"stake" binding:"required"`
			Duration  int64   `json:"duration" binding:"required"`
			Symbol    string  `json:"symbol"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Place(userID, body.Direction, body.Stake, body.Duration, body.Symbol)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		ov, err := h.service.Overview(userID, 20)
		response.Handle(c, gin.H{"trade": trade, "overview": ov}, err)
	}
}

// OverviewHandler handles GET requests for the binary account overview.
// The read triggers the settlement sweep. Query parameter: limit.
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
