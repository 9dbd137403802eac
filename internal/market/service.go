package market

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/types"
	"github.com/tradesim/tradesim-api/pkg/response"
)

// Service exposes market state, candle queries and external tick ingestion.
type Service struct {
	db     *Database
	engine *Engine
	agg    *Aggregator
}

func NewService(gormDB *gorm.DB, engine *Engine, agg *Aggregator) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		engine: engine,
		agg:    agg,
	}
}

// State returns the settings plus current price for the engine's symbol.
func (s *Service) State() MarketState {
	return s.engine.State()
}

// Candles serves candle queries at any timeframe.
func (s *Service) Candles(symbol, timeframe string, limit int, from, to int64) ([]Candle, error) {
	if symbol == "" {
		symbol = s.engine.Symbol()
	}
	return s.agg.QueryCandles(symbol, timeframe, limit, from, to)
}

// IngestTick folds an externally reported observation through the same
// bucketing path the engine uses, for instruments the engine does not
// synthesize itself.
func (s *Service) IngestTick(symbol string, price float64, ts int64, volume float64) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", types.ErrInvalidInput)
	}
	if ts <= 0 {
		ts = time.Now().Unix()
	}
	if err := s.db.AppendTick(symbol, price, ts); err != nil {
		return err
	}
	return s.agg.FoldTick(symbol, price, ts, volume)
}

// GinHandlers contains HTTP handlers for market data endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetMarketStateHandler handles GET requests for settings + current price.
func (h *GinHandlers) GetMarketStateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.State())
	}
}

// GetCandlesHandler handles GET requests for candle history.
// Query parameters: symbol, timeframe, limit, from, to.
func (h *GinHandlers) GetCandlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var query struct {
			Symbol    string `form:"symbol"`
			Timeframe string `form:"timeframe"`
			Limit     int    `form:"limit"`
			From      int64  `form:"from"`
			To        int64  `form:"to"`
		}
		if err := c.ShouldBindQuery(&query); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		candles, err := h.service.Candles(query.Symbol, query.Timeframe, query.Limit, query.From, query.To)
		response.Handle(c, candles, err)
	}
}

// IngestTickHandler handles POST requests reporting observed prices.
func (h *GinHandlers) IngestTickHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Symbol    string  `json:"symbol" binding:"required"`
			Price     float64 `json:"price" binding:"required"`
			Timestamp int64   `json:"timestamp"`
			Volume    float64 `json:"volume"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.IngestTick(body.Symbol, body.Price, body.Timestamp, body.Volume); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "tick recorded"})
	}
}
