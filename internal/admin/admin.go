package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/pkg/response"
)

// Service exposes the privileged market controls: price overrides, walk
// tuning, and the full simulator reset.
type Service struct {
	db     *Database
	engine *market.Engine
}

func NewService(gormDB *gorm.DB, ledgerDB *ledger.Database, engine *market.Engine) *Service {
	return &Service{
		db:     NewDatabase(gormDB, ledgerDB),
		engine: engine,
	}
}

func (s *Service) SetPrice(p float64) error {
	return s.engine.SetPrice(p)
}

func (s *Service) SetVolatility(v float64) error {
	return s.engine.SetVolatility(v)
}

func (s *Service) Pause() error  { return s.engine.Pause() }
func (s *Service) Resume() error { return s.engine.Resume() }

func (s *Service) Pump(percentage float64) (float64, error) {
	return s.engine.Pump(percentage)
}

// Reset restores the engine to its base price (optionally with new
// settings), clears all trade/tick/candle history and re-funds every
// balance.
func (s *Service) Reset(opts market.ResetOptions) error {
	if err := s.db.WipeHistory(); err != nil {
		return err
	}
	if err := s.engine.Reset(opts); err != nil {
		return err
	}

	log.Info().
		Str("service", "admin").
		Float64("base_price", s.engine.Settings().BasePrice).
		Msg("simulator reset")

	return nil
}

// GinHandlers contains HTTP handlers for the privileged endpoints. All of
// them sit behind the admin auth middleware.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) SetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Price float64 `json:"price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.service.SetPrice(body.Price); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"price": body.Price})
	}
}

func (h *GinHandlers) SetVolatilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Volatility *float64 `json:"volatility" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.service.SetVolatility(*body.Volatility); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"volatility": *body.Volatility})
	}
}

func (h *GinHandlers) PauseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Pause(); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"paused": true})
	}
}

func (h *GinHandlers) ResumeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Resume(); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"paused": false})
	}
}

func (h *GinHandlers) PumpHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Percentage float64 `json:"percentage" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		price, err := h.service.Pump(body.Percentage)
		response.Handle(c, gin.H{"price": price}, err)
	}
}

func (h *GinHandlers) ResetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			BasePrice  *float64 `json:"base_price"`
			Volatility *float64 `json:"volatility"`
			PipSize    *float64 `json:"pip_size"`
		}
		// Body is optional; an empty reset keeps current settings.
		_ = c.ShouldBindJSON(&body)

		err := h.service.Reset(market.ResetOptions{
			BasePrice:  body.BasePrice,
			Volatility: body.Volatility,
			PipSize:    body.PipSize,
		})
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "simulator reset"})
	}
}
