package market

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Ticker is the single periodic driver of the price walk. Everything else in
// the system is request-triggered; this is the only background loop.
type Ticker struct {
	engine   *Engine
	interval time.Duration
}

func NewTicker(engine *Engine, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{engine: engine, interval: interval}
}

// Start runs the advance loop until ctx is cancelled.
func (t *Ticker) Start(ctx context.Context) {
	logger := log.With().Str("component", "price_ticker").Str("symbol", t.engine.Symbol()).Logger()
	logger.Info().Dur("interval", t.interval).Msg("starting price ticker")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down price ticker")
			return
		case <-ticker.C:
			price := t.engine.Advance()
			logger.Debug().Float64("price", price).Msg("advanced price")
		}
	}
}
