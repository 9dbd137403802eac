package market

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradesim/tradesim-api/internal/types"
)

// PriceFloor is the lowest price the walk can reach; keeps the series
// strictly positive.
const PriceFloor = 1.0

// Engine owns the synthetic price for one symbol. All methods are safe for
// concurrent use; the walk itself is advanced by a single Ticker goroutine.
type Engine struct {
	mu       sync.RWMutex
	db       *Database
	agg      *Aggregator
	symbol   string
	settings MarketSettings
	price    float64
	rng      *rand.Rand
}

// NewEngine loads (or seeds) settings for symbol and positions the price at
// the base price.
func NewEngine(db *Database, agg *Aggregator, symbol string, defaults MarketSettings) (*Engine, error) {
	settings, err := db.GetOrInitSettings(symbol, defaults)
	if err != nil {
		return nil, err
	}
	return &Engine{
		db:       db,
		agg:      agg,
		symbol:   symbol,
		settings: *settings,
		price:    settings.BasePrice,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (e *Engine) Symbol() string { return e.symbol }

// Current returns the latest price.
func (e *Engine) Current() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.price
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() MarketSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// State returns the client-facing snapshot.
func (e *Engine) State() MarketState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return MarketState{
		Symbol:          e.symbol,
		Price:           e.price,
		BasePrice:       e.settings.BasePrice,
		Volatility:      e.settings.Volatility,
		Paused:          e.settings.Paused,
		PipSize:         e.settings.PipSize,
		SpeedMultiplier: e.settings.SpeedMultiplier,
		Timestamp:       time.Now(),
	}
}

// Advance moves the walk one step, records the tick and folds it into the
// open candle bucket. A paused engine returns the unchanged price.
func (e *Engine) Advance() float64 {
	e.mu.Lock()
	if e.settings.Paused {
		p := e.price
		e.mu.Unlock()
		return p
	}

	sigma := e.settings.Volatility * e.settings.SpeedMultiplier
	noise := e.rng.Float64()*2 - 1 // uniform in [-1, 1]
	next := e.price * (1 + sigma*noise*0.1)
	if next < PriceFloor || math.IsNaN(next) || math.IsInf(next, 0) {
		next = PriceFloor
	}
	e.price = next
	e.mu.Unlock()

	e.record(next, time.Now().Unix())
	return next
}

// SetPrice pins the walk to p. Rejects non-finite or non-positive prices.
func (e *Engine) SetPrice(p float64) error {
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return types.ErrInvalidPrice
	}
	e.mu.Lock()
	e.price = p
	e.mu.Unlock()

	e.record(p, time.Now().Unix())
	return nil
}

// Pump moves the price by percentage percent and returns the new price.
// Rejects non-finite percentages.
func (e *Engine) Pump(percentage float64) (float64, error) {
	if math.IsNaN(percentage) || math.IsInf(percentage, 0) {
		return 0, types.ErrInvalidInput
	}
	e.mu.Lock()
	next := e.price * (1 + percentage/100)
	if next < PriceFloor {
		next = PriceFloor
	}
	e.price = next
	e.mu.Unlock()

	e.record(next, time.Now().Unix())
	return next, nil
}

func (e *Engine) Pause() error {
	return e.setPaused(true)
}

func (e *Engine) Resume() error {
	return e.setPaused(false)
}

func (e *Engine) setPaused(paused bool) error {
	e.mu.Lock()
	e.settings.Paused = paused
	settings := e.settings
	e.mu.Unlock()
	return e.db.SaveSettings(&settings)
}

// SetVolatility updates the walk's volatility, clamped to [0, 1].
func (e *Engine) SetVolatility(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.settings.Volatility = v
	settings := e.settings
	e.mu.Unlock()
	return e.db.SaveSettings(&settings)
}

// ResetOptions carries the optional overrides for Reset; nil fields keep the
// current value.
type ResetOptions struct {
	BasePrice  *float64
	Volatility *float64
	PipSize    *float64
}

// Reset returns the walk to its base price, optionally adjusting settings,
// and unpauses the engine.
func (e *Engine) Reset(opts ResetOptions) error {
	e.mu.Lock()
	if opts.BasePrice != nil && *opts.BasePrice > 0 {
		e.settings.BasePrice = *opts.BasePrice
	}
	if opts.Volatility != nil {
		v := *opts.Volatility
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		e.settings.Volatility = v
	}
	if opts.PipSize != nil && *opts.PipSize > 0 {
		e.settings.PipSize = *opts.PipSize
	}
	e.settings.Paused = false
	e.price = e.settings.BasePrice
	settings := e.settings
	e.mu.Unlock()
	return e.db.SaveSettings(&settings)
}

// record persists the tick and folds it through the aggregator.
func (e *Engine) record(price float64, ts int64) {
	if err := e.db.AppendTick(e.symbol, price, ts); err != nil {
		log.Error().Err(err).Str("symbol", e.symbol).Msg("failed to append tick")
	}
	if err := e.agg.FoldTick(e.symbol, price, ts, 0); err != nil {
		log.Error().Err(err).Str("symbol", e.symbol).Msg("failed to fold tick into candle")
	}
}
