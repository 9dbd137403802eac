package market

import (
	"time"

	"gorm.io/gorm"
)

// MarketSettings is the singleton row of tunables the engine reads each tick.
type MarketSettings struct {
	gorm.Model      `json:"-"`
	Symbol          string  `gorm:"uniqueIndex" json:"symbol"`
	BasePrice       float64 `json:"base_price"`
	Volatility      float64 `json:"volatility"` // 0..1
	Paused          bool    `json:"paused"`
	PipSize         float64 `json:"pip_size"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
}

// Tick is one observed price. Append-only; rows older than the retention
// window are pruned opportunistically on write.
type Tick struct {
	gorm.Model `json:"-"`
	Symbol     string  `gorm:"index:idx_ticks_symbol_ts" json:"symbol"`
	Price      float64 `json:"price"`
	Timestamp  int64   `gorm:"index:idx_ticks_symbol_ts" json:"timestamp"` // unix seconds
}

// Candle is one OHLCV bucket at the native granularity, unique per
// (symbol, bucket_start).
type Candle struct {
	gorm.Model  `json:"-"`
	Symbol      string  `gorm:"uniqueIndex:idx_candles_symbol_bucket" json:"symbol"`
	BucketStart int64   `gorm:"uniqueIndex:idx_candles_symbol_bucket" json:"bucket_start"` // unix seconds
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// MarketState is the read model returned to clients.
type MarketState struct {
	Symbol          string    `json:"symbol"`
	Price           float64   `json:"price"`
	BasePrice       float64   `json:"base_price"`
	Volatility      float64   `json:"volatility"`
	Paused          bool      `json:"paused"`
	PipSize         float64   `json:"pip_size"`
	SpeedMultiplier float64   `json:"speed_multiplier"`
	Timestamp       time.Time `json:"timestamp"`
}
