package market

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// TickRetention is how long raw ticks are kept before opportunistic pruning.
const TickRetention = 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetOrInitSettings returns the settings row for symbol, creating it with the
// given defaults the first time it is asked for.
func (d *Database) GetOrInitSettings(symbol string, defaults MarketSettings) (*MarketSettings, error) {
	var settings MarketSettings
	err := d.db.Where("symbol = ?", symbol).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = defaults
	settings.Symbol = symbol
	if err := d.db.Create(&settings).Error; err != nil {
		// Lost a race with a concurrent init; re-read.
		if readErr := d.db.Where("symbol = ?", symbol).First(&settings).Error; readErr == nil {
			return &settings, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (d *Database) SaveSettings(settings *MarketSettings) error {
	return d.db.Save(settings).Error
}

// AppendTick records one observation and prunes rows past the retention
// window. Pruning failures are ignored; the next append retries.
func (d *Database) AppendTick(symbol string, price float64, ts int64) error {
	if err := d.db.Create(&Tick{Symbol: symbol, Price: price, Timestamp: ts}).Error; err != nil {
		return err
	}
	cutoff := time.Now().Add(-TickRetention).Unix()
	d.db.Unscoped().Where("symbol = ? AND timestamp < ?", symbol, cutoff).Delete(&Tick{})
	return nil
}

// LastTickAt returns the most recent tick at or before ts.
// Returns (nil, nil) when no such tick exists.
func (d *Database) LastTickAt(symbol string, ts int64) (*Tick, error) {
	var tick Tick
	err := d.db.Where("symbol = ? AND timestamp <= ?", symbol, ts).
		Order("timestamp DESC").
		First(&tick).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tick, nil
}

// TicksInRange returns ticks with from <= timestamp < to, oldest first.
func (d *Database) TicksInRange(symbol string, from, to int64) ([]Tick, error) {
	var ticks []Tick
	if err := d.db.Where("symbol = ? AND timestamp >= ? AND timestamp < ?", symbol, from, to).
		Order("timestamp ASC").
		Find(&ticks).Error; err != nil {
		return nil, err
	}
	return ticks, nil
}

// MergeCandle upserts one bucket with merge semantics: open keeps the first
// value, high/low extend, close takes the latest, volume accumulates.
// Flushing the same bucket twice therefore never loses accumulation.
func (d *Database) MergeCandle(c Candle) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var existing Candle
	err := tx.Where("symbol = ? AND bucket_start = ?", c.Symbol, c.BucketStart).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&c).Error; err != nil {
			tx.Rollback()
			return err
		}
	case err != nil:
		tx.Rollback()
		return err
	default:
		if c.High > existing.High {
			existing.High = c.High
		}
		if c.Low < existing.Low {
			existing.Low = c.Low
		}
		existing.Close = c.Close
		existing.Volume += c.Volume
		if err := tx.Save(&existing).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

// CandlesInRange returns stored native-width candles with
// from <= bucket_start < to, oldest first. Pass to <= 0 for no upper bound.
func (d *Database) CandlesInRange(symbol string, from, to int64) ([]Candle, error) {
	q := d.db.Where("symbol = ? AND bucket_start >= ?", symbol, from)
	if to > 0 {
		q = q.Where("bucket_start < ?", to)
	}
	var candles []Candle
	if err := q.Order("bucket_start ASC").Find(&candles).Error; err != nil {
		return nil, err
	}
	return candles, nil
}

// LatestCandles returns the most recent limit candles, oldest first.
func (d *Database) LatestCandles(symbol string, limit int) ([]Candle, error) {
	var candles []Candle
	if err := d.db.Where("symbol = ?", symbol).
		Order("bucket_start DESC").
		Limit(limit).
		Find(&candles).Error; err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
