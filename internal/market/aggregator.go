package market

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tradesim/tradesim-api/internal/types"
)

// DefaultBucketWidth is the native candle granularity in seconds. Unknown
// timeframe strings also resolve to this width.
const DefaultBucketWidth int64 = 60

// Aggregator folds ticks into fixed-width candle buckets and serves candle
// queries at arbitrary timeframes. The open bucket lives in its candle row:
// every fold is a merge-upsert, so the stored candle is always current and a
// repeated flush of the same bucket can never lose high/low/volume
// accumulation.
type Aggregator struct {
	db    *Database
	width int64
}

func NewAggregator(db *Database) *Aggregator {
	return &Aggregator{db: db, width: DefaultBucketWidth}
}

// FoldTick merges one observation into the bucket containing ts. A zero
// volume still counts the observation for open/high/low/close.
func (a *Aggregator) FoldTick(symbol string, price float64, ts int64, volume float64) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return types.ErrInvalidPrice
	}
	bucketStart := (ts / a.width) * a.width
	return a.db.MergeCandle(Candle{
		Symbol:      symbol,
		BucketStart: bucketStart,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      volume,
	})
}

// ParseTimeframe resolves a free-form timeframe string to a width in
// seconds. Display code passes arbitrary strings, so anything unrecognised
// falls back to the native width instead of erroring.
func ParseTimeframe(tf string) int64 {
	switch strings.ToLower(strings.TrimSpace(tf)) {
	case "1s":
		return 1
	case "5s":
		return 5
	case "15s":
		return 15
	case "30s":
		return 30
	case "1m", "1min", "60":
		return 60
	case "5m", "5min":
		return 300
	case "15m", "15min":
		return 900
	case "30m", "30min":
		return 1800
	case "1h", "60min":
		return 3600
	case "4h":
		return 14400
	case "1d", "24h":
		return 86400
	}
	if secs, err := strconv.ParseInt(strings.TrimSpace(tf), 10, 64); err == nil && secs > 0 {
		return secs
	}
	return DefaultBucketWidth
}

// QueryCandles returns up to limit buckets of the requested timeframe,
// oldest first. Native width reads stored candles directly; coarser widths
// regroup stored candles; finer widths derive buckets from the raw tick log.
// from/to bound bucket starts when positive.
func (a *Aggregator) QueryCandles(symbol, timeframe string, limit int, from, to int64) ([]Candle, error) {
	width := ParseTimeframe(timeframe)
	if limit <= 0 {
		limit = 100
	}

	switch {
	case width == a.width:
		if from > 0 || to > 0 {
			candles, err := a.db.CandlesInRange(symbol, from, to)
			if err != nil {
				return nil, err
			}
			return tail(candles, limit), nil
		}
		return a.db.LatestCandles(symbol, limit)

	case width > a.width:
		// Pull enough native rows to fill limit wide buckets.
		if from <= 0 {
			from = time.Now().Unix() - width*int64(limit)
			from = (from / width) * width
		}
		native, err := a.db.CandlesInRange(symbol, from, to)
		if err != nil {
			return nil, err
		}
		return tail(regroup(native, width), limit), nil

	default:
		if from <= 0 {
			from = time.Now().Unix() - width*int64(limit)
		}
		if to <= 0 {
			to = time.Now().Unix() + 1
		}
		ticks, err := a.db.TicksInRange(symbol, from, to)
		if err != nil {
			return nil, err
		}
		return tail(bucketTicks(symbol, ticks, width), limit), nil
	}
}

// regroup folds native candles into wider buckets. Input must be in
// chronological order; open keeps the first member's open, close the last's.
func regroup(native []Candle, width int64) []Candle {
	var out []Candle
	for _, c := range native {
		start := (c.BucketStart / width) * width
		if n := len(out); n > 0 && out[n-1].BucketStart == start {
			cur := &out[n-1]
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		}
		out = append(out, Candle{
			Symbol:      c.Symbol,
			BucketStart: start,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
		})
	}
	return out
}

// bucketTicks derives candles straight from raw ticks for widths finer than
// the native granularity.
func bucketTicks(symbol string, ticks []Tick, width int64) []Candle {
	var out []Candle
	for _, t := range ticks {
		start := (t.Timestamp / width) * width
		if n := len(out); n > 0 && out[n-1].BucketStart == start {
			cur := &out[n-1]
			if t.Price > cur.High {
				cur.High = t.Price
			}
			if t.Price < cur.Low {
				cur.Low = t.Price
			}
			cur.Close = t.Price
			continue
		}
		out = append(out, Candle{
			Symbol:      symbol,
			BucketStart: start,
			Open:        t.Price,
			High:        t.Price,
			Low:         t.Price,
			Close:       t.Price,
		})
	}
	return out
}

func tail(candles []Candle, limit int) []Candle {
	if len(candles) > limit {
		return candles[len(candles)-limit:]
	}
	return candles
}
