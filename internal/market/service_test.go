package market

import (
	"errors"
	"testing"
	"time"

	"github.com/tradesim/tradesim-api/internal/types"
)

func newTestService(t *testing.T) (*Service, *Database) {
	t.Helper()
	gormDB := newTestDB(t)
	db := NewDatabase(gormDB)
	agg := NewAggregator(db)
	settings := defaultSettings()
	settings.Paused = true
	engine, err := NewEngine(db, agg, "BTCUSD", settings)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewService(gormDB, engine, agg), db
}

func TestIngestTickRequiresSymbol(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.IngestTick("", 100, 0, 0); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}

func TestIngestTickDefaultsTimestamp(t *testing.T) {
	svc, db := newTestService(t)

	before := time.Now().Unix()
	if err := svc.IngestTick("ETHUSD", 2000, 0, 1); err != nil {
		t.Fatalf("IngestTick: %v", err)
	}

	ticks, err := db.TicksInRange("ETHUSD", before, time.Now().Unix()+1)
	if err != nil {
		t.Fatalf("TicksInRange: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks at the current time, want 1", len(ticks))
	}
	if !floatEquals(ticks[0].Price, 2000) {
		t.Errorf("tick price: want 2000, got %v", ticks[0].Price)
	}
}

// An externally reported tick must land in the same candle bucket an
// engine-recorded tick does.
func TestIngestTickMergesIntoEngineBucket(t *testing.T) {
	svc, db := newTestService(t)

	if err := svc.engine.SetPrice(100); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	ticks, err := db.TicksInRange("BTCUSD", time.Now().Unix()-60, time.Now().Unix()+1)
	if err != nil {
		t.Fatalf("TicksInRange: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("got %d engine ticks, want 1", len(ticks))
	}
	ts := ticks[0].Timestamp

	if err := svc.IngestTick("BTCUSD", 110, ts, 2); err != nil {
		t.Fatalf("IngestTick: %v", err)
	}

	bucket := (ts / DefaultBucketWidth) * DefaultBucketWidth
	candles, err := db.CandlesInRange("BTCUSD", bucket, bucket+DefaultBucketWidth)
	if err != nil {
		t.Fatalf("CandlesInRange: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1 shared bucket", len(candles))
	}

	c := candles[0]
	if !floatEquals(c.Open, 100) || !floatEquals(c.High, 110) || !floatEquals(c.Close, 110) {
		t.Errorf("merged candle: want open 100 high 110 close 110, got {%v %v %v}", c.Open, c.High, c.Close)
	}
	if !floatEquals(c.Volume, 2) {
		t.Errorf("merged volume: want 2, got %v", c.Volume)
	}
}
