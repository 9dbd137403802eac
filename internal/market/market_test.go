package market

import (
	"fmt"
	"math"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const floatDelta = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatDelta
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(&MarketSettings{}, &Tick{}, &Candle{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, defaults MarketSettings) (*Engine, *Database) {
	t.Helper()
	db := NewDatabase(newTestDB(t))
	agg := NewAggregator(db)
	engine, err := NewEngine(db, agg, "BTCUSD", defaults)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, db
}

func defaultSettings() MarketSettings {
	return MarketSettings{
		BasePrice:       100,
		Volatility:      0.5,
		PipSize:         0.01,
		SpeedMultiplier: 1,
	}
}

func TestEngineStartsAtBasePrice(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())
	if got := engine.Current(); !floatEquals(got, 100) {
		t.Errorf("initial price: want 100, got %v", got)
	}
}

func TestAdvanceStaysWithinStepBound(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())

	// sigma*0.1 = 0.05, so each step moves at most 5%.
	prev := engine.Current()
	for i := 0; i < 200; i++ {
		next := engine.Advance()
		maxStep := prev * 0.05 * (1 + floatDelta)
		if math.Abs(next-prev) > maxStep {
			t.Fatalf("step %d moved %v from %v, exceeds bound %v", i, next-prev, prev, maxStep)
		}
		if next < PriceFloor {
			t.Fatalf("price %v dropped below floor", next)
		}
		prev = next
	}
}

func TestAdvancePausedIsNoOp(t *testing.T) {
	settings := defaultSettings()
	settings.Paused = true
	engine, db := newTestEngine(t, settings)

	before := engine.Current()
	if got := engine.Advance(); !floatEquals(got, before) {
		t.Errorf("paused advance changed price: %v -> %v", before, got)
	}

	ticks, err := db.TicksInRange("BTCUSD", 0, math.MaxInt64)
	if err != nil {
		t.Fatalf("TicksInRange: %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("paused advance recorded %d ticks, want 0", len(ticks))
	}
}

func TestAdvanceRecordsTick(t *testing.T) {
	engine, db := newTestEngine(t, defaultSettings())
	engine.Advance()

	ticks, err := db.TicksInRange("BTCUSD", 0, math.MaxInt64)
	if err != nil {
		t.Fatalf("TicksInRange: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("recorded %d ticks, want 1", len(ticks))
	}
	if !floatEquals(ticks[0].Price, engine.Current()) {
		t.Errorf("tick price %v does not match engine price %v", ticks[0].Price, engine.Current())
	}
}

func TestSetPriceRejectsInvalid(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())

	for _, p := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if err := engine.SetPrice(p); err == nil {
			t.Errorf("SetPrice(%v): expected error, got nil", p)
		}
	}
	if got := engine.Current(); !floatEquals(got, 100) {
		t.Errorf("price changed by rejected SetPrice: %v", got)
	}
}

func TestPump(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())

	got, err := engine.Pump(10)
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if !floatEquals(got, 110) {
		t.Errorf("pump +10%%: want 110, got %v", got)
	}

	got, err = engine.Pump(-50)
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if !floatEquals(got, 55) {
		t.Errorf("pump -50%%: want 55, got %v", got)
	}
}

func TestPumpRejectsNonFinite(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())

	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := engine.Pump(p); err == nil {
			t.Errorf("Pump(%v): expected error, got nil", p)
		}
	}
	if got := engine.Current(); !floatEquals(got, 100) {
		t.Errorf("price changed by rejected pump: %v", got)
	}
}

func TestResetRestoresBase(t *testing.T) {
	engine, _ := newTestEngine(t, defaultSettings())

	if err := engine.SetPrice(500); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if err := engine.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if err := engine.Reset(ResetOptions{}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := engine.Current(); !floatEquals(got, 100) {
		t.Errorf("price after reset: want 100, got %v", got)
	}
	if engine.Settings().Paused {
		t.Error("engine still paused after reset")
	}

	newBase := 250.0
	if err := engine.Reset(ResetOptions{BasePrice: &newBase}); err != nil {
		t.Fatalf("Reset with base: %v", err)
	}
	if got := engine.Current(); !floatEquals(got, 250) {
		t.Errorf("price after reset with base: want 250, got %v", got)
	}
}

func TestLastTickAt(t *testing.T) {
	db := NewDatabase(newTestDB(t))

	// Recent timestamps; older rows would fall to retention pruning.
	base := time.Now().Unix() - 100
	for _, tick := range []struct {
		price float64
		ts    int64
	}{{100, base}, {105, base + 10}, {98, base + 20}} {
		if err := db.AppendTick("BTCUSD", tick.price, tick.ts); err != nil {
			t.Fatalf("AppendTick: %v", err)
		}
	}

	tick, err := db.LastTickAt("BTCUSD", base+15)
	if err != nil {
		t.Fatalf("LastTickAt: %v", err)
	}
	if tick == nil || !floatEquals(tick.Price, 105) {
		t.Errorf("LastTickAt between ticks: want price 105, got %+v", tick)
	}

	tick, err = db.LastTickAt("BTCUSD", base-1)
	if err != nil {
		t.Fatalf("LastTickAt: %v", err)
	}
	if tick != nil {
		t.Errorf("LastTickAt before first tick: want nil, got %+v", tick)
	}
}
