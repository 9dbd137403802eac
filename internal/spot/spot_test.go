package spot

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/types"
)

const floatDelta = 1e-6

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatDelta
}

type fixture struct {
	service *Service
	ledger  *ledger.Database
	engine  *market.Engine
}

// newFixture builds the service against a paused engine so the only price
// movement is what the test dictates through SetPrice.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	err = db.AutoMigrate(&market.MarketSettings{}, &market.Tick{}, &market.Candle{}, &ledger.Balance{}, &SpotTrade{})
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	marketDB := market.NewDatabase(db)
	agg := market.NewAggregator(marketDB)
	engine, err := market.NewEngine(marketDB, agg, "BTCUSD", market.MarketSettings{
		BasePrice:       100,
		Volatility:      0.5,
		PipSize:         0.01,
		SpeedMultiplier: 1,
		Paused:          true,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ledgerDB := ledger.NewDatabase(db)
	return &fixture{
		service: NewService(db, ledgerDB, engine, Config{}),
		ledger:  ledgerDB,
		engine:  engine,
	}
}

func (f *fixture) setPrice(t *testing.T, p float64) {
	t.Helper()
	if err := f.engine.SetPrice(p); err != nil {
		t.Fatalf("SetPrice(%v): %v", p, err)
	}
}

func (f *fixture) balance(t *testing.T, userID int64) *ledger.Balance {
	t.Helper()
	balance, err := f.ledger.GetOrInit(userID)
	if err != nil {
		t.Fatalf("GetOrInit(%d): %v", userID, err)
	}
	return balance
}

func mustOpen(t *testing.T, f *fixture, userID int64, side string, amount float64) *SpotTrade {
	t.Helper()
	trade, err := f.service.Open(userID, side, amount, "")
	if err != nil {
		t.Fatalf("Open(%s, %v): %v", side, amount, err)
	}
	return trade
}

func mustClose(t *testing.T, f *fixture, userID int64, tradeID string) *SpotTrade {
	t.Helper()
	trade, err := f.service.Close(userID, tradeID)
	if err != nil {
		t.Fatalf("Close(%s): %v", tradeID, err)
	}
	return trade
}

func TestSpotRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	trade := mustOpen(t, f, 1, types.SideBuy, 1000)
	if !floatEquals(trade.EntryPrice, 100) {
		t.Errorf("entry price: want 100, got %v", trade.EntryPrice)
	}
	if !floatEquals(trade.Quantity, 10) {
		t.Errorf("quantity: want 10, got %v", trade.Quantity)
	}

	balance := f.balance(t, 1)
	if !floatEquals(balance.Available, 9000) || !floatEquals(balance.Locked, 1000) {
		t.Fatalf("after open: available %v locked %v, want 9000/1000", balance.Available, balance.Locked)
	}

	f.setPrice(t, 110)
	closed := mustClose(t, f, 1, trade.TradeID)
	if !floatEquals(closed.RealizedPnl, 100) {
		t.Errorf("realized pnl: want 100, got %v", closed.RealizedPnl)
	}
	if closed.Status != types.SpotStatusClosed {
		t.Errorf("status: want closed, got %s", closed.Status)
	}

	balance = f.balance(t, 1)
	if !floatEquals(balance.Available, 10100) || !floatEquals(balance.Locked, 0) {
		t.Errorf("after close: available %v locked %v, want 10100/0", balance.Available, balance.Locked)
	}
}

func TestSellSideProfitsOnDrop(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	trade := mustOpen(t, f, 1, types.SideSell, 500)
	f.setPrice(t, 90)

	closed := mustClose(t, f, 1, trade.TradeID)
	if !floatEquals(closed.RealizedPnl, 50) {
		t.Errorf("realized pnl: want 50, got %v", closed.RealizedPnl)
	}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	cases := []struct {
		name   string
		side   string
		amount float64
		want   error
	}{
		{"bad side", "long", 100, types.ErrInvalidInput},
		{"zero amount", types.SideBuy, 0, types.ErrInvalidInput},
		{"negative amount", types.SideBuy, -10, types.ErrInvalidInput},
		{"over balance", types.SideBuy, 20000, types.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Open(1, tc.side, tc.amount, "")
			if !errors.Is(err, tc.want) {
				t.Errorf("want %v, got %v", tc.want, err)
			}
		})
	}

	// No state change from any rejected open.
	balance := f.balance(t, 1)
	if !floatEquals(balance.Available, ledger.DefaultFunding) || !floatEquals(balance.Locked, 0) {
		t.Errorf("balance mutated by rejected opens: available %v locked %v", balance.Available, balance.Locked)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	trade := mustOpen(t, f, 1, types.SideBuy, 1000)
	f.setPrice(t, 110)
	first := mustClose(t, f, 1, trade.TradeID)

	// Price moves again; the retry must return the original close, not
	// re-settle at the new price.
	f.setPrice(t, 200)
	second := mustClose(t, f, 1, trade.TradeID)

	if !floatEquals(second.RealizedPnl, first.RealizedPnl) {
		t.Errorf("retry changed pnl: %v -> %v", first.RealizedPnl, second.RealizedPnl)
	}
	if !floatEquals(second.ExitPrice, 110) {
		t.Errorf("retry changed exit price: got %v", second.ExitPrice)
	}

	balance := f.balance(t, 1)
	if !floatEquals(balance.Available, 10100) {
		t.Errorf("retry credited ledger twice: available %v", balance.Available)
	}
}

func TestCloseAfterConcurrentWipe(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	trade := mustOpen(t, f, 1, types.SideBuy, 1000)

	// The row vanishes out from under the close, as a concurrent reset
	// would make it. The close must surface not-found, never panic.
	err := f.service.db.db.Unscoped().Where("trade_id = ?", trade.TradeID).Delete(&SpotTrade{}).Error
	if err != nil {
		t.Fatalf("deleting trade: %v", err)
	}

	if _, err := f.service.Close(1, trade.TradeID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestCloseRejectedWhenLossExceedsAvailable(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	// Nearly everything is locked; available cannot absorb the loss.
	trade := mustOpen(t, f, 1, types.SideSell, 9000)
	f.setPrice(t, 250) // pnl = -13500, stake + pnl = -4500

	if _, err := f.service.Close(1, trade.TradeID); !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}

	// The rejection rolls everything back: trade stays open, balance intact.
	reloaded, err := f.service.db.GetTrade(trade.TradeID, 1)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if reloaded.Status != types.SpotStatusOpen {
		t.Errorf("status: want open, got %s", reloaded.Status)
	}
	balance := f.balance(t, 1)
	if !floatEquals(balance.Available, 1000) || !floatEquals(balance.Locked, 9000) {
		t.Errorf("balance after rejected close: available %v locked %v", balance.Available, balance.Locked)
	}
}

func TestCloseUnknownTrade(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	if _, err := f.service.Close(1, "no-such-trade"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestCloseOtherUsersTrade(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	trade := mustOpen(t, f, 1, types.SideBuy, 1000)
	if _, err := f.service.Close(2, trade.TradeID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("want ErrNotFound for foreign trade, got %v", err)
	}
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	mustOpen(t, f, 1, types.SideBuy, 1000)
	mustOpen(t, f, 1, types.SideSell, 500)
	f.setPrice(t, 110)

	result, err := f.service.CloseAll(1)
	if err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("closed %d trades, want 2", len(result.Trades))
	}
	// buy: +100, sell: -50
	if !floatEquals(result.RealizedPnl, 50) {
		t.Errorf("total pnl: want 50, got %v", result.RealizedPnl)
	}

	open, err := f.service.db.OpenTrades(1)
	if err != nil {
		t.Fatalf("OpenTrades: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("%d trades still open after CloseAll", len(open))
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	f.setPrice(t, 100)

	mustOpen(t, f, 1, types.SideBuy, 1000)
	f.setPrice(t, 105)

	ov, err := f.service.Overview(1, 10)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if len(ov.OpenPositions) != 1 {
		t.Fatalf("open positions: want 1, got %d", len(ov.OpenPositions))
	}
	if !floatEquals(ov.OpenPositions[0].FloatingPnl, 50) {
		t.Errorf("floating pnl: want 50, got %v", ov.OpenPositions[0].FloatingPnl)
	}
	// equity = 9000 + 1000 + 50
	if !floatEquals(ov.Margins.Equity, 10050) {
		t.Errorf("equity: want 10050, got %v", ov.Margins.Equity)
	}
	if !floatEquals(ov.Margins.MarginUsed, 1000) {
		t.Errorf("margin used: want 1000, got %v", ov.Margins.MarginUsed)
	}
	if ov.Margins.MarginLevel == nil || !floatEquals(*ov.Margins.MarginLevel, 1005) {
		t.Errorf("margin level: want 1005, got %v", ov.Margins.MarginLevel)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	f := newFixture(t)

	// Three users with realized P&L 50, -10, 200.
	scenarios := []struct {
		userID int64
		exit   float64
	}{
		{1, 105}, // +50
		{2, 99},  // -10
		{3, 120}, // +200
	}
	for _, sc := range scenarios {
		f.setPrice(t, 100)
		trade := mustOpen(t, f, sc.userID, types.SideBuy, 1000)
		f.setPrice(t, sc.exit)
		mustClose(t, f, sc.userID, trade.TradeID)
	}

	entries, err := f.service.Leaderboard()
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries: want 3, got %d", len(entries))
	}

	wantOrder := []int64{3, 1, 2}
	wantPnl := []float64{200, 50, -10}
	for i := range entries {
		if entries[i].UserID != wantOrder[i] {
			t.Errorf("rank %d: want user %d, got %d", i, wantOrder[i], entries[i].UserID)
		}
		if !floatEquals(entries[i].TotalPnl, wantPnl[i]) {
			t.Errorf("rank %d: want pnl %v, got %v", i, wantPnl[i], entries[i].TotalPnl)
		}
	}
}
