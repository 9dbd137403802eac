package spot

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/overview"
	"github.com/tradesim/tradesim-api/internal/types"
)

// Config carries the tunables of the spot trade manager.
type Config struct {
	Tolerance float64
}

// Service drives the spot trade lifecycle: lock stake on open, mark to the
// live price, release stake plus realized P&L on close.
type Service struct {
	db     *Database
	ledger *ledger.Database
	engine *market.Engine
	cfg    Config
}

func NewService(gormDB *gorm.DB, ledgerDB *ledger.Database, engine *market.Engine, cfg Config) *Service {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = types.DefaultTolerance
	}
	return &Service{
		db:     NewDatabase(gormDB, ledgerDB),
		ledger: ledgerDB,
		engine: engine,
		cfg:    cfg,
	}
}

// FloatingPnl is the notional P&L model: P&L scales with staked dollars,
// not share count, so stake semantics stay uniform across asset types.
func FloatingPnl(trade *SpotTrade, markPrice float64) float64 {
	return (markPrice - trade.EntryPrice) / trade.EntryPrice * trade.StakeAmount * types.DirectionSign(trade.Side)
}

func (s *Service) pips(entry, exit float64, side string) float64 {
	pip := s.engine.Settings().PipSize
	if pip <= 0 {
		return 0
	}
	return (exit - entry) / pip * types.DirectionSign(side)
}

// Open locks usdAmount against the ledger at the current price and inserts
// the position. All validation happens before any state change.
func (s *Service) Open(userID int64, side string, usdAmount float64, symbol string) (*SpotTrade, error) {
	if side != types.SideBuy && side != types.SideSell {
		return nil, fmt.Errorf("%w: side must be buy or sell", types.ErrInvalidInput)
	}
	if usdAmount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}
	if symbol == "" {
		symbol = s.engine.Symbol()
	}

	price := s.engine.Current()
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, types.ErrInvalidPrice
	}

	balance, err := s.ledger.GetOrInit(userID)
	if err != nil {
		return nil, err
	}
	if usdAmount > balance.Available+s.cfg.Tolerance {
		return nil, fmt.Errorf("%w: available %.2f, requested %.2f",
			types.ErrInsufficientBalance, balance.Available, usdAmount)
	}

	trade := &SpotTrade{
		TradeID:     uuid.New().String(),
		UserID:      userID,
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  price,
		StakeAmount: usdAmount,
		Quantity:    usdAmount / price,
		Status:      types.SpotStatusOpen,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.CreateTradeWithLock(trade); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "spot").
		Str("trade_id", trade.TradeID).
		Int64("user_id", userID).
		Str("side", side).
		Float64("stake", usdAmount).
		Float64("entry_price", price).
		Msg("spot trade opened")

	return trade, nil
}

// Close realizes P&L at the current price and releases the stake. Closing an
// already-closed trade is a no-op returning the current state, so client
// retries are harmless.
func (s *Service) Close(userID int64, tradeID string) (*SpotTrade, error) {
	trade, err := s.db.GetTrade(tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: trade %s", types.ErrNotFound, tradeID)
	}
	if trade.Status == types.SpotStatusClosed {
		return trade, nil
	}

	mark := s.engine.Current()
	if mark <= 0 || math.IsNaN(mark) || math.IsInf(mark, 0) {
		return nil, types.ErrInvalidPrice
	}
	pnl := FloatingPnl(trade, mark)

	closed, err := s.db.CloseTradeWithRelease(trade, mark, pnl)
	if err != nil {
		return nil, err
	}
	if !closed {
		// Lost the race to a concurrent close; the winner's state stands.
		// A nil reload means the row was wiped underneath us.
		winner, err := s.db.GetTrade(tradeID, userID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, fmt.Errorf("%w: trade %s", types.ErrNotFound, tradeID)
		}
		return winner, nil
	}

	log.Info().
		Str("service", "spot").
		Str("trade_id", trade.TradeID).
		Int64("user_id", userID).
		Float64("exit_price", mark).
		Float64("realized_pnl", pnl).
		Msg("spot trade closed")

	return trade, nil
}

// CloseAll closes every open trade the user owns, each in its own atomic
// step. One trade's failure must not block the rest.
func (s *Service) CloseAll(userID int64) (*CloseResult, error) {
	open, err := s.db.OpenTrades(userID)
	if err != nil {
		return nil, err
	}

	result := &CloseResult{}
	for i := range open {
		trade, err := s.Close(userID, open[i].TradeID)
		if err != nil {
			log.Error().Err(err).
				Str("service", "spot").
				Str("trade_id", open[i].TradeID).
				Msg("failed to close trade during close-all")
			continue
		}
		result.Trades = append(result.Trades, *trade)
		result.RealizedPnl += trade.RealizedPnl
		result.Pips += s.pips(trade.EntryPrice, trade.ExitPrice, trade.Side)
	}
	return result, nil
}

// Overview composes the spot read model: balance, marked open positions,
// recent history, closed-trade stats and derived margins.
func (s *Service) Overview(userID int64, limit int) (*Overview, error) {
	if limit <= 0 {
		limit = 20
	}

	balance, err := s.ledger.GetOrInit(userID)
	if err != nil {
		return nil, err
	}

	open, err := s.db.OpenTrades(userID)
	if err != nil {
		return nil, err
	}

	mark := s.engine.Current()
	positions := make([]OpenPosition, 0, len(open))
	var floating float64
	for i := range open {
		pnl := FloatingPnl(&open[i], mark)
		floating += pnl
		positions = append(positions, OpenPosition{
			SpotTrade:   open[i],
			FloatingPnl: pnl,
			Pips:        s.pips(open[i].EntryPrice, mark, open[i].Side),
		})
	}

	recent, err := s.db.ClosedTrades(userID, limit)
	if err != nil {
		return nil, err
	}

	stats, err := s.db.ClosedStats(userID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Balance:       balance.Snapshot(),
		MarkPrice:     mark,
		OpenPositions: positions,
		RecentHistory: recent,
		Stats:         stats,
		Margins:       overview.Compute(balance.Available, balance.Locked, floating, s.cfg.Tolerance),
	}, nil
}

// Leaderboard ranks all users by total realized P&L.
func (s *Service) Leaderboard() ([]LeaderboardEntry, error) {
	return s.db.Leaderboard()
}
