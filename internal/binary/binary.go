package binary

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/types"
)

// Config carries the tunables of the binary option manager.
type Config struct {
	PayoutRate       float64 // fraction of stake paid on a win
	AllowedDurations []int64 // seconds
	Tolerance        float64 // push boundary epsilon
}

// DefaultConfig matches the demo product: 80% payout, short fixed expiries.
func DefaultConfig() Config {
	return Config{
		PayoutRate:       0.8,
		AllowedDurations: []int64{30, 60, 120, 300},
		Tolerance:        types.DefaultTolerance,
	}
}

// Service drives the binary option lifecycle. Settlement is pull-triggered:
// every overview read first sweeps the user's expired open contracts. The
// sweep is safe to run redundantly because resolution is deterministic (the
// settlement price comes from the tick at or before expiry) and the
// open→settled transition is guarded at the storage layer.
type Service struct {
	db       *Database
	ledger   *ledger.Database
	marketDB *market.Database
	engine   *market.Engine
	cfg      Config

	// resolvePrice resolves a contract's settlement price.
	resolvePrice func(*BinaryTrade) (float64, error)
}

func NewService(gormDB *gorm.DB, ledgerDB *ledger.Database, engine *market.Engine, cfg Config) *Service {
	if cfg.PayoutRate <= 0 || cfg.PayoutRate > 1 {
		cfg.PayoutRate = 0.8
	}
	if len(cfg.AllowedDurations) == 0 {
		cfg.AllowedDurations = DefaultConfig().AllowedDurations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = types.DefaultTolerance
	}
	s := &Service{
		db:       NewDatabase(gormDB, ledgerDB),
		ledger:   ledgerDB,
		marketDB: market.NewDatabase(gormDB),
		engine:   engine,
		cfg:      cfg,
	}
	s.resolvePrice = s.settlementPrice
	return s
}

func (s *Service) durationAllowed(duration int64) bool {
	for _, d := range s.cfg.AllowedDurations {
		if d == duration {
			return true
		}
	}
	return false
}

// Place opens a fixed-duration contract, locking the stake. All validation
// happens before any state change.
func (s *Service) Place(userID int64, direction string, stake float64, duration int64, symbol string) (*BinaryTrade, error) {
	if direction != types.DirectionCall && direction != types.DirectionPut {
		return nil, fmt.Errorf("%w: direction must be call or put", types.ErrInvalidInput)
	}
	if stake <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive", types.ErrInvalidInput)
	}
	if !s.durationAllowed(duration) {
		return nil, fmt.Errorf("%w: duration %d not in allowed set %v",
			types.ErrInvalidInput, duration, s.cfg.AllowedDurations)
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
	if stake > balance.Available+s.cfg.Tolerance {
		return nil, fmt.Errorf("%w: available %.2f, requested %.2f",
			types.ErrInsufficientBalance, balance.Available, stake)
	}

	now := time.Now()
	trade := &BinaryTrade{
		TradeID:         uuid.New().String(),
		UserID:          userID,
		Symbol:          symbol,
		Direction:       direction,
		Stake:           stake,
		PayoutRate:      s.cfg.PayoutRate,
		DurationSeconds: duration,
		EntryPrice:      price,
		ExpiryTimestamp: now.Unix() + duration,
		Status:          types.BinaryStatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.CreateTradeWithLock(trade); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "binary").
		Str("trade_id", trade.TradeID).
		Int64("user_id", userID).
		Str("direction", direction).
		Float64("stake", stake).
		Int64("duration", duration).
		Float64("entry_price", price).
		Msg("binary trade placed")

	return trade, nil
}

// Sweep settles every expired open contract the user owns. Contracts settle
// independently: a fault on one must not block its siblings.
func (s *Service) Sweep(userID int64) error {
	expired, err := s.db.ExpiredOpen(userID, time.Now().Unix())
	if err != nil {
		return err
	}

	for i := range expired {
		if err := s.settle(&expired[i]); err != nil {
			log.Error().Err(err).
				Str("service", "binary").
				Str("trade_id", expired[i].TradeID).
				Msg("failed to settle expired contract")
		}
	}
	return nil
}

// settle resolves and applies one contract's outcome.
func (s *Service) settle(trade *BinaryTrade) error {
	settlementPrice, err := s.resolvePrice(trade)
	if err != nil {
		return err
	}

	result, payout := s.classify(trade, settlementPrice)

	var availableCredit float64
	switch result {
	case types.ResultWin:
		availableCredit = trade.Stake + payout
	case types.ResultPush:
		availableCredit = trade.Stake
	}

	settled, err := s.db.SettleTradeWithRelease(trade, result, settlementPrice, payout, availableCredit)
	if err != nil {
		return err
	}
	if !settled {
		// A concurrent sweep got here first; nothing left to do.
		return nil
	}

	log.Info().
		Str("service", "binary").
		Str("trade_id", trade.TradeID).
		Str("result", result).
		Float64("settlement_price", settlementPrice).
		Float64("payout", payout).
		Msg("binary trade settled")

	return nil
}

// settlementPrice resolves the price that prevailed at the expiry instant:
// the most recent tick at or before expiry, falling back to the live price
// when no tick has been recorded yet.
func (s *Service) settlementPrice(trade *BinaryTrade) (float64, error) {
	tick, err := s.marketDB.LastTickAt(trade.Symbol, trade.ExpiryTimestamp)
	if err != nil {
		return 0, err
	}
	if tick != nil {
		return tick.Price, nil
	}
	price := s.engine.Current()
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, types.ErrInvalidPrice
	}
	return price, nil
}

func (s *Service) classify(trade *BinaryTrade, settlementPrice float64) (string, float64) {
	diff := settlementPrice - trade.EntryPrice
	if math.Abs(diff) <= s.cfg.Tolerance {
		return types.ResultPush, 0
	}
	won := (trade.Direction == types.DirectionCall && diff > 0) ||
		(trade.Direction == types.DirectionPut && diff < 0)
	if won {
		return types.ResultWin, trade.Stake * trade.PayoutRate
	}
	return types.ResultLose, 0
}

// Overview sweeps the user's expired contracts and composes the binary read
// model.
func (s *Service) Overview(userID int64, limit int) (*Overview, error) {
	if limit <= 0 {
		limit = 20
	}

	if err := s.Sweep(userID); err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetOrInit(userID)
	if err != nil {
		return nil, err
	}

	open, err := s.db.OpenTrades(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	contracts := make([]OpenContract, 0, len(open))
	for i := range open {
		remaining := open[i].ExpiryTimestamp - now
		if remaining < 0 {
			remaining = 0
		}
		contracts = append(contracts, OpenContract{
			BinaryTrade:     open[i],
			SecondsToExpiry: remaining,
		})
	}

	settledTrades, err := s.db.SettledTrades(userID, limit)
	if err != nil {
		return nil, err
	}

	stats, err := s.db.SettledStats(userID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Balance:          balance.Snapshot(),
		MarkPrice:        s.engine.Current(),
		OpenContracts:    contracts,
		RecentSettled:    settledTrades,
		Stats:            stats,
		PayoutRate:       s.cfg.PayoutRate,
		AllowedDurations: s.cfg.AllowedDurations,
	}, nil
}
