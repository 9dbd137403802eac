package spot

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/types"
)

type Database struct {
	db     *gorm.DB
	ledger *ledger.Database
}

func NewDatabase(db *gorm.DB, ledgerDB *ledger.Database) *Database {
	return &Database{db: db, ledger: ledgerDB}
}

// CreateTradeWithLock inserts the trade and escrows its stake in one
// transaction. An insufficient balance rolls back the insert.
func (d *Database) CreateTradeWithLock(trade *SpotTrade) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return err
	}

	if _, err := d.ledger.ApplyDelta(tx, trade.UserID, -trade.StakeAmount, trade.StakeAmount); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// CloseTradeWithRelease flips the trade to closed and releases its stake
// plus realized P&L in one transaction. The status flip is guarded on the
// row still being open, so a concurrent close cannot credit the ledger
// twice; the second caller sees closed=false and reloads.
func (d *Database) CloseTradeWithRelease(trade *SpotTrade, exitPrice, pnl float64) (closed bool, err error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	result := tx.Model(&SpotTrade{}).
		Where("trade_id = ? AND status = ?", trade.TradeID, types.SpotStatusOpen).
		Updates(map[string]interface{}{
			"status":       types.SpotStatusClosed,
			"exit_price":   exitPrice,
			"realized_pnl": pnl,
			"closed_at":    now,
			"updated_at":   now,
		})
	if result.Error != nil {
		tx.Rollback()
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return false, nil
	}

	if _, err := d.ledger.ApplyDelta(tx, trade.UserID, trade.StakeAmount+pnl, -trade.StakeAmount); err != nil {
		tx.Rollback()
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		return false, err
	}

	trade.Status = types.SpotStatusClosed
	trade.ExitPrice = exitPrice
	trade.RealizedPnl = pnl
	trade.ClosedAt = &now
	trade.UpdatedAt = now
	return true, nil
}

func (d *Database) GetTrade(tradeID string, userID int64) (*SpotTrade, error) {
	var trade SpotTrade
	err := d.db.Where("trade_id = ? AND user_id = ?", tradeID, userID).First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) OpenTrades(userID int64) ([]SpotTrade, error) {
	var trades []SpotTrade
	if err := d.db.Where("user_id = ? AND status = ?", userID, types.SpotStatusOpen).
		Order("created_at ASC").
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) ClosedTrades(userID int64, limit int) ([]SpotTrade, error) {
	var trades []SpotTrade
	if err := d.db.Where("user_id = ? AND status = ?", userID, types.SpotStatusClosed).
		Order("closed_at DESC").
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// ClosedStats replays a user's closed trades into aggregate figures.
func (d *Database) ClosedStats(userID int64) (Stats, error) {
	var stats Stats
	row := d.db.Model(&SpotTrade{}).
		Select("COUNT(*) AS total_trades, COALESCE(SUM(realized_pnl), 0) AS total_realized_pnl").
		Where("user_id = ? AND status = ?", userID, types.SpotStatusClosed).
		Row()
	if err := row.Scan(&stats.TotalTrades, &stats.TotalRealizedPnl); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Leaderboard ranks users by summed realized P&L across closed trades,
// strictly descending.
func (d *Database) Leaderboard() ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	if err := d.db.Model(&SpotTrade{}).
		Select("user_id, COALESCE(SUM(realized_pnl), 0) AS total_pnl, COUNT(*) AS trades_count").
		Where("status = ?", types.SpotStatusClosed).
		Group("user_id").
		Order("total_pnl DESC").
		Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
