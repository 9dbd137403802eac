package binary

import (
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

// CreateTradeWithLock inserts the contract and escrows its stake in one
// transaction.
func (d *Database) CreateTradeWithLock(trade *BinaryTrade) error {
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

	if _, err := d.ledger.ApplyDelta(tx, trade.UserID, -trade.Stake, trade.Stake); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// SettleTradeWithRelease applies one settlement: flips open→settled and
// credits the ledger in one transaction. The flip is conditioned on the row
// still being open at update time, so overlapping sweeps cannot double-settle
// a contract or double-credit the ledger; a raced caller gets settled=false
// and no ledger effect.
func (d *Database) SettleTradeWithRelease(trade *BinaryTrade, result string, settlementPrice, payout, availableCredit float64) (settled bool, err error) {
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
	update := tx.Model(&BinaryTrade{}).
		Where("trade_id = ? AND status = ?", trade.TradeID, types.BinaryStatusOpen).
		Updates(map[string]interface{}{
			"status":           types.BinaryStatusSettled,
			"result":           result,
			"settlement_price": settlementPrice,
			"payout":           payout,
			"settled_at":       now,
			"updated_at":       now,
		})
	if update.Error != nil {
		tx.Rollback()
		return false, update.Error
	}
	if update.RowsAffected == 0 {
		tx.Rollback()
		return false, nil
	}

	if _, err := d.ledger.ApplyDelta(tx, trade.UserID, availableCredit, -trade.Stake); err != nil {
		tx.Rollback()
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		return false, err
	}

	trade.Status = types.BinaryStatusSettled
	trade.Result = result
	trade.SettlementPrice = settlementPrice
	trade.Payout = payout
	trade.SettledAt = &now
	trade.UpdatedAt = now
	return true, nil
}

// ExpiredOpen returns the user's open contracts whose expiry has been
// reached or passed.
func (d *Database) ExpiredOpen(userID, now int64) ([]BinaryTrade, error) {
	var trades []BinaryTrade
	if err := d.db.Where("user_id = ? AND status = ? AND expiry_timestamp <= ?",
		userID, types.BinaryStatusOpen, now).
		Order("expiry_timestamp ASC").
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) OpenTrades(userID int64) ([]BinaryTrade, error) {
	var trades []BinaryTrade
	if err := d.db.Where("user_id = ? AND status = ?", userID, types.BinaryStatusOpen).
		Order("expiry_timestamp ASC").
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) SettledTrades(userID int64, limit int) ([]BinaryTrade, error) {
	var trades []BinaryTrade
	if err := d.db.Where("user_id = ? AND status = ?", userID, types.BinaryStatusSettled).
		Order("settled_at DESC").
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// SettledStats replays all settled rows into the aggregate block.
func (d *Database) SettledStats(userID int64) (Stats, error) {
	var stats Stats
	row := d.db.Model(&BinaryTrade{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0) AS win,
			COALESCE(SUM(CASE WHEN result = 'lose' THEN 1 ELSE 0 END), 0) AS lose,
			COALESCE(SUM(CASE WHEN result = 'push' THEN 1 ELSE 0 END), 0) AS push,
			COALESCE(SUM(CASE WHEN result = 'win' THEN payout WHEN result = 'lose' THEN -stake ELSE 0 END), 0) AS net`).
		Where("user_id = ? AND status = ?", userID, types.BinaryStatusSettled).
		Row()
	if err := row.Scan(&stats.Total, &stats.Win, &stats.Lose, &stats.Push, &stats.Net); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
