package admin

import (
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/binary"
	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/spot"
)

type Database struct {
	db     *gorm.DB
	ledger *ledger.Database
}

func NewDatabase(db *gorm.DB, ledgerDB *ledger.Database) *Database {
	return &Database{db: db, ledger: ledgerDB}
}

// WipeHistory clears all trade, tick and candle history and restores every
// balance to the default funding amount, in one transaction.
func (d *Database) WipeHistory() error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, model := range []interface{}{
		&spot.SpotTrade{},
		&binary.BinaryTrade{},
		&market.Tick{},
		&market.Candle{},
	} {
		if err := tx.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := d.ledger.ResetAll(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
