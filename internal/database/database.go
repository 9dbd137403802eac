package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/binary"
	"github.com/tradesim/tradesim-api/internal/database/migrations"
	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/spot"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "tradesim.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs schema migrations on an existing connection. Split out so
// tests can run it against in-memory databases.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&market.MarketSettings{},
		&market.Tick{},
		&market.Candle{},
		&ledger.Balance{},
		&spot.SpotTrade{},
		&binary.BinaryTrade{},
	)
	if err != nil {
		return err
	}

	if err := migrations.AddTradingIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
