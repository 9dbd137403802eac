package migrations

import (
	"gorm.io/gorm"
)

// AddTradingIndexes creates the indexes behind the hot query paths
func AddTradingIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Historical price lookup: last tick at or before a timestamp
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts
		 ON ticks(symbol, timestamp)`,

		// One candle per bucket; also serves range reads
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_candles_symbol_bucket
		 ON candles(symbol, bucket_start)`,

		// Settlement sweep: open contracts past expiry
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_status_expiry
		 ON binary_trades(status, expiry_timestamp)`,

		// Per-user open/closed partitions for both trade families
		`CREATE INDEX IF NOT EXISTS idx_binary_trades_user_status
		 ON binary_trades(user_id, status)`,

		`CREATE INDEX IF NOT EXISTS idx_spot_trades_user_status
		 ON spot_trades(user_id, status)`,

		// Leaderboard aggregation over closed trades
		`CREATE INDEX IF NOT EXISTS idx_spot_trades_status
		 ON spot_trades(status)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
