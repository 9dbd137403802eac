package binary

import (
	"time"

	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
)

// BinaryTrade is one fixed-expiry contract. It transitions open→settled
// exactly once, at or after its expiry instant, using the price that
// prevailed at that instant.
type BinaryTrade struct {
	gorm.Model      `json:"-"`
	TradeID         string     `gorm:"uniqueIndex" json:"trade_id"`
	UserID          int64      `gorm:"index:idx_binary_trades_user_status" json:"user_id"`
	Symbol          string     `json:"symbol"`
	Direction       string     `json:"direction"` // call or put
	Stake           float64    `json:"stake"`
	PayoutRate      float64    `json:"payout_rate"`
	DurationSeconds int64      `json:"duration_seconds"`
	EntryPrice      float64    `json:"entry_price"`
	ExpiryTimestamp int64      `gorm:"index:idx_binary_trades_status_expiry" json:"expiry_timestamp"`
	Status          string     `gorm:"index:idx_binary_trades_user_status;index:idx_binary_trades_status_expiry" json:"status"` // open or settled
	Result          string     `json:"result,omitempty"` // win, lose or push
	SettlementPrice float64    `json:"settlement_price,omitempty"`
	Payout          float64    `json:"payout"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

// OpenContract is an open trade annotated with its remaining lifetime.
type OpenContract struct {
	BinaryTrade
	SecondsToExpiry int64 `json:"seconds_to_expiry"`
}

// Stats replays all settled contracts into aggregate figures.
// Net = Σ win payouts − Σ lose stakes.
type Stats struct {
	Total int     `json:"total"`
	Win   int     `json:"win"`
	Lose  int     `json:"lose"`
	Push  int     `json:"push"`
	Net   float64 `json:"net"`
}

// Overview is the binary read model returned after a settlement sweep.
type Overview struct {
	Balance          ledger.Snapshot `json:"balance"`
	MarkPrice        float64         `json:"mark_price"`
	OpenContracts    []OpenContract  `json:"open_contracts"`
	RecentSettled    []BinaryTrade   `json:"recent_settled"`
	Stats            Stats           `json:"stats"`
	PayoutRate       float64         `json:"payout_rate"`
	AllowedDurations []int64         `json:"allowed_durations"`
}
