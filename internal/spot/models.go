package spot

import (
	"time"

	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/overview"
)

// SpotTrade is one open-ended position. The stake is escrowed in the ledger
// while the trade is open; entry and exit prices are frozen snapshots of the
// engine's output, never live references.
type SpotTrade struct {
	gorm.Model  `json:"-"`
	TradeID     string     `gorm:"uniqueIndex" json:"trade_id"`
	UserID      int64      `gorm:"index:idx_spot_trades_user_status" json:"user_id"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"` // buy or sell
	EntryPrice  float64    `json:"entry_price"`
	StakeAmount float64    `json:"stake_amount"`
	Quantity    float64    `json:"quantity"` // informational: stake / entry price
	Status      string     `gorm:"index:idx_spot_trades_user_status" json:"status"` // open or closed
	ExitPrice   float64    `json:"exit_price,omitempty"`
	RealizedPnl float64    `json:"realized_pnl"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// OpenPosition is an open trade annotated with its mark-to-market state.
type OpenPosition struct {
	SpotTrade
	FloatingPnl float64 `json:"floating_pnl"`
	Pips        float64 `json:"pips"`
}

// Stats aggregates a user's closed trades.
type Stats struct {
	TotalTrades      int     `json:"total_trades"`
	TotalRealizedPnl float64 `json:"total_realized_pnl"`
}

// Overview is the spot read model: balance, open positions, recent history
// and the derived margin block.
type Overview struct {
	Balance       ledger.Snapshot  `json:"balance"`
	MarkPrice     float64          `json:"mark_price"`
	OpenPositions []OpenPosition   `json:"open_positions"`
	RecentHistory []SpotTrade      `json:"recent_history"`
	Stats         Stats            `json:"stats"`
	Margins       overview.Margins `json:"margins"`
}

// CloseResult is returned by close and close-all operations.
type CloseResult struct {
	Trades      []SpotTrade `json:"trades"`
	RealizedPnl float64     `json:"realized_pnl"`
	Pips        float64     `json:"pips"`
	Overview    *Overview   `json:"overview"`
}

// LeaderboardEntry ranks one user by summed realized P&L.
type LeaderboardEntry struct {
	UserID      int64   `json:"user_id"`
	TotalPnl    float64 `json:"total_pnl"`
	TradesCount int     `json:"trades_count"`
}
