package ledger

import "gorm.io/gorm"

// Balance is one user's money, split into the spendable part and the part
// escrowed against open trades. Every mutation moves the two in lockstep
// inside the transaction that also writes the dependent trade row.
type Balance struct {
	gorm.Model `json:"-"`
	UserID     int64   `gorm:"uniqueIndex" json:"user_id"`
	Available  float64 `json:"available"`
	Locked     float64 `json:"locked"`
}

// Snapshot is the read model returned inside overviews.
type Snapshot struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

func (b *Balance) Snapshot() Snapshot {
	return Snapshot{Available: b.Available, Locked: b.Locked}
}
