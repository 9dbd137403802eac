package ledger

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tradesim/tradesim-api/internal/types"
)

// DefaultFunding is the amount a balance is seeded with on first use.
const DefaultFunding = 10000.0

type Database struct {
	db        *gorm.DB
	funding   float64
	tolerance float64
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db, funding: DefaultFunding, tolerance: types.DefaultTolerance}
}

// WithFunding overrides the default seed amount.
func (d *Database) WithFunding(amount float64) *Database {
	d.funding = amount
	return d
}

// WithTolerance overrides the balance-zero epsilon.
func (d *Database) WithTolerance(eps float64) *Database {
	d.tolerance = eps
	return d
}

func (d *Database) Funding() float64 { return d.funding }

// GetOrInit returns the user's balance, creating a default-funded row
// exactly once.
func (d *Database) GetOrInit(userID int64) (*Balance, error) {
	var balance Balance
	err := d.db.Where("user_id = ?", userID).First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	balance = Balance{UserID: userID, Available: d.funding}
	if err := d.db.Create(&balance).Error; err != nil {
		// Concurrent first touch; the unique index makes one creator win.
		if readErr := d.db.Where("user_id = ?", userID).First(&balance).Error; readErr == nil {
			return &balance, nil
		}
		return nil, err
	}
	return &balance, nil
}

// ApplyDelta adjusts a balance inside the caller's transaction. It must only
// ever run in the same transaction as the dependent trade-row mutation; it
// is not exposed as a standalone operation. The row is re-read under the
// transaction so overlapping operations cannot lose updates, and the result
// is rejected if available would drop below zero (within tolerance). Locked
// is floored at zero to absorb rounding on release.
func (d *Database) ApplyDelta(tx *gorm.DB, userID int64, dAvailable, dLocked float64) (*Balance, error) {
	var balance Balance
	if err := tx.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	newAvailable := balance.Available + dAvailable
	if newAvailable < -d.tolerance {
		return nil, fmt.Errorf("%w: available %.2f, requested %.2f",
			types.ErrInsufficientBalance, balance.Available, -dAvailable)
	}
	if newAvailable < 0 {
		newAvailable = 0
	}
	newLocked := balance.Locked + dLocked
	if newLocked < 0 {
		newLocked = 0
	}

	balance.Available = newAvailable
	balance.Locked = newLocked
	if err := tx.Save(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// ResetAll restores every balance to the default funding amount inside the
// caller's transaction.
func (d *Database) ResetAll(tx *gorm.DB) error {
	return tx.Model(&Balance{}).Where("1 = 1").Updates(map[string]interface{}{
		"available": d.funding,
		"locked":    0,
	}).Error
}
