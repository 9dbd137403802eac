// Package overview composes account read models shared by both trade
// families. It holds no state of its own; everything here is derived from
// values the callers already loaded.
package overview

// Margins is the derived equity block of an account overview.
type Margins struct {
	Equity      float64  `json:"equity"`
	MarginUsed  float64  `json:"margin_used"`
	FreeMargin  float64  `json:"free_margin"`
	MarginLevel *float64 `json:"margin_level"` // percent; nil when nothing is locked
}

// Compute derives the margin block from a balance snapshot and the summed
// floating P&L of open positions. marginLevel is left nil when locked is
// within tolerance of zero, since equity/0 is meaningless.
func Compute(available, locked, floatingPnl, tolerance float64) Margins {
	equity := available + locked + floatingPnl
	m := Margins{
		Equity:     equity,
		MarginUsed: locked,
		FreeMargin: equity - locked,
	}
	if locked > tolerance {
		level := equity / locked * 100
		m.MarginLevel = &level
	}
	return m
}
