package types

// Spot trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Spot trade statuses.
const (
	SpotStatusOpen   = "open"
	SpotStatusClosed = "closed"
)

// Binary option directions.
const (
	DirectionCall = "call"
	DirectionPut  = "put"
)

// Binary trade statuses.
const (
	BinaryStatusOpen    = "open"
	BinaryStatusSettled = "settled"
)

// Binary settlement results.
const (
	ResultWin  = "win"
	ResultLose = "lose"
	ResultPush = "push"
)

// DirectionSign returns +1 for a buy and -1 for a sell.
func DirectionSign(side string) float64 {
	if side == SideSell {
		return -1
	}
	return 1
}
