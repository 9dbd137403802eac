package types

import "errors"

// Sentinel errors for the trading core. Services wrap these with context via
// fmt.Errorf("...: %w", err); pkg/response maps them to HTTP error codes.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrInvalidPrice        = errors.New("invalid price")
)

// DefaultTolerance is the epsilon applied to balance-zero checks and the
// binary push boundary. Both trade services accept an override in their
// config so the policy is not baked in.
const DefaultTolerance = 1e-8
