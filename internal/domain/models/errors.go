package models

import "errors"

// Boundary and integrity errors. Policy outcomes (REJECT, lockout) are not
// errors; they are normal decisions with reasoning.
var (
	// ErrInsufficientData means a classify window is shorter than the
	// configured minimum number of bars.
	ErrInsufficientData = errors.New("insufficient price data")

	// ErrOutOfOrderData means a bar arrived with a non-increasing timestamp.
	ErrOutOfOrderData = errors.New("out-of-order price data")

	// ErrMalformedProposal means a trade proposal failed boundary validation.
	ErrMalformedProposal = errors.New("malformed trade proposal")

	// ErrModelNotFound means no serialized model blob exists for a symbol.
	// Callers fall back to UNKNOWN/paused rules.
	ErrModelNotFound = errors.New("regime model not found")

	// ErrIntegrity means an audit append or pool invariant failed. The
	// issuing component must refuse further work until the fault is cleared.
	ErrIntegrity = errors.New("integrity violation")
)
