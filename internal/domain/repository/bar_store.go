package repository

import (
	"context"

	"TradeGate/internal/domain/models"
)

// BarStore keeps the rolling per-symbol bar window the classifier reads.
// Put enforces monotonically increasing timestamps and returns
// models.ErrOutOfOrderData on violation.
type BarStore interface {
	Put(ctx context.Context, bar *models.PriceBar) error
	Window(ctx context.Context, symbol string, n int) ([]models.PriceBar, error)
	Len(ctx context.Context, symbol string) (int, error)
}
