package service

import (
	"context"

	"TradeGate/internal/domain/models"
)

// RegimeService classifies the market regime for a symbol from its bar
// window and reports whether the serving model is due for a retrain.
type RegimeService interface {
	Classify(ctx context.Context, symbol string, window []models.PriceBar) (models.RegimeState, error)
	Current(symbol string) models.RegimeState
	ShouldRetrain(symbol string) bool
	Retrain(ctx context.Context, symbol string, window []models.PriceBar) error
}

// ApprovalOracle scores whether now is a good time to move settled profit
// out of the active pool. Score is 0-100. Callers must bound the call with a
// timeout and treat failure as rejection.
type ApprovalOracle interface {
	ScoreTransfer(ctx context.Context, amount float64) (float64, error)
}

// AdvisoryScorer is an optional external critique signal folded into the
// validator's technical dimension. Implementations must respect ctx
// deadlines; an error or timeout contributes the neutral score.
type AdvisoryScorer interface {
	Score(ctx context.Context, proposal *models.TradeProposal) (float64, error)
}
