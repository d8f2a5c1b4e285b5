package usecase

import (
	"context"
	"encoding/json"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	domsvc "TradeGate/internal/domain/service"
	"TradeGate/internal/services/features"
)

// regimeBaseScore is the market-timing prior per regime label for moving
// settled profit out of the active pool. Calm regimes score high; a transfer
// during TRANSITION or UNKNOWN is poorly timed because the balance may still
// be churning.
var regimeBaseScore = map[models.RegimeLabel]float64{
	models.RegimeLowVolBullish: 85,
	models.RegimeLowVolBearish: 75,
	models.RegimeHighVol:       45,
	models.RegimeTransition:    25,
	models.RegimeUnknown:       30,
}

// oracleVolWindow is the bar lookback for the realized volatility churn
// guard, and oracleVolPenaltyCap bounds how much it can shave off the score.
const (
	oracleVolWindow     = 32
	oracleVolPenaltyCap = 15.0
)

// GateOracle scores transfer timing from the current regimes of the tracked
// symbols, the recent validation record, and realized volatility of the bar
// windows. Implements service.ApprovalOracle.
type GateOracle struct {
	regime    domsvc.RegimeService
	ledger    drepo.AuditLedger
	bars      drepo.BarStore // optional
	symbols   []string
	timeframe string
}

var _ domsvc.ApprovalOracle = (*GateOracle)(nil)

// NewGateOracle creates an oracle. bars may be nil, disabling the realized
// volatility guard.
func NewGateOracle(regime domsvc.RegimeService, ledger drepo.AuditLedger, bars drepo.BarStore, symbols []string, timeframe string) *GateOracle {
	return &GateOracle{regime: regime, ledger: ledger, bars: bars, symbols: symbols, timeframe: timeframe}
}

// ScoreTransfer returns 0-100. The amount itself does not change the score;
// timing is a property of the market, not of the transfer size.
func (o *GateOracle) ScoreTransfer(ctx context.Context, amount float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	score := regimeBaseScore[models.RegimeUnknown]
	if len(o.symbols) > 0 {
		sum := 0.0
		for _, sym := range o.symbols {
			state := o.regime.Current(sym)
			base := regimeBaseScore[state.Label]
			// low confidence pulls the score toward the neutral midpoint
			sum += base*state.Confidence + 50*(1-state.Confidence)
		}
		score = sum / float64(len(o.symbols))
	}

	// losses push toward protecting capital in reserve, wins toward keeping
	// it deployed
	wins, losses := o.recentOutcomes(ctx)
	if wins+losses > 0 {
		winRate := float64(wins) / float64(wins+losses)
		score += (0.5 - winRate) * 20
	}

	// a churning market penalizes the timing even when the regime model has
	// not flipped yet
	if rv := o.realizedVol(ctx); rv > 0 {
		penalty := rv * 20
		if penalty > oracleVolPenaltyCap {
			penalty = oracleVolPenaltyCap
		}
		score -= penalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// realizedVol averages annualized realized volatility over the tracked
// symbols' bar windows. Returns 0 when no bar store is wired or no symbol has
// enough history.
func (o *GateOracle) realizedVol(ctx context.Context) float64 {
	if o.bars == nil {
		return 0
	}
	barsPerYear := features.BarsPerYearForTF(o.timeframe)
	sum, n := 0.0, 0
	for _, sym := range o.symbols {
		window, err := o.bars.Window(ctx, sym, oracleVolWindow+1)
		if err != nil {
			continue
		}
		rv := features.RealizedVolatility(features.ComputeLogReturns(window), oracleVolWindow, barsPerYear)
		if rv > 0 {
			sum += rv
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (o *GateOracle) recentOutcomes(ctx context.Context) (wins, losses int) {
	for _, sym := range o.symbols {
		recs, err := o.ledger.Recent(ctx, sym, models.AuditValidation, 10)
		if err != nil {
			continue
		}
		for _, rec := range recs {
			var payload models.ValidationPayload
			if err := json.Unmarshal(rec.Payload, &payload); err != nil || payload.Outcome == nil {
				continue
			}
			if payload.Outcome.PnL < 0 {
				losses++
			} else {
				wins++
			}
		}
	}
	return wins, losses
}
