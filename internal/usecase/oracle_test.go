package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TradeGate/internal/domain/models"
	internalrepo "TradeGate/internal/repository"
)

func TestOracleCalmRegimeScoresHigh(t *testing.T) {
	regime := newStubRegime()
	regime.set("BTCUSD", models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeLowVolBullish,
		Confidence: 1.0,
	})
	o := NewGateOracle(regime, internalrepo.NewMemoryLedger(), nil, []string{"BTCUSD"}, "1h")

	score, err := o.ScoreTransfer(context.Background(), 700)
	require.NoError(t, err)
	require.InDelta(t, 85.0, score, 1e-9)
}

func TestOracleTransitionRegimeScoresLow(t *testing.T) {
	regime := newStubRegime()
	regime.set("BTCUSD", models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeTransition,
		Confidence: 1.0,
	})
	o := NewGateOracle(regime, internalrepo.NewMemoryLedger(), nil, []string{"BTCUSD"}, "1h")

	score, err := o.ScoreTransfer(context.Background(), 700)
	require.NoError(t, err)
	require.InDelta(t, 25.0, score, 1e-9)
}

func TestOracleLowConfidencePullsTowardNeutral(t *testing.T) {
	regime := newStubRegime()
	regime.set("BTCUSD", models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeLowVolBullish,
		Confidence: 0.5,
	})
	o := NewGateOracle(regime, internalrepo.NewMemoryLedger(), nil, []string{"BTCUSD"}, "1h")

	score, err := o.ScoreTransfer(context.Background(), 700)
	require.NoError(t, err)
	require.InDelta(t, 67.5, score, 1e-9) // 85*0.5 + 50*0.5
}

func TestOracleLossRecordRaisesScore(t *testing.T) {
	regime := newStubRegime()
	regime.set("BTCUSD", models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeLowVolBullish,
		Confidence: 1.0,
	})
	ledger := internalrepo.NewMemoryLedger()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		rec, err := models.NewAuditRecord("BTCUSD", models.AuditValidation, now, models.ValidationPayload{
			Outcome: &models.TradeClose{Symbol: "BTCUSD", PnL: -10, ClosedAt: now},
		})
		require.NoError(t, err)
		require.NoError(t, ledger.Append(context.Background(), &rec))
	}
	o := NewGateOracle(regime, ledger, nil, []string{"BTCUSD"}, "1h")

	// all losses: win rate 0 adds the full +10 protective shift
	score, err := o.ScoreTransfer(context.Background(), 700)
	require.NoError(t, err)
	require.InDelta(t, 95.0, score, 1e-9)
}

func TestOracleChurningBarsLowerScore(t *testing.T) {
	regime := newStubRegime()
	regime.set("BTCUSD", models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeLowVolBullish,
		Confidence: 1.0,
	})
	bars := internalrepo.NewMemoryBarStore(64)
	now := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < oracleVolWindow+1; i++ {
		// alternating +-5% closes, far above any calm market
		px := 100.0
		if i%2 == 1 {
			px = 105.0
		}
		bar := models.PriceBar{
			Symbol:    "BTCUSD",
			Timestamp: now.Add(time.Duration(i) * time.Hour),
			Open:      px,
			High:      px,
			Low:       px,
			Close:     px,
		}
		require.NoError(t, bars.Put(context.Background(), &bar))
	}
	o := NewGateOracle(regime, internalrepo.NewMemoryLedger(), bars, []string{"BTCUSD"}, "1h")

	// annualized realized vol here is huge, so the penalty hits its cap
	score, err := o.ScoreTransfer(context.Background(), 700)
	require.NoError(t, err)
	require.InDelta(t, 70.0, score, 1e-9)
}

func TestOracleRespectsContextCancel(t *testing.T) {
	o := NewGateOracle(newStubRegime(), internalrepo.NewMemoryLedger(), nil, nil, "1h")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.ScoreTransfer(ctx, 700)
	require.Error(t, err)
}
