package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TradeGate/internal/domain/models"
	internalrepo "TradeGate/internal/repository"
)

func testValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinRiskPct:      0.005,
		MaxRiskPct:      0.02,
		MinRiskReward:   2.0,
		RejectThreshold: 7.0,
		ModifyThreshold: 5.0,
		ConfidenceFloor: 0.3,
		MinConfluence:   2,
		HistoryLookback: 20,
	}
}

func TestValidateApprovesCleanProposal(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, res.Decision)
	require.Greater(t, res.Confidence, 0.5)
	require.Nil(t, res.Modifications)
}

func TestValidateRejectsPoorRiskReward(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	p := longProposal("BTCUSD")
	p.TakeProfit = 101 // r:r 0.5
	res, err := v.Validate(context.Background(), p, bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Contains(t, res.Reasoning, "risk:reward")
}

func TestValidateRejectsWhenLockedOut(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	d := models.DisciplineState{LockedOut: true, LockoutReason: "loss limit reached: 3 losses today"}
	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), d)
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Contains(t, res.Reasoning, "locked out")
}

func TestValidateRejectsWhenRegimePaused(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), models.UnknownRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Contains(t, res.Reasoning, "paused")
}

func TestValidateModifySuggestsSizeCap(t *testing.T) {
	cfg := testValidatorConfig()
	cfg.ModifyThreshold = 1.5 // force the oversized proposal into MODIFY range
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(cfg, ledger, nil, nopMetrics{}, nil)

	p := longProposal("BTCUSD")
	p.RequestedSize = 0.05 // 2.5x the max
	res, err := v.Validate(context.Background(), p, bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionModify, res.Decision)
	require.NotNil(t, res.Modifications)
	require.NotNil(t, res.Modifications.RequestedSize)
	require.InDelta(t, cfg.MaxRiskPct, *res.Modifications.RequestedSize, 1e-9)
	require.Nil(t, res.Modifications.StopLoss)
}

func TestValidateRejectsDisallowedDirection(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	// the same clean proposal that approves under a bullish regime, but
	// longs are disallowed here
	regime := models.RegimeState{
		Symbol:     "BTCUSD",
		Label:      models.RegimeLowVolBearish,
		Confidence: 0.9,
		Rules:      models.TradingRules{AllowShort: true, PositionMultiplier: 0.5},
	}
	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), regime, models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Contains(t, res.Reasoning, "long entries disallowed")
	require.GreaterOrEqual(t, res.Scores.MarketContext, 8.0)
}

func TestValidateRejectsAggregateRisk(t *testing.T) {
	cfg := testValidatorConfig()
	cfg.RejectThreshold = 4.0
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(cfg, ledger, nil, nopMetrics{}, nil)

	// direction is allowed, but oversized, counter to the higher timeframe,
	// zero confluence, and after an overtrading warning
	p := &models.TradeProposal{
		Symbol:        "BTCUSD",
		Direction:     models.DirectionLong,
		EntryPrice:    100,
		StopLoss:      98,
		TakeProfit:    106,
		RequestedSize: 0.05,
		HigherTFTrend: models.DirectionShort,
	}
	d := models.DisciplineState{OvertradingWarned: true}
	res, err := v.Validate(context.Background(), p, bullishRegime("BTCUSD"), d)
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Greater(t, res.RiskScore, cfg.RejectThreshold)
	require.Contains(t, res.Reasoning, "reject threshold")
}

func TestValidateRejectsMalformedWithoutAudit(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	p := longProposal("")
	_, err := v.Validate(context.Background(), p, bullishRegime("BTCUSD"), models.DisciplineState{})
	require.ErrorIs(t, err, models.ErrMalformedProposal)
	require.Empty(t, ledger.All())
}

func TestValidateAuditsEveryDecision(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)

	recs := ledger.All()
	require.Len(t, recs, 1)
	require.Equal(t, models.AuditValidation, recs[0].Kind)
	require.Equal(t, "BTCUSD", recs[0].Symbol)
	require.Equal(t, uint64(1), recs[0].Seq)

	// a rejection is audited too
	p := longProposal("BTCUSD")
	p.TakeProfit = 101
	_, err = v.Validate(context.Background(), p, bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Len(t, ledger.All(), 2)
	_ = res
}

func TestValidateHaltsOnAuditFailure(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	ledger.FailWith = errors.New("disk full")
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.Nil(t, res)
	require.ErrorIs(t, err, models.ErrIntegrity)

	// halted: the next call fails before scoring, even with the ledger fixed
	ledger.FailWith = nil
	_, err = v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.ErrorIs(t, err, models.ErrIntegrity)

	v.ClearFault()
	res, err = v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, res.Decision)
}

func TestValidateHistoryPenalizesLosingStreak(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		rec, err := models.NewAuditRecord("BTCUSD", models.AuditValidation, now, models.ValidationPayload{
			Proposal: *longProposal("BTCUSD"),
			Result:   models.ValidationResult{Symbol: "BTCUSD", Decision: models.DecisionApprove},
			Outcome:  &models.TradeClose{Symbol: "BTCUSD", PnL: -50, ClosedAt: now},
		})
		require.NoError(t, err)
		require.NoError(t, ledger.Append(context.Background(), &rec))
	}

	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)
	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	// 3-loss streak plus 0% win rate maxes the history dimension
	require.InDelta(t, 9.0, res.Scores.History, 1e-9)
}

func TestValidateEmotionDimension(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)

	now := time.Now().UTC()
	d := models.DisciplineState{
		LastLossAt: now.Add(-10 * time.Minute),
		EmotionLog: []models.EmotionEntry{
			{Emotion: "revenge", Intensity: 8, Timestamp: now.Add(-5 * time.Minute)},
		},
	}
	p := longProposal("BTCUSD")
	p.ProposedAt = now
	res, err := v.Validate(context.Background(), p, bullishRegime("BTCUSD"), d)
	require.NoError(t, err)
	require.InDelta(t, 6.0, res.Scores.Emotion, 1e-9)
}

type fixedAdvisory struct {
	score float64
	err   error
}

func (f fixedAdvisory) Score(ctx context.Context, p *models.TradeProposal) (float64, error) {
	return f.score, f.err
}

func TestValidateAdvisoryErrorIsNeutral(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, fixedAdvisory{err: errors.New("timeout")}, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	// confluence satisfied, so the only technical contribution is the
	// neutral advisory fallback
	require.InDelta(t, 2.0, res.Scores.Technical, 1e-9)
}

func TestValidateAdvisoryScoreFoldedIn(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	v := NewTradeValidator(testValidatorConfig(), ledger, fixedAdvisory{score: 5}, nopMetrics{}, nil)

	res, err := v.Validate(context.Background(), longProposal("BTCUSD"), bullishRegime("BTCUSD"), models.DisciplineState{})
	require.NoError(t, err)
	require.InDelta(t, 2.0, res.Scores.Technical, 1e-9) // 5 * 0.4
}
