package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TradeGate/internal/domain/models"
	internalrepo "TradeGate/internal/repository"
)

func testEngine(t *testing.T) (*Engine, *internalrepo.MemoryLedger, *stubRegime, *capturePublisher) {
	t.Helper()
	ledger := internalrepo.NewMemoryLedger()
	regime := newStubRegime()
	pub := &capturePublisher{}
	validator := NewTradeValidator(testValidatorConfig(), ledger, nil, nopMetrics{}, nil)
	discipline := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	allocator := NewCapitalAllocator(testSiphonConfig(), 0, &stubOracle{score: 80}, ledger, pub, nopMetrics{}, nil)

	e := NewEngine(EngineParams{
		Classifier: regime,
		Validator:  validator,
		Discipline: discipline,
		Allocator:  allocator,
		Bars:       internalrepo.NewMemoryBarStore(64),
		Ledger:     ledger,
		Publisher:  pub,
		Metrics:    nopMetrics{},
		WindowSize: 32,
	})
	t.Cleanup(e.Close)
	return e, ledger, regime, pub
}

func bar(symbol string, at time.Time, close float64) *models.PriceBar {
	return &models.PriceBar{
		Symbol:    symbol,
		Timestamp: at,
		Open:      close,
		High:      close * 1.01,
		Low:       close * 0.99,
		Close:     close,
		Volume:    100,
	}
}

func TestEngineRejectsOutOfOrderBars(t *testing.T) {
	e, _, _, _ := testEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, e.OnBar(ctx, bar("BTCUSD", now, 100)))
	err := e.OnBar(ctx, bar("BTCUSD", now.Add(-time.Minute), 101))
	require.ErrorIs(t, err, models.ErrOutOfOrderData)

	// a later bar is accepted again
	require.NoError(t, e.OnBar(ctx, bar("BTCUSD", now.Add(time.Minute), 101)))
}

func TestEngineForwardsApprovedOrders(t *testing.T) {
	e, _, regime, pub := testEngine(t)
	regime.set("BTCUSD", bullishRegime("BTCUSD"))

	res, err := e.ValidateProposal(context.Background(), longProposal("BTCUSD"))
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, res.Decision)
	require.Equal(t, 1, pub.orderCount())
}

func TestEngineDoesNotForwardRejections(t *testing.T) {
	e, _, regime, pub := testEngine(t)
	regime.set("BTCUSD", bullishRegime("BTCUSD"))

	p := longProposal("BTCUSD")
	p.TakeProfit = 101
	res, err := e.ValidateProposal(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, res.Decision)
	require.Zero(t, pub.orderCount())
}

func TestEngineLinksOutcomeToValidation(t *testing.T) {
	e, ledger, regime, _ := testEngine(t)
	regime.set("BTCUSD", bullishRegime("BTCUSD"))
	ctx := context.Background()

	_, err := e.ValidateProposal(ctx, longProposal("BTCUSD"))
	require.NoError(t, err)

	tc := &models.TradeClose{
		Symbol:    "BTCUSD",
		Direction: models.DirectionLong,
		PnL:       -120,
		RMultiple: -1,
		ClosedAt:  time.Now().UTC(),
	}
	require.NoError(t, e.OnTradeClose(ctx, tc))

	// the link is a new record; the original is untouched
	recs, err := ledger.Recent(ctx, "BTCUSD", models.AuditValidation, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	var latest, original models.ValidationPayload
	require.NoError(t, json.Unmarshal(recs[0].Payload, &latest))
	require.NoError(t, json.Unmarshal(recs[1].Payload, &original))
	require.NotNil(t, latest.Outcome)
	require.InDelta(t, -120.0, latest.Outcome.PnL, 1e-9)
	require.Nil(t, original.Outcome)

	// discipline saw the loss
	require.Equal(t, 1, e.DisciplineState().LossesToday)
}

func TestEngineOutcomeSkipsRejectedValidations(t *testing.T) {
	e, ledger, regime, _ := testEngine(t)
	regime.set("BTCUSD", bullishRegime("BTCUSD"))
	ctx := context.Background()

	approved, err := e.ValidateProposal(ctx, longProposal("BTCUSD"))
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, approved.Decision)

	// a rejection lands between the entry and its close
	p := longProposal("BTCUSD")
	p.TakeProfit = 101
	rejected, err := e.ValidateProposal(ctx, p)
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, rejected.Decision)

	tc := &models.TradeClose{
		Symbol:    "BTCUSD",
		Direction: models.DirectionLong,
		PnL:       250,
		RMultiple: 2.5,
		ClosedAt:  time.Now().UTC(),
	}
	require.NoError(t, e.OnTradeClose(ctx, tc))

	recs, err := ledger.Recent(ctx, "BTCUSD", models.AuditValidation, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// newest record is the outcome link, and it carries the approved
	// validation, not the rejection
	var linked models.ValidationPayload
	require.NoError(t, json.Unmarshal(recs[0].Payload, &linked))
	require.NotNil(t, linked.Outcome)
	require.InDelta(t, 250.0, linked.Outcome.PnL, 1e-9)
	require.Equal(t, models.DecisionApprove, linked.Result.Decision)
}

func TestEngineBalanceUpdateDrivesSiphon(t *testing.T) {
	e, _, _, pub := testEngine(t)

	event, err := e.OnBalanceUpdate(context.Background(), models.BalanceUpdate{
		Balance:   1200,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, models.SiphonExecuted, event.Status)

	pools := e.Pools()
	require.InDelta(t, 500.0, pools.Active, 1e-9)
	require.InDelta(t, 700.0, pools.Reserve, 1e-9)
	require.Equal(t, 1, pub.transferCount())
	require.Len(t, e.SiphonHistory(), 1)
}

func TestEngineEmotionCheckin(t *testing.T) {
	e, _, _, _ := testEngine(t)

	verdict, err := e.LogEmotion(context.Background(), "calm", 3, "")
	require.NoError(t, err)
	require.True(t, verdict.ShouldTrade)
	require.Len(t, e.DisciplineState().EmotionLog, 1)
}

func TestEngineRecentValidations(t *testing.T) {
	e, _, regime, _ := testEngine(t)
	regime.set("BTCUSD", bullishRegime("BTCUSD"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.ValidateProposal(ctx, longProposal("BTCUSD"))
		require.NoError(t, err)
	}
	results, err := e.RecentValidations(ctx, "BTCUSD", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, models.DecisionApprove, results[0].Decision)
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	e, _, _, _ := testEngine(t)
	e.Close()
	e.Close()

	err := e.OnBar(context.Background(), bar("BTCUSD", time.Now().UTC(), 100))
	require.Error(t, err)
}
