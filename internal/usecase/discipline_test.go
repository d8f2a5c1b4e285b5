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

func testDisciplineConfig() DisciplineConfig {
	return DisciplineConfig{
		MaxStrikes:     3,
		MaxDailyTrades: 10,
		DailyLossLimit: 0,
		RevengeWindow:  30 * time.Minute,
	}
}

func loss(symbol string, amount float64) *models.TradeClose {
	return &models.TradeClose{Symbol: symbol, Direction: models.DirectionLong, PnL: -amount, RMultiple: -1}
}

func win(symbol string, amount float64) *models.TradeClose {
	return &models.TradeClose{Symbol: symbol, Direction: models.DirectionLong, PnL: amount, RMultiple: 2}
}

func TestDisciplineThreeStrikesLockout(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	ctx := context.Background()

	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	ok, _ := d.CheckTradingAllowed()
	require.True(t, ok)
	require.Equal(t, 1, d.State().StrikesRemaining)

	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	ok, reason := d.CheckTradingAllowed()
	require.False(t, ok)
	require.Contains(t, reason, "loss limit")

	// lockout transition hit the ledger
	var lockouts int
	for _, rec := range ledger.All() {
		if rec.Kind == models.AuditLockout {
			lockouts++
		}
	}
	require.Equal(t, 1, lockouts)
}

func TestDisciplineWinsDoNotStrike(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.RecordTradeClose(ctx, win("BTCUSD", 50)))
	}
	s := d.State()
	require.Equal(t, 3, s.StrikesRemaining)
	require.Equal(t, 5, s.TradesToday)
	require.False(t, s.LockedOut)
}

func TestDisciplineDailyLossAmountLockout(t *testing.T) {
	cfg := testDisciplineConfig()
	cfg.MaxStrikes = 10
	cfg.DailyLossLimit = 500
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(cfg, ledger, nopMetrics{}, nil)
	ctx := context.Background()

	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 300)))
	ok, _ := d.CheckTradingAllowed()
	require.True(t, ok)

	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 300)))
	ok, reason := d.CheckTradingAllowed()
	require.False(t, ok)
	require.Contains(t, reason, "daily loss amount")
}

func TestDisciplineOvertradingLockout(t *testing.T) {
	cfg := testDisciplineConfig()
	cfg.MaxDailyTrades = 5
	cfg.MaxStrikes = 100
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(cfg, ledger, nopMetrics{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.RecordTradeClose(ctx, win("BTCUSD", 10)))
	}
	ok, _ := d.CheckTradingAllowed()
	require.True(t, ok)

	require.NoError(t, d.RecordTradeClose(ctx, win("BTCUSD", 10)))
	ok, reason := d.CheckTradingAllowed()
	require.False(t, ok)
	require.Contains(t, reason, "overtrading")
}

func TestDisciplineRevengeVerdict(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	d.SetClock(func() time.Time { return now })
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))

	// negative emotion 10 minutes after the loss
	d.SetClock(func() time.Time { return now.Add(10 * time.Minute) })
	verdict, err := d.LogEmotion(ctx, "Revenge", 8, "want it back")
	require.NoError(t, err)
	require.False(t, verdict.ShouldTrade)
	require.True(t, verdict.RevengeRisk)

	// the same emotion outside the window is fine
	d.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	verdict, err = d.LogEmotion(ctx, "revenge", 8, "")
	require.NoError(t, err)
	require.True(t, verdict.ShouldTrade)
	require.False(t, verdict.RevengeRisk)
}

func TestDisciplineOvertradingWarning(t *testing.T) {
	cfg := testDisciplineConfig()
	cfg.MaxDailyTrades = 8
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(cfg, ledger, nopMetrics{}, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ { // 3/4 of the cap
		require.NoError(t, d.RecordTradeClose(ctx, win("BTCUSD", 10)))
	}
	verdict, err := d.LogEmotion(ctx, "calm", 3, "")
	require.NoError(t, err)
	require.True(t, verdict.OvertradingRisk)
	require.True(t, d.State().OvertradingWarned)
}

func TestDisciplineRollover(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	d := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return day1 })
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	_, err := d.LogEmotion(ctx, "frustration", 6, "")
	require.NoError(t, err)

	ok, _ := d.CheckTradingAllowed()
	require.False(t, ok)

	// next day: counters reset, lockout lifted
	d.SetClock(func() time.Time { return day1.Add(2 * time.Hour) })
	ok, _ = d.CheckTradingAllowed()
	require.True(t, ok)
	s := d.State()
	require.Equal(t, "2026-03-02", s.Date)
	require.Equal(t, 0, s.TradesToday)
	require.Equal(t, 3, s.StrikesRemaining)
	require.Empty(t, s.EmotionLog)

	// the outgoing emotion log was archived, not dropped
	var archived bool
	for _, rec := range ledger.All() {
		if rec.Kind == models.AuditEmotion && rec.Day == "2026-03-02" {
			archived = true
		}
	}
	require.True(t, archived)
}

func TestDisciplineLockoutAuditFailureFailsClosed(t *testing.T) {
	ledger := internalrepo.NewMemoryLedger()
	ledger.FailWith = errors.New("ledger down")
	d := NewDisciplineTracker(testDisciplineConfig(), ledger, nopMetrics{}, nil)
	ctx := context.Background()

	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	require.NoError(t, d.RecordTradeClose(ctx, loss("BTCUSD", 100)))
	err := d.RecordTradeClose(ctx, loss("BTCUSD", 100))
	require.ErrorIs(t, err, models.ErrIntegrity)

	// the lockout still applies in memory
	ok, _ := d.CheckTradingAllowed()
	require.False(t, ok)
}
