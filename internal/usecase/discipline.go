package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	applogger "TradeGate/pkg/logger"
)

// DisciplineConfig holds the per-day discipline limits.
type DisciplineConfig struct {
	MaxStrikes     int
	MaxDailyTrades int
	DailyLossLimit float64       // account currency; 0 disables
	RevengeWindow  time.Duration // window after a loss in which negative emotions flag revenge risk
}

// DisciplineTracker is the per-day discipline state machine. It is the only
// writer of DisciplineState; all mutation happens under its mutex and
// readers get value snapshots.
type DisciplineTracker struct {
	cfg     DisciplineConfig
	ledger  drepo.AuditLedger
	metrics drepo.Metrics
	logger  *applogger.Logger
	clock   func() time.Time

	mu    sync.Mutex
	state models.DisciplineState
}

// NewDisciplineTracker creates a tracker starting a fresh day.
func NewDisciplineTracker(cfg DisciplineConfig, ledger drepo.AuditLedger, metrics drepo.Metrics, logger *applogger.Logger) *DisciplineTracker {
	if cfg.MaxStrikes <= 0 {
		cfg.MaxStrikes = 3
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = 10
	}
	if cfg.RevengeWindow <= 0 {
		cfg.RevengeWindow = 30 * time.Minute
	}
	t := &DisciplineTracker{
		cfg:     cfg,
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
		clock:   time.Now,
	}
	t.state = t.freshState(t.clock())
	return t
}

// SetClock overrides the time source. Used by tests.
func (t *DisciplineTracker) SetClock(clock func() time.Time) { t.clock = clock }

func (t *DisciplineTracker) freshState(now time.Time) models.DisciplineState {
	return models.DisciplineState{
		Date:             now.UTC().Format("2006-01-02"),
		StrikesRemaining: t.cfg.MaxStrikes,
	}
}

// State returns a snapshot of today's discipline state.
func (t *DisciplineTracker) State() models.DisciplineState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.clock())
	s := t.state
	s.EmotionLog = append([]models.EmotionEntry(nil), t.state.EmotionLog...)
	return s
}

// CheckTradingAllowed returns the allow/deny verdict independent of any
// specific trade.
func (t *DisciplineTracker) CheckTradingAllowed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.clock())
	if t.state.LockedOut {
		return false, t.state.LockoutReason
	}
	return true, ""
}

// RecordTradeClose folds a settled trade into the day's counters and applies
// the lockout transitions. The lockout transition is appended to the ledger
// before it is considered committed.
func (t *DisciplineTracker) RecordTradeClose(ctx context.Context, tc *models.TradeClose) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.rolloverLocked(now)

	t.state.TradesToday++
	t.state.LastTradeAt = now
	if tc.PnL < 0 {
		t.state.LossesToday++
		t.state.DailyLossAmount += -tc.PnL
		t.state.StrikesRemaining--
		t.state.LastLossAt = now
	}

	reason := t.lockoutReasonLocked()
	if reason != "" && !t.state.LockedOut {
		if err := t.lockLocked(ctx, now, reason); err != nil {
			return err
		}
	}
	return nil
}

func (t *DisciplineTracker) lockoutReasonLocked() string {
	switch {
	case t.state.StrikesRemaining <= 0:
		return fmt.Sprintf("loss limit reached: %d losses today", t.state.LossesToday)
	case t.cfg.DailyLossLimit > 0 && t.state.DailyLossAmount >= t.cfg.DailyLossLimit:
		return fmt.Sprintf("daily loss amount %.2f exceeds limit %.2f", t.state.DailyLossAmount, t.cfg.DailyLossLimit)
	case t.state.TradesToday > t.cfg.MaxDailyTrades:
		return fmt.Sprintf("overtrading: %d trades exceeds daily cap %d", t.state.TradesToday, t.cfg.MaxDailyTrades)
	default:
		return ""
	}
}

// lockLocked appends the lockout to the ledger, then flips the state. If the
// append fails the lockout is still applied in memory (fail closed) but the
// integrity error propagates.
func (t *DisciplineTracker) lockLocked(ctx context.Context, now time.Time, reason string) error {
	rec, err := models.NewAuditRecord("", models.AuditLockout, now, map[string]string{
		"date":   t.state.Date,
		"reason": reason,
	})
	if err == nil {
		err = t.ledger.Append(ctx, &rec)
	}
	t.state.LockedOut = true
	t.state.LockoutReason = reason
	if t.metrics != nil {
		t.metrics.RecordLockout(reason)
	}
	if t.logger != nil {
		t.logger.Warn("discipline lockout", applogger.String("reason", reason))
	}
	if err != nil {
		return fmt.Errorf("%w: lockout audit append: %v", models.ErrIntegrity, err)
	}
	return nil
}

// LogEmotion records a check-in and returns the advisory verdict. It never
// mutates lockout state; it only informs the validator's emotion dimension.
func (t *DisciplineTracker) LogEmotion(ctx context.Context, emotion string, intensity int, notes string) (models.EmotionVerdict, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.rolloverLocked(now)

	entry := models.EmotionEntry{
		Emotion:   strings.ToLower(strings.TrimSpace(emotion)),
		Intensity: intensity,
		Notes:     notes,
		Timestamp: now,
	}
	t.state.EmotionLog = append(t.state.EmotionLog, entry)

	verdict := models.EmotionVerdict{ShouldTrade: true}
	if models.NegativeEmotions[entry.Emotion] &&
		!t.state.LastLossAt.IsZero() &&
		now.Sub(t.state.LastLossAt) <= t.cfg.RevengeWindow {
		verdict.ShouldTrade = false
		verdict.RevengeRisk = true
		verdict.Reason = fmt.Sprintf("%s logged %s after last loss", entry.Emotion, now.Sub(t.state.LastLossAt).Round(time.Minute))
	}
	// early warning, softer than the hard cap
	if t.state.TradesToday >= t.cfg.MaxDailyTrades*3/4 {
		verdict.OvertradingRisk = true
		t.state.OvertradingWarned = true
		if verdict.Reason == "" {
			verdict.Reason = fmt.Sprintf("%d trades today, approaching the daily cap of %d", t.state.TradesToday, t.cfg.MaxDailyTrades)
		}
	}

	rec, err := models.NewAuditRecord("", models.AuditEmotion, now, entry)
	if err == nil {
		err = t.ledger.Append(ctx, &rec)
	}
	if err != nil {
		return verdict, fmt.Errorf("%w: emotion audit append: %v", models.ErrIntegrity, err)
	}
	return verdict, nil
}

// Rollover resets the day on a boundary crossing. The outgoing emotion log
// is archived to the ledger, not discarded.
func (t *DisciplineTracker) Rollover(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.clock())
}

func (t *DisciplineTracker) rolloverLocked(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if t.state.Date == today {
		return
	}
	if len(t.state.EmotionLog) > 0 {
		if rec, err := models.NewAuditRecord("", models.AuditEmotion, now, map[string]any{
			"archived_day": t.state.Date,
			"entries":      t.state.EmotionLog,
		}); err == nil {
			// archive is best-effort; a fresh day must not be blocked by it
			_ = t.ledger.Append(context.Background(), &rec)
		}
	}
	if t.logger != nil {
		t.logger.Info("discipline day rollover",
			applogger.String("from", t.state.Date), applogger.String("to", today))
	}
	t.state = t.freshState(now)
}
