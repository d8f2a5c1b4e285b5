package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	domsvc "TradeGate/internal/domain/service"
	applogger "TradeGate/pkg/logger"
)

// ValidatorConfig holds scoring thresholds and weights. All of these are
// configuration-surface values validated at load time.
type ValidatorConfig struct {
	MinRiskPct      float64 // e.g. 0.01
	MaxRiskPct      float64 // e.g. 0.02
	MinRiskReward   float64 // e.g. 2.0
	RejectThreshold float64 // riskScore above this rejects, e.g. 7.0
	ModifyThreshold float64 // riskScore above this proposes fixes, e.g. 5.0
	ConfidenceFloor float64 // minimum confidence to approve, e.g. 0.7
	MinConfluence   int     // confirming signals required, e.g. 2
	HistoryLookback int     // same-symbol records consulted, e.g. 20
	AdvisoryTimeout time.Duration

	// Weights for the five dimensions; zero means equal weighting.
	Weights DimensionWeights
}

// DimensionWeights are the aggregation weights for the five sub-scores.
type DimensionWeights struct {
	Risk          float64
	MarketContext float64
	History       float64
	Emotion       float64
	Technical     float64
}

func (w DimensionWeights) normalized() DimensionWeights {
	sum := w.Risk + w.MarketContext + w.History + w.Emotion + w.Technical
	if sum <= 0 {
		return DimensionWeights{Risk: 0.2, MarketContext: 0.2, History: 0.2, Emotion: 0.2, Technical: 0.2}
	}
	return DimensionWeights{
		Risk:          w.Risk / sum,
		MarketContext: w.MarketContext / sum,
		History:       w.History / sum,
		Emotion:       w.Emotion / sum,
		Technical:     w.Technical / sum,
	}
}

// TradeValidator renders APPROVE / REJECT / MODIFY verdicts on proposals.
// Every call writes exactly one audit record before the result is returned;
// the history dimension of future calls depends on it.
type TradeValidator struct {
	cfg      ValidatorConfig
	ledger   drepo.AuditLedger
	advisory domsvc.AdvisoryScorer // optional
	metrics  drepo.Metrics
	logger   *applogger.Logger

	mu     sync.Mutex
	halted error // set on integrity fault; cleared externally
}

// NewTradeValidator creates a validator. advisory may be nil.
func NewTradeValidator(cfg ValidatorConfig, ledger drepo.AuditLedger, advisory domsvc.AdvisoryScorer, metrics drepo.Metrics, logger *applogger.Logger) *TradeValidator {
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = 2 * time.Second
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 20
	}
	return &TradeValidator{cfg: cfg, ledger: ledger, advisory: advisory, metrics: metrics, logger: logger}
}

// ClearFault re-enables validation after an integrity fault has been
// externally resolved.
func (v *TradeValidator) ClearFault() {
	v.mu.Lock()
	v.halted = nil
	v.mu.Unlock()
}

// Validate evaluates a proposal against the current regime and discipline
// state. Malformed proposals are rejected at the boundary.
func (v *TradeValidator) Validate(ctx context.Context, proposal *models.TradeProposal, regime models.RegimeState, discipline models.DisciplineState) (*models.ValidationResult, error) {
	v.mu.Lock()
	if v.halted != nil {
		err := v.halted
		v.mu.Unlock()
		return nil, err
	}
	v.mu.Unlock()

	if err := proposal.CheckValid(); err != nil {
		return nil, err
	}

	start := time.Now()
	scores := models.DimensionScores{
		Risk:          v.scoreRisk(proposal),
		MarketContext: v.scoreMarketContext(proposal, regime),
		History:       v.scoreHistory(ctx, proposal),
		Emotion:       v.scoreEmotion(proposal, discipline),
		Technical:     v.scoreTechnical(ctx, proposal),
	}

	w := v.cfg.Weights.normalized()
	riskScore := scores.Risk*w.Risk +
		scores.MarketContext*w.MarketContext +
		scores.History*w.History +
		scores.Emotion*w.Emotion +
		scores.Technical*w.Technical
	confidence := 1 - riskScore/10

	rr := proposal.RiskReward()
	var reasons []string
	decision := models.DecisionApprove
	var mods *models.SuggestedModifications

	switch {
	case discipline.LockedOut:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("locked out: %s", discipline.LockoutReason))
	case regime.Rules.PauseTrading:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("trading paused in %s regime (confidence %.2f)", regime.Label, regime.Confidence))
	case proposal.Direction == models.DirectionLong && !regime.Rules.AllowLong:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("long entries disallowed in %s regime", regime.Label))
	case proposal.Direction == models.DirectionShort && !regime.Rules.AllowShort:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("short entries disallowed in %s regime", regime.Label))
	case rr < v.cfg.MinRiskReward:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("risk:reward %.2f below minimum %.2f", rr, v.cfg.MinRiskReward))
	case riskScore > v.cfg.RejectThreshold:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("risk score %.1f above reject threshold %.1f", riskScore, v.cfg.RejectThreshold))
	case riskScore > v.cfg.ModifyThreshold:
		if mods = v.suggestFix(proposal, regime); mods != nil {
			decision = models.DecisionModify
			reasons = append(reasons, fmt.Sprintf("risk score %.1f; deterministic fix available", riskScore))
		} else {
			decision = models.DecisionReject
			reasons = append(reasons, fmt.Sprintf("risk score %.1f and no deterministic fix", riskScore))
		}
	case confidence < v.cfg.ConfidenceFloor:
		decision = models.DecisionReject
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below floor %.2f", confidence, v.cfg.ConfidenceFloor))
	default:
		reasons = append(reasons, fmt.Sprintf("risk score %.1f, r:r %.2f, regime %s", riskScore, rr, regime.Label))
	}

	result := &models.ValidationResult{
		Symbol:        proposal.Symbol,
		Decision:      decision,
		Confidence:    confidence,
		RiskScore:     riskScore,
		Scores:        scores,
		Reasoning:     strings.Join(reasons, "; "),
		Modifications: mods,
		EvaluatedAt:   time.Now().UTC(),
	}

	// Durably append before the decision is reported. An append failure is
	// an integrity fault: the decision is withheld and the validator halts.
	rec, err := models.NewAuditRecord(proposal.Symbol, models.AuditValidation, result.EvaluatedAt, models.ValidationPayload{
		Proposal: *proposal,
		Result:   *result,
	})
	if err == nil {
		err = v.ledger.Append(ctx, &rec)
	}
	if err != nil {
		fault := fmt.Errorf("%w: validation audit append: %v", models.ErrIntegrity, err)
		v.mu.Lock()
		v.halted = fault
		v.mu.Unlock()
		if v.metrics != nil {
			v.metrics.RecordError("audit_append")
		}
		return nil, fault
	}

	if v.metrics != nil {
		v.metrics.RecordDecision(proposal.Symbol, decision)
		v.metrics.RecordLatency("validate", time.Since(start).Seconds())
	}
	if v.logger != nil {
		v.logger.Info("trade validated",
			applogger.String("symbol", proposal.Symbol),
			applogger.String("decision", string(decision)),
			applogger.String("reasoning", result.Reasoning))
	}
	return result, nil
}

// scoreRisk checks position size against the configured risk band and the
// stop-implied loss. 0 is ideal, 10 disqualifying.
func (v *TradeValidator) scoreRisk(p *models.TradeProposal) float64 {
	score := 0.0
	switch {
	case p.RequestedSize > v.cfg.MaxRiskPct*2:
		score += 8
	case p.RequestedSize > v.cfg.MaxRiskPct:
		score += 5
	case p.RequestedSize < v.cfg.MinRiskPct:
		score += 3
	}

	// loss implied by the stop, as a fraction of capital at requested size
	stopDist := p.EntryPrice - p.StopLoss
	if p.Direction == models.DirectionShort {
		stopDist = p.StopLoss - p.EntryPrice
	}
	impliedLossPct := p.RequestedSize * stopDist / p.EntryPrice
	if impliedLossPct > v.cfg.MaxRiskPct {
		score += 4
	}
	return clampScore(score)
}

// scoreMarketContext checks direction compatibility with the regime rules
// and timeframe agreement.
func (v *TradeValidator) scoreMarketContext(p *models.TradeProposal, regime models.RegimeState) float64 {
	score := 0.0
	if p.Direction == models.DirectionLong && !regime.Rules.AllowLong {
		score += 8
	}
	if p.Direction == models.DirectionShort && !regime.Rules.AllowShort {
		score += 8
	}
	if p.HigherTFTrend != "" && p.HigherTFTrend != p.Direction {
		score += 3
	}
	if regime.Label == models.RegimeHighVol {
		score += 1
	}
	return clampScore(score)
}

// scoreHistory elevates the score when the recent same-symbol record shows a
// losing streak or a poor win rate.
func (v *TradeValidator) scoreHistory(ctx context.Context, p *models.TradeProposal) float64 {
	recs, err := v.ledger.Recent(ctx, p.Symbol, models.AuditValidation, v.cfg.HistoryLookback)
	if err != nil || len(recs) == 0 {
		return 2 // no record either way
	}

	wins, losses, streak := 0, 0, 0
	streakBroken := false
	// records come newest-first
	for _, rec := range recs {
		var payload models.ValidationPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil || payload.Outcome == nil {
			continue
		}
		if payload.Outcome.PnL < 0 {
			losses++
			if !streakBroken {
				streak++
			}
		} else {
			wins++
			streakBroken = true
		}
	}
	closed := wins + losses
	if closed == 0 {
		return 2
	}

	score := 0.0
	if streak >= 3 {
		score += 6
	} else if streak == 2 {
		score += 4
	}
	winRate := float64(wins) / float64(closed)
	if winRate < 0.4 {
		score += 3
	}
	return clampScore(score)
}

// scoreEmotion flags revenge trading and high-intensity negative emotions
// close to the last loss.
func (v *TradeValidator) scoreEmotion(p *models.TradeProposal, d models.DisciplineState) float64 {
	score := 0.0
	now := p.ProposedAt
	if now.IsZero() {
		now = time.Now()
	}
	for _, e := range d.EmotionLog {
		if !models.NegativeEmotions[e.Emotion] {
			continue
		}
		recent := now.Sub(e.Timestamp) <= time.Hour
		afterLoss := !d.LastLossAt.IsZero() && e.Timestamp.Sub(d.LastLossAt) >= 0 && e.Timestamp.Sub(d.LastLossAt) <= 30*time.Minute
		switch {
		case afterLoss:
			score += 6
		case recent && e.Intensity >= 7:
			score += 4
		case recent:
			score += 2
		}
	}
	if d.OvertradingWarned {
		score += 2
	}
	return clampScore(score)
}

// scoreTechnical counts confirming signals and folds in the optional
// advisory score. An advisory timeout contributes the neutral score.
func (v *TradeValidator) scoreTechnical(ctx context.Context, p *models.TradeProposal) float64 {
	score := 0.0
	n := len(p.ConfirmingSignal)
	switch {
	case n == 0:
		score += 6
	case n < v.cfg.MinConfluence:
		score += 4
	}

	if v.advisory != nil {
		advCtx, cancel := context.WithTimeout(ctx, v.cfg.AdvisoryTimeout)
		adv, err := v.advisory.Score(advCtx, p)
		cancel()
		if err != nil {
			score += 2 // neutral: no confirmation either way
			if v.metrics != nil {
				v.metrics.RecordError("advisory")
			}
		} else {
			// adv is 0-10 where 0 agrees with the trade
			score += adv * 0.4
		}
	}
	return clampScore(score)
}

// suggestFix returns the minimal override that would lower the risk score
// below the modify threshold, or nil when no deterministic fix exists. Only
// the size is fixable here: a proposal failing the R:R gate was already
// rejected before MODIFY is considered.
func (v *TradeValidator) suggestFix(p *models.TradeProposal, regime models.RegimeState) *models.SuggestedModifications {
	if p.RequestedSize <= v.cfg.MaxRiskPct {
		return nil
	}
	size := v.cfg.MaxRiskPct * regime.Rules.PositionMultiplier
	if size <= 0 {
		return nil
	}
	return &models.SuggestedModifications{RequestedSize: &size}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
