package regime

import (
	"context"
	"fmt"
	"time"

	domrepo "TradeGate/internal/domain/repository"
	"TradeGate/pkg/cache"
	applogger "TradeGate/pkg/logger"
	"TradeGate/pkg/queue"
)

// RetrainJobType is the queue message type for retrain requests.
const RetrainJobType = "regime_retrain"

// RetrainPayload identifies which symbol to refit.
type RetrainPayload struct {
	Symbol string `json:"symbol"`
}

// RetrainJob refits regime models in the background so retraining never
// blocks trade validation. One job per symbol; failures leave the serving
// model untouched.
type RetrainJob struct {
	classifier *Classifier
	bars       domrepo.BarStore
	logger     *applogger.Logger
	locks      cache.Service
	lockTTL    time.Duration
}

// NewRetrainJob creates the queue job handler for retrain requests.
func NewRetrainJob(classifier *Classifier, bars domrepo.BarStore, logger *applogger.Logger) *RetrainJob {
	return &RetrainJob{classifier: classifier, bars: bars, logger: logger, lockTTL: 5 * time.Minute}
}

// SetLockService enables a per-symbol lock so overlapping retrain requests
// for the same symbol collapse into one fit.
func (j *RetrainJob) SetLockService(c cache.Service) { j.locks = c }

func (j *RetrainJob) Name() string { return "regime-retrainer" }
func (j *RetrainJob) Type() string { return RetrainJobType }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RetrainPayload](payload)
	if err != nil {
		return fmt.Errorf("retrain payload: %w", err)
	}
	if j.locks != nil {
		key := cache.GenerateKey("retrain", p.Symbol)
		ok, lerr := j.locks.TryLock(ctx, key, j.lockTTL)
		if lerr != nil {
			return fmt.Errorf("retrain lock %s: %w", p.Symbol, lerr)
		}
		if !ok {
			// Another worker already holds this symbol.
			return nil
		}
		defer func() { _ = j.locks.Unlock(ctx, key) }()
	}
	window, err := j.bars.Window(ctx, p.Symbol, j.classifier.cfg.TrainWindowBars)
	if err != nil {
		return fmt.Errorf("retrain window %s: %w", p.Symbol, err)
	}
	if err := j.classifier.Retrain(ctx, p.Symbol, window); err != nil {
		// Degrade gracefully: the old model keeps serving. Surface as a
		// warning through the classifier's logger and stop retrying.
		if j.logger != nil {
			j.logger.Warn("background retrain failed",
				applogger.String("symbol", p.Symbol), applogger.Error(err))
		}
		return nil
	}
	return nil
}

var _ queue.Job = (*RetrainJob)(nil)
