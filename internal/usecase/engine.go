package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	domsvc "TradeGate/internal/domain/service"
	"TradeGate/internal/services/regime"
	applogger "TradeGate/pkg/logger"
	"TradeGate/pkg/queue"
)

// Engine is the single entry point for every event the gate reacts to: bars,
// proposals, fills, balance updates, emotion check-ins. Events for the same
// symbol are serialized through one worker; distinct symbols run
// concurrently. Account-level events (balance, emotion) go through a
// dedicated worker so they never race symbol work.
type Engine struct {
	classifier domsvc.RegimeService
	validator  *TradeValidator
	discipline *DisciplineTracker
	allocator  *CapitalAllocator
	bars       drepo.BarStore
	ledger     drepo.AuditLedger
	pub        drepo.Publisher
	jobs       queue.QueueService // nil disables background retraining
	metrics    drepo.Metrics
	logger     *applogger.Logger

	windowSize int // bars handed to Classify

	mu      sync.Mutex
	workers map[string]chan func()
	wg      sync.WaitGroup
	closed  bool
}

// EngineParams collects the engine's collaborators.
type EngineParams struct {
	Classifier domsvc.RegimeService
	Validator  *TradeValidator
	Discipline *DisciplineTracker
	Allocator  *CapitalAllocator
	Bars       drepo.BarStore
	Ledger     drepo.AuditLedger
	Publisher  drepo.Publisher
	Jobs       queue.QueueService
	Metrics    drepo.Metrics
	Logger     *applogger.Logger
	WindowSize int
}

func NewEngine(p EngineParams) *Engine {
	if p.WindowSize <= 0 {
		p.WindowSize = 1008
	}
	return &Engine{
		classifier: p.Classifier,
		validator:  p.Validator,
		discipline: p.Discipline,
		allocator:  p.Allocator,
		bars:       p.Bars,
		ledger:     p.Ledger,
		pub:        p.Publisher,
		jobs:       p.Jobs,
		metrics:    p.Metrics,
		logger:     p.Logger,
		windowSize: p.WindowSize,
		workers:    make(map[string]chan func()),
	}
}

// accountWorker serializes account-level events.
const accountWorker = "\x00account"

// outcomeLookback bounds the scan for the validation record a trade close
// settles against.
const outcomeLookback = 20

// dispatch runs fn on the worker for key and waits for it. Worker goroutines
// are created lazily and drain on Close.
func (e *Engine) dispatch(ctx context.Context, key string, fn func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	ch, ok := e.workers[key]
	if !ok {
		ch = make(chan func(), 64)
		e.workers[key] = ch
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for f := range ch {
				f()
			}
		}()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	select {
	case ch <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for in-flight work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, ch := range e.workers {
		close(ch)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// OnBar ingests one bar: stores it, reclassifies the symbol's regime, audits
// regime changes, and schedules a retrain when the serving model has aged
// out. Out-of-order bars fail fast.
func (e *Engine) OnBar(ctx context.Context, bar *models.PriceBar) error {
	var out error
	err := e.dispatch(ctx, bar.Symbol, func() {
		out = e.handleBar(ctx, bar)
	})
	if err != nil {
		return err
	}
	return out
}

func (e *Engine) handleBar(ctx context.Context, bar *models.PriceBar) error {
	if err := e.bars.Put(ctx, bar); err != nil {
		if errors.Is(err, models.ErrOutOfOrderData) {
			if e.metrics != nil {
				e.metrics.RecordError("out_of_order")
			}
			return err
		}
		return fmt.Errorf("store bar: %w", err)
	}

	prev := e.classifier.Current(bar.Symbol)

	window, err := e.bars.Window(ctx, bar.Symbol, e.windowSize)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	state, err := e.classifier.Classify(ctx, bar.Symbol, window)
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return nil // warm-up, nothing to do yet
	case errors.Is(err, models.ErrModelNotFound):
		e.scheduleRetrain(ctx, bar.Symbol)
		return nil
	case err != nil:
		return fmt.Errorf("classify %s: %w", bar.Symbol, err)
	}

	if e.metrics != nil {
		e.metrics.RecordRegime(bar.Symbol, state.Label, state.Confidence)
	}
	if state.Label != prev.Label {
		e.auditRegimeChange(ctx, prev, state)
	}
	if e.classifier.ShouldRetrain(bar.Symbol) {
		e.scheduleRetrain(ctx, bar.Symbol)
	}
	return nil
}

func (e *Engine) auditRegimeChange(ctx context.Context, prev, next models.RegimeState) {
	payload := map[string]any{
		"from":       prev.Label,
		"to":         next.Label,
		"confidence": next.Confidence,
	}
	rec, err := models.NewAuditRecord(next.Symbol, models.AuditRegimeChange, next.EffectiveSince, payload)
	if err == nil {
		err = e.ledger.Append(ctx, &rec)
	}
	if err != nil && e.logger != nil {
		e.logger.Warn("regime change audit failed",
			applogger.String("symbol", next.Symbol), applogger.Error(err))
	}
	if e.logger != nil {
		e.logger.Info("regime changed",
			applogger.String("symbol", next.Symbol),
			applogger.String("from", string(prev.Label)),
			applogger.String("to", string(next.Label)),
			applogger.Float64("confidence", next.Confidence))
	}
}

func (e *Engine) scheduleRetrain(ctx context.Context, symbol string) {
	if e.jobs == nil {
		return
	}
	err := e.jobs.PublishMessage(ctx, regime.RetrainJobType, regime.RetrainPayload{Symbol: symbol})
	if err != nil && e.logger != nil {
		e.logger.Warn("retrain enqueue failed",
			applogger.String("symbol", symbol), applogger.Error(err))
	}
}

// ValidateProposal runs the full gate on one proposal. Approved and modified
// proposals are forwarded to the execution adapter.
func (e *Engine) ValidateProposal(ctx context.Context, proposal *models.TradeProposal) (*models.ValidationResult, error) {
	var (
		result *models.ValidationResult
		out    error
	)
	err := e.dispatch(ctx, proposal.Symbol, func() {
		regimeState := e.classifier.Current(proposal.Symbol)
		disciplineState := e.discipline.State()
		result, out = e.validator.Validate(ctx, proposal, regimeState, disciplineState)
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		return nil, out
	}

	if result.Decision != models.DecisionReject && e.pub != nil {
		if perr := e.pub.PublishOrder(ctx, proposal, result); perr != nil {
			if e.logger != nil {
				e.logger.Warn("order publish failed",
					applogger.String("symbol", proposal.Symbol), applogger.Error(perr))
			}
			if e.metrics != nil {
				e.metrics.RecordError("order_publish")
			}
		}
	}
	return result, nil
}

// OnTradeClose feeds a settled trade into the discipline tracker and links
// the outcome to the symbol's latest validation so history scoring sees it.
func (e *Engine) OnTradeClose(ctx context.Context, tc *models.TradeClose) error {
	var out error
	err := e.dispatch(ctx, tc.Symbol, func() {
		out = e.handleClose(ctx, tc)
	})
	if err != nil {
		return err
	}
	return out
}

func (e *Engine) handleClose(ctx context.Context, tc *models.TradeClose) error {
	if err := e.discipline.RecordTradeClose(ctx, tc); err != nil {
		return err
	}

	// append a follow-up validation record carrying the outcome; records are
	// never rewritten, so the link is a new entry. Rejected proposals never
	// opened a position and cannot own the outcome, so the newest non-REJECT
	// record takes it. A settled record marks the boundary of the previous
	// close; nothing older is still open.
	recs, err := e.ledger.Recent(ctx, tc.Symbol, models.AuditValidation, outcomeLookback)
	if err != nil {
		return nil
	}
	for _, linked := range recs {
		var payload models.ValidationPayload
		if err := json.Unmarshal(linked.Payload, &payload); err != nil {
			continue
		}
		if payload.Outcome != nil {
			return nil // already settled up to here
		}
		if payload.Result.Decision == models.DecisionReject {
			continue
		}
		payload.Outcome = tc
		rec, err := models.NewAuditRecord(tc.Symbol, models.AuditValidation, tc.ClosedAt, payload)
		if err == nil {
			err = e.ledger.Append(ctx, &rec)
		}
		if err != nil && e.logger != nil {
			e.logger.Warn("outcome audit failed",
				applogger.String("symbol", tc.Symbol), applogger.Error(err))
		}
		return nil
	}
	return nil
}

// OnBalanceUpdate forwards a settled active-pool balance to the allocator.
func (e *Engine) OnBalanceUpdate(ctx context.Context, update models.BalanceUpdate) (*models.SiphonEvent, error) {
	var (
		event *models.SiphonEvent
		out   error
	)
	err := e.dispatch(ctx, accountWorker, func() {
		event, out = e.allocator.OnBalanceUpdate(ctx, update)
	})
	if err != nil {
		return nil, err
	}
	return event, out
}

// LogEmotion records an emotion check-in.
func (e *Engine) LogEmotion(ctx context.Context, emotion string, intensity int, notes string) (models.EmotionVerdict, error) {
	var (
		verdict models.EmotionVerdict
		out     error
	)
	err := e.dispatch(ctx, accountWorker, func() {
		verdict, out = e.discipline.LogEmotion(ctx, emotion, intensity, notes)
	})
	if err != nil {
		return models.EmotionVerdict{}, err
	}
	return verdict, out
}

// Rollover resets the discipline day. Call on the day boundary.
func (e *Engine) Rollover(ctx context.Context) error {
	return e.dispatch(ctx, accountWorker, func() {
		e.discipline.Rollover(ctx)
	})
}

// RegimeState returns the read-only regime snapshot for symbol.
func (e *Engine) RegimeState(symbol string) models.RegimeState {
	return e.classifier.Current(symbol)
}

// DisciplineState returns the read-only discipline snapshot.
func (e *Engine) DisciplineState() models.DisciplineState {
	return e.discipline.State()
}

// Pools returns the capital pools snapshot.
func (e *Engine) Pools() models.CapitalPools {
	return e.allocator.Pools()
}

// SiphonHistory returns resolved siphon events, oldest first.
func (e *Engine) SiphonHistory() []models.SiphonEvent {
	return e.allocator.History()
}

// RecentValidations returns the n most recent validation results for symbol,
// newest first.
func (e *Engine) RecentValidations(ctx context.Context, symbol string, n int) ([]models.ValidationResult, error) {
	recs, err := e.ledger.Recent(ctx, symbol, models.AuditValidation, n)
	if err != nil {
		return nil, err
	}
	out := make([]models.ValidationResult, 0, len(recs))
	for _, rec := range recs {
		var payload models.ValidationPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			continue
		}
		out = append(out, payload.Result)
	}
	return out, nil
}
