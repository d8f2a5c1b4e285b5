package usecase

import (
	"context"
	"sync"

	"TradeGate/internal/domain/models"
)

// nopMetrics satisfies repository.Metrics without recording anything.
type nopMetrics struct{}

func (nopMetrics) RecordDecision(string, models.Decision)             {}
func (nopMetrics) RecordRegime(string, models.RegimeLabel, float64)   {}
func (nopMetrics) RecordPools(float64, float64)                       {}
func (nopMetrics) RecordSiphon(models.SiphonStatus, float64)          {}
func (nopMetrics) RecordLockout(string)                               {}
func (nopMetrics) RecordError(string)                                 {}
func (nopMetrics) RecordLatency(string, float64)                      {}

// stubRegime serves a fixed state per symbol.
type stubRegime struct {
	mu     sync.Mutex
	states map[string]models.RegimeState
}

func newStubRegime() *stubRegime {
	return &stubRegime{states: make(map[string]models.RegimeState)}
}

func (s *stubRegime) set(symbol string, state models.RegimeState) {
	s.mu.Lock()
	s.states[symbol] = state
	s.mu.Unlock()
}

func (s *stubRegime) Classify(ctx context.Context, symbol string, window []models.PriceBar) (models.RegimeState, error) {
	return s.Current(symbol), nil
}

func (s *stubRegime) Current(symbol string) models.RegimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		return st
	}
	return models.UnknownRegime(symbol)
}

func (s *stubRegime) ShouldRetrain(string) bool { return false }

func (s *stubRegime) Retrain(context.Context, string, []models.PriceBar) error { return nil }

// stubOracle returns a fixed score or error.
type stubOracle struct {
	score float64
	err   error
	calls int
}

func (s *stubOracle) ScoreTransfer(ctx context.Context, amount float64) (float64, error) {
	s.calls++
	return s.score, s.err
}

// capturePublisher records everything published.
type capturePublisher struct {
	mu        sync.Mutex
	orders    []*models.TradeProposal
	transfers []*models.TransferInstruction
	orderErr  error
}

func (p *capturePublisher) PublishOrder(ctx context.Context, proposal *models.TradeProposal, result *models.ValidationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orderErr != nil {
		return p.orderErr
	}
	p.orders = append(p.orders, proposal)
	return nil
}

func (p *capturePublisher) PublishTransfer(ctx context.Context, instr *models.TransferInstruction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, instr)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) orderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}

func (p *capturePublisher) transferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

// bullishRegime is a permissive regime for tests that are not about regime
// gating.
func bullishRegime(symbol string) models.RegimeState {
	return models.RegimeState{
		Symbol:     symbol,
		Label:      models.RegimeLowVolBullish,
		Confidence: 0.9,
		Rules:      models.TradingRules{AllowLong: true, AllowShort: false, PositionMultiplier: 1.0},
	}
}

// longProposal is a clean long with r:r 3.0 inside the risk band.
func longProposal(symbol string) *models.TradeProposal {
	return &models.TradeProposal{
		Symbol:           symbol,
		Direction:        models.DirectionLong,
		EntryPrice:       100,
		StopLoss:         98,
		TakeProfit:       106,
		RequestedSize:    0.01,
		HigherTFTrend:    models.DirectionLong,
		ConfirmingSignal: []string{"trend", "volume"},
	}
}
