package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeGate/internal/domain/models"
)

type testMetrics struct{}

func (testMetrics) RecordDecision(string, models.Decision)           {}
func (testMetrics) RecordRegime(string, models.RegimeLabel, float64) {}
func (testMetrics) RecordPools(float64, float64)                     {}
func (testMetrics) RecordSiphon(models.SiphonStatus, float64)        {}
func (testMetrics) RecordLockout(string)                             {}
func (testMetrics) RecordError(string)                               {}
func (testMetrics) RecordLatency(string, float64)                    {}

type recordingProc struct {
	bars []*models.PriceBar
	err  error
}

func (p *recordingProc) OnBar(ctx context.Context, b *models.PriceBar) error {
	if p.err != nil {
		return p.err
	}
	p.bars = append(p.bars, b)
	return nil
}

func goodBar(symbol string, at time.Time) *models.PriceBar {
	return &models.PriceBar{Symbol: symbol, Timestamp: at, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
}

func TestValidateBar(t *testing.T) {
	at := time.Now()

	mutate := func(f func(*models.PriceBar)) *models.PriceBar {
		b := goodBar("BTCUSD", at)
		f(b)
		return b
	}

	cases := []struct {
		name string
		bar  *models.PriceBar
		ok   bool
	}{
		{"valid", goodBar("BTCUSD", at), true},
		{"nil", nil, false},
		{"empty symbol", mutate(func(b *models.PriceBar) { b.Symbol = "" }), false},
		{"zero timestamp", mutate(func(b *models.PriceBar) { b.Timestamp = time.Time{} }), false},
		{"zero close", mutate(func(b *models.PriceBar) { b.Close = 0 }), false},
		{"negative open", mutate(func(b *models.PriceBar) { b.Open = -1 }), false},
		{"high below low", mutate(func(b *models.PriceBar) { b.High = 98 }), false},
		{"negative volume", mutate(func(b *models.PriceBar) { b.Volume = -1 }), false},
	}

	for _, tc := range cases {
		err := validateBar(tc.bar)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}

func TestProcessForwardsDownstream(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, testMetrics{})

	if err := p.Process(context.Background(), goodBar("BTCUSD", time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(proc.bars) != 1 {
		t.Fatalf("downstream got %d bars", len(proc.bars))
	}
}

func TestProcessSurfacesOrderingViolation(t *testing.T) {
	proc := &recordingProc{err: models.ErrOutOfOrderData}
	p := NewRealtimePipeline(proc, testMetrics{}, WithBufferSize(8))

	err := p.Process(context.Background(), goodBar("BTCUSD", time.Now()))
	if !errors.Is(err, models.ErrOutOfOrderData) {
		t.Fatalf("err = %v, want ErrOutOfOrderData", err)
	}
	// ordering violations are not retryable; nothing buffers
	if len(p.bufCh) != 0 {
		t.Fatalf("out-of-order bar was buffered")
	}
}

func TestProcessBuffersTransientFailures(t *testing.T) {
	proc := &recordingProc{err: errors.New("downstream busy")}
	p := NewRealtimePipeline(proc, testMetrics{}, WithBufferSize(8))

	if err := p.Process(context.Background(), goodBar("BTCUSD", time.Now())); err == nil {
		t.Fatalf("expected a downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("transient failure should buffer the bar, depth = %d", len(p.bufCh))
	}
}

func TestProcessThrottlesPerSymbol(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, testMetrics{}, WithMaxRPS(1))

	now := time.Now()
	if err := p.Process(context.Background(), goodBar("BTCUSD", now)); err != nil {
		t.Fatalf("process: %v", err)
	}
	// a second bar inside the same second is dropped silently
	if err := p.Process(context.Background(), goodBar("BTCUSD", now.Add(time.Millisecond))); err != nil {
		t.Fatalf("throttled bar must not error: %v", err)
	}
	if len(proc.bars) != 1 {
		t.Fatalf("downstream got %d bars, want 1", len(proc.bars))
	}

	// other symbols are unaffected
	if err := p.Process(context.Background(), goodBar("ETHUSD", now)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(proc.bars) != 2 {
		t.Fatalf("downstream got %d bars, want 2", len(proc.bars))
	}
}
