package features

import (
	"math"
	"testing"
	"time"

	"TradeGate/internal/domain/models"
)

func barsFromCloses(closes ...float64) []models.PriceBar {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{
			Symbol:    "BTCUSD",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.02,
			Low:       c * 0.98,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func TestComputeLogReturns(t *testing.T) {
	rets := ComputeLogReturns(barsFromCloses(100, 110, 99))
	if len(rets) != 2 {
		t.Fatalf("len = %d", len(rets))
	}
	if math.Abs(rets[0]-math.Log(1.1)) > 1e-12 {
		t.Fatalf("rets[0] = %v", rets[0])
	}
	if math.Abs(rets[1]-math.Log(0.9)) > 1e-12 {
		t.Fatalf("rets[1] = %v", rets[1])
	}
	if ComputeLogReturns(barsFromCloses(100)) != nil {
		t.Fatalf("single bar must yield nil")
	}
}

func TestComputeLogReturnsBadPrices(t *testing.T) {
	bars := barsFromCloses(100, 110)
	bars[0].Close = 0
	rets := ComputeLogReturns(bars)
	if len(rets) != 1 || rets[0] != 0 {
		t.Fatalf("zero price should contribute a zero return, got %v", rets)
	}
}

func TestRollingVolatilityPartialWindow(t *testing.T) {
	rets := []float64{0.01, -0.02, 0.03, 0.01, -0.01}
	vol := RollingVolatility(rets, 3)
	if len(vol) != len(rets) {
		t.Fatalf("len = %d", len(vol))
	}
	if vol[0] != 0 {
		t.Fatalf("first position has one observation, vol = %v", vol[0])
	}
	for i := 1; i < len(vol); i++ {
		if vol[i] <= 0 {
			t.Fatalf("vol[%d] = %v", i, vol[i])
		}
	}
}

func TestExtractAlignment(t *testing.T) {
	bars := barsFromCloses(100, 101, 102, 103, 104)
	m := Extract(bars, 3)
	if m.Len() != len(bars)-1 {
		t.Fatalf("Len = %d, want %d", m.Len(), len(bars)-1)
	}
	if len(m.LogReturn) != len(m.Range) || len(m.Range) != len(m.RollVol) {
		t.Fatalf("columns misaligned: %d %d %d", len(m.LogReturn), len(m.Range), len(m.RollVol))
	}
	row := m.Row(0)
	if row[0] != m.LogReturn[0] || row[1] != m.Range[0] || row[2] != m.RollVol[0] {
		t.Fatalf("Row(0) = %v", row)
	}
}

func TestMomentsNormalize(t *testing.T) {
	bars := barsFromCloses(100, 101, 99, 103, 102, 104, 101, 105)
	m := Extract(bars, 3)
	mo := FitMoments(m)
	for c := 0; c < 3; c++ {
		if mo.Std[c] <= 0 {
			t.Fatalf("std[%d] = %v", c, mo.Std[c])
		}
	}
	// normalizing the mean vector lands on zero
	z := mo.Normalize(mo.Mean)
	for c := range z {
		if math.Abs(z[c]) > 1e-12 {
			t.Fatalf("z[%d] = %v", c, z[c])
		}
	}
}

func TestRealizedVolatility(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.02, -0.02, 0.01, -0.01}
	if v := RealizedVolatility(rets, 4, 252); v <= 0 {
		t.Fatalf("vol = %v", v)
	}
	if v := RealizedVolatility(rets, 10, 252); v != 0 {
		t.Fatalf("short series must return 0, got %v", v)
	}
}
