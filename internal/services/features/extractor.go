package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"TradeGate/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// ComputeRanges computes the per-bar normalized range (high-low)/close,
// aligned with ComputeLogReturns (first bar dropped).
func ComputeRanges(bars []models.PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		out = append(out, bars[i].Range())
	}
	return out
}

// RollingVolatility computes the trailing rolling standard deviation of
// logReturns over the given lookback, one value per return. Positions with
// fewer than lookback observations use the partial window.
func RollingVolatility(logReturns []float64, lookback int) []float64 {
	if lookback < 2 {
		lookback = 2
	}
	out := make([]float64, len(logReturns))
	for i := range logReturns {
		lo := i + 1 - lookback
		if lo < 0 {
			lo = 0
		}
		w := logReturns[lo : i+1]
		if len(w) < 2 {
			out[i] = 0
			continue
		}
		out[i] = stat.StdDev(w, nil)
	}
	return out
}

// Matrix holds the aligned per-bar feature columns the regime model trains
// and infers on. Row i corresponds to bar i+1 of the source window.
type Matrix struct {
	LogReturn []float64
	Range     []float64
	RollVol   []float64
}

// Len returns the number of feature rows.
func (m Matrix) Len() int { return len(m.LogReturn) }

// Row copies the i-th observation into a 3-element vector.
func (m Matrix) Row(i int) [3]float64 {
	return [3]float64{m.LogReturn[i], m.Range[i], m.RollVol[i]}
}

// Extract builds the feature matrix for a bar window.
func Extract(bars []models.PriceBar, volLookback int) Matrix {
	rets := ComputeLogReturns(bars)
	return Matrix{
		LogReturn: rets,
		Range:     ComputeRanges(bars),
		RollVol:   RollingVolatility(rets, volLookback),
	}
}

// Moments are per-column mean and standard deviation, learned at fit time
// and frozen for inference to avoid lookahead bias.
type Moments struct {
	Mean [3]float64
	Std  [3]float64
}

// FitMoments computes normalization statistics over a feature matrix.
func FitMoments(m Matrix) Moments {
	var out Moments
	cols := [3][]float64{m.LogReturn, m.Range, m.RollVol}
	for c, col := range cols {
		mean, std := stat.MeanStdDev(col, nil)
		if std <= 0 || math.IsNaN(std) {
			std = 1
		}
		out.Mean[c] = mean
		out.Std[c] = std
	}
	return out
}

// Normalize applies frozen moments to one observation.
func (mo Moments) Normalize(row [3]float64) [3]float64 {
	var out [3]float64
	for c := range row {
		out[c] = (row[c] - mo.Mean[c]) / mo.Std[c]
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the latest
// rolling window using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	w := logReturns[len(logReturns)-window:]
	variance := stat.Variance(w, nil)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1h":
		return 365 * 24
	case "4h":
		return 365 * 6
	case "1d":
		return 252
	default:
		return 252
	}
}
