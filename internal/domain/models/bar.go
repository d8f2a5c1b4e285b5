package models

import "time"

// PriceBar represents one OHLCV bar. Bars are immutable once ingested; the
// bar series per symbol is append-only with strictly increasing timestamps.
type PriceBar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range returns the bar range normalized by close, (high-low)/close.
func (b PriceBar) Range() float64 {
	if b.Close <= 0 {
		return 0
	}
	return (b.High - b.Low) / b.Close
}
