package models

import "time"

// RegimeLabel classifies current market volatility/trend behavior.
type RegimeLabel string

const (
	RegimeLowVolBullish RegimeLabel = "LOW_VOL_BULLISH"
	RegimeLowVolBearish RegimeLabel = "LOW_VOL_BEARISH"
	RegimeHighVol       RegimeLabel = "HIGH_VOL"
	RegimeTransition    RegimeLabel = "TRANSITION"
	RegimeUnknown       RegimeLabel = "UNKNOWN"
)

// TradingRules are the constraints derived from a regime. They are a fixed
// table keyed by label, not learned.
type TradingRules struct {
	AllowLong          bool    `json:"allow_long"`
	AllowShort         bool    `json:"allow_short"`
	PositionMultiplier float64 `json:"position_multiplier"`
	PauseTrading       bool    `json:"pause_trading"`
}

// RegimeState is the classifier output for one symbol. Mutated only by the
// regime classifier on an inference tick or retrain; everyone else reads
// value snapshots.
type RegimeState struct {
	Symbol         string       `json:"symbol"`
	Label          RegimeLabel  `json:"label"`
	Confidence     float64      `json:"confidence"`
	EffectiveSince time.Time    `json:"effective_since"`
	Rules          TradingRules `json:"rules"`
}

// UnknownRegime returns the paused fallback state used when no model is
// available for a symbol.
func UnknownRegime(symbol string) RegimeState {
	return RegimeState{
		Symbol:     symbol,
		Label:      RegimeUnknown,
		Confidence: 0,
		Rules:      TradingRules{AllowLong: false, AllowShort: false, PositionMultiplier: 0.5, PauseTrading: true},
	}
}
