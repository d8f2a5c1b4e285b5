package models

import "time"

// EmotionEntry is one check-in in the day's emotion log.
type EmotionEntry struct {
	Emotion   string    `json:"emotion"`
	Intensity int       `json:"intensity"` // 1-10
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NegativeEmotions are the tags that feed the revenge-trading check.
var NegativeEmotions = map[string]bool{
	"revenge":     true,
	"fomo":        true,
	"anger":       true,
	"frustration": true,
	"fear":        true,
	"desperation": true,
}

// DisciplineState is one trading day's discipline counters. One instance per
// day, reset at rollover; mutated only by the discipline tracker.
type DisciplineState struct {
	Date              string         `json:"date"` // YYYY-MM-DD, UTC
	LossesToday       int            `json:"losses_today"`
	TradesToday       int            `json:"trades_today"`
	DailyLossAmount   float64        `json:"daily_loss_amount"`
	StrikesRemaining  int            `json:"strikes_remaining"`
	LockedOut         bool           `json:"locked_out"`
	LockoutReason     string         `json:"lockout_reason,omitempty"`
	LastTradeAt       time.Time      `json:"last_trade_at"`
	LastLossAt        time.Time      `json:"last_loss_at"`
	EmotionLog        []EmotionEntry `json:"emotion_log"`
	OvertradingWarned bool           `json:"overtrading_warned"`
}

// EmotionVerdict is the advisory result of an emotion check-in. It never
// changes lockout state; it only informs the validator's emotion dimension.
type EmotionVerdict struct {
	ShouldTrade     bool   `json:"should_trade"`
	RevengeRisk     bool   `json:"revenge_risk"`
	OvertradingRisk bool   `json:"overtrading_risk"`
	Reason          string `json:"reason,omitempty"`
}
