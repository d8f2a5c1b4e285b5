package models

import (
	"fmt"
	"time"
)

// Direction of a proposed trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeProposal is a trade submitted for validation. It is read-only input;
// the validator never mutates it, it only suggests overrides.
type TradeProposal struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	RequestedSize  float64   `json:"requested_size"` // fraction of active capital
	ConfidenceHint float64   `json:"confidence_hint,omitempty"`
	// Context supplied by the caller for the technical dimension.
	HigherTFTrend    Direction `json:"higher_tf_trend,omitempty"`
	ConfirmingSignal []string  `json:"confirming_signals,omitempty"`
	ProposedAt       time.Time `json:"proposed_at"`
}

// CheckValid rejects malformed proposals at the boundary so scoring logic
// never sees missing fields.
func (p TradeProposal) CheckValid() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrMalformedProposal)
	}
	if p.Direction != DirectionLong && p.Direction != DirectionShort {
		return fmt.Errorf("%w: direction must be long or short", ErrMalformedProposal)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrMalformedProposal)
	}
	if p.StopLoss <= 0 {
		return fmt.Errorf("%w: stop loss is required", ErrMalformedProposal)
	}
	if p.RequestedSize <= 0 {
		return fmt.Errorf("%w: requested size must be positive", ErrMalformedProposal)
	}
	switch p.Direction {
	case DirectionLong:
		if p.StopLoss >= p.EntryPrice {
			return fmt.Errorf("%w: long stop loss must be below entry", ErrMalformedProposal)
		}
	case DirectionShort:
		if p.StopLoss <= p.EntryPrice {
			return fmt.Errorf("%w: short stop loss must be above entry", ErrMalformedProposal)
		}
	}
	return nil
}

// RiskReward computes the R:R ratio of the proposal. Returns 0 when the stop
// implies no risk (degenerate input).
func (p TradeProposal) RiskReward() float64 {
	var risk, reward float64
	switch p.Direction {
	case DirectionLong:
		risk = p.EntryPrice - p.StopLoss
		reward = p.TakeProfit - p.EntryPrice
	case DirectionShort:
		risk = p.StopLoss - p.EntryPrice
		reward = p.EntryPrice - p.TakeProfit
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// TradeClose is the fill/close event reported back by the execution adapter.
type TradeClose struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	PnL       float64   `json:"pnl"`       // realized, in account currency
	RMultiple float64   `json:"r_multiple"`
	ClosedAt  time.Time `json:"closed_at"`
}

// BalanceUpdate notifies the allocator of a new active-pool balance.
type BalanceUpdate struct {
	Balance   float64   `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}
