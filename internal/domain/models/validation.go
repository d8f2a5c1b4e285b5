package models

import "time"

// Decision is the validator verdict on a proposal.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
	DecisionModify  Decision = "MODIFY"
)

// DimensionScores are the five independently scored dimensions, each 0-10
// where 0 is ideal and 10 is disqualifying.
type DimensionScores struct {
	Risk          float64 `json:"risk"`
	MarketContext float64 `json:"market_context"`
	History       float64 `json:"history"`
	Emotion       float64 `json:"emotion"`
	Technical     float64 `json:"technical"`
}

// SuggestedModifications holds the minimal field overrides that would bring
// a MODIFY verdict under the modify threshold on re-evaluation. Nil fields
// mean "keep as proposed".
type SuggestedModifications struct {
	RequestedSize *float64 `json:"requested_size,omitempty"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`
	TakeProfit    *float64 `json:"take_profit,omitempty"`
}

// ValidationResult is created once per proposal and immutable after
// creation. Every result is persisted to the audit ledger before it is
// reported to the caller.
type ValidationResult struct {
	Symbol        string                  `json:"symbol"`
	Decision      Decision                `json:"decision"`
	Confidence    float64                 `json:"confidence"`
	RiskScore     float64                 `json:"risk_score"`
	Scores        DimensionScores         `json:"scores"`
	Reasoning     string                  `json:"reasoning"`
	Modifications *SuggestedModifications `json:"modifications,omitempty"`
	EvaluatedAt   time.Time               `json:"evaluated_at"`
}
