package models

import (
	"encoding/json"
	"time"
)

// AuditKind tags what a ledger record describes.
type AuditKind string

const (
	AuditValidation   AuditKind = "validation"
	AuditLockout      AuditKind = "lockout"
	AuditRegimeChange AuditKind = "regime_change"
	AuditSiphon       AuditKind = "siphon"
	AuditEmotion      AuditKind = "emotion"
)

// AuditRecord is one append-only ledger entry. Records are strictly ordered
// per symbol+day by Seq and are never rewritten.
type AuditRecord struct {
	Symbol    string          `json:"symbol"`
	Day       string          `json:"day"` // YYYY-MM-DD, UTC
	Seq       uint64          `json:"seq"`
	Kind      AuditKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ValidationPayload is the audit payload for a validation decision. The
// history dimension of future validations reads these back, so the fields
// here are load-bearing.
type ValidationPayload struct {
	Proposal TradeProposal    `json:"proposal"`
	Result   ValidationResult `json:"result"`
	Outcome  *TradeClose      `json:"outcome,omitempty"` // attached on close
}

// NewAuditRecord marshals payload and stamps the record. Seq is assigned by
// the ledger on append.
func NewAuditRecord(symbol string, kind AuditKind, at time.Time, payload any) (AuditRecord, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return AuditRecord{}, err
	}
	return AuditRecord{
		Symbol:    symbol,
		Day:       at.UTC().Format("2006-01-02"),
		Kind:      kind,
		Timestamp: at.UTC(),
		Payload:   b,
	}, nil
}
