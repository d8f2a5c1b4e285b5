package models

import "time"

// CapitalPools is a read-only snapshot of the two pools. The active pool is
// available for trading; the reserve pool is protected. Transfers into
// reserve happen only through an approved SiphonEvent, and nothing in this
// system ever debits reserve.
type CapitalPools struct {
	Active  float64 `json:"active"`
	Reserve float64 `json:"reserve"`
}

// SiphonStatus is the lifecycle state of a siphon event. EXECUTED and
// REJECTED are terminal.
type SiphonStatus string

const (
	SiphonProposed SiphonStatus = "PROPOSED"
	SiphonApproved SiphonStatus = "APPROVED"
	SiphonRejected SiphonStatus = "REJECTED"
	SiphonExecuted SiphonStatus = "EXECUTED"
)

// SiphonEvent records one active->reserve transfer decision. The ID is
// derived deterministically from the triggering balance snapshot so replayed
// triggers cannot double-transfer.
type SiphonEvent struct {
	ID            string       `json:"id"`
	Amount        float64      `json:"amount"`
	SourcePool    string       `json:"source_pool"` // always "active"
	DestPool      string       `json:"dest_pool"`   // always "reserve"
	ApprovalScore float64      `json:"approval_score"`
	Status        SiphonStatus `json:"status"`
	ProposedAt    time.Time    `json:"proposed_at"`
	ResolvedAt    time.Time    `json:"resolved_at,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// TransferInstruction is what the execution adapter receives when a siphon
// executes.
type TransferInstruction struct {
	SiphonID  string    `json:"siphon_id"`
	Amount    float64   `json:"amount"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	IssuedAt  time.Time `json:"issued_at"`
}
