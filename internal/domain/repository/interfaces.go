package repository

import (
	"context"

	"TradeGate/internal/domain/models"
)

// MarketStream supplies ordered PriceBar sequences per symbol. The stream
// must deliver monotonically increasing timestamps per symbol; the consumer
// fails fast on violation.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceBar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher emits approved proposals and transfer instructions to the
// execution adapter.
type Publisher interface {
	PublishOrder(ctx context.Context, proposal *models.TradeProposal, result *models.ValidationResult) error
	PublishTransfer(ctx context.Context, instr *models.TransferInstruction) error
	Close() error
}

// AuditLedger is the append-only record store keyed by symbol+day. Appends
// are strictly ordered per symbol+day; a record is durable once Append
// returns nil. Records are never rewritten.
type AuditLedger interface {
	Append(ctx context.Context, rec *models.AuditRecord) error
	Recent(ctx context.Context, symbol string, kind models.AuditKind, n int) ([]models.AuditRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// ModelStore is a key-value blob store for serialized regime model state,
// keyed by symbol. Load returns models.ErrModelNotFound for a missing or
// corrupt blob.
type ModelStore interface {
	Save(ctx context.Context, symbol string, blob []byte) error
	Load(ctx context.Context, symbol string) ([]byte, error)
}

// Metrics records operational metrics for the gate.
type Metrics interface {
	RecordDecision(symbol string, decision models.Decision)
	RecordRegime(symbol string, label models.RegimeLabel, confidence float64)
	RecordPools(active, reserve float64)
	RecordSiphon(status models.SiphonStatus, amount float64)
	RecordLockout(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
