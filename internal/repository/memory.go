package repository

import (
	"context"
	"sync"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
)

// MemoryLedger is an in-memory AuditLedger for tests and dev mode. Same
// ordering contract as the ClickHouse ledger: per symbol+day seq, append
// only.
type MemoryLedger struct {
	mu   sync.Mutex
	recs []models.AuditRecord
	seqs map[string]uint64
	// FailWith, when set, makes Append return it. Used to exercise
	// integrity-fault paths.
	FailWith error
}

var _ domrepo.AuditLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seqs: make(map[string]uint64)}
}

func (m *MemoryLedger) Append(ctx context.Context, rec *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	key := rec.Symbol + "|" + rec.Day
	m.seqs[key]++
	rec.Seq = m.seqs[key]
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *MemoryLedger) Recent(ctx context.Context, symbol string, kind models.AuditKind, n int) ([]models.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditRecord, 0, n)
	for i := len(m.recs) - 1; i >= 0 && len(out) < n; i-- {
		if m.recs[i].Symbol == symbol && m.recs[i].Kind == kind {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}

// All returns a copy of every record, in append order.
func (m *MemoryLedger) All() []models.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

func (m *MemoryLedger) Health(ctx context.Context) error { return nil }
func (m *MemoryLedger) Close() error                     { return nil }

// MemoryModelStore is an in-memory ModelStore for tests and dev mode.
type MemoryModelStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ domrepo.ModelStore = (*MemoryModelStore)(nil)

func NewMemoryModelStore() *MemoryModelStore {
	return &MemoryModelStore{blobs: make(map[string][]byte)}
}

func (m *MemoryModelStore) Save(ctx context.Context, symbol string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.blobs[symbol] = cp
	return nil
}

func (m *MemoryModelStore) Load(ctx context.Context, symbol string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[symbol]
	if !ok {
		return nil, models.ErrModelNotFound
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

// MemoryBarStore keeps per-symbol bar windows in memory with a fixed cap.
// Put enforces strictly increasing timestamps.
type MemoryBarStore struct {
	mu  sync.RWMutex
	cap int
	byS map[string][]models.PriceBar
}

var _ domrepo.BarStore = (*MemoryBarStore)(nil)

// NewMemoryBarStore creates a store retaining at most capacity bars per
// symbol.
func NewMemoryBarStore(capacity int) *MemoryBarStore {
	if capacity <= 0 {
		capacity = 2048
	}
	return &MemoryBarStore{cap: capacity, byS: make(map[string][]models.PriceBar)}
}

func (m *MemoryBarStore) Put(ctx context.Context, bar *models.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.byS[bar.Symbol]
	if n := len(bars); n > 0 && !bar.Timestamp.After(bars[n-1].Timestamp) {
		return models.ErrOutOfOrderData
	}
	bars = append(bars, *bar)
	if len(bars) > m.cap {
		bars = bars[len(bars)-m.cap:]
	}
	m.byS[bar.Symbol] = bars
	return nil
}

func (m *MemoryBarStore) Window(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars := m.byS[symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *MemoryBarStore) Len(ctx context.Context, symbol string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byS[symbol]), nil
}
