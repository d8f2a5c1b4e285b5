package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeGate/internal/domain/models"
)

func TestMemoryLedgerSeqPerSymbolDay(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec, err := models.NewAuditRecord("BTCUSD", models.AuditValidation, at, map[string]int{"i": i})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := m.Append(ctx, &rec); err != nil {
			t.Fatalf("append: %v", err)
		}
		if rec.Seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", rec.Seq, i+1)
		}
	}

	// another symbol starts its own sequence
	rec, _ := models.NewAuditRecord("ETHUSD", models.AuditValidation, at, nil)
	if err := m.Append(ctx, &rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.Seq != 1 {
		t.Fatalf("other symbol seq = %d, want 1", rec.Seq)
	}

	// a new day resets the sequence
	rec2, _ := models.NewAuditRecord("BTCUSD", models.AuditValidation, at.Add(24*time.Hour), nil)
	if err := m.Append(ctx, &rec2); err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec2.Seq != 1 {
		t.Fatalf("next day seq = %d, want 1", rec2.Seq)
	}
}

func TestMemoryLedgerRecentFiltersAndOrders(t *testing.T) {
	m := NewMemoryLedger()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	kinds := []models.AuditKind{models.AuditValidation, models.AuditSiphon, models.AuditValidation, models.AuditLockout, models.AuditValidation}
	for i, k := range kinds {
		rec, _ := models.NewAuditRecord("BTCUSD", k, at.Add(time.Duration(i)*time.Minute), map[string]int{"i": i})
		if err := m.Append(ctx, &rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := m.Recent(ctx, "BTCUSD", models.AuditValidation, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d", len(recs))
	}
	// newest first
	if recs[0].Seq <= recs[1].Seq {
		t.Fatalf("order wrong: %d then %d", recs[0].Seq, recs[1].Seq)
	}
	for _, r := range recs {
		if r.Kind != models.AuditValidation {
			t.Fatalf("kind filter leaked %s", r.Kind)
		}
	}
}

func TestMemoryLedgerFailWith(t *testing.T) {
	m := NewMemoryLedger()
	m.FailWith = errors.New("down")
	rec, _ := models.NewAuditRecord("BTCUSD", models.AuditValidation, time.Now(), nil)
	if err := m.Append(context.Background(), &rec); err == nil {
		t.Fatalf("expected injected failure")
	}
	if len(m.All()) != 0 {
		t.Fatalf("failed append must not be recorded")
	}
}

func TestMemoryBarStoreOrdering(t *testing.T) {
	s := NewMemoryBarStore(16)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	put := func(ts time.Time) error {
		return s.Put(ctx, &models.PriceBar{Symbol: "BTCUSD", Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1})
	}
	if err := put(at); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := put(at.Add(time.Minute)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := put(at.Add(time.Minute)); !errors.Is(err, models.ErrOutOfOrderData) {
		t.Fatalf("duplicate timestamp err = %v", err)
	}
	if err := put(at.Add(-time.Minute)); !errors.Is(err, models.ErrOutOfOrderData) {
		t.Fatalf("earlier timestamp err = %v", err)
	}
	n, _ := s.Len(ctx, "BTCUSD")
	if n != 2 {
		t.Fatalf("len = %d", n)
	}
}

func TestMemoryBarStoreWindowAndCap(t *testing.T) {
	s := NewMemoryBarStore(4)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		b := &models.PriceBar{Symbol: "BTCUSD", Timestamp: at.Add(time.Duration(i) * time.Minute), Open: 1, High: 1, Low: 1, Close: float64(i + 1)}
		if err := s.Put(ctx, b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	n, _ := s.Len(ctx, "BTCUSD")
	if n != 4 {
		t.Fatalf("cap not enforced, len = %d", n)
	}
	w, err := s.Window(ctx, "BTCUSD", 2)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(w) != 2 || w[1].Close != 10 {
		t.Fatalf("window wrong: %+v", w)
	}

	// mutating the returned slice must not touch the store
	w[1].Close = -1
	w2, _ := s.Window(ctx, "BTCUSD", 2)
	if w2[1].Close != 10 {
		t.Fatalf("window aliases internal storage")
	}
}

func TestMemoryModelStoreRoundTrip(t *testing.T) {
	s := NewMemoryModelStore()
	ctx := context.Background()

	if _, err := s.Load(ctx, "BTCUSD"); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("missing blob err = %v", err)
	}

	blob := []byte{1, 2, 3}
	if err := s.Save(ctx, "BTCUSD", blob); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob[0] = 9 // caller mutation after save must not leak in

	got, err := s.Load(ctx, "BTCUSD")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0] != 1 {
		t.Fatalf("store aliases caller buffer: %v", got)
	}
	got[1] = 9 // and mutation of the loaded copy must not leak back
	again, _ := s.Load(ctx, "BTCUSD")
	if again[1] != 2 {
		t.Fatalf("load aliases internal storage: %v", again)
	}
}
