package regime

import (
	"context"
	"testing"
	"time"

	internalrepo "TradeGate/internal/repository"
	"TradeGate/pkg/cache"
)

func TestRetrainJobFitsModel(t *testing.T) {
	store := internalrepo.NewMemoryModelStore()
	c := NewClassifier(testConfig(), store, nil)
	bars := internalrepo.NewMemoryBarStore(512)
	ctx := context.Background()
	for _, b := range syntheticBars(240) {
		bar := b
		if err := bars.Put(ctx, &bar); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	job := NewRetrainJob(c, bars, nil)
	if job.Type() != RetrainJobType {
		t.Fatalf("type = %q", job.Type())
	}
	if err := job.Handle(ctx, RetrainPayload{Symbol: "BTCUSD"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := store.Load(ctx, "BTCUSD"); err != nil {
		t.Fatalf("model not trained: %v", err)
	}
}

func TestRetrainJobBadPayload(t *testing.T) {
	job := NewRetrainJob(NewClassifier(testConfig(), internalrepo.NewMemoryModelStore(), nil), internalrepo.NewMemoryBarStore(64), nil)
	if err := job.Handle(context.Background(), 42); err == nil {
		t.Fatalf("expected a payload error")
	}
}

func TestRetrainJobInsufficientWindowIsNotRetried(t *testing.T) {
	store := internalrepo.NewMemoryModelStore()
	c := NewClassifier(testConfig(), store, nil)
	job := NewRetrainJob(c, internalrepo.NewMemoryBarStore(64), nil)

	// a failed fit is logged and swallowed so the queue does not retry
	if err := job.Handle(context.Background(), RetrainPayload{Symbol: "BTCUSD"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := store.Load(context.Background(), "BTCUSD"); err == nil {
		t.Fatalf("no model should have been saved")
	}
}

func TestRetrainJobSkipsWhenLockHeld(t *testing.T) {
	store := internalrepo.NewMemoryModelStore()
	c := NewClassifier(testConfig(), store, nil)
	bars := internalrepo.NewMemoryBarStore(512)
	ctx := context.Background()
	for _, b := range syntheticBars(240) {
		bar := b
		if err := bars.Put(ctx, &bar); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	locks := cache.NewMemoryCache()
	if ok, err := locks.TryLock(ctx, "retrain:BTCUSD", time.Minute); err != nil || !ok {
		t.Fatalf("prelock: ok=%v err=%v", ok, err)
	}

	job := NewRetrainJob(c, bars, nil)
	job.SetLockService(locks)
	if err := job.Handle(ctx, RetrainPayload{Symbol: "BTCUSD"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := store.Load(ctx, "BTCUSD"); err == nil {
		t.Fatalf("locked symbol must not be retrained")
	}
}
