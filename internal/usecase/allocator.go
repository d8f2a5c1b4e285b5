package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	domsvc "TradeGate/internal/domain/service"
	applogger "TradeGate/pkg/logger"
)

// siphonNamespace seeds the deterministic event ids. Fixed so replayed
// triggers map to the same id across restarts.
var siphonNamespace = uuid.MustParse("b4f9d3a0-5c2e-4a8f-9d1b-7e6c0a2f4d81")

// SiphonConfig governs when and how much profit moves to reserve.
type SiphonConfig struct {
	ThresholdAmount     float64       // active balance that triggers evaluation
	TargetActiveBalance float64       // amount retained after a siphon
	MinApprovalScore    float64       // 0-100, oracle floor to execute
	OracleTimeout       time.Duration // bound on the approval call
}

// CapitalAllocator owns the capital pools and moves settled profit from
// active to reserve through approved siphon events. Nothing here debits the
// reserve pool; there is no API for it.
type CapitalAllocator struct {
	cfg     SiphonConfig
	oracle  domsvc.ApprovalOracle
	ledger  drepo.AuditLedger
	pub     drepo.Publisher
	metrics drepo.Metrics
	logger  *applogger.Logger
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	pools   models.CapitalPools
	seen    map[string]struct{} // event ids already resolved
	history []models.SiphonEvent
	halted  error
}

// NewCapitalAllocator creates an allocator seeded with the initial active
// balance. pub may be nil (no execution adapter attached).
func NewCapitalAllocator(cfg SiphonConfig, initialActive float64, oracle domsvc.ApprovalOracle, ledger drepo.AuditLedger, pub drepo.Publisher, metrics drepo.Metrics, logger *applogger.Logger) *CapitalAllocator {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 5 * time.Second
	}
	return &CapitalAllocator{
		cfg:    cfg,
		oracle: oracle,
		ledger: ledger,
		pub:    pub,
		metrics: metrics,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "approval-oracle",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		pools: models.CapitalPools{Active: initialActive},
		seen:  make(map[string]struct{}),
	}
}

// Pools returns a value snapshot of both pools.
func (a *CapitalAllocator) Pools() models.CapitalPools {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pools
}

// History returns the siphon events resolved so far, oldest first.
func (a *CapitalAllocator) History() []models.SiphonEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.SiphonEvent, len(a.history))
	copy(out, a.history)
	return out
}

// ClearFault re-enables siphon activity once the integrity fault has been
// externally resolved.
func (a *CapitalAllocator) ClearFault() {
	a.mu.Lock()
	a.halted = nil
	a.mu.Unlock()
}

// OnBalanceUpdate sets the active pool balance and evaluates the siphon
// trigger. Returns the resolved event, or nil when no siphon was due.
func (a *CapitalAllocator) OnBalanceUpdate(ctx context.Context, update models.BalanceUpdate) (*models.SiphonEvent, error) {
	a.mu.Lock()
	if a.halted != nil {
		err := a.halted
		a.mu.Unlock()
		return nil, err
	}
	a.pools.Active = update.Balance
	if a.metrics != nil {
		a.metrics.RecordPools(a.pools.Active, a.pools.Reserve)
	}

	if a.pools.Active <= a.cfg.ThresholdAmount {
		a.mu.Unlock()
		return nil, nil
	}
	excess := a.pools.Active - a.cfg.TargetActiveBalance
	if excess <= 0 {
		a.mu.Unlock()
		return nil, nil
	}

	// id is a function of the triggering snapshot, so a replayed update
	// resolves to an event we have already handled
	id := siphonID(update)
	if _, dup := a.seen[id]; dup {
		a.mu.Unlock()
		return nil, nil
	}
	a.mu.Unlock()

	event := models.SiphonEvent{
		ID:         id,
		Amount:     excess,
		SourcePool: "active",
		DestPool:   "reserve",
		Status:     models.SiphonProposed,
		ProposedAt: update.Timestamp.UTC(),
	}
	if err := a.appendSiphon(ctx, &event); err != nil {
		return nil, err
	}

	score, err := a.askOracle(ctx, excess)
	event.ApprovalScore = score
	event.ResolvedAt = time.Now().UTC()

	if err != nil || score < a.cfg.MinApprovalScore {
		event.Status = models.SiphonRejected
		if err != nil {
			event.Reason = fmt.Sprintf("oracle unavailable: %v", err)
		} else {
			event.Reason = fmt.Sprintf("approval score %.0f below floor %.0f", score, a.cfg.MinApprovalScore)
		}
		if aerr := a.appendSiphon(ctx, &event); aerr != nil {
			return nil, aerr
		}
		a.commit(event, 0)
		if a.logger != nil {
			a.logger.Info("siphon rejected",
				applogger.String("id", event.ID),
				applogger.String("reason", event.Reason))
		}
		return &event, nil
	}

	event.Status = models.SiphonApproved
	if aerr := a.appendSiphon(ctx, &event); aerr != nil {
		return nil, aerr
	}

	event.Status = models.SiphonExecuted
	event.Reason = fmt.Sprintf("excess %.2f over target %.2f", excess, a.cfg.TargetActiveBalance)
	if aerr := a.appendSiphon(ctx, &event); aerr != nil {
		return nil, aerr
	}
	a.commit(event, excess)

	if a.pub != nil {
		instr := &models.TransferInstruction{
			SiphonID: event.ID,
			Amount:   event.Amount,
			From:     event.SourcePool,
			To:       event.DestPool,
			IssuedAt: event.ResolvedAt,
		}
		if perr := a.pub.PublishTransfer(ctx, instr); perr != nil {
			// the ledger already holds the executed event; the adapter can
			// replay from it
			if a.logger != nil {
				a.logger.Warn("transfer publish failed", applogger.Error(perr))
			}
			if a.metrics != nil {
				a.metrics.RecordError("transfer_publish")
			}
		}
	}

	if a.logger != nil {
		a.logger.Info("siphon executed",
			applogger.String("id", event.ID),
			applogger.Float64("amount", event.Amount),
			applogger.Float64("score", score))
	}
	return &event, nil
}

// commit records the terminal event and moves balances. amount is zero for
// rejections. The reserve pool only ever grows here.
func (a *CapitalAllocator) commit(event models.SiphonEvent, amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen[event.ID] = struct{}{}
	a.history = append(a.history, event)
	if amount > 0 {
		a.pools.Active -= amount
		a.pools.Reserve += amount
	}
	if a.metrics != nil {
		a.metrics.RecordSiphon(event.Status, event.Amount)
		a.metrics.RecordPools(a.pools.Active, a.pools.Reserve)
	}
}

// askOracle scores the transfer behind the circuit breaker with a bounded
// timeout. Any failure path means the caller treats the transfer as
// rejected.
func (a *CapitalAllocator) askOracle(ctx context.Context, amount float64) (float64, error) {
	res, err := a.breaker.Execute(func() (interface{}, error) {
		octx, cancel := context.WithTimeout(ctx, a.cfg.OracleTimeout)
		defer cancel()
		return a.oracle.ScoreTransfer(octx, amount)
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("oracle")
		}
		return 0, err
	}
	return res.(float64), nil
}

// appendSiphon writes one state transition to the ledger. A failed append is
// an integrity fault: the transition is not committed and the allocator
// halts.
func (a *CapitalAllocator) appendSiphon(ctx context.Context, event *models.SiphonEvent) error {
	rec, err := models.NewAuditRecord("", models.AuditSiphon, time.Now().UTC(), event)
	if err == nil {
		err = a.ledger.Append(ctx, &rec)
	}
	if err != nil {
		fault := fmt.Errorf("%w: siphon audit append: %v", models.ErrIntegrity, err)
		a.mu.Lock()
		a.halted = fault
		a.mu.Unlock()
		if a.metrics != nil {
			a.metrics.RecordError("audit_append")
		}
		return fault
	}
	return nil
}

func siphonID(update models.BalanceUpdate) string {
	seed := fmt.Sprintf("%.8f|%d", update.Balance, update.Timestamp.UTC().UnixNano())
	return uuid.NewSHA1(siphonNamespace, []byte(seed)).String()
}
