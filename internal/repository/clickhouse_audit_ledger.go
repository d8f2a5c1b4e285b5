package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
	pkgch "TradeGate/pkg/clickhouse"
	applogger "TradeGate/pkg/logger"
)

// SchemaStatements are the idempotent DDL for the audit store, applied
// through pkg/clickhouse InitSchema at startup.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS tradegate`,
	`CREATE TABLE IF NOT EXISTS tradegate.audit_log (
        symbol    LowCardinality(String),
        day       Date,
        seq       UInt64,
        kind      LowCardinality(String),
        ts        DateTime64(3, 'UTC'),
        payload   String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(day)
    ORDER BY (symbol, day, seq)`,
}

// CHAuditLedger implements AuditLedger backed by ClickHouse. Seq numbers are
// assigned per symbol+day; counters are seeded from the table on first use
// so restarts keep the per-day ordering dense.
type CHAuditLedger struct {
	db *sql.DB
	l  *applogger.Logger

	mu   sync.Mutex
	seqs map[string]uint64 // symbol|day -> last assigned seq
}

var _ domrepo.AuditLedger = (*CHAuditLedger)(nil)

func NewCHAuditLedger(ch *pkgch.Client) *CHAuditLedger {
	return &CHAuditLedger{db: ch.DB(), seqs: make(map[string]uint64)}
}

// SetLogger injects a structured logger.
func (s *CHAuditLedger) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHAuditLedger) Append(ctx context.Context, rec *models.AuditRecord) error {
	start := time.Now()
	seq, err := s.nextSeq(ctx, rec.Symbol, rec.Day)
	if err != nil {
		return fmt.Errorf("audit seq: %w", err)
	}
	rec.Seq = seq

	const q = `INSERT INTO tradegate.audit_log (symbol, day, seq, kind, ts, payload) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		rec.Symbol,
		rec.Day,
		rec.Seq,
		string(rec.Kind),
		rec.Timestamp,
		string(rec.Payload),
	)
	if err != nil {
		s.releaseSeq(rec.Symbol, rec.Day, seq)
		if s.l != nil {
			s.l.Error("clickhouse audit append error",
				applogger.String("symbol", rec.Symbol),
				applogger.String("kind", string(rec.Kind)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("audit append: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse audit append ok",
			applogger.String("symbol", rec.Symbol),
			applogger.String("kind", string(rec.Kind)),
			applogger.Uint64("seq", rec.Seq),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHAuditLedger) Recent(ctx context.Context, symbol string, kind models.AuditKind, n int) ([]models.AuditRecord, error) {
	const q = `
        SELECT symbol, toString(day), seq, kind, ts, payload
        FROM tradegate.audit_log
        WHERE symbol = ? AND kind = ?
        ORDER BY day DESC, seq DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(kind), n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse audit recent query error",
				applogger.String("symbol", symbol),
				applogger.String("kind", string(kind)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("audit recent: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditRecord, 0, n)
	for rows.Next() {
		var (
			rec     models.AuditRecord
			kindStr string
			payload string
		)
		if err := rows.Scan(&rec.Symbol, &rec.Day, &rec.Seq, &kindStr, &rec.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Kind = models.AuditKind(kindStr)
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHAuditLedger) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHAuditLedger) Close() error {
	return nil // connection pool managed by pkg
}

// nextSeq hands out the next per symbol+day sequence number, seeding the
// counter from the table the first time a key is seen.
func (s *CHAuditLedger) nextSeq(ctx context.Context, symbol, day string) (uint64, error) {
	key := symbol + "|" + day
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.seqs[key]; ok {
		s.seqs[key] = last + 1
		return last + 1, nil
	}

	const q = `SELECT max(seq) FROM tradegate.audit_log WHERE symbol = ? AND day = ?`
	var last uint64
	if err := s.db.QueryRowContext(ctx, q, symbol, day).Scan(&last); err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	s.seqs[key] = last + 1
	return last + 1, nil
}

// releaseSeq walks the counter back after a failed insert so the sequence
// stays dense.
func (s *CHAuditLedger) releaseSeq(symbol, day string, seq uint64) {
	key := symbol + "|" + day
	s.mu.Lock()
	if s.seqs[key] == seq {
		s.seqs[key] = seq - 1
	}
	s.mu.Unlock()
}
