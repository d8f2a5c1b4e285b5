package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
	pkgkafka "TradeGate/pkg/kafka"
)

// KafkaFillsHandler consumes fill/close events reported by the execution
// adapter and feeds them into the engine.
type KafkaFillsHandler struct {
	topic   string
	engine  *Engine
	metrics domrepo.Metrics
}

func NewKafkaFillsHandler(topic string, engine *Engine, metrics domrepo.Metrics) *KafkaFillsHandler {
	return &KafkaFillsHandler{topic: topic, engine: engine, metrics: metrics}
}

func (h *KafkaFillsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, direction, pnl, r_multiple, closed_at}
func (h *KafkaFillsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol    string  `json:"symbol"`
		Direction string  `json:"direction"`
		PnL       float64 `json:"pnl"`
		RMultiple float64 `json:"r_multiple"`
		ClosedAt  int64   `json:"closed_at"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.ClosedAt > 1e11 { // ms
		m.ClosedAt = m.ClosedAt / 1000
	}
	h.metrics.RecordLatency("fill_e2e_seconds", time.Since(time.Unix(m.ClosedAt, 0)).Seconds())

	start := time.Now()
	err := h.engine.OnTradeClose(ctx, &models.TradeClose{
		Symbol:    m.Symbol,
		Direction: models.Direction(m.Direction),
		PnL:       m.PnL,
		RMultiple: m.RMultiple,
		ClosedAt:  time.Unix(m.ClosedAt, 0).UTC(),
	})
	h.metrics.RecordLatency("fill_handle_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_fill")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaFillsHandler)(nil)

// KafkaBalanceHandler consumes active-pool balance updates from the
// execution adapter and drives the siphon trigger.
type KafkaBalanceHandler struct {
	topic   string
	engine  *Engine
	metrics domrepo.Metrics
}

func NewKafkaBalanceHandler(topic string, engine *Engine, metrics domrepo.Metrics) *KafkaBalanceHandler {
	return &KafkaBalanceHandler{topic: topic, engine: engine, metrics: metrics}
}

func (h *KafkaBalanceHandler) Topic() string { return h.topic }

// incoming message schema: {balance, t}
func (h *KafkaBalanceHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Balance float64 `json:"balance"`
		T       int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}

	_, err := h.engine.OnBalanceUpdate(ctx, models.BalanceUpdate{
		Balance:   m.Balance,
		Timestamp: time.Unix(m.T, 0).UTC(),
	})
	if err != nil {
		h.metrics.RecordError("consumer_balance")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBalanceHandler)(nil)
