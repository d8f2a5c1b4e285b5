package repository

import (
	"context"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
	pkgkafka "TradeGate/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka. Orders and transfers go to
// separate topics; both are keyed so per-key ordering survives partitioning.
type KafkaPublisher struct {
	producer      *pkgkafka.Producer
	orderTopic    string
	transferTopic string
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, orderTopic, transferTopic string) domrepo.Publisher {
	return &KafkaPublisher{producer: producer, orderTopic: orderTopic, transferTopic: transferTopic}
}

func (p *KafkaPublisher) PublishOrder(ctx context.Context, proposal *models.TradeProposal, result *models.ValidationResult) error {
	return p.producer.Publish(ctx, p.orderTopic, []byte(proposal.Symbol), map[string]interface{}{
		"symbol":        proposal.Symbol,
		"direction":     proposal.Direction,
		"entry_price":   proposal.EntryPrice,
		"stop_loss":     proposal.StopLoss,
		"take_profit":   proposal.TakeProfit,
		"size":          proposal.RequestedSize,
		"decision":      result.Decision,
		"modifications": result.Modifications,
	})
}

func (p *KafkaPublisher) PublishTransfer(ctx context.Context, instr *models.TransferInstruction) error {
	return p.producer.Publish(ctx, p.transferTopic, []byte(instr.SiphonID), map[string]interface{}{
		"siphon_id": instr.SiphonID,
		"amount":    instr.Amount,
		"from":      instr.From,
		"to":        instr.To,
		"issued_at": instr.IssuedAt.Unix(),
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
