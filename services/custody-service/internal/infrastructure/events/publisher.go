package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/contracts"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
)

const serviceName = "custody-service"

type EventPublisher struct {
	amqp   contracts.AMQPClient
	logger *logging.Logger
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

func NewEventPublisher(amqp contracts.AMQPClient, logger *logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &EventPublisher{amqp: amqp, logger: logger}
}

// TransactionEvent is the payload of every transaction.* message
type TransactionEvent struct {
	ID          string                   `json:"id"`
	Hash        string                   `json:"hash"`
	Type        domain.TransactionType   `json:"type"`
	Status      domain.TransactionStatus `json:"status"`
	ChainID     domain.ChainID           `json:"chain_id"`
	WalletID    domain.WalletID          `json:"wallet_id"`
	UserID      domain.UserID            `json:"user_id"`
	FromAddress domain.Address           `json:"from_address"`
	ToAddress   domain.Address           `json:"to_address"`
	Amount      string                   `json:"amount"`
	TokenSymbol *string                  `json:"token_symbol,omitempty"`
	BlockNumber *uint64                  `json:"block_number,omitempty"`
	Timestamp   time.Time                `json:"timestamp"`
}

// PublishWalletCreated publishes wallet.created, or wallet.imported for imported keys
func (p *EventPublisher) PublishWalletCreated(ctx context.Context, event *domain.WalletCreatedEvent) error {
	routingKey := contracts.WalletCreatedKey
	if event.Imported {
		routingKey = contracts.WalletImportedKey
	}
	return p.publish(ctx, contracts.WalletsExchange, routingKey, event)
}

// PublishTransactionEvent publishes a ledger change on the transactions exchange
func (p *EventPublisher) PublishTransactionEvent(ctx context.Context, routingKey string, record *domain.TransactionRecord) error {
	return p.publish(ctx, contracts.TransactionsExchange, routingKey, &TransactionEvent{
		ID:          record.ID,
		Hash:        record.Hash,
		Type:        record.Type,
		Status:      record.Status,
		ChainID:     record.ChainID,
		WalletID:    record.WalletID,
		UserID:      record.UserID,
		FromAddress: record.FromAddress,
		ToAddress:   record.ToAddress,
		Amount:      record.Amount,
		TokenSymbol: record.TokenSymbol,
		BlockNumber: record.BlockNumber,
		Timestamp:   record.Timestamp,
	})
}

func (p *EventPublisher) publish(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	// Skip publishing if AMQP is not available
	if p.amqp == nil {
		p.logger.WithField("routing_key", routingKey).Debug("AMQP not available, skipping event")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	if err := p.amqp.Publish(ctx, contracts.AMQPMessage{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Body:       body,
		Headers: map[string]interface{}{
			"event_type":   routingKey,
			"schema":       routingKey + ".v1",
			"published_at": time.Now().Format(time.RFC3339),
			"service":      serviceName,
		},
	}); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}
	return nil
}
