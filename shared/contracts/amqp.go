package contracts

import (
	"context"
)

// AMQPMessage represents a message to be published to AMQP
type AMQPMessage struct {
	Exchange   string                 `json:"exchange"`
	RoutingKey string                 `json:"routing_key"`
	Body       []byte                 `json:"body"`
	Headers    map[string]interface{} `json:"headers,omitempty"`
}

// AMQPClient defines the interface for AMQP operations
type AMQPClient interface {
	Publish(ctx context.Context, message AMQPMessage) error
	Close() error
}

// Exchange names
const (
	WalletsExchange      = "wallets.events"
	TransactionsExchange = "wallet.transactions"
)

// Routing keys
const (
	WalletCreatedKey        = "wallet.created"
	WalletImportedKey       = "wallet.imported"
	TransactionBroadcastKey = "transaction.broadcast"
	TransactionConfirmedKey = "transaction.confirmed"
	TransactionFailedKey    = "transaction.failed"
)
