package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quangdang46/DeFi-Wallet/shared/contracts"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig holds the configuration for RabbitMQ
type RabbitMQConfig struct {
	RabbitMQHost     string `json:"rabbitmq_host"`
	RabbitMQPort     int    `json:"rabbitmq_port"`
	RabbitMQUser     string `json:"rabbitmq_user"`
	RabbitMQPassword string `json:"-"`
	RabbitMQVHost    string `json:"rabbitmq_vhost"`
}

// ExchangeConfig defines exchange configuration
type ExchangeConfig struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "topic", "direct", "fanout", "headers"
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RabbitMQ wraps the AMQP connection and channel used for publishing
type RabbitMQ struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  RabbitMQConfig
	logger  *logging.Logger
	closed  bool
}

var _ contracts.AMQPClient = (*RabbitMQ)(nil)

// NewRabbitMQ dials the broker and opens a channel
func NewRabbitMQ(config RabbitMQConfig, logger *logging.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	rmq := &RabbitMQ{config: config, logger: logger}
	if err := rmq.connect(); err != nil {
		return nil, err
	}
	return rmq, nil
}

// BuildURL builds the AMQP URL from config components
func BuildURL(cfg RabbitMQConfig) string {
	scheme := "amqp"
	if cfg.RabbitMQPort == 5671 {
		scheme = "amqps"
	}
	vhost := cfg.RabbitMQVHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
		scheme,
		cfg.RabbitMQUser,
		cfg.RabbitMQPassword,
		cfg.RabbitMQHost,
		cfg.RabbitMQPort,
		vhost,
	)
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.DialConfig(BuildURL(r.config), amqp.Config{
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.closed = false
	r.logger.WithField("host", r.config.RabbitMQHost).Info("connected to RabbitMQ")
	return nil
}

// DeclareExchanges declares every exchange in order
func (r *RabbitMQ) DeclareExchanges(exchanges ...ExchangeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range exchanges {
		if err := r.channel.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDelete, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}
	return nil
}

// Publish publishes a persistent message; content type defaults to JSON
func (r *RabbitMQ) Publish(ctx context.Context, message contracts.AMQPMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("connection is closed")
	}

	headers := make(amqp.Table, len(message.Headers))
	for k, v := range message.Headers {
		headers[k] = v
	}

	contentType := "application/json"
	if ct, ok := headers["content-type"].(string); ok {
		contentType = ct
	}

	return r.channel.PublishWithContext(
		ctx,
		message.Exchange,
		message.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         message.Body,
		},
	)
}

// IsConnected checks if the connection is alive
func (r *RabbitMQ) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.conn != nil && !r.conn.IsClosed()
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.WithError(err).Warn("error closing channel")
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return err
		}
	}
	return nil
}
