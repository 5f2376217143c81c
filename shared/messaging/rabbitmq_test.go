package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildURL(t *testing.T) {
	cfg := RabbitMQConfig{
		RabbitMQHost:     "mq",
		RabbitMQPort:     5672,
		RabbitMQUser:     "guest",
		RabbitMQPassword: "guest",
		RabbitMQVHost:    "/",
	}
	assert.Equal(t, "amqp://guest:guest@mq:5672/", BuildURL(cfg))

	cfg.RabbitMQPort = 5671
	cfg.RabbitMQVHost = "custody"
	assert.Equal(t, "amqps://guest:guest@mq:5671/custody", BuildURL(cfg))
}
