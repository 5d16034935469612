package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewAMQPConnection dials the broker at AMQP_URL. Reconnection is the caller's concern;
// publishers treat a closed channel as a dropped event.
func NewAMQPConnection(cfg *Config) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}
