// Package rabbitmq carries notifications out to the delivery subsystem and
// inbound field messages in from the chat gateway.
package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	config "github.com/fieldops/dispatch/config/utils"
)

type QueueService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  *config.RabbitMQ
	log  *zap.Logger
}

// Connect dials the broker with incremental backoff and declares the
// exchange and queue this process uses.
func Connect(cfg *config.RabbitMQ, log *zap.Logger) (*QueueService, error) {
	var conn *amqp.Connection
	var err error

	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				q := &QueueService{
					conn: conn,
					ch:   ch,
					cfg:  cfg,
					log:  log,
				}
				if err := q.declare(); err != nil {
					conn.Close()
					return nil, err
				}
				return q, nil
			}
			err = chErr
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

func (q *QueueService) declare() error {
	if err := q.ch.ExchangeDeclare(
		q.cfg.NotifyExchange, // name
		"direct",             // kind
		true,                 // durable
		false,                // auto-delete
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	); err != nil {
		return err
	}

	_, err := q.ch.QueueDeclare(
		q.cfg.InboundQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	return err
}

// Close shuts the channel and connection down.
func (q *QueueService) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
