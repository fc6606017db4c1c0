package rabbitmq

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// ConsumeMessages delivers inbound field messages to the handler with
// manual acks. Malformed payloads are nacked without requeue; handler
// failures requeue for the next consumer, since the lifecycle swallows the
// everyday cases and only infrastructure errors surface here.
func (q *QueueService) ConsumeMessages(ctx context.Context, handler func(msg *domain.InboundMessage) error) error {
	msgs, err := q.ch.Consume(
		q.cfg.InboundQueue, // queue
		"",                 // consumer
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming inbound messages", zap.String("queue", q.cfg.InboundQueue))

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("Stopping inbound message consumer")
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warn("Inbound delivery channel closed")
					return
				}

				var msg domain.InboundMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					q.log.Error("Failed to unmarshal inbound message", zap.Error(err))
					d.Nack(false, false) // discard invalid message
					continue
				}

				if err := handler(&msg); err != nil {
					q.log.Error("Message handling failed",
						zap.String("message_id", msg.MessageID),
						zap.Error(err))
					d.Nack(false, true)
				} else {
					d.Ack(false)
				}
			}
		}
	}()

	return nil
}
