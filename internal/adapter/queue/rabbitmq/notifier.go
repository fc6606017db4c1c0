package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// amqpPriority maps notification priority onto the broker's 0-9 scale so
// critical alerts jump the delivery queue.
func amqpPriority(p domain.NotificationPriority) uint8 {
	switch p {
	case domain.NotifyPriorityCritical:
		return 9
	case domain.NotifyPriorityHigh:
		return 7
	case domain.NotifyPriorityLow:
		return 1
	default:
		return 4
	}
}

// Dispatch publishes one notification per requested channel, using the
// channel name as routing key so each delivery worker binds only its own.
// A channel that fails to publish is reported in the result; the others
// still go out.
func (q *QueueService) Dispatch(ctx context.Context, n *domain.Notification) (*domain.DispatchResult, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	result := &domain.DispatchResult{
		NotificationID: n.ID,
		Success:        make(map[domain.Channel]bool, len(n.Channels)),
	}
	for _, channel := range n.Channels {
		err := q.ch.PublishWithContext(ctx,
			q.cfg.NotifyExchange, // exchange
			string(channel),      // routing key
			false,                // mandatory
			false,                // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
				Priority:    amqpPriority(n.Priority),
			})
		result.Success[channel] = err == nil
		if err != nil {
			q.log.Error("Failed to publish notification",
				zap.String("notification_id", n.ID),
				zap.String("channel", string(channel)),
				zap.Error(err))
		}
	}

	q.log.Debug("Notification published",
		zap.String("notification_id", n.ID),
		zap.String("recipient", n.RecipientID),
		zap.Int("channels", len(n.Channels)))
	return result, nil
}
