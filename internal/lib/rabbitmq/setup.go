package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

const (
	// Exchange обменник событий сервиса прав.
	Exchange = "entitlements"

	UserChangedQueue      = "entitlements.user_changed"
	UserChangedRoutingKey = "user.changed"

	TrialExpiredQueue      = "notifications.trial_expired"
	TrialExpiredRoutingKey = "trial.expired"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// EntitlementQueues очереди, которые объявляет сервис при старте.
func EntitlementQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: UserChangedQueue, RoutingKey: UserChangedRoutingKey},
		{QueueName: TrialExpiredQueue, RoutingKey: TrialExpiredRoutingKey},
	}
}

// SetupChannel открывает канал, объявляет direct-обменник и привязывает к нему очереди.
func SetupChannel(conn *amqp.Connection, exchange string, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err = ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err = ch.QueueBind(q.QueueName, q.RoutingKey, exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
