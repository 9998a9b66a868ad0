package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

const prefetch = 10

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage запускает обработку сообщений очереди queueName.
// Одновременно обрабатывается не больше prefetch сообщений.
// Возвращаемый канал закрывается, когда обработка остановлена и все
// запущенные обработчики завершились.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler Handler, log *slog.Logger) (<-chan struct{}, error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, delivery, handler, log.With(slog.String("queue", queueName)))
	}()
	return done, nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func consume(ctx context.Context, delivery <-chan amqp.Delivery, handler Handler, log *slog.Logger) {
	sem := make(chan struct{}, prefetch)
	defer func() {
		// ждём освобождения всех слотов, то есть завершения обработчиков
		for range prefetch {
			sem <- struct{}{}
		}
	}()

	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				nack(d, log)
				return
			}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handle(ctx, d.Body, d, handler, log)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func handle(ctx context.Context, body []byte, ack acknowledger, handler Handler, log *slog.Logger) {
	if err := handler(ctx, body); err != nil {
		log.Error("failed to handle message", sl.Err(err))
		if nackErr := ack.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := ack.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}

func nack(d amqp.Delivery, log *slog.Logger) {
	if err := d.Nack(false, true); err != nil {
		log.Error("failed to nack message", sl.Err(err))
	}
}
