package userfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// UserChanged сообщение об изменении записи пользователя.
type UserChanged struct {
	UserUID string `json:"user_uid"`
}

// UserGetter читает актуальную запись пользователя.
type UserGetter interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// SnapshotPublisher принимает снимки для раздачи подписчикам.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot models.UserSnapshot) error
}

// Consumer перечитывает пользователя по каждому сообщению user.changed
// и передаёт его снимок в Broker.
type Consumer struct {
	log    *slog.Logger
	users  UserGetter
	broker SnapshotPublisher
}

func NewConsumer(log *slog.Logger, users UserGetter, broker SnapshotPublisher) *Consumer {
	return &Consumer{
		log:    log,
		users:  users,
		broker: broker,
	}
}

// Start запускает потребление очереди entitlements.user_changed.
func (c *Consumer) Start(ctx context.Context, ch *amqp.Channel) (<-chan struct{}, error) {
	const op = "userfeed.Consumer.Start"
	done, err := rabbitmq.ConsumerMessage(ctx, ch, rabbitmq.UserChangedQueue, c.Handle, c.log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return done, nil
}

// Handle обрабатывает одно сообщение. Некорректные сообщения отбрасываются,
// ошибка возвращается только тогда, когда сообщение стоит доставить повторно.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	const op = "userfeed.Consumer.Handle"
	log := c.log.With(slog.String("op", op))

	var msg UserChanged
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Warn("dropping malformed message", sl.Err(err))
		return nil
	}
	if msg.UserUID == "" {
		log.Warn("dropping message without user_uid")
		return nil
	}

	user, err := c.users.GetUser(ctx, msg.UserUID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		user = nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = c.broker.Publish(ctx, models.UserSnapshot{UserUID: msg.UserUID, User: user}); err != nil {
		if errors.Is(err, ErrClosed) {
			log.Warn("broker closed, dropping snapshot", sl.UserUID(msg.UserUID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
