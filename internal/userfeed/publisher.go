package userfeed

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/rabbitmq"
)

// Publisher отправляет события об изменении пользователей в обменник entitlements.
type Publisher struct {
	ch rabbitmq.Channel
}

func NewPublisher(ch rabbitmq.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// UserChanged сообщает, что запись пользователя изменилась.
func (p *Publisher) UserChanged(_ context.Context, userUID string) error {
	const op = "userfeed.Publisher.UserChanged"
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, rabbitmq.UserChangedRoutingKey, UserChanged{UserUID: userUID}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TrialExpired сообщает, что у пользователя принудительно снят премиум.
func (p *Publisher) TrialExpired(_ context.Context, userUID string) error {
	const op = "userfeed.Publisher.TrialExpired"
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, rabbitmq.TrialExpiredRoutingKey, UserChanged{UserUID: userUID}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
