// Package notifier рассылает письма пользователям, у которых закончился
// пробный период и был снят премиум.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/smtp"
	"github.com/magabrotheeeer/storefront-entitlements/internal/metrics"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

const trialExpiredSubject = "Пробный период премиум-доступа закончился"

// TrialExpired сообщение о принудительном снятии премиума.
type TrialExpired struct {
	UserUID string `json:"user_uid"`
}

// UserGetter читает актуальную запись пользователя.
type UserGetter interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Transport открывает соединение с почтовым сервером.
type Transport interface {
	Connect(ctx context.Context) (smtp.Client, error)
	From() string
}

type Notifier struct {
	log       *slog.Logger
	users     UserGetter
	transport Transport
}

func New(log *slog.Logger, users UserGetter, transport Transport) *Notifier {
	return &Notifier{
		log:       log,
		users:     users,
		transport: transport,
	}
}

// Start запускает потребление очереди notifications.trial_expired.
func (n *Notifier) Start(ctx context.Context, ch *amqp.Channel) (<-chan struct{}, error) {
	const op = "notifier.Start"
	done, err := rabbitmq.ConsumerMessage(ctx, ch, rabbitmq.TrialExpiredQueue, n.Handle, n.log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return done, nil
}

// Handle отправляет письмо по одному сообщению. Сообщения без адресата
// и о пользователях, которым премиум уже вернули, отбрасываются.
func (n *Notifier) Handle(ctx context.Context, body []byte) error {
	const op = "notifier.Handle"
	log := n.log.With(slog.String("op", op))

	var msg TrialExpired
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Warn("dropping malformed message", sl.Err(err))
		return nil
	}
	if msg.UserUID == "" {
		log.Warn("dropping message without user_uid")
		return nil
	}
	log = log.With(sl.UserUID(msg.UserUID))

	user, err := n.users.GetUser(ctx, msg.UserUID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Info("user is gone, skipping notification")
		metrics.TrialEmails.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.IsPremium {
		log.Info("premium restored, skipping notification")
		metrics.TrialEmails.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return nil
	}

	if err = n.sendEmail(ctx, user.Email, trialExpiredSubject, trialExpiredBody(user)); err != nil {
		metrics.TrialEmails.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.TrialEmails.WithLabelValues(metrics.OutcomeSent).Inc()
	log.Info("trial expired email sent")
	return nil
}

func trialExpiredBody(u *models.User) string {
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	return fmt.Sprintf("Здравствуйте, %s!\n\n"+
		"Пробный период премиум-доступа к вашему магазину закончился.\n"+
		"Виджет, баннер и категории на витрине отключены.\n\n"+
		"Чтобы вернуть их, обратитесь в поддержку.", name)
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, bodyText string) error {
	from := n.transport.From()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		// заголовки допускают только ASCII, тема кодируется по RFC 2047
		"Subject: " + mime.BEncoding.Encode("UTF-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"",
		bodyText,
	}, "\r\n")

	client, err := n.transport.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// после успешного Quit соединение уже закрыто
		_ = client.Close()
	}()

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("mail from %s: %w", from, err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to %s: %w", to, err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err = wc.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	if err = client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}
