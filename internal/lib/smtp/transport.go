package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/magabrotheeeer/storefront-entitlements/internal/config"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

// ErrNoStartTLS сервер не поддерживает шифрование, письма без него не отправляются.
var ErrNoStartTLS = errors.New("smtp server does not support STARTTLS")

// Transport открывает аутентифицированные соединения с почтовым сервером.
type Transport struct {
	cfg    config.SMTP
	log    *slog.Logger
	dialer net.Dialer
}

// NewTransport создает Transport для сервера из cfg.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect подключается к серверу, включает STARTTLS и проходит PLAIN-аутентификацию.
// Закрыть клиента должен вызывающий.
func (t *Transport) Connect(ctx context.Context) (Client, error) {
	const op = "smtp.Connect"
	log := t.log.With(slog.String("op", op), slog.String("host", t.cfg.SMTPHost))

	conn, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.cfg.SMTPHost, t.cfg.SMTPPort))
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warn("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: handshake: %w", op, err)
	}

	fail := func(err error) (Client, error) {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fail(ErrNoStartTLS)
	}
	if err = client.StartTLS(&tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}); err != nil {
		return fail(fmt.Errorf("starttls: %w", err))
	}
	if err = client.Auth(smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)); err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}
	return client, nil
}

// From адрес отправителя.
func (t *Transport) From() string {
	return t.cfg.SMTPUser
}
