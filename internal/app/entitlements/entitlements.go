// Package entitlements собирает HTTP-сервис прав доступа: хранилище, кеш,
// ленту изменений пользователей, принудительное снятие премиума и маршруты.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/storefront-entitlements/internal/cache"
	"github.com/magabrotheeeer/storefront-entitlements/internal/config"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/smtp"
	"github.com/magabrotheeeer/storefront-entitlements/internal/migrations"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/account"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/auth"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/enforcer"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/migrator"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/notifier"
	"github.com/magabrotheeeer/storefront-entitlements/internal/storage/repository"
	"github.com/magabrotheeeer/storefront-entitlements/internal/userfeed"
)

const (
	shutdownTimeout = 15 * time.Second
	feedBuffer      = 64
)

// App представляет HTTP-сервис прав доступа вместе с фоновыми задачами.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	cache    *cache.Cache
	enforcer *enforcer.Enforcer
	sweeper  *enforcer.Sweeper

	// лента изменений, nil без RabbitMQ
	conn      *amqp.Connection
	consumeCh *amqp.Channel
	publishCh *amqp.Channel
	broker    *userfeed.Broker
	consumer  *userfeed.Consumer
	notifier  *notifier.Notifier
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range 10 {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New подключает хранилище, кеш и брокер и собирает сервисы.
// Redis и RabbitMQ необязательны: без адреса соответствующая часть не запускается.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err = waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		logger: logger,
		db:     db,
	}

	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
	} else {
		logger.Warn("redis address is not set, user cache disabled")
	}

	var publisher *userfeed.Publisher
	if cfg.RabbitMQURL != "" {
		if publisher, err = a.setupFeed(cfg); err != nil {
			a.close()
			return nil, err
		}
	} else {
		logger.Warn("rabbitmq url is not set, user change feed disabled")
	}

	enforcerOpts := []enforcer.Option{
		enforcer.WithStoreRetry(0, cfg.StoreRetryMaxElapsed, cfg.StoreRetryAttempts),
	}
	accountOpts := []account.Option{}
	var (
		migratorCache migrator.Cache
		authEvents    auth.EventPublisher
	)
	if a.cache != nil {
		enforcerOpts = append(enforcerOpts, enforcer.WithCache(a.cache))
		accountOpts = append(accountOpts, account.WithCache(a.cache, cfg.EntitlementsTTL))
		migratorCache = a.cache
	}
	if publisher != nil {
		enforcerOpts = append(enforcerOpts, enforcer.WithNotifier(publisher))
		accountOpts = append(accountOpts, account.WithEvents(publisher))
		authEvents = publisher
	}

	a.enforcer = enforcer.New(db, logger, enforcerOpts...)
	a.sweeper = enforcer.NewSweeper(db, a.enforcer, cfg.SweepInterval, logger)
	if a.broker != nil {
		a.consumer = userfeed.NewConsumer(logger, db, a.broker)
		if cfg.SMTPHost != "" {
			a.notifier = notifier.New(logger, db, smtp.NewTransport(cfg.SMTP, logger))
		} else {
			logger.Warn("smtp host is not set, trial expiry emails disabled")
		}
	}

	accountOpts = append(accountOpts, account.WithEnforcer(a.enforcer))
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, Services{
		Auth:     auth.NewService(db, jwtMaker, authEvents, logger),
		Account:  account.New(db, logger, accountOpts...),
		Migrator: migrator.New(db, migratorCache, logger, cfg.Concurrency),
		Tokens:   jwtMaker,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// setupFeed подключается к RabbitMQ, объявляет очереди и открывает
// отдельные каналы для потребления и публикации.
func (a *App) setupFeed(cfg *config.Config) (*userfeed.Publisher, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.conn = conn

	a.consumeCh, err = rabbitmq.SetupChannel(conn, rabbitmq.Exchange, rabbitmq.EntitlementQueues())
	if err != nil {
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.publishCh, err = conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ publish channel: %w", err)
	}
	a.broker = userfeed.NewBroker(feedBuffer)
	return userfeed.NewPublisher(a.publishCh), nil
}

// Run запускает HTTP-сервер, периодическую проверку истёкших триалов и,
// если настроен брокер, обработку ленты изменений. Возвращает управление
// после отмены ctx или падения любой из задач.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	// ранний выход останавливает уже запущенных потребителей
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if a.consumer != nil {
		snapshots, unsubscribe := a.broker.Subscribe("")
		done, err := a.consumer.Start(gctx, a.consumeCh)
		if err != nil {
			unsubscribe()
			return err
		}
		g.Go(func() error {
			defer unsubscribe()
			a.enforcer.Watch(gctx, snapshots)
			return nil
		})
		g.Go(func() error {
			<-done
			a.broker.Close()
			if gctx.Err() == nil {
				return errors.New("user change consumer stopped unexpectedly")
			}
			return nil
		})
	}

	if a.notifier != nil {
		done, err := a.notifier.Start(gctx, a.consumeCh)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-done
			if gctx.Err() == nil {
				return errors.New("trial expiry notifier stopped unexpectedly")
			}
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down HTTP server gracefully")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(timeoutCtx)
	})

	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})

	return g.Wait()
}

func (a *App) close() {
	if a.publishCh != nil {
		if err := a.publishCh.Close(); err != nil {
			a.logger.Error("failed to close publish channel", sl.Err(err))
		}
	}
	if a.consumeCh != nil {
		if err := a.consumeCh.Close(); err != nil {
			a.logger.Error("failed to close consume channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close RabbitMQ connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
