package entitlements

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/storefront-entitlements/internal/config"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/premiumfix"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/premiummigrate"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/premiumset"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/roleset"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/trialend"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/trialreset"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/admin/userlist"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/handlers/entitlements/me"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Services зависимости HTTP-слоя.
type Services struct {
	Auth     AuthService
	Account  AccountService
	Migrator MigratorService
	Tokens   middlewarectx.TokenParser
}

// AuthService регистрация и вход.
type AuthService interface {
	register.Service
	login.Service
}

// AccountService административные действия и чтение прав.
type AccountService interface {
	me.Service
	userlist.Service
	trialend.Service
	trialreset.Service
	premiumset.Service
	roleset.Service
	middlewarectx.UserGetter
}

// MigratorService миграция премиум-статусов.
type MigratorService interface {
	premiumfix.Service
	premiummigrate.Service
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg config.HTTPServer, svc Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Tokens, logger))
			r.Get("/me/entitlements", me.New(logger, svc.Account).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireFeature(logger, svc.Account, models.FeatureAdmin))
				r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.AdminRateLimit, cfg.AdminRateBurst))

				r.Get("/users", userlist.New(logger, svc.Account).ServeHTTP)
				r.Post("/users/{uid}/trial/end", trialend.New(logger, svc.Account).ServeHTTP)
				r.Post("/users/{uid}/trial/reset", trialreset.New(logger, svc.Account).ServeHTTP)
				r.Put("/users/{uid}/premium", premiumset.New(logger, svc.Account).ServeHTTP)
				r.Put("/users/{uid}/role", roleset.New(logger, svc.Account).ServeHTTP)
				r.Post("/users/{uid}/premium/fix", premiumfix.New(logger, svc.Migrator).ServeHTTP)
				r.Post("/premium/migrate", premiummigrate.New(logger, svc.Migrator).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
