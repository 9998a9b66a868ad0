package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/entitlement"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// UserGetter возвращает актуальную запись пользователя.
type UserGetter interface {
	User(ctx context.Context, userUID string) (*models.User, error)
}

// RequireFeature пропускает запрос, только если пользователю из контекста доступна feature.
// Роль берётся из записи пользователя, а не из токена: выданный токен
// не должен переживать понижение роли.
func RequireFeature(log *slog.Logger, users UserGetter, feature models.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireFeature"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("feature", string(feature)),
			)

			userUID, ok := UserUIDFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			u, err := users.User(r.Context(), userUID)
			if err != nil {
				log.Error("failed to load user", sl.UserUID(userUID), sl.Err(err))
				status, resp := response.FromError(err)
				if status == http.StatusNotFound {
					status, resp = http.StatusUnauthorized, response.Error("user no longer exists")
				}
				render.Status(r, status)
				render.JSON(w, r, resp)
				return
			}

			if !entitlement.CanAccessFeature(u, feature, time.Now()) {
				log.Warn("access denied", sl.UserUID(userUID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
