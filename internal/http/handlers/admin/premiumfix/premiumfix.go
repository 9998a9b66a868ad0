// Package premiumfix реализует HTTP-обработчик точечной миграции премиум-статуса.
package premiumfix

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

// Service переводит устаревший премиум пользователя в бессрочный.
type Service interface {
	FixUserPremiumStatus(ctx context.Context, userUID string) (bool, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Мигрировать премиум-статус пользователя
// @Description Пользователь с is_premium и без флага администратора получает бессрочный премиум.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный UID"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users/{uid}/premium/fix [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.premiumfix"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID := chi.URLParam(r, "uid")
	if err := uuid.Validate(userUID); err != nil {
		log.Error("invalid user uid", sl.UserUID(userUID), sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user uid"))
		return
	}

	migrated, err := h.service.FixUserPremiumStatus(r.Context(), userUID)
	if err != nil {
		log.Error("failed to fix premium status", sl.UserUID(userUID), sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("premium status checked", sl.UserUID(userUID), slog.Bool("migrated", migrated))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid": userUID,
		"migrated": migrated,
	}))
}
