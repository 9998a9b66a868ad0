// Package trialreset реализует HTTP-обработчик перезапуска пробного периода.
package trialreset

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

// Service перезапускает пробный период.
type Service interface {
	ResetTrial(ctx context.Context, userUID string) (time.Time, error)
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
// @Summary Перезапустить пробный период
// @Description Доступно, пока не прошло семь дней с регистрации и нет бессрочного премиума.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный UID"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Перезапуск недоступен"
// @Router /admin/users/{uid}/trial/reset [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.trialreset"

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

	trialEnd, err := h.service.ResetTrial(r.Context(), userUID)
	if err != nil {
		log.Error("failed to reset trial", sl.UserUID(userUID), sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("trial reset", sl.UserUID(userUID), slog.Time("trial_end_date", trialEnd))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid":       userUID,
		"trial_end_date": trialEnd,
	}))
}
