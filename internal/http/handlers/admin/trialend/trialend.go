// Package trialend реализует HTTP-обработчик досрочного завершения пробного периода.
package trialend

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

// Service завершает пробный период пользователя.
type Service interface {
	EndTrial(ctx context.Context, userUID string) error
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
// @Summary Завершить пробный период
// @Description Снимает премиум и ставит дату окончания триала в прошлое. Пользователь должен быть на триале.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный UID"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Пользователь не на триале"
// @Router /admin/users/{uid}/trial/end [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.trialend"

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

	if err := h.service.EndTrial(r.Context(), userUID); err != nil {
		log.Error("failed to end trial", sl.UserUID(userUID), sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("trial ended", sl.UserUID(userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid": userUID,
		"message":  "trial ended",
	}))
}
