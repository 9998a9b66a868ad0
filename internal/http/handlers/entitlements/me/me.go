// Package me реализует HTTP-обработчик чтения прав текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Service вычисляет права пользователя.
type Service interface {
	Entitlements(ctx context.Context, userUID string) (*models.Entitlements, error)
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
// @Summary Права текущего пользователя
// @Description Возвращает премиум-статус, состояние пробного периода и доступные функции.
// @Tags Entitlements
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.Entitlements}
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /me/entitlements [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlements.me"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	ent, err := h.service.Entitlements(r.Context(), userUID)
	if err != nil {
		log.Error("failed to evaluate entitlements", sl.UserUID(userUID), sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(ent))
}
