// Package premiumset реализует HTTP-обработчик выдачи и отзыва бессрочного премиума.
package premiumset

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

// Request тело запроса. Указатель нужен, чтобы отличать false от отсутствующего поля.
type Request struct {
	IsPremium *bool `json:"is_premium" validate:"required"`
}

// Service меняет бессрочный премиум.
type Service interface {
	SetPremium(ctx context.Context, userUID string, premium bool) error
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выдать или отозвать бессрочный премиум
// @Description Пробный период при этом снимается.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID пользователя"
// @Param request body Request true "Новое значение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users/{uid}/premium [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.premiumset"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.SetPremium(r.Context(), userUID, *req.IsPremium); err != nil {
		log.Error("failed to set premium", sl.UserUID(userUID), sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("premium updated", sl.UserUID(userUID), slog.Bool("is_premium", *req.IsPremium))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid":   userUID,
		"is_premium": *req.IsPremium,
	}))
}
