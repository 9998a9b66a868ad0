// Package register реализует HTTP-обработчик регистрации владельца магазина.
//
// При успешной регистрации создаются пользователь с семидневным пробным периодом
// и магазин по умолчанию, в ответ возвращается UID пользователя.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/auth"
)

// Request входные данные для регистрации
type Request struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
	StoreSlug   string `json:"store_slug,omitempty" validate:"max=63"`
}

// Service описывает бизнес-логику регистрации.
type Service interface {
	Register(ctx context.Context, req auth.RegisterRequest) (string, error)
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
// @Summary Регистрация владельца магазина
// @Description Создаёт пользователя с пробным периодом и магазин по умолчанию.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные регистрации"
// @Success 201 {object} response.Response "Пользователь создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 409 {object} response.ErrorResponse "Почта или адрес магазина заняты"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.String("email", req.Email), slog.String("store_slug", req.StoreSlug))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	uid, err := h.service.Register(r.Context(), auth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		StoreSlug:   req.StoreSlug,
	})
	if err != nil {
		log.Error("registration failed", sl.Err(err))
		switch {
		case errors.Is(err, auth.ErrInvalidSlug):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(auth.ErrInvalidSlug.Error()))
		case errors.Is(err, models.ErrAlreadyExists):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("email or store url is already taken"))
		default:
			status, resp := response.FromError(err)
			render.Status(r, status)
			render.JSON(w, r, resp)
		}
		return
	}

	log.Info("user registered", sl.UserUID(uid))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid": uid,
		"message":  "user created successfully",
	}))
}
