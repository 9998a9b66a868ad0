// Package userlist реализует HTTP-обработчик просмотра пользователей администратором.
//
// Без параметров возвращает всех пользователей, новые первыми.
// С параметром email возвращает список из одного найденного пользователя.
package userlist

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Service описывает чтение пользователей.
type Service interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
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
// @Summary Список пользователей
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param email query string false "Поиск по почте"
// @Success 200 {object} response.Response{data=[]models.User}
// @Failure 403 {object} response.ErrorResponse "Нет прав администратора"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.userlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var (
		users []*models.User
		err   error
	)
	if email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email"))); email != "" {
		var u *models.User
		u, err = h.service.FindByEmail(r.Context(), email)
		if err == nil {
			users = []*models.User{u}
		}
	} else {
		users, err = h.service.ListUsers(r.Context())
	}
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	if users == nil {
		users = []*models.User{}
	}
	log.Info("users listed", slog.Int("count", len(users)))
	render.JSON(w, r, response.StatusOKWithData(users))
}
