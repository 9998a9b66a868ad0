// Package premiummigrate реализует HTTP-обработчик пакетной миграции премиум-статусов.
package premiummigrate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/storefront-entitlements/internal/http/response"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Service мигрирует всех пользователей.
type Service interface {
	MigrateAll(ctx context.Context) (*models.MigrationReport, error)
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
// @Summary Мигрировать премиум-статусы всех пользователей
// @Description Ошибки по отдельным пользователям попадают в отчёт и не прерывают миграцию.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.MigrationReport}
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /admin/premium/migrate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.premiummigrate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report, err := h.service.MigrateAll(r.Context())
	if err != nil {
		log.Error("migration failed", sl.Err(err))
		status, resp := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("migration finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("migrated", report.Migrated),
		slog.Int("failed", len(report.Failed)),
	)
	render.JSON(w, r, response.StatusOKWithData(report))
}
