package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"graph-persistence/internal/api"
	"graph-persistence/internal/store"
)

// Catalog reads the persisted entity catalog.
type Catalog interface {
	CatalogEntries(ctx context.Context) ([]store.CatalogEntry, error)
	CatalogEntry(ctx context.Context, name string) (store.CatalogEntry, error)
}

// Reloader rescans descriptor sources and re-initializes the entity
// registry. It returns the entity types served afterwards.
type Reloader interface {
	Reload(ctx context.Context) ([]string, error)
}

type Handler struct {
	catalog  Catalog
	reloader Reloader
	logger   *zap.Logger
}

func NewHandler(catalog Catalog, reloader Reloader, logger *zap.Logger) *Handler {
	return &Handler{catalog: catalog, reloader: reloader, logger: logger}
}

// RegisterAdminRoutes mounts the admin endpoints under /_admin.
func RegisterAdminRoutes(app *fiber.App, h *Handler, guards ...fiber.Handler) {
	admin := app.Group("/_admin")
	for _, g := range guards {
		admin.Use(g)
	}

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)
	admin.Post("/reload", h.Reload)
}

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	entries, err := h.catalog.CatalogEntries(c.Context())
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	return c.JSON(fiber.Map{"data": entries})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	entry, err := h.catalog.CatalogEntry(c.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		return api.UnknownEntityError(name)
	}
	if err != nil {
		return fmt.Errorf("get entity %s: %w", name, err)
	}
	return c.JSON(fiber.Map{"data": entry})
}

// Reload re-runs registry initialization. A failed reload leaves the
// previously served entity types in place and reports the failure.
func (h *Handler) Reload(c *fiber.Ctx) error {
	types, err := h.reloader.Reload(c.Context())
	if err != nil {
		h.logger.Warn("schema reload failed", zap.Error(err))
		return api.NewAppError("RELOAD_FAILED", fiber.StatusConflict, err.Error())
	}
	h.logger.Info("schema reloaded", zap.Strings("types", types))
	return c.JSON(fiber.Map{"data": fiber.Map{"entities": types}})
}
