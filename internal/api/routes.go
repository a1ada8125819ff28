package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"graph-persistence/internal/instrument"
)

// NewApp builds the fiber application with error rendering and tracing.
func NewApp(logger *zap.Logger, inst instrument.Instrumenter) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "graph-persistence",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger),
	})
	if inst != nil {
		app.Use(instrument.Middleware(inst))
	}
	return app
}

// RegisterRoutes mounts the entity API. guards run before every /api route.
func RegisterRoutes(app *fiber.App, h *Handler, guards ...fiber.Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api")
	for _, g := range guards {
		api.Use(g)
	}
	api.Get("/_meta", h.Meta)
	api.Get("/:entity", h.List)
	api.Get("/:entity/:id", h.GetByID)
	api.Post("/:entity", h.Create)
	api.Put("/:entity/:id", h.Update)
	api.Delete("/:entity/:id", h.Delete)
}
