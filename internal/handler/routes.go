package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts the project routes on r
func (h *GraphHandler) Register(r fiber.Router) {
	r.Get("/projects", h.ListProjects)
	r.Delete("/projects/:id", h.DeleteProject)

	p := r.Group("/projects/:id")
	p.Get("/graph", h.GetGraph)
	p.Put("/graph", h.ReplaceGraph)
	p.Post("/save", h.Save)
	p.Post("/undo", h.Undo)
	p.Post("/redo", h.Redo)

	p.Post("/nodes", h.CreateNode)
	p.Patch("/nodes/:nodeId", h.UpdateNode)
	p.Put("/nodes/:nodeId/position", h.MoveNode)
	p.Put("/nodes/:nodeId/layout", h.SetLayout)
	p.Delete("/nodes/:nodeId", h.DeleteNode)
	p.Post("/nodes/:nodeId/duplicate", h.DuplicateNode)
	p.Post("/nodes/:nodeId/reset", h.ResetNode)
	p.Post("/nodes/:nodeId/generate", h.Generate)
	p.Post("/nodes/:nodeId/select", h.SelectNode)
	p.Get("/nodes/:nodeId/geometry", h.Geometry)
	p.Delete("/selection", h.ClearSelection)

	p.Post("/connections", h.Connect)
	p.Delete("/connections/:cid", h.Disconnect)
	p.Get("/stale", h.Stale)
	p.Post("/pointer", h.Pointer)

	p.Get("/export", h.Export)
	p.Post("/import", h.Import)
	p.Get("/assets", h.Assets)
	p.Post("/templates/:name", h.ApplyTemplate)

	r.Get("/templates", h.ListTemplates)
	r.Post("/templates/reload", h.ReloadTemplates)
}

// NewApp builds the fiber application: middleware, health and metrics,
// the project API and the event stream under /api/events
func NewApp(h *GraphHandler, events fiber.Handler, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}
	// Route params become session keys, selections and task keys that outlive
	// the request, so they must not alias fiber's reused buffers.
	app := fiber.New(fiber.Config{
		AppName:      "nodeflow",
		ErrorHandler: errorHandler,
		Immutable:    true,
	})

	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(RequestLogger(logger))

	app.Get("/health", Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	h.Register(api)
	if events != nil {
		api.Get("/events", events)
	}
	return app
}

// Health reports liveness
func Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.Debug("request", attrs...)
		return err
	}
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}
