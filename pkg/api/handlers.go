// Package api provides the read-only HTTP status API over the catalog
// and run history.
package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/catalog"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
)

type Handlers struct {
	catalog     *catalog.Catalog
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewHandlers(cat *catalog.Catalog, store persistence.Persistence, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:     cat,
		persistence: store,
		logger:      logger.With("module", "api"),
	}
}

// NewApp builds the Fiber application with every route registered.
func NewApp(handlers *Handlers) *fiber.App {
	app := fiber.New()

	app.Get("/health", handlers.GetHealth)
	app.Get("/workflows", handlers.GetWorkflows)
	app.Get("/workflows/:id", handlers.GetWorkflow)
	app.Get("/workflows/:id/runs", handlers.GetWorkflowRuns)
	app.Get("/runs/:id", handlers.GetRun)

	return app
}

func (h *Handlers) GetHealth(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok", "workflows": h.catalog.Len()})
}

func (h *Handlers) GetWorkflows(c fiber.Ctx) error {
	workflows := h.catalog.List()

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *Handlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.catalog.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrWorkflowNotFound) {
			return notFound(c, "workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *Handlers) GetWorkflowRuns(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.catalog.Get(workflowID); err != nil {
		if errors.Is(err, catalog.ErrWorkflowNotFound) {
			return notFound(c, "workflow not found")
		}

		return internalError(c, err)
	}

	runs, err := h.persistence.RunRepository().ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *Handlers) GetRun(c fiber.Ctx) error {
	run, err := h.persistence.RunRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return notFound(c, "run not found")
		}

		return internalError(c, err)
	}

	return c.JSON(run)
}
