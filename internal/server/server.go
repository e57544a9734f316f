package server

import (
	"time"

	"github.com/chainreact/chainreact/internal/controllers"
	"github.com/chainreact/chainreact/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	ExecutionController *controllers.ExecutionController
	TriggerController   *controllers.TriggerController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "chainreact",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "chainreact",
			"version":   version.Short(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Get("/providers", deps.TriggerController.ListProviders)

	workflows := router.Group("/workflows/:workflowID")

	workflows.Post("/executions", deps.ExecutionController.StartExecution)
	workflows.Get("/executions", deps.ExecutionController.ListExecutions)
	workflows.Post("/activate", deps.TriggerController.ActivateWorkflow)
	workflows.Post("/deactivate", deps.TriggerController.DeactivateWorkflow)
	workflows.Get("/trigger-health", deps.TriggerController.TriggerHealth)

	router.Delete("/workflows/:workflowID", deps.TriggerController.DeleteWorkflowTriggers)

	executions := router.Group("/executions/:executionID")

	executions.Get("/", deps.ExecutionController.GetExecution)
	executions.Post("/resume", deps.ExecutionController.ResumeExecution)

	return router
}
