package controllers

import (
	"errors"

	"github.com/chainreact/chainreact/internal/managers"
	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// TriggerController exposes workflow trigger activation, teardown and health
// over HTTP.
type TriggerController struct {
	activation *managers.ActivationManager
	registry   domain.TriggerLifecycleRegistry
	validate   *validator.Validate
}

type TriggerControllerDependencies struct {
	ActivationManager        *managers.ActivationManager
	TriggerLifecycleRegistry domain.TriggerLifecycleRegistry
}

func NewTriggerController(deps TriggerControllerDependencies) *TriggerController {
	return &TriggerController{
		activation: deps.ActivationManager,
		registry:   deps.TriggerLifecycleRegistry,
		validate:   validator.New(),
	}
}

type WorkflowTriggerRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (c *TriggerController) ActivateWorkflow(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	req, err := c.bindTriggerRequest(ctx)
	if err != nil {
		return err
	}

	if err := c.activation.ActivateWorkflow(ctx.RequestCtx(), workflowID, req.UserID); err != nil {
		return triggerError(workflowID, "activate", err)
	}

	return ctx.JSON(fiber.Map{"status": "activated"})
}

func (c *TriggerController) DeactivateWorkflow(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	req, err := c.bindTriggerRequest(ctx)
	if err != nil {
		return err
	}

	if err := c.activation.DeactivateWorkflow(ctx.RequestCtx(), workflowID, req.UserID); err != nil {
		return triggerError(workflowID, "deactivate", err)
	}

	return ctx.JSON(fiber.Map{"status": "deactivated"})
}

// DeleteWorkflowTriggers tears down all external resources for a workflow
// that is being deleted.
func (c *TriggerController) DeleteWorkflowTriggers(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	userID := ctx.Query("user_id")
	if userID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id query parameter is required")
	}

	if err := c.activation.DeleteWorkflowTriggers(ctx.RequestCtx(), workflowID, userID); err != nil {
		return triggerError(workflowID, "delete", err)
	}

	return ctx.JSON(fiber.Map{"status": "deleted"})
}

func (c *TriggerController) TriggerHealth(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	userID := ctx.Query("user_id")
	if userID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id query parameter is required")
	}

	health, err := c.activation.TriggerHealth(ctx.RequestCtx(), workflowID, userID)
	if err != nil {
		return triggerError(workflowID, "health check", err)
	}

	return ctx.JSON(health)
}

// ListProviders reports the registered trigger providers so clients can show
// what the platform supports.
func (c *TriggerController) ListProviders(ctx fiber.Ctx) error {
	return ctx.JSON(c.registry.List())
}

func (c *TriggerController) bindTriggerRequest(ctx fiber.Ctx) (WorkflowTriggerRequest, error) {
	var req WorkflowTriggerRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return WorkflowTriggerRequest{}, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := c.validate.Struct(req); err != nil {
		return WorkflowTriggerRequest{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return req, nil
}

func triggerError(workflowID string, op string, err error) error {
	var configErr *domain.ConfigurationError
	if errors.As(err, &configErr) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, configErr.Message)
	}

	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Workflow not found")
	}

	if errors.Is(err, domain.ErrProviderNotRegistered) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Trigger provider is not supported")
	}

	log.Error().Err(err).
		Str("workflow_id", workflowID).
		Str("operation", op).
		Msg("Trigger operation failed")

	return fiber.NewError(fiber.StatusInternalServerError, "Trigger operation failed")
}
