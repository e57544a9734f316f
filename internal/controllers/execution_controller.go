package controllers

import (
	"errors"

	"github.com/chainreact/chainreact/pkg/domain"
	"github.com/chainreact/chainreact/pkg/domain/executor"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// ExecutionController exposes workflow execution over HTTP.
type ExecutionController struct {
	engine     *executor.Engine
	executions domain.ExecutionRecordStore
	validate   *validator.Validate
}

type ExecutionControllerDependencies struct {
	Engine               *executor.Engine
	ExecutionRecordStore domain.ExecutionRecordStore
}

func NewExecutionController(deps ExecutionControllerDependencies) *ExecutionController {
	return &ExecutionController{
		engine:     deps.Engine,
		executions: deps.ExecutionRecordStore,
		validate:   validator.New(),
	}
}

type StartExecutionRequest struct {
	UserID string         `json:"user_id" validate:"required"`
	Input  map[string]any `json:"input"`
}

type ExecutionResponse struct {
	ExecutionID         string                   `json:"execution_id,omitempty"`
	Status              domain.ExecutionStatus   `json:"status,omitempty"`
	Skipped             bool                     `json:"skipped"`
	Output              map[string]any           `json:"output,omitempty"`
	NodeOutputs         []domain.NodeOutput      `json:"node_outputs,omitempty"`
	MissingIntegrations []domain.IntegrationType `json:"missing_integrations,omitempty"`
}

// StartExecution runs a workflow synchronously and reports the outcome. A
// filtered-out event returns 200 with skipped=true and no execution record.
func (c *ExecutionController) StartExecution(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	var req StartExecutionRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := c.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	result, err := c.engine.Execute(ctx.RequestCtx(), executor.ExecuteParams{
		WorkflowID: workflowID,
		UserID:     req.UserID,
		Input:      req.Input,
	})
	if err != nil {
		// A failed run still has a persisted record; report it rather than
		// masking it behind a 500.
		if result.ExecutionID != "" {
			return ctx.JSON(executionResponse(result))
		}

		return executionError(workflowID, err)
	}

	return ctx.JSON(executionResponse(result))
}

// ResumeExecution retries a paused execution after the user reconnected the
// missing integrations.
func (c *ExecutionController) ResumeExecution(ctx fiber.Ctx) error {
	executionID := ctx.Params("executionID")

	result, err := c.engine.Resume(ctx.RequestCtx(), executionID)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Execution not found")
		}

		if result.ExecutionID != "" {
			return ctx.JSON(executionResponse(result))
		}

		return executionError(executionID, err)
	}

	return ctx.JSON(executionResponse(result))
}

func (c *ExecutionController) GetExecution(ctx fiber.Ctx) error {
	executionID := ctx.Params("executionID")

	record, err := c.executions.GetExecutionRecord(ctx.RequestCtx(), executionID)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Execution not found")
		}

		log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to load execution record")

		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load execution")
	}

	return ctx.JSON(record)
}

func (c *ExecutionController) ListExecutions(ctx fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	records, err := c.executions.ListExecutionRecordsByWorkflow(ctx.RequestCtx(), workflowID)
	if err != nil {
		log.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to list execution records")

		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list executions")
	}

	return ctx.JSON(records)
}

func executionResponse(result executor.ExecutionResult) ExecutionResponse {
	return ExecutionResponse{
		ExecutionID:         result.ExecutionID,
		Status:              result.Status,
		Skipped:             result.Skipped,
		Output:              result.Output,
		NodeOutputs:         result.NodeOutputs,
		MissingIntegrations: result.MissingIntegrations,
	}
}

func executionError(id string, err error) error {
	var configErr *domain.ConfigurationError
	if errors.As(err, &configErr) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, configErr.Message)
	}

	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Workflow not found")
	}

	log.Error().Err(err).Str("id", id).Msg("Execution request failed")

	return fiber.NewError(fiber.StatusInternalServerError, "Execution failed")
}
