package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// Engine orchestrates one workflow run: trigger-filter evaluation, credential
// resolution, pause-for-reauth, linear chain traversal, and execution-record
// bookkeeping. Each Execute call is an independent unit of work; the hosting
// environment may run many concurrently, but traversal within one run is
// strictly sequential.
type Engine struct {
	workflows  domain.WorkflowStore
	executions domain.ExecutionRecordStore
	resolver   domain.CredentialResolver
	actions    domain.ActionExecutor
	now        func() time.Time
	newID      func() string
}

type EngineDependencies struct {
	WorkflowStore        domain.WorkflowStore
	ExecutionRecordStore domain.ExecutionRecordStore
	CredentialResolver   domain.CredentialResolver
	ActionExecutor       domain.ActionExecutor
}

func NewEngine(deps EngineDependencies) *Engine {
	return &Engine{
		workflows:  deps.WorkflowStore,
		executions: deps.ExecutionRecordStore,
		resolver:   deps.CredentialResolver,
		actions:    deps.ActionExecutor,
		now:        time.Now,
		newID:      func() string { return xid.New().String() },
	}
}

type ExecuteParams struct {
	WorkflowID string
	UserID     string
	Input      map[string]any
}

type ExecutionResult struct {
	ExecutionID string
	Status      domain.ExecutionStatus
	// Skipped is true when the trigger filter rejected the event; the run is
	// a successful no-op and no execution record was written.
	Skipped             bool
	Output              map[string]any
	NodeOutputs         []domain.NodeOutput
	MissingIntegrations []domain.IntegrationType
}

// Execute runs one trigger event through the workflow. A credential problem
// never surfaces as an error; it becomes a paused execution record carrying
// the providers to reconnect.
func (e *Engine) Execute(ctx context.Context, p ExecuteParams) (ExecutionResult, error) {
	graph, err := e.workflows.GetWorkflowGraph(ctx, p.WorkflowID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to load workflow %s: %w", p.WorkflowID, err)
	}

	trigger, ok := graph.TriggerNode()
	if !ok {
		return ExecutionResult{}, domain.NewConfigurationError("workflow %s has no trigger node", p.WorkflowID)
	}

	matched, err := trigger.Filter.Matches(p.Input)
	if err != nil {
		return ExecutionResult{}, domain.NewConfigurationError("workflow %s trigger filter: %v", p.WorkflowID, err)
	}

	if !matched {
		log.Debug().
			Str("workflow_id", p.WorkflowID).
			Msg("Trigger filter not satisfied, skipping event")

		return ExecutionResult{Skipped: true}, nil
	}

	resolution, err := e.resolver.Resolve(ctx, p.UserID, graph.CredentialRequirements())
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("credential resolution for workflow %s failed: %w", p.WorkflowID, err)
	}

	record := domain.ExecutionRecord{
		ID:         e.newID(),
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		Payload:    domain.ExecutionPayload{Input: p.Input},
		StartedAt:  e.now(),
	}

	if !resolution.AllResolved() {
		record.Status = domain.ExecutionStatusPaused
		record.Payload.PauseReason = domain.PauseReasonMissingIntegrations
		record.Payload.MissingIntegrations = resolution.MissingProviders

		if err := e.executions.CreateExecutionRecord(ctx, record); err != nil {
			return ExecutionResult{}, fmt.Errorf("failed to persist paused execution: %w", err)
		}

		log.Info().
			Str("workflow_id", p.WorkflowID).
			Str("execution_id", record.ID).
			Interface("missing_integrations", resolution.MissingProviders).
			Msg("Execution paused for reauthentication")

		return ExecutionResult{
			ExecutionID:         record.ID,
			Status:              domain.ExecutionStatusPaused,
			MissingIntegrations: resolution.MissingProviders,
		}, nil
	}

	record.Status = domain.ExecutionStatusRunning

	if err := e.executions.CreateExecutionRecord(ctx, record); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to persist execution record: %w", err)
	}

	return e.traverse(ctx, graph, trigger, record, resolution)
}

// Resume re-runs a paused execution from its input snapshot. If providers are
// still missing the record stays paused with a fresh missing list.
func (e *Engine) Resume(ctx context.Context, executionID string) (ExecutionResult, error) {
	record, err := e.executions.GetExecutionRecord(ctx, executionID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	if record.Status != domain.ExecutionStatusPaused {
		return ExecutionResult{}, fmt.Errorf("execution %s is %s, only paused executions can resume", executionID, record.Status)
	}

	graph, err := e.workflows.GetWorkflowGraph(ctx, record.WorkflowID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to load workflow %s: %w", record.WorkflowID, err)
	}

	trigger, ok := graph.TriggerNode()
	if !ok {
		return ExecutionResult{}, domain.NewConfigurationError("workflow %s has no trigger node", record.WorkflowID)
	}

	resolution, err := e.resolver.Resolve(ctx, record.UserID, graph.CredentialRequirements())
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("credential resolution for workflow %s failed: %w", record.WorkflowID, err)
	}

	if !resolution.AllResolved() {
		record.Payload.MissingIntegrations = resolution.MissingProviders

		if err := e.executions.UpdateExecutionRecord(ctx, record); err != nil {
			return ExecutionResult{}, fmt.Errorf("failed to update paused execution: %w", err)
		}

		return ExecutionResult{
			ExecutionID:         record.ID,
			Status:              domain.ExecutionStatusPaused,
			MissingIntegrations: resolution.MissingProviders,
		}, nil
	}

	record.Status = domain.ExecutionStatusRunning
	record.Payload.PauseReason = ""
	record.Payload.MissingIntegrations = nil

	if err := e.executions.UpdateExecutionRecord(ctx, record); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to mark execution running: %w", err)
	}

	return e.traverse(ctx, graph, trigger, record, resolution)
}

// traverse walks the single linear chain from the trigger's successor,
// feeding each node's output into the next. Any node failure aborts the
// remaining chain.
func (e *Engine) traverse(ctx context.Context, graph domain.WorkflowGraph, trigger domain.GraphNode, record domain.ExecutionRecord, resolution domain.CredentialResolution) (ExecutionResult, error) {
	currentInput := record.Payload.Input
	nodeOutputs := []domain.NodeOutput{}

	node, ok, err := e.successor(graph, trigger.ID)
	if err != nil {
		return e.fail(ctx, record, nodeOutputs, err)
	}

	for ok {
		var credential *domain.ResolvedCredential

		if node.Provider != "" {
			resolved, found := resolution.CredentialFor(domain.CredentialRequirement{
				Provider:      node.Provider,
				IntegrationID: node.IntegrationID,
			})
			if !found {
				// Resolution reported success for every requirement, so this
				// is an engine bug, not a credential problem.
				return e.fail(ctx, record, nodeOutputs, fmt.Errorf("no resolved credential for node %s (%s)", node.ID, node.Provider))
			}

			credential = &resolved
		}

		result, err := e.actions.Execute(ctx, domain.ExecuteActionParams{
			Node:       node,
			Input:      currentInput,
			UserID:     record.UserID,
			WorkflowID: record.WorkflowID,
			Credential: credential,
		})
		if err != nil {
			return e.fail(ctx, record, nodeOutputs, &domain.ExecutionError{NodeID: node.ID, Err: err})
		}

		if !result.Success {
			return e.fail(ctx, record, nodeOutputs, &domain.ExecutionError{NodeID: node.ID, Message: result.Message})
		}

		currentInput = result.Output
		nodeOutputs = append(nodeOutputs, domain.NodeOutput{NodeID: node.ID, Output: result.Output})

		node, ok, err = e.successor(graph, node.ID)
		if err != nil {
			return e.fail(ctx, record, nodeOutputs, err)
		}
	}

	completedAt := e.now()
	record.Status = domain.ExecutionStatusCompleted
	record.Payload.Output = currentInput
	record.Payload.NodeOutputs = nodeOutputs
	record.CompletedAt = &completedAt

	if err := e.executions.UpdateExecutionRecord(ctx, record); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to persist completed execution: %w", err)
	}

	log.Info().
		Str("workflow_id", record.WorkflowID).
		Str("execution_id", record.ID).
		Int("nodes_executed", len(nodeOutputs)).
		Msg("Workflow execution completed")

	return ExecutionResult{
		ExecutionID: record.ID,
		Status:      domain.ExecutionStatusCompleted,
		Output:      currentInput,
		NodeOutputs: nodeOutputs,
	}, nil
}

// successor returns the node's unique follower. Fan-out graphs are not
// supported by the linear traversal model and are rejected outright.
func (e *Engine) successor(graph domain.WorkflowGraph, nodeID string) (domain.GraphNode, bool, error) {
	edges := graph.OutgoingEdges(nodeID)

	if len(edges) == 0 {
		return domain.GraphNode{}, false, nil
	}

	if len(edges) > 1 {
		return domain.GraphNode{}, false, domain.NewConfigurationError("node %s has %d outgoing edges, fan-out is not supported", nodeID, len(edges))
	}

	next, ok := graph.GetNodeByID(edges[0].ToNodeID)
	if !ok {
		return domain.GraphNode{}, false, domain.NewConfigurationError("edge from %s references unknown node %s", nodeID, edges[0].ToNodeID)
	}

	return next, true, nil
}

func (e *Engine) fail(ctx context.Context, record domain.ExecutionRecord, nodeOutputs []domain.NodeOutput, cause error) (ExecutionResult, error) {
	completedAt := e.now()
	record.Status = domain.ExecutionStatusFailed
	record.Payload.Error = cause.Error()
	record.Payload.NodeOutputs = nodeOutputs
	record.CompletedAt = &completedAt

	if err := e.executions.UpdateExecutionRecord(ctx, record); err != nil {
		log.Error().Err(err).
			Str("execution_id", record.ID).
			Msg("Failed to persist failed execution record")
	}

	log.Error().Err(cause).
		Str("workflow_id", record.WorkflowID).
		Str("execution_id", record.ID).
		Msg("Workflow execution failed")

	return ExecutionResult{
		ExecutionID: record.ID,
		Status:      domain.ExecutionStatusFailed,
		NodeOutputs: nodeOutputs,
	}, cause
}
