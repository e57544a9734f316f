package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/chainreact/chainreact/internal/storage/memory"
	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver resolves every requirement except the providers listed as
// missing.
type fakeResolver struct {
	missing []domain.IntegrationType
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string, requirements []domain.CredentialRequirement) (domain.CredentialResolution, error) {
	resolution := domain.CredentialResolution{
		ByKey:            map[string]domain.ResolvedCredential{},
		MissingProviders: []domain.IntegrationType{},
	}

	seen := map[domain.IntegrationType]struct{}{}

	for _, requirement := range requirements {
		valid := true
		for _, provider := range f.missing {
			if requirement.Provider == provider {
				valid = false
				break
			}
		}

		resolution.ByKey[requirement.Key()] = domain.ResolvedCredential{
			Requirement: requirement,
			Integration: domain.Integration{
				ID:           "int_" + string(requirement.Provider),
				Provider:     requirement.Provider,
				Status:       domain.IntegrationStatusConnected,
				AccessSecret: "token-" + string(requirement.Provider),
			},
			Valid: valid,
		}

		if !valid {
			if _, ok := seen[requirement.Provider]; !ok {
				seen[requirement.Provider] = struct{}{}
				resolution.MissingProviders = append(resolution.MissingProviders, requirement.Provider)
			}
		}
	}

	return resolution, nil
}

// scriptedActions returns canned results per node id and records calls.
type scriptedActions struct {
	results map[string]domain.ActionResult
	errs    map[string]error
	calls   []domain.ExecuteActionParams
}

func (s *scriptedActions) Execute(ctx context.Context, p domain.ExecuteActionParams) (domain.ActionResult, error) {
	s.calls = append(s.calls, p)

	if err, ok := s.errs[p.Node.ID]; ok {
		return domain.ActionResult{}, err
	}

	if result, ok := s.results[p.Node.ID]; ok {
		return result, nil
	}

	return domain.ActionResult{Success: true, Output: p.Input}, nil
}

// gmailToSlackGraph is a trigger followed by two chained action nodes.
func gmailToSlackGraph() domain.WorkflowGraph {
	return domain.WorkflowGraph{
		ID:     "wf_1",
		UserID: "user_1",
		Nodes: []domain.GraphNode{
			{
				ID:        "trigger",
				Provider:  domain.IntegrationType_Gmail,
				IsTrigger: true,
				Filter: &domain.TriggerFilter{
					Type:  domain.TriggerFilterTypeEmail,
					Email: &domain.EmailFilter{SubjectContains: "invoice"},
				},
			},
			{ID: "a", Provider: domain.IntegrationType_Slack, ActionType: "post_message"},
			{ID: "b", Provider: domain.IntegrationType_Slack, ActionType: "add_reaction"},
		},
		Edges: []domain.GraphEdge{
			{FromNodeID: "trigger", ToNodeID: "a"},
			{FromNodeID: "a", ToNodeID: "b"},
		},
	}
}

func newTestEngine(graph domain.WorkflowGraph, resolver domain.CredentialResolver, actions domain.ActionExecutor) (*Engine, *memory.ExecutionRecordStore) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(graph)

	executions := memory.NewExecutionRecordStore()

	engine := NewEngine(EngineDependencies{
		WorkflowStore:        workflows,
		ExecutionRecordStore: executions,
		CredentialResolver:   resolver,
		ActionExecutor:       actions,
	})

	return engine, executions
}

func TestEngine_ExecuteCompletesChain(t *testing.T) {
	actions := &scriptedActions{
		results: map[string]domain.ActionResult{
			"a": {Success: true, Output: map[string]any{"posted": true}},
			"b": {Success: true, Output: map[string]any{"reacted": true}},
		},
	}

	engine, executions := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, actions)

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice", "from": "billing@acme.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, map[string]any{"reacted": true}, result.Output)
	require.Len(t, result.NodeOutputs, 2)
	assert.Equal(t, "a", result.NodeOutputs[0].NodeID)
	assert.Equal(t, "b", result.NodeOutputs[1].NodeID)

	// Each node got the previous node's output and its resolved credential.
	require.Len(t, actions.calls, 2)
	assert.Equal(t, map[string]any{"posted": true}, actions.calls[1].Input)
	require.NotNil(t, actions.calls[0].Credential)
	assert.Equal(t, "token-slack", actions.calls[0].Credential.Integration.AccessSecret)

	record, err := executions.GetExecutionRecord(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	assert.NotNil(t, record.CompletedAt)
}

func TestEngine_ExecuteFilterRejectionIsNoOp(t *testing.T) {
	actions := &scriptedActions{}
	engine, executions := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, actions)

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "lunch plans"},
	})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Empty(t, result.ExecutionID)
	assert.Empty(t, actions.calls)
	assert.Equal(t, 0, executions.Count())
}

func TestEngine_ExecutePausesOnMissingCredential(t *testing.T) {
	actions := &scriptedActions{}
	resolver := &fakeResolver{missing: []domain.IntegrationType{domain.IntegrationType_Slack}}

	engine, executions := newTestEngine(gmailToSlackGraph(), resolver, actions)

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusPaused, result.Status)
	assert.Equal(t, []domain.IntegrationType{domain.IntegrationType_Slack}, result.MissingIntegrations)

	// No node ran.
	assert.Empty(t, actions.calls)

	record, err := executions.GetExecutionRecord(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPaused, record.Status)
	assert.Equal(t, domain.PauseReasonMissingIntegrations, record.Payload.PauseReason)
	assert.Equal(t, map[string]any{"subject": "March invoice"}, record.Payload.Input)
}

func TestEngine_ResumeRunsToCompletion(t *testing.T) {
	actions := &scriptedActions{
		results: map[string]domain.ActionResult{
			"a": {Success: true, Output: map[string]any{"posted": true}},
			"b": {Success: true, Output: map[string]any{"reacted": true}},
		},
	}
	resolver := &fakeResolver{missing: []domain.IntegrationType{domain.IntegrationType_Slack}}

	engine, executions := newTestEngine(gmailToSlackGraph(), resolver, actions)

	paused, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionStatusPaused, paused.Status)

	// User reconnected Slack.
	resolver.missing = nil

	result, err := engine.Resume(context.Background(), paused.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, paused.ExecutionID, result.ExecutionID)
	assert.Equal(t, map[string]any{"reacted": true}, result.Output)

	record, err := executions.GetExecutionRecord(context.Background(), paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	assert.Empty(t, record.Payload.PauseReason)
}

func TestEngine_ResumeStaysPausedWhileStillMissing(t *testing.T) {
	resolver := &fakeResolver{missing: []domain.IntegrationType{domain.IntegrationType_Slack}}
	engine, _ := newTestEngine(gmailToSlackGraph(), resolver, &scriptedActions{})

	paused, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.NoError(t, err)

	result, err := engine.Resume(context.Background(), paused.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusPaused, result.Status)
	assert.Equal(t, []domain.IntegrationType{domain.IntegrationType_Slack}, result.MissingIntegrations)
}

func TestEngine_ResumeRejectsNonPausedExecution(t *testing.T) {
	engine, executions := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, &scriptedActions{})

	completed, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionStatusCompleted, completed.Status)

	_, err = engine.Resume(context.Background(), completed.ExecutionID)
	assert.Error(t, err)

	record, _ := executions.GetExecutionRecord(context.Background(), completed.ExecutionID)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
}

func TestEngine_ExecuteNodeFailureMarksFailed(t *testing.T) {
	actions := &scriptedActions{
		results: map[string]domain.ActionResult{
			"a": {Success: true, Output: map[string]any{"posted": true}},
		},
		errs: map[string]error{
			"b": errors.New("slack returned 500"),
		},
	}

	engine, executions := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, actions)

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.Error(t, err)

	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "b", execErr.NodeID)

	assert.Equal(t, domain.ExecutionStatusFailed, result.Status)
	require.Len(t, result.NodeOutputs, 1)
	assert.Equal(t, "a", result.NodeOutputs[0].NodeID)

	record, err := executions.GetExecutionRecord(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Payload.Error, "slack returned 500")
}

func TestEngine_ExecuteUnsuccessfulResultMarksFailed(t *testing.T) {
	actions := &scriptedActions{
		results: map[string]domain.ActionResult{
			"a": {Success: false, Message: "channel not found"},
		},
	}

	engine, _ := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, actions)

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, result.Status)

	// The chain stopped at the failing node.
	require.Len(t, actions.calls, 1)
}

func TestEngine_ExecuteRejectsFanOut(t *testing.T) {
	graph := gmailToSlackGraph()
	graph.Edges = append(graph.Edges, domain.GraphEdge{FromNodeID: "trigger", ToNodeID: "b"})

	engine, _ := newTestEngine(graph, &fakeResolver{}, &scriptedActions{})

	result, err := engine.Execute(context.Background(), ExecuteParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Input:      map[string]any{"subject": "March invoice"},
	})
	require.Error(t, err)

	var configErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Equal(t, domain.ExecutionStatusFailed, result.Status)
}

func TestEngine_ExecuteMissingTriggerNode(t *testing.T) {
	graph := domain.WorkflowGraph{
		ID:    "wf_1",
		Nodes: []domain.GraphNode{{ID: "a", Provider: domain.IntegrationType_Slack}},
	}

	engine, executions := newTestEngine(graph, &fakeResolver{}, &scriptedActions{})

	_, err := engine.Execute(context.Background(), ExecuteParams{WorkflowID: "wf_1", UserID: "user_1"})
	require.Error(t, err)

	var configErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Equal(t, 0, executions.Count())
}

func TestEngine_ExecuteUnknownWorkflow(t *testing.T) {
	engine, _ := newTestEngine(gmailToSlackGraph(), &fakeResolver{}, &scriptedActions{})

	_, err := engine.Execute(context.Background(), ExecuteParams{WorkflowID: "wf_missing", UserID: "user_1"})
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}
