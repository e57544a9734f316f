package managers

import (
	"context"
	"errors"
	"testing"

	"github.com/chainreact/chainreact/internal/storage/memory"
	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLifecycle struct {
	activateErr   error
	deactivateErr error
	activations   []domain.ActivateTriggerParams
	deactivations []domain.DeactivateTriggerParams
	deletions     []domain.DeactivateTriggerParams
}

func (l *recordingLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	l.activations = append(l.activations, p)
	return l.activateErr
}

func (l *recordingLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	l.deactivations = append(l.deactivations, p)
	return l.deactivateErr
}

func (l *recordingLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	l.deletions = append(l.deletions, p)
	return nil
}

func (l *recordingLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	return domain.TriggerHealth{Healthy: true, Details: "ok"}, nil
}

func twoTriggerGraph() domain.WorkflowGraph {
	return domain.WorkflowGraph{
		ID:     "wf_1",
		UserID: "user_1",
		Nodes: []domain.GraphNode{
			{ID: "t1", Provider: domain.IntegrationType_Gmail, IsTrigger: true, TriggerType: "new_email"},
			{ID: "t2", Provider: domain.IntegrationType_Github, IsTrigger: true, TriggerType: "push"},
			{ID: "a1", Provider: domain.IntegrationType_Slack, ActionType: "post_message"},
		},
	}
}

func TestActivationManager_ActivateWorkflow(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	gmailLifecycle := &recordingLifecycle{}
	githubLifecycle := &recordingLifecycle{}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, gmailLifecycle, "")
	registry.Register(domain.IntegrationType_Github, githubLifecycle, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:       registry,
		WorkflowStore:  workflows,
		WebhookBaseURL: "https://hooks.example.com",
	})

	err := manager.ActivateWorkflow(context.Background(), "wf_1", "user_1")
	require.NoError(t, err)

	require.Len(t, gmailLifecycle.activations, 1)
	require.Len(t, githubLifecycle.activations, 1)

	p := gmailLifecycle.activations[0]
	assert.Equal(t, "wf_1", p.WorkflowID)
	assert.Equal(t, "user_1", p.UserID)
	assert.Equal(t, "t1", p.NodeID)
	assert.Equal(t, "new_email", p.TriggerType)
	assert.Equal(t, "https://hooks.example.com/hooks/wf_1/gmail", p.WebhookURL)
}

func TestActivationManager_ActivateRollsBackOnFailure(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	gmailLifecycle := &recordingLifecycle{}
	githubLifecycle := &recordingLifecycle{activateErr: errors.New("api down")}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, gmailLifecycle, "")
	registry.Register(domain.IntegrationType_Github, githubLifecycle, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:       registry,
		WorkflowStore:  workflows,
		WebhookBaseURL: "https://hooks.example.com",
	})

	err := manager.ActivateWorkflow(context.Background(), "wf_1", "user_1")
	require.Error(t, err)

	// The already-activated gmail trigger must be rolled back.
	require.Len(t, gmailLifecycle.deactivations, 1)
	assert.Empty(t, githubLifecycle.deactivations)
}

func TestActivationManager_ActivateFailsOnUnregisteredProvider(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	gmailLifecycle := &recordingLifecycle{}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, gmailLifecycle, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:      registry,
		WorkflowStore: workflows,
	})

	err := manager.ActivateWorkflow(context.Background(), "wf_1", "user_1")
	assert.ErrorIs(t, err, domain.ErrProviderNotRegistered)

	// gmail activated before the github lookup failed, so it is rolled back.
	require.Len(t, gmailLifecycle.deactivations, 1)
}

func TestActivationManager_DeactivateContinuesOnFailure(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	gmailLifecycle := &recordingLifecycle{deactivateErr: errors.New("api down")}
	githubLifecycle := &recordingLifecycle{}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, gmailLifecycle, "")
	registry.Register(domain.IntegrationType_Github, githubLifecycle, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:      registry,
		WorkflowStore: workflows,
	})

	err := manager.DeactivateWorkflow(context.Background(), "wf_1", "user_1")
	require.NoError(t, err)

	require.Len(t, gmailLifecycle.deactivations, 1)
	require.Len(t, githubLifecycle.deactivations, 1)
}

func TestActivationManager_DeleteUsesOnDelete(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	gmailLifecycle := &recordingLifecycle{}
	githubLifecycle := &recordingLifecycle{}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, gmailLifecycle, "")
	registry.Register(domain.IntegrationType_Github, githubLifecycle, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:      registry,
		WorkflowStore: workflows,
	})

	err := manager.DeleteWorkflowTriggers(context.Background(), "wf_1", "user_1")
	require.NoError(t, err)

	require.Len(t, gmailLifecycle.deletions, 1)
	assert.Empty(t, gmailLifecycle.deactivations)
}

func TestActivationManager_TriggerHealth(t *testing.T) {
	workflows := memory.NewWorkflowStore()
	workflows.PutWorkflowGraph(twoTriggerGraph())

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, &recordingLifecycle{}, "")
	registry.Register(domain.IntegrationType_Github, &recordingLifecycle{}, "")

	manager := NewActivationManager(ActivationManagerDependencies{
		Registry:      registry,
		WorkflowStore: workflows,
	})

	health, err := manager.TriggerHealth(context.Background(), "wf_1", "user_1")
	require.NoError(t, err)

	require.Len(t, health, 2)
	assert.True(t, health[domain.IntegrationType_Gmail].Healthy)
	assert.True(t, health[domain.IntegrationType_Github].Healthy)
}
