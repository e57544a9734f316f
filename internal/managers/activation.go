package managers

import (
	"context"
	"fmt"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
)

// ActivationManager fans a workflow's activation out to the per-provider
// trigger lifecycles. Activation is all-or-nothing: the first failing trigger
// aborts and rolls back any trigger already activated, so a workflow is never
// marked active with a partially created resource. Deactivation and deletion
// log failures and continue so cleanup is never blocked by a flaky provider.
type ActivationManager struct {
	registry  domain.TriggerLifecycleRegistry
	workflows domain.WorkflowStore
	webhookURL string
}

type ActivationManagerDependencies struct {
	Registry      domain.TriggerLifecycleRegistry
	WorkflowStore domain.WorkflowStore
	// WebhookBaseURL is where providers with a registration API deliver
	// events; passed through to each lifecycle's activate call.
	WebhookBaseURL string
}

func NewActivationManager(deps ActivationManagerDependencies) *ActivationManager {
	return &ActivationManager{
		registry:   deps.Registry,
		workflows:  deps.WorkflowStore,
		webhookURL: deps.WebhookBaseURL,
	}
}

func (m *ActivationManager) ActivateWorkflow(ctx context.Context, workflowID string, userID string) error {
	graph, err := m.workflows.GetWorkflowGraph(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	activated := []domain.GraphNode{}

	for _, trigger := range graph.TriggerNodes() {
		lifecycle, err := m.registry.Get(trigger.Provider)
		if err != nil {
			m.rollback(ctx, workflowID, userID, activated)
			return err
		}

		p := domain.ActivateTriggerParams{
			WorkflowID:  workflowID,
			UserID:      userID,
			NodeID:      trigger.ID,
			Provider:    trigger.Provider,
			TriggerType: trigger.TriggerType,
			Config:      trigger.Config,
			WebhookURL:  fmt.Sprintf("%s/hooks/%s/%s", m.webhookURL, workflowID, trigger.Provider),
		}

		if err := lifecycle.OnActivate(ctx, p); err != nil {
			m.rollback(ctx, workflowID, userID, activated)
			return fmt.Errorf("failed to activate %s trigger for workflow %s: %w", trigger.Provider, workflowID, err)
		}

		activated = append(activated, trigger)

		log.Info().
			Str("workflow_id", workflowID).
			Str("provider", string(trigger.Provider)).
			Msg("Activated workflow trigger")
	}

	return nil
}

func (m *ActivationManager) DeactivateWorkflow(ctx context.Context, workflowID string, userID string) error {
	return m.teardown(ctx, workflowID, userID, false)
}

// DeleteWorkflowTriggers is invoked on workflow deletion and must not leave
// orphaned external resources behind.
func (m *ActivationManager) DeleteWorkflowTriggers(ctx context.Context, workflowID string, userID string) error {
	return m.teardown(ctx, workflowID, userID, true)
}

func (m *ActivationManager) teardown(ctx context.Context, workflowID string, userID string, deleting bool) error {
	graph, err := m.workflows.GetWorkflowGraph(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	for _, trigger := range graph.TriggerNodes() {
		lifecycle, err := m.registry.Get(trigger.Provider)
		if err != nil {
			log.Warn().Err(err).
				Str("workflow_id", workflowID).
				Msg("No lifecycle registered for trigger provider during teardown")
			continue
		}

		p := domain.DeactivateTriggerParams{
			WorkflowID: workflowID,
			UserID:     userID,
			Provider:   trigger.Provider,
		}

		if deleting {
			err = lifecycle.OnDelete(ctx, p)
		} else {
			err = lifecycle.OnDeactivate(ctx, p)
		}

		if err != nil {
			log.Error().Err(err).
				Str("workflow_id", workflowID).
				Str("provider", string(trigger.Provider)).
				Msg("Trigger teardown failed, continuing")
		}
	}

	return nil
}

func (m *ActivationManager) TriggerHealth(ctx context.Context, workflowID string, userID string) (map[domain.IntegrationType]domain.TriggerHealth, error) {
	graph, err := m.workflows.GetWorkflowGraph(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	healthByProvider := map[domain.IntegrationType]domain.TriggerHealth{}

	for _, trigger := range graph.TriggerNodes() {
		lifecycle, err := m.registry.Get(trigger.Provider)
		if err != nil {
			return nil, err
		}

		health, err := lifecycle.CheckHealth(ctx, domain.TriggerHealthParams{
			WorkflowID: workflowID,
			UserID:     userID,
			Provider:   trigger.Provider,
		})
		if err != nil {
			return nil, fmt.Errorf("health check for %s trigger failed: %w", trigger.Provider, err)
		}

		healthByProvider[trigger.Provider] = health
	}

	return healthByProvider, nil
}

func (m *ActivationManager) rollback(ctx context.Context, workflowID string, userID string, activated []domain.GraphNode) {
	for _, trigger := range activated {
		lifecycle, err := m.registry.Get(trigger.Provider)
		if err != nil {
			continue
		}

		p := domain.DeactivateTriggerParams{
			WorkflowID: workflowID,
			UserID:     userID,
			Provider:   trigger.Provider,
		}

		if err := lifecycle.OnDeactivate(ctx, p); err != nil {
			log.Error().Err(err).
				Str("workflow_id", workflowID).
				Str("provider", string(trigger.Provider)).
				Msg("Rollback deactivation failed")
		}
	}
}
