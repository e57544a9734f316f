package slack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// CallbackURLSigner mints the stable callback URL a user pastes into the
// Slack app console.
type CallbackURLSigner interface {
	SignedCallbackURL(workflowID string, provider domain.IntegrationType) (string, error)
}

const setupInstructions = "Open your Slack app's Event Subscriptions settings, " +
	"enable events, and paste the callback URL as the request URL. Subscribe the " +
	"app to the message events your workflow should react to, then reinstall the " +
	"app to the workspace."

// TriggerLifecycle handles Slack triggers. Slack's Events API offers no
// programmatic subscription registration, so activation persists a
// manual-setup resource carrying the callback URL and instructions instead
// of failing.
type TriggerLifecycle struct {
	resolver  domain.CredentialResolver
	resources domain.TriggerResourceStore
	signer    CallbackURLSigner
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
	CallbackURLSigner    CallbackURLSigner
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:  deps.CredentialResolver,
		resources: deps.TriggerResourceStore,
		signer:    deps.CallbackURLSigner,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	callbackURL, err := l.signer.SignedCallbackURL(p.WorkflowID, domain.IntegrationType_Slack)
	if err != nil {
		return fmt.Errorf("failed to build slack callback url: %w", err)
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_Slack,
		Kind:       domain.TriggerResourceKindWebhook,
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			domain.TriggerConfigCallbackURL:       callbackURL,
			domain.TriggerConfigSetupInstructions: setupInstructions,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store slack trigger resource: %w", err)
	}

	log.Info().
		Str("workflow_id", p.WorkflowID).
		Msg("Slack trigger configured, manual event subscription setup required")

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	// Nothing to cancel on Slack's side; the subscription lives in the
	// user's app console.
	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_Slack); err != nil {
		return fmt.Errorf("failed to delete slack trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Slack, domain.TriggerResourceKindWebhook)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no slack trigger configured", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return domain.TriggerHealth{Details: "slack integration is not connected", LastChecked: now}, nil
	}

	api := slack.New(integration.AccessSecret)

	if _, err := api.AuthTestContext(ctx); err != nil {
		return domain.TriggerHealth{Details: fmt.Sprintf("slack token check failed: %v", err), LastChecked: now}, nil
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update slack trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "slack trigger configured", LastChecked: now}, nil
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_Slack}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected slack integration for user %s", userID)
	}

	return resolved.Integration, nil
}
