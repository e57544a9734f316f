package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// TriggerLifecycle manages Stripe webhook endpoints. Each lifecycle call
// builds its own client.API from the resolved secret key; nothing is held in
// package-level state.
type TriggerLifecycle struct {
	resolver  domain.CredentialResolver
	resources domain.TriggerResourceStore
	backends  *stripe.Backends
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
	// Backends overrides the Stripe API backends; tests point it at a fake.
	Backends *stripe.Backends
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:  deps.CredentialResolver,
		resources: deps.TriggerResourceStore,
		backends:  deps.Backends,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return err
	}

	api := l.api(integration)

	if existing, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Stripe, domain.TriggerResourceKindWebhook); err == nil && existing.ExternalID != "" {
		l.deleteEndpoint(api, existing.ExternalID)
	}

	events := stringSlice(p.Config, "events")
	if len(events) == 0 {
		events = []string{"charge.succeeded"}
	}

	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(p.WebhookURL),
		EnabledEvents: stripe.StringSlice(events),
	}
	params.Context = ctx

	endpoint, err := api.WebhookEndpoints.New(params)
	if err != nil {
		return &domain.ExternalServiceError{Provider: domain.IntegrationType_Stripe, Op: "create webhook endpoint", Err: err}
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_Stripe,
		Kind:       domain.TriggerResourceKindWebhook,
		ExternalID: endpoint.ID,
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"events": events,
			// The endpoint's signing secret is only returned on creation.
			"signing_secret": endpoint.Secret,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store stripe trigger resource: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Stripe, domain.TriggerResourceKindWebhook)
	if err == nil && resource.ExternalID != "" {
		integration, err := l.connectedIntegration(ctx, p.UserID)
		if err != nil {
			log.Warn().Err(err).
				Str("workflow_id", p.WorkflowID).
				Msg("No usable stripe credential during deactivation, removing local resource only")
		} else {
			l.deleteEndpoint(l.api(integration), resource.ExternalID)
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_Stripe); err != nil {
		return fmt.Errorf("failed to delete stripe trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Stripe, domain.TriggerResourceKindWebhook)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no stripe webhook endpoint registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return domain.TriggerHealth{Details: "stripe integration is not connected", LastChecked: now}, nil
	}

	api := l.api(integration)

	endpoint, err := api.WebhookEndpoints.Get(resource.ExternalID, nil)
	if err != nil {
		if isStripeNotFound(err) {
			resource.Status = domain.TriggerResourceStatusError
			if updateErr := l.resources.UpdateTriggerResource(ctx, resource); updateErr != nil {
				log.Warn().Err(updateErr).Msg("Failed to mark stripe trigger resource errored")
			}

			return domain.TriggerHealth{Details: "stripe webhook endpoint no longer exists", LastChecked: now}, nil
		}

		return domain.TriggerHealth{Details: fmt.Sprintf("stripe webhook endpoint check failed: %v", err), LastChecked: now}, nil
	}

	if endpoint.Status != "enabled" {
		return domain.TriggerHealth{Details: fmt.Sprintf("stripe webhook endpoint is %s", endpoint.Status), LastChecked: now}, nil
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update stripe trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "stripe webhook endpoint enabled", LastChecked: now}, nil
}

func (l *TriggerLifecycle) deleteEndpoint(api *client.API, endpointID string) {
	if _, err := api.WebhookEndpoints.Del(endpointID, nil); err != nil && !isStripeNotFound(err) {
		log.Warn().Err(err).
			Str("endpoint_id", endpointID).
			Msg("Stripe webhook endpoint delete failed, continuing")
	}
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_Stripe}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected stripe integration for user %s", userID)
	}

	return resolved.Integration, nil
}

func (l *TriggerLifecycle) api(integration domain.Integration) *client.API {
	api := &client.API{}
	api.Init(integration.AccessSecret, l.backends)

	return api
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404
}

func stringSlice(config map[string]any, key string) []string {
	switch raw := config[key].(type) {
	case []string:
		return raw
	case []any:
		values := []string{}
		for _, item := range raw {
			if value, ok := item.(string); ok {
				values = append(values, value)
			}
		}

		return values
	default:
		return nil
	}
}
