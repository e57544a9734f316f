package googlecalendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TriggerLifecycle manages Google Calendar push channels. Calendar delivers
// change notifications straight to the webhook URL; channels expire and are
// renewed by the health sweep through re-activation.
type TriggerLifecycle struct {
	resolver  domain.CredentialResolver
	resources domain.TriggerResourceStore
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:  deps.CredentialResolver,
		resources: deps.TriggerResourceStore,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return err
	}

	service, err := calendarService(ctx, integration)
	if err != nil {
		return err
	}

	calendarID := stringValue(p.Config, "calendar_id")
	if calendarID == "" {
		calendarID = "primary"
	}

	// Stop the previous channel before registering a new one so repeated
	// activations replace rather than stack.
	if existing, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_GoogleCalendar, domain.TriggerResourceKindSubscription); err == nil {
		l.stopChannel(ctx, service, existing)
	}

	channel := &calendar.Channel{
		Id:      xid.New().String(),
		Type:    "web_hook",
		Address: p.WebhookURL,
	}

	created, err := service.Events.Watch(calendarID, channel).Context(ctx).Do()
	if err != nil {
		return &domain.ExternalServiceError{Provider: domain.IntegrationType_GoogleCalendar, Op: "events.watch", Err: err}
	}

	var expiresAt *time.Time
	if created.Expiration > 0 {
		expiry := time.UnixMilli(created.Expiration)
		expiresAt = &expiry
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_GoogleCalendar,
		Kind:       domain.TriggerResourceKindSubscription,
		ExternalID: created.Id,
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"calendar_id": calendarID,
			"resource_id": created.ResourceId,
		},
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store calendar trigger resource: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_GoogleCalendar, domain.TriggerResourceKindSubscription)
	if err == nil {
		integration, err := l.connectedIntegration(ctx, p.UserID)
		if err != nil {
			log.Warn().Err(err).
				Str("workflow_id", p.WorkflowID).
				Msg("No usable calendar credential during deactivation, removing local resource only")
		} else if service, err := calendarService(ctx, integration); err == nil {
			l.stopChannel(ctx, service, resource)
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_GoogleCalendar); err != nil {
		return fmt.Errorf("failed to delete calendar trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_GoogleCalendar, domain.TriggerResourceKindSubscription)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no calendar channel registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	if _, err := l.connectedIntegration(ctx, p.UserID); err != nil {
		return domain.TriggerHealth{Details: "calendar integration is not connected", LastChecked: now}, nil
	}

	if resource.ExpiresAt != nil && resource.ExpiresAt.Before(now) {
		resource.Status = domain.TriggerResourceStatusExpired
		if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
			log.Warn().Err(err).Msg("Failed to mark calendar trigger resource expired")
		}

		return domain.TriggerHealth{Details: "calendar channel expired", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update calendar trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "calendar channel active", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
}

func (l *TriggerLifecycle) stopChannel(ctx context.Context, service *calendar.Service, resource domain.TriggerResource) {
	resourceID := stringValue(resource.Config, "resource_id")
	if resource.ExternalID == "" || resourceID == "" {
		return
	}

	channel := &calendar.Channel{
		Id:         resource.ExternalID,
		ResourceId: resourceID,
	}

	if err := service.Channels.Stop(channel).Context(ctx).Do(); err != nil && !isGoogleNotFound(err) {
		log.Warn().Err(err).
			Str("workflow_id", resource.WorkflowID).
			Msg("Calendar channel stop failed, continuing")
	}
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_GoogleCalendar}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected google calendar integration for user %s", userID)
	}

	return resolved.Integration, nil
}

func calendarService(ctx context.Context, integration domain.Integration) (*calendar.Service, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: integration.AccessSecret})
	httpClient := oauth2.NewClient(ctx, tokenSource)

	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, nil
}

func isGoogleNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

func stringValue(config map[string]any, key string) string {
	value, ok := config[key].(string)
	if !ok {
		return ""
	}

	return value
}
