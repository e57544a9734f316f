package gmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TriggerLifecycle manages Gmail watch subscriptions. Gmail pushes change
// notifications to a Pub/Sub topic; the watch must be renewed before its
// seven-day expiry, which the health sweep drives through re-activation.
type TriggerLifecycle struct {
	resolver  domain.CredentialResolver
	resources domain.TriggerResourceStore
	topicName string
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
	// PubSubTopic is the fully qualified topic Gmail publishes notifications to.
	PubSubTopic string
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:  deps.CredentialResolver,
		resources: deps.TriggerResourceStore,
		topicName: deps.PubSubTopic,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return err
	}

	service, err := gmailService(ctx, integration)
	if err != nil {
		return err
	}

	watchRequest := &gmail.WatchRequest{
		TopicName: l.topicName,
		LabelIds:  stringSlice(p.Config, "label_ids"),
	}

	response, err := service.Users.Watch("me", watchRequest).Context(ctx).Do()
	if err != nil {
		return &domain.ExternalServiceError{Provider: domain.IntegrationType_Gmail, Op: "watch", Err: err}
	}

	expiresAt := time.UnixMilli(response.Expiration)

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_Gmail,
		Kind:       domain.TriggerResourceKindSubscription,
		ExternalID: strconv.FormatUint(response.HistoryId, 10),
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"topic_name": l.topicName,
			"label_ids":  stringSlice(p.Config, "label_ids"),
		},
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store gmail trigger resource: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		log.Warn().Err(err).
			Str("workflow_id", p.WorkflowID).
			Msg("No usable gmail credential during deactivation, removing local resource only")
	} else {
		service, err := gmailService(ctx, integration)
		if err == nil {
			if err := service.Users.Stop("me").Context(ctx).Do(); err != nil && !isGoogleNotFound(err) {
				log.Warn().Err(err).
					Str("workflow_id", p.WorkflowID).
					Msg("Gmail watch stop failed, continuing")
			}
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_Gmail); err != nil {
		return fmt.Errorf("failed to delete gmail trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Gmail, domain.TriggerResourceKindSubscription)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no gmail watch registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	if _, err := l.connectedIntegration(ctx, p.UserID); err != nil {
		return domain.TriggerHealth{Details: "gmail integration is not connected", LastChecked: now}, nil
	}

	if resource.ExpiresAt != nil && resource.ExpiresAt.Before(now) {
		resource.Status = domain.TriggerResourceStatusExpired
		if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
			log.Warn().Err(err).Msg("Failed to mark gmail trigger resource expired")
		}

		return domain.TriggerHealth{Details: "gmail watch expired", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update gmail trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "gmail watch active", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_Gmail}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected gmail integration for user %s", userID)
	}

	return resolved.Integration, nil
}

func gmailService(ctx context.Context, integration domain.Integration) (*gmail.Service, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: integration.AccessSecret})
	httpClient := oauth2.NewClient(ctx, tokenSource)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return service, nil
}

func isGoogleNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

func stringSlice(config map[string]any, key string) []string {
	raw, ok := config[key].([]any)
	if !ok {
		return nil
	}

	values := []string{}

	for _, item := range raw {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}

	return values
}
