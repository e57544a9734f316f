package msgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	auth "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// TriggerLifecycle manages Microsoft Graph change-notification subscriptions.
// One instance serves the whole Graph family — Outlook mail, Outlook
// calendar, Teams and OneDrive all register through the same subscriptions
// API; only the resource path and lifetime differ per provider.
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

// Providers returns every provider identifier this lifecycle serves.
func Providers() []domain.IntegrationType {
	return []domain.IntegrationType{
		domain.IntegrationType_OutlookMail,
		domain.IntegrationType_OutlookCalendar,
		domain.IntegrationType_Teams,
		domain.IntegrationType_OneDrive,
	}
}

type subscriptionSpec struct {
	resource   string
	changeType string
	// lifetime stays under the Graph per-resource subscription maximum.
	lifetime time.Duration
}

var specsByProvider = map[domain.IntegrationType]subscriptionSpec{
	domain.IntegrationType_OutlookMail: {
		resource:   "/me/mailFolders('inbox')/messages",
		changeType: "created",
		lifetime:   70 * time.Hour,
	},
	domain.IntegrationType_OutlookCalendar: {
		resource:   "/me/events",
		changeType: "created,updated",
		lifetime:   70 * time.Hour,
	},
	domain.IntegrationType_Teams: {
		resource:   "/me/chats/getAllMessages",
		changeType: "created",
		lifetime:   55 * time.Minute,
	},
	domain.IntegrationType_OneDrive: {
		resource:   "/me/drive/root",
		changeType: "updated",
		lifetime:   70 * time.Hour,
	},
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	spec, ok := specsByProvider[p.Provider]
	if !ok {
		return fmt.Errorf("provider %s is not part of the microsoft graph family", p.Provider)
	}

	integration, err := l.connectedIntegration(ctx, p.UserID, p.Provider)
	if err != nil {
		return err
	}

	client, err := graphClient(integration)
	if err != nil {
		return err
	}

	// Tear down the previous subscription first so re-activation replaces it.
	if existing, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, p.Provider, domain.TriggerResourceKindSubscription); err == nil && existing.ExternalID != "" {
		l.deleteSubscription(ctx, client, p.Provider, existing.ExternalID)
	}

	subscription := models.NewSubscription()
	changeType := spec.changeType
	subscription.SetChangeType(&changeType)
	resource := spec.resource
	subscription.SetResource(&resource)
	notificationURL := p.WebhookURL
	subscription.SetNotificationUrl(&notificationURL)
	clientState := xid.New().String()
	subscription.SetClientState(&clientState)
	expiration := time.Now().Add(spec.lifetime)
	subscription.SetExpirationDateTime(&expiration)

	created, err := client.Subscriptions().Post(ctx, subscription, nil)
	if err != nil {
		return &domain.ExternalServiceError{Provider: p.Provider, Op: "subscriptions.create", Err: err}
	}

	externalID := ""
	if created.GetId() != nil {
		externalID = *created.GetId()
	}

	expiresAt := created.GetExpirationDateTime()
	if expiresAt == nil {
		expiresAt = &expiration
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   p.Provider,
		Kind:       domain.TriggerResourceKindSubscription,
		ExternalID: externalID,
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"resource":     spec.resource,
			"change_type":  spec.changeType,
			"client_state": clientState,
		},
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store %s trigger resource: %w", p.Provider, err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, p.Provider, domain.TriggerResourceKindSubscription)
	if err == nil && resource.ExternalID != "" {
		integration, err := l.connectedIntegration(ctx, p.UserID, p.Provider)
		if err != nil {
			log.Warn().Err(err).
				Str("workflow_id", p.WorkflowID).
				Str("provider", string(p.Provider)).
				Msg("No usable graph credential during deactivation, removing local resource only")
		} else if client, err := graphClient(integration); err == nil {
			l.deleteSubscription(ctx, client, p.Provider, resource.ExternalID)
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, p.Provider); err != nil {
		return fmt.Errorf("failed to delete %s trigger resources: %w", p.Provider, err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, p.Provider, domain.TriggerResourceKindSubscription)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no graph subscription registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	if _, err := l.connectedIntegration(ctx, p.UserID, p.Provider); err != nil {
		return domain.TriggerHealth{Details: fmt.Sprintf("%s integration is not connected", p.Provider), LastChecked: now}, nil
	}

	if resource.ExpiresAt != nil && resource.ExpiresAt.Before(now) {
		resource.Status = domain.TriggerResourceStatusExpired
		if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
			log.Warn().Err(err).Msg("Failed to mark graph trigger resource expired")
		}

		return domain.TriggerHealth{Details: "graph subscription expired", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update graph trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "graph subscription active", ExpiresAt: resource.ExpiresAt, LastChecked: now}, nil
}

func (l *TriggerLifecycle) deleteSubscription(ctx context.Context, client *msgraphsdk.GraphServiceClient, provider domain.IntegrationType, subscriptionID string) {
	err := client.Subscriptions().BySubscriptionId(subscriptionID).Delete(ctx, nil)
	if err != nil && !isGraphNotFound(err) {
		log.Warn().Err(err).
			Str("provider", string(provider)).
			Str("subscription_id", subscriptionID).
			Msg("Graph subscription delete failed, continuing")
	}
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string, provider domain.IntegrationType) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: provider}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected %s integration for user %s", provider, userID)
	}

	return resolved.Integration, nil
}

type staticTokenCredential struct {
	accessToken string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.accessToken,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func graphClient(integration domain.Integration) (*msgraphsdk.GraphServiceClient, error) {
	credential := &staticTokenCredential{accessToken: integration.AccessSecret}

	authProvider, err := auth.NewAzureIdentityAuthenticationProvider(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph auth provider: %w", err)
	}

	adapter, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph request adapter: %w", err)
	}

	return msgraphsdk.NewGraphServiceClient(adapter), nil
}

func isGraphNotFound(err error) bool {
	var odataErr *odataerrors.ODataError
	return errors.As(err, &odataErr) && odataErr.ResponseStatusCode == 404
}
