package managers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// OAuthClientConfig holds the OAuth application credentials registered with a
// provider. Supplied explicitly so tests can point at fake token endpoints.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides the provider's default token endpoint when set.
	Endpoint *oauth2.Endpoint
}

type OAuthTokenRefresher struct {
	store   domain.IntegrationStore
	clients map[domain.IntegrationType]OAuthClientConfig
	locker  RefreshLocker
	now     func() time.Time
}

type OAuthTokenRefresherDependencies struct {
	IntegrationStore domain.IntegrationStore
	Clients          map[domain.IntegrationType]OAuthClientConfig
	RefreshLocker    RefreshLocker
}

func NewOAuthTokenRefresher(deps OAuthTokenRefresherDependencies) domain.TokenRefresher {
	locker := deps.RefreshLocker
	if locker == nil {
		locker = NewMutexRefreshLocker()
	}

	return &OAuthTokenRefresher{
		store:   deps.IntegrationStore,
		clients: deps.Clients,
		locker:  locker,
		now:     time.Now,
	}
}

// ShouldRefresh reports whether the integration's access secret is expired,
// expires within the threshold window, or carries a refresh secret with no
// recorded expiry (refreshed conservatively).
func (r *OAuthTokenRefresher) ShouldRefresh(integration domain.Integration, threshold time.Duration) bool {
	if integration.ExpiresAt == nil {
		return integration.RefreshSecret != ""
	}

	return r.now().Add(threshold).After(*integration.ExpiresAt)
}

func (r *OAuthTokenRefresher) Refresh(ctx context.Context, integration domain.Integration) (domain.Integration, error) {
	if integration.RefreshSecret == "" {
		return integration, r.markNeedsReauth(ctx, integration, fmt.Errorf("no refresh secret stored"))
	}

	unlock, err := r.locker.Lock(ctx, integration.ID)
	if err != nil {
		return integration, fmt.Errorf("failed to acquire refresh lock for integration %s: %w", integration.ID, err)
	}
	defer unlock()

	conf, err := r.oauthConfig(integration.Provider)
	if err != nil {
		return integration, r.markNeedsReauth(ctx, integration, err)
	}

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: integration.RefreshSecret})

	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The provider rejected the grant; only reconnecting helps.
			return integration, r.markNeedsReauth(ctx, integration, err)
		}

		return integration, fmt.Errorf("token refresh for integration %s unreachable: %w", integration.ID, err)
	}

	integration.AccessSecret = token.AccessToken
	if token.RefreshToken != "" {
		integration.RefreshSecret = token.RefreshToken
	}

	if token.Expiry.IsZero() {
		integration.ExpiresAt = nil
	} else {
		expiry := token.Expiry
		integration.ExpiresAt = &expiry
	}

	integration.Status = domain.IntegrationStatusConnected
	integration.UpdatedAt = r.now()

	if err := r.store.UpdateIntegration(ctx, integration); err != nil {
		return integration, fmt.Errorf("failed to persist refreshed integration %s: %w", integration.ID, err)
	}

	log.Debug().
		Str("integration_id", integration.ID).
		Str("provider", string(integration.Provider)).
		Msg("Refreshed integration access secret")

	return integration, nil
}

func (r *OAuthTokenRefresher) markNeedsReauth(ctx context.Context, integration domain.Integration, cause error) error {
	integration.Status = domain.IntegrationStatusNeedsReauth
	integration.UpdatedAt = r.now()

	if err := r.store.UpdateIntegration(ctx, integration); err != nil {
		log.Error().Err(err).
			Str("integration_id", integration.ID).
			Msg("Failed to mark integration as needing reauth")
	}

	return fmt.Errorf("refresh failed for integration %s (%s): %w", integration.ID, integration.Provider, cause)
}

func (r *OAuthTokenRefresher) oauthConfig(provider domain.IntegrationType) (*oauth2.Config, error) {
	client, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("no oauth client configured for provider %s", provider)
	}

	endpoint, err := providerEndpoint(provider)
	if client.Endpoint != nil {
		endpoint = *client.Endpoint
	} else if err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     endpoint,
	}, nil
}

func providerEndpoint(provider domain.IntegrationType) (oauth2.Endpoint, error) {
	switch provider {
	case domain.IntegrationType_Gmail, domain.IntegrationType_GoogleCalendar:
		return endpoints.Google, nil
	case domain.IntegrationType_OutlookMail, domain.IntegrationType_OutlookCalendar,
		domain.IntegrationType_Teams, domain.IntegrationType_OneDrive:
		return endpoints.AzureAD("common"), nil
	case domain.IntegrationType_Slack:
		return endpoints.Slack, nil
	case domain.IntegrationType_Github:
		return endpoints.GitHub, nil
	case domain.IntegrationType_Gitlab:
		return endpoints.GitLab, nil
	default:
		return oauth2.Endpoint{}, fmt.Errorf("provider %s has no refresh endpoint", provider)
	}
}
