package managers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
)

const DefaultRefreshThreshold = 10 * time.Minute

type credentialResolver struct {
	integrations     domain.IntegrationStore
	shares           domain.IntegrationShareStore
	teams            domain.TeamMembershipStore
	refresher        domain.TokenRefresher
	refreshThreshold time.Duration
}

type CredentialResolverDependencies struct {
	IntegrationStore    domain.IntegrationStore
	ShareStore          domain.IntegrationShareStore
	TeamMembershipStore domain.TeamMembershipStore
	TokenRefresher      domain.TokenRefresher
	// RefreshThreshold is how close to expiry a secret may get before it is
	// refreshed ahead of use. Defaults to DefaultRefreshThreshold.
	RefreshThreshold time.Duration
}

func NewCredentialResolver(deps CredentialResolverDependencies) domain.CredentialResolver {
	threshold := deps.RefreshThreshold
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}

	return &credentialResolver{
		integrations:     deps.IntegrationStore,
		shares:           deps.ShareStore,
		teams:            deps.TeamMembershipStore,
		refresher:        deps.TokenRefresher,
		refreshThreshold: threshold,
	}
}

func (r *credentialResolver) Resolve(ctx context.Context, userID string, requirements []domain.CredentialRequirement) (domain.CredentialResolution, error) {
	resolution := domain.CredentialResolution{
		ByKey:            map[string]domain.ResolvedCredential{},
		MissingProviders: []domain.IntegrationType{},
	}

	missingSeen := map[domain.IntegrationType]struct{}{}

	for _, requirement := range requirements {
		key := requirement.Key()

		if existing, ok := resolution.ByKey[key]; ok {
			if !existing.Valid {
				r.recordMissing(&resolution, missingSeen, requirement.Provider)
			}

			continue
		}

		integration, found, err := r.lookup(ctx, userID, requirement)
		if err != nil {
			return domain.CredentialResolution{}, err
		}

		valid := false

		if found {
			refreshed, err := r.ensureFresh(ctx, integration)
			if err != nil {
				log.Warn().Err(err).
					Str("user_id", userID).
					Str("provider", string(requirement.Provider)).
					Msg("Credential unusable, marking provider for reconnection")
			} else {
				integration = refreshed
				valid = true
			}
		}

		resolution.ByKey[key] = domain.ResolvedCredential{
			Requirement: requirement,
			Integration: integration,
			Valid:       valid,
		}

		if !valid {
			r.recordMissing(&resolution, missingSeen, requirement.Provider)
		}
	}

	return resolution, nil
}

func (r *credentialResolver) recordMissing(resolution *domain.CredentialResolution, seen map[domain.IntegrationType]struct{}, provider domain.IntegrationType) {
	if _, ok := seen[provider]; ok {
		return
	}

	seen[provider] = struct{}{}
	resolution.MissingProviders = append(resolution.MissingProviders, provider)
}

// lookup finds the integration a requirement refers to, without checking
// freshness. An explicit integration id is access-checked against the
// requesting user; otherwise the user's own integrations are preferred,
// falling back to directly shared, team-shared, then organization-wide ones.
func (r *credentialResolver) lookup(ctx context.Context, userID string, requirement domain.CredentialRequirement) (domain.Integration, bool, error) {
	if requirement.IntegrationID != "" {
		integration, err := r.integrations.GetIntegration(ctx, requirement.IntegrationID)
		if errors.Is(err, domain.ErrIntegrationNotFound) {
			return domain.Integration{}, false, nil
		}
		if err != nil {
			return domain.Integration{}, false, fmt.Errorf("failed to load integration %s: %w", requirement.IntegrationID, err)
		}

		if integration.UserID == userID {
			return integration, true, nil
		}

		allowed, err := r.canAccess(ctx, userID, integration)
		if err != nil {
			return domain.Integration{}, false, err
		}
		if !allowed {
			return domain.Integration{}, false, nil
		}

		return integration, true, nil
	}

	owned, err := r.integrations.ListIntegrationsByUser(ctx, userID, requirement.Provider)
	if err != nil {
		return domain.Integration{}, false, fmt.Errorf("failed to list integrations for user %s: %w", userID, err)
	}

	if integration, ok := earliestConnected(owned); ok {
		return integration, true, nil
	}

	return r.lookupShared(ctx, userID, requirement.Provider)
}

func (r *credentialResolver) lookupShared(ctx context.Context, userID string, provider domain.IntegrationType) (domain.Integration, bool, error) {
	directShares, err := r.shares.ListSharesToUser(ctx, userID)
	if err != nil {
		return domain.Integration{}, false, fmt.Errorf("failed to list shares for user %s: %w", userID, err)
	}

	if integration, ok, err := r.earliestSharedIntegration(ctx, directShares, provider); err != nil || ok {
		return integration, ok, err
	}

	userTeams, err := r.teams.ListTeamIDsByUser(ctx, userID)
	if err != nil {
		return domain.Integration{}, false, fmt.Errorf("failed to list teams for user %s: %w", userID, err)
	}

	if len(userTeams) > 0 {
		teamShares, err := r.shares.ListSharesToTeams(ctx, userTeams)
		if err != nil {
			return domain.Integration{}, false, fmt.Errorf("failed to list team shares: %w", err)
		}

		if integration, ok, err := r.earliestSharedIntegration(ctx, teamShares, provider); err != nil || ok {
			return integration, ok, err
		}
	}

	// Organization-wide integrations are visible to any user who shares at
	// least one team with the owner.
	all, err := r.integrations.ListIntegrationsByProvider(ctx, provider)
	if err != nil {
		return domain.Integration{}, false, fmt.Errorf("failed to list integrations for provider %s: %w", provider, err)
	}

	for _, integration := range all {
		if integration.SharingScope != domain.SharingScopeOrganization || integration.UserID == userID {
			continue
		}

		if !integration.IsConnected() {
			continue
		}

		sharedTeam, err := r.sharesTeamWith(ctx, userTeams, integration.UserID)
		if err != nil {
			return domain.Integration{}, false, err
		}

		if sharedTeam {
			return integration, true, nil
		}
	}

	return domain.Integration{}, false, nil
}

func (r *credentialResolver) earliestSharedIntegration(ctx context.Context, shares []domain.IntegrationShare, provider domain.IntegrationType) (domain.Integration, bool, error) {
	var best domain.Integration
	found := false

	for _, share := range shares {
		integration, err := r.integrations.GetIntegration(ctx, share.IntegrationID)
		if errors.Is(err, domain.ErrIntegrationNotFound) {
			continue
		}
		if err != nil {
			return domain.Integration{}, false, fmt.Errorf("failed to load shared integration %s: %w", share.IntegrationID, err)
		}

		if integration.Provider != provider || !integration.IsConnected() {
			continue
		}

		if !found || integration.CreatedAt.Before(best.CreatedAt) {
			best = integration
			found = true
		}
	}

	return best, found, nil
}

// canAccess implements the explicit-id access check: a direct share to the
// user, a share to a team both the user and the owner belong to, or (for
// organization-scoped integrations) any shared team membership at all.
func (r *credentialResolver) canAccess(ctx context.Context, userID string, integration domain.Integration) (bool, error) {
	shares, err := r.shares.ListSharesByIntegration(ctx, integration.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list shares for integration %s: %w", integration.ID, err)
	}

	for _, share := range shares {
		if share.GranteeUserID == userID {
			return true, nil
		}
	}

	userTeams, err := r.teams.ListTeamIDsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list teams for user %s: %w", userID, err)
	}

	ownerTeams, err := r.teams.ListTeamIDsByUser(ctx, integration.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to list teams for owner %s: %w", integration.UserID, err)
	}

	ownerTeamSet := make(map[string]struct{}, len(ownerTeams))
	for _, teamID := range ownerTeams {
		ownerTeamSet[teamID] = struct{}{}
	}

	for _, share := range shares {
		if share.GranteeTeamID == "" {
			continue
		}

		if _, ownerIn := ownerTeamSet[share.GranteeTeamID]; !ownerIn {
			continue
		}

		for _, teamID := range userTeams {
			if teamID == share.GranteeTeamID {
				return true, nil
			}
		}
	}

	if integration.SharingScope == domain.SharingScopeOrganization {
		for _, teamID := range userTeams {
			if _, ok := ownerTeamSet[teamID]; ok {
				return true, nil
			}
		}
	}

	return false, nil
}

func (r *credentialResolver) sharesTeamWith(ctx context.Context, userTeams []string, ownerID string) (bool, error) {
	if len(userTeams) == 0 {
		return false, nil
	}

	ownerTeams, err := r.teams.ListTeamIDsByUser(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to list teams for owner %s: %w", ownerID, err)
	}

	ownerTeamSet := make(map[string]struct{}, len(ownerTeams))
	for _, teamID := range ownerTeams {
		ownerTeamSet[teamID] = struct{}{}
	}

	for _, teamID := range userTeams {
		if _, ok := ownerTeamSet[teamID]; ok {
			return true, nil
		}
	}

	return false, nil
}

// ensureFresh validates the integration's status and refreshes its secret
// when it is expired or about to expire. A workflow never executes with an
// invalid credential; any failure here routes to pause-for-reauth.
func (r *credentialResolver) ensureFresh(ctx context.Context, integration domain.Integration) (domain.Integration, error) {
	if !integration.IsConnected() {
		return integration, fmt.Errorf("integration %s is %s", integration.ID, integration.Status)
	}

	if !r.refresher.ShouldRefresh(integration, r.refreshThreshold) {
		return integration, nil
	}

	refreshed, err := r.refresher.Refresh(ctx, integration)
	if err != nil {
		return integration, err
	}

	return refreshed, nil
}

func earliestConnected(integrations []domain.Integration) (domain.Integration, bool) {
	var best domain.Integration
	found := false

	for _, integration := range integrations {
		if !integration.IsConnected() {
			continue
		}

		if !found || integration.CreatedAt.Before(best.CreatedAt) {
			best = integration
			found = true
		}
	}

	return best, found
}
