package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chainreact/chainreact/pkg/domain"
)

// IntegrationStore is an in-memory implementation of the integration,
// share and team membership stores. Used by tests and dev mode.
type IntegrationStore struct {
	mu           sync.RWMutex
	integrations map[string]domain.Integration
	shares       []domain.IntegrationShare
	memberships  []domain.TeamMembership
}

func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{
		integrations: make(map[string]domain.Integration),
	}
}

func (s *IntegrationStore) PutIntegration(integration domain.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.integrations[integration.ID] = integration
}

func (s *IntegrationStore) PutShare(share domain.IntegrationShare) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares = append(s.shares, share)
}

func (s *IntegrationStore) PutMembership(membership domain.TeamMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memberships = append(s.memberships, membership)
}

func (s *IntegrationStore) GetIntegration(ctx context.Context, integrationID string) (domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, ok := s.integrations[integrationID]
	if !ok {
		return domain.Integration{}, domain.ErrIntegrationNotFound
	}

	return integration, nil
}

func (s *IntegrationStore) ListIntegrationsByUser(ctx context.Context, userID string, provider domain.IntegrationType) ([]domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integrations := []domain.Integration{}

	for _, integration := range s.integrations {
		if integration.UserID == userID && integration.Provider == provider {
			integrations = append(integrations, integration)
		}
	}

	sortByCreatedAt(integrations)

	return integrations, nil
}

func (s *IntegrationStore) ListIntegrationsByProvider(ctx context.Context, provider domain.IntegrationType) ([]domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integrations := []domain.Integration{}

	for _, integration := range s.integrations {
		if integration.Provider == provider {
			integrations = append(integrations, integration)
		}
	}

	sortByCreatedAt(integrations)

	return integrations, nil
}

func (s *IntegrationStore) UpdateIntegration(ctx context.Context, integration domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.integrations[integration.ID]; !ok {
		return domain.ErrIntegrationNotFound
	}

	s.integrations[integration.ID] = integration

	return nil
}

func (s *IntegrationStore) ListSharesByIntegration(ctx context.Context, integrationID string) ([]domain.IntegrationShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := []domain.IntegrationShare{}

	for _, share := range s.shares {
		if share.IntegrationID == integrationID {
			shares = append(shares, share)
		}
	}

	return shares, nil
}

func (s *IntegrationStore) ListSharesToUser(ctx context.Context, userID string) ([]domain.IntegrationShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := []domain.IntegrationShare{}

	for _, share := range s.shares {
		if share.GranteeUserID == userID {
			shares = append(shares, share)
		}
	}

	return shares, nil
}

func (s *IntegrationStore) ListSharesToTeams(ctx context.Context, teamIDs []string) ([]domain.IntegrationShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teamSet := make(map[string]struct{}, len(teamIDs))
	for _, teamID := range teamIDs {
		teamSet[teamID] = struct{}{}
	}

	shares := []domain.IntegrationShare{}

	for _, share := range s.shares {
		if share.GranteeTeamID == "" {
			continue
		}

		if _, ok := teamSet[share.GranteeTeamID]; ok {
			shares = append(shares, share)
		}
	}

	return shares, nil
}

func (s *IntegrationStore) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teamIDs := []string{}

	for _, membership := range s.memberships {
		if membership.UserID == userID {
			teamIDs = append(teamIDs, membership.TeamID)
		}
	}

	return teamIDs, nil
}

func sortByCreatedAt(integrations []domain.Integration) {
	sort.SliceStable(integrations, func(i, j int) bool {
		return integrations[i].CreatedAt.Before(integrations[j].CreatedAt)
	})
}
