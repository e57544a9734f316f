package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainreact/chainreact/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	integrationsCollection = "integrations"
	sharesCollection       = "integration_shares"
	membershipsCollection  = "team_memberships"
)

// IntegrationStore implements the integration, share and team membership
// stores on MongoDB.
type IntegrationStore struct {
	db *mongo.Database
}

func NewIntegrationStore(db *mongo.Database) *IntegrationStore {
	return &IntegrationStore{db: db}
}

func (s *IntegrationStore) GetIntegration(ctx context.Context, integrationID string) (domain.Integration, error) {
	var integration domain.Integration

	err := s.db.Collection(integrationsCollection).FindOne(ctx, bson.M{"id": integrationID}).Decode(&integration)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Integration{}, domain.ErrIntegrationNotFound
	}
	if err != nil {
		return domain.Integration{}, fmt.Errorf("failed to get integration %s: %w", integrationID, err)
	}

	return integration, nil
}

func (s *IntegrationStore) ListIntegrationsByUser(ctx context.Context, userID string, provider domain.IntegrationType) ([]domain.Integration, error) {
	filter := bson.M{"user_id": userID, "provider": provider}

	return s.findIntegrations(ctx, filter)
}

func (s *IntegrationStore) ListIntegrationsByProvider(ctx context.Context, provider domain.IntegrationType) ([]domain.Integration, error) {
	return s.findIntegrations(ctx, bson.M{"provider": provider})
}

func (s *IntegrationStore) findIntegrations(ctx context.Context, filter bson.M) ([]domain.Integration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(integrationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer cursor.Close(ctx)

	integrations := []domain.Integration{}
	if err := cursor.All(ctx, &integrations); err != nil {
		return nil, fmt.Errorf("failed to decode integrations: %w", err)
	}

	return integrations, nil
}

func (s *IntegrationStore) UpdateIntegration(ctx context.Context, integration domain.Integration) error {
	result, err := s.db.Collection(integrationsCollection).ReplaceOne(ctx, bson.M{"id": integration.ID}, integration)
	if err != nil {
		return fmt.Errorf("failed to update integration %s: %w", integration.ID, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrIntegrationNotFound
	}

	return nil
}

func (s *IntegrationStore) ListSharesByIntegration(ctx context.Context, integrationID string) ([]domain.IntegrationShare, error) {
	return s.findShares(ctx, bson.M{"integration_id": integrationID})
}

func (s *IntegrationStore) ListSharesToUser(ctx context.Context, userID string) ([]domain.IntegrationShare, error) {
	return s.findShares(ctx, bson.M{"grantee_user_id": userID})
}

func (s *IntegrationStore) ListSharesToTeams(ctx context.Context, teamIDs []string) ([]domain.IntegrationShare, error) {
	return s.findShares(ctx, bson.M{"grantee_team_id": bson.M{"$in": teamIDs}})
}

func (s *IntegrationStore) findShares(ctx context.Context, filter bson.M) ([]domain.IntegrationShare, error) {
	cursor, err := s.db.Collection(sharesCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration shares: %w", err)
	}
	defer cursor.Close(ctx)

	shares := []domain.IntegrationShare{}
	if err := cursor.All(ctx, &shares); err != nil {
		return nil, fmt.Errorf("failed to decode integration shares: %w", err)
	}

	return shares, nil
}

func (s *IntegrationStore) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	cursor, err := s.db.Collection(membershipsCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list team memberships: %w", err)
	}
	defer cursor.Close(ctx)

	memberships := []domain.TeamMembership{}
	if err := cursor.All(ctx, &memberships); err != nil {
		return nil, fmt.Errorf("failed to decode team memberships: %w", err)
	}

	teamIDs := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		teamIDs = append(teamIDs, membership.TeamID)
	}

	return teamIDs, nil
}
