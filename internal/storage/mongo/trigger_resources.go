package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const triggerResourcesCollection = "trigger_resources"

// TriggerResourceStore persists trigger resources in MongoDB. A workflow
// holds at most one resource per provider and kind, enforced by the upsert
// filter.
type TriggerResourceStore struct {
	db  *mongo.Database
	now func() time.Time
}

func NewTriggerResourceStore(db *mongo.Database) *TriggerResourceStore {
	return &TriggerResourceStore{db: db, now: time.Now}
}

func (s *TriggerResourceStore) UpsertTriggerResource(ctx context.Context, resource domain.TriggerResource) (domain.TriggerResource, error) {
	filter := bson.M{
		"workflow_id": resource.WorkflowID,
		"provider":    resource.Provider,
		"kind":        resource.Kind,
	}

	now := s.now()
	resource.UpdatedAt = now

	var existing domain.TriggerResource

	err := s.db.Collection(triggerResourcesCollection).FindOne(ctx, filter).Decode(&existing)
	switch {
	case err == nil:
		resource.ID = existing.ID
		resource.CreatedAt = existing.CreatedAt
	case errors.Is(err, mongo.ErrNoDocuments):
		resource.ID = xid.New().String()
		resource.CreatedAt = now
	default:
		return domain.TriggerResource{}, fmt.Errorf("failed to look up trigger resource: %w", err)
	}

	opts := options.Replace().SetUpsert(true)

	if _, err := s.db.Collection(triggerResourcesCollection).ReplaceOne(ctx, filter, resource, opts); err != nil {
		return domain.TriggerResource{}, fmt.Errorf("failed to upsert trigger resource: %w", err)
	}

	return resource, nil
}

func (s *TriggerResourceStore) GetTriggerResource(ctx context.Context, workflowID string, provider domain.IntegrationType, kind domain.TriggerResourceKind) (domain.TriggerResource, error) {
	filter := bson.M{"workflow_id": workflowID, "provider": provider, "kind": kind}

	var resource domain.TriggerResource

	err := s.db.Collection(triggerResourcesCollection).FindOne(ctx, filter).Decode(&resource)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.TriggerResource{}, domain.ErrTriggerResourceNotFound
	}
	if err != nil {
		return domain.TriggerResource{}, fmt.Errorf("failed to get trigger resource: %w", err)
	}

	return resource, nil
}

func (s *TriggerResourceStore) ListTriggerResourcesByWorkflow(ctx context.Context, workflowID string) ([]domain.TriggerResource, error) {
	return s.findResources(ctx, bson.M{"workflow_id": workflowID})
}

func (s *TriggerResourceStore) ListActiveTriggerResources(ctx context.Context) ([]domain.TriggerResource, error) {
	return s.findResources(ctx, bson.M{"status": domain.TriggerResourceStatusActive})
}

func (s *TriggerResourceStore) findResources(ctx context.Context, filter bson.M) ([]domain.TriggerResource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(triggerResourcesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger resources: %w", err)
	}
	defer cursor.Close(ctx)

	resources := []domain.TriggerResource{}
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode trigger resources: %w", err)
	}

	return resources, nil
}

func (s *TriggerResourceStore) UpdateTriggerResource(ctx context.Context, resource domain.TriggerResource) error {
	resource.UpdatedAt = s.now()

	result, err := s.db.Collection(triggerResourcesCollection).ReplaceOne(ctx, bson.M{"id": resource.ID}, resource)
	if err != nil {
		return fmt.Errorf("failed to update trigger resource %s: %w", resource.ID, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrTriggerResourceNotFound
	}

	return nil
}

func (s *TriggerResourceStore) DeleteTriggerResources(ctx context.Context, workflowID string, provider domain.IntegrationType) (int, error) {
	filter := bson.M{"workflow_id": workflowID, "provider": provider}

	result, err := s.db.Collection(triggerResourcesCollection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete trigger resources: %w", err)
	}

	return int(result.DeletedCount), nil
}
