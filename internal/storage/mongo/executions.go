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

const executionRecordsCollection = "execution_records"

// ExecutionRecordStore persists execution records in MongoDB and rejects
// status updates that move a record backwards.
type ExecutionRecordStore struct {
	db *mongo.Database
}

func NewExecutionRecordStore(db *mongo.Database) *ExecutionRecordStore {
	return &ExecutionRecordStore{db: db}
}

func (s *ExecutionRecordStore) CreateExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error {
	if _, err := s.db.Collection(executionRecordsCollection).InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}

	return nil
}

func (s *ExecutionRecordStore) UpdateExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error {
	existing, err := s.GetExecutionRecord(ctx, record.ID)
	if err != nil {
		return err
	}

	if existing.Status != record.Status && !existing.Status.CanTransitionTo(record.Status) {
		return fmt.Errorf("execution %s cannot move from %s to %s", record.ID, existing.Status, record.Status)
	}

	result, err := s.db.Collection(executionRecordsCollection).ReplaceOne(ctx, bson.M{"id": record.ID}, record)
	if err != nil {
		return fmt.Errorf("failed to update execution record %s: %w", record.ID, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrExecutionNotFound
	}

	return nil
}

func (s *ExecutionRecordStore) GetExecutionRecord(ctx context.Context, executionID string) (domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord

	err := s.db.Collection(executionRecordsCollection).FindOne(ctx, bson.M{"id": executionID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ExecutionRecord{}, domain.ErrExecutionNotFound
	}
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("failed to get execution record %s: %w", executionID, err)
	}

	return record, nil
}

func (s *ExecutionRecordStore) ListExecutionRecordsByWorkflow(ctx context.Context, workflowID string) ([]domain.ExecutionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})

	cursor, err := s.db.Collection(executionRecordsCollection).Find(ctx, bson.M{"workflow_id": workflowID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []domain.ExecutionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode execution records: %w", err)
	}

	return records, nil
}
