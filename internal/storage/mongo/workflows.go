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

const workflowGraphsCollection = "workflow_graphs"

// WorkflowStore reads workflow graphs from MongoDB.
type WorkflowStore struct {
	db *mongo.Database
}

func NewWorkflowStore(db *mongo.Database) *WorkflowStore {
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) GetWorkflowGraph(ctx context.Context, workflowID string) (domain.WorkflowGraph, error) {
	var graph domain.WorkflowGraph

	err := s.db.Collection(workflowGraphsCollection).FindOne(ctx, bson.M{"id": workflowID}).Decode(&graph)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.WorkflowGraph{}, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return domain.WorkflowGraph{}, fmt.Errorf("failed to get workflow graph %s: %w", workflowID, err)
	}

	return graph, nil
}

func (s *WorkflowStore) PutWorkflowGraph(ctx context.Context, graph domain.WorkflowGraph) error {
	opts := options.Replace().SetUpsert(true)

	if _, err := s.db.Collection(workflowGraphsCollection).ReplaceOne(ctx, bson.M{"id": graph.ID}, graph, opts); err != nil {
		return fmt.Errorf("failed to store workflow graph %s: %w", graph.ID, err)
	}

	return nil
}
