package memory

import (
	"context"
	"sync"

	"github.com/chainreact/chainreact/pkg/domain"
)

type WorkflowStore struct {
	mu     sync.RWMutex
	graphs map[string]domain.WorkflowGraph
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{
		graphs: make(map[string]domain.WorkflowGraph),
	}
}

func (s *WorkflowStore) PutWorkflowGraph(graph domain.WorkflowGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graphs[graph.ID] = graph
}

func (s *WorkflowStore) GetWorkflowGraph(ctx context.Context, workflowID string) (domain.WorkflowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	graph, ok := s.graphs[workflowID]
	if !ok {
		return domain.WorkflowGraph{}, domain.ErrWorkflowNotFound
	}

	return graph, nil
}
