package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"
	"github.com/rs/xid"
)

type TriggerResourceStore struct {
	mu        sync.RWMutex
	resources map[string]domain.TriggerResource
}

func NewTriggerResourceStore() *TriggerResourceStore {
	return &TriggerResourceStore{
		resources: make(map[string]domain.TriggerResource),
	}
}

func (s *TriggerResourceStore) UpsertTriggerResource(ctx context.Context, resource domain.TriggerResource) (domain.TriggerResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	for id, existing := range s.resources {
		if existing.WorkflowID == resource.WorkflowID && existing.Provider == resource.Provider && existing.Kind == resource.Kind {
			resource.ID = existing.ID
			resource.CreatedAt = existing.CreatedAt
			resource.UpdatedAt = now
			s.resources[id] = resource

			return resource, nil
		}
	}

	if resource.ID == "" {
		resource.ID = xid.New().String()
	}

	resource.CreatedAt = now
	resource.UpdatedAt = now
	s.resources[resource.ID] = resource

	return resource, nil
}

func (s *TriggerResourceStore) GetTriggerResource(ctx context.Context, workflowID string, provider domain.IntegrationType, kind domain.TriggerResourceKind) (domain.TriggerResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, resource := range s.resources {
		if resource.WorkflowID == workflowID && resource.Provider == provider && resource.Kind == kind {
			return resource, nil
		}
	}

	return domain.TriggerResource{}, domain.ErrTriggerResourceNotFound
}

func (s *TriggerResourceStore) ListTriggerResourcesByWorkflow(ctx context.Context, workflowID string) ([]domain.TriggerResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := []domain.TriggerResource{}

	for _, resource := range s.resources {
		if resource.WorkflowID == workflowID {
			resources = append(resources, resource)
		}
	}

	return resources, nil
}

func (s *TriggerResourceStore) ListActiveTriggerResources(ctx context.Context) ([]domain.TriggerResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := []domain.TriggerResource{}

	for _, resource := range s.resources {
		if resource.Status == domain.TriggerResourceStatusActive {
			resources = append(resources, resource)
		}
	}

	return resources, nil
}

func (s *TriggerResourceStore) UpdateTriggerResource(ctx context.Context, resource domain.TriggerResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[resource.ID]; !ok {
		return domain.ErrTriggerResourceNotFound
	}

	resource.UpdatedAt = time.Now()
	s.resources[resource.ID] = resource

	return nil
}

func (s *TriggerResourceStore) DeleteTriggerResources(ctx context.Context, workflowID string, provider domain.IntegrationType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0

	for id, resource := range s.resources {
		if resource.WorkflowID == workflowID && resource.Provider == provider {
			delete(s.resources, id)
			deleted++
		}
	}

	return deleted, nil
}
