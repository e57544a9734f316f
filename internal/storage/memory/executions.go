package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chainreact/chainreact/pkg/domain"
)

type ExecutionRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.ExecutionRecord
}

func NewExecutionRecordStore() *ExecutionRecordStore {
	return &ExecutionRecordStore{
		records: make(map[string]domain.ExecutionRecord),
	}
}

func (s *ExecutionRecordStore) CreateExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("execution record %s already exists", record.ID)
	}

	s.records[record.ID] = record

	return nil
}

func (s *ExecutionRecordStore) UpdateExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.ID]
	if !ok {
		return domain.ErrExecutionNotFound
	}

	if existing.Status != record.Status && !existing.Status.CanTransitionTo(record.Status) {
		return fmt.Errorf("invalid execution status transition %s -> %s", existing.Status, record.Status)
	}

	s.records[record.ID] = record

	return nil
}

func (s *ExecutionRecordStore) GetExecutionRecord(ctx context.Context, executionID string) (domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok {
		return domain.ExecutionRecord{}, domain.ErrExecutionNotFound
	}

	return record, nil
}

func (s *ExecutionRecordStore) ListExecutionRecordsByWorkflow(ctx context.Context, workflowID string) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []domain.ExecutionRecord{}

	for _, record := range s.records {
		if record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

// Count reports how many records the store holds. Test helper.
func (s *ExecutionRecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
