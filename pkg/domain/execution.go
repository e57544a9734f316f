package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExecutionNotFound = errors.New("execution record not found")
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// CanTransitionTo encodes the monotonic execution status machine:
// pending → running → {completed | failed}, running → paused, and
// paused → running when a run resumes after reconnection.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next == ExecutionStatusPaused || next == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return next == ExecutionStatusCompleted || next == ExecutionStatusFailed || next == ExecutionStatusPaused
	case ExecutionStatusPaused:
		return next == ExecutionStatusRunning || next == ExecutionStatusFailed
	default:
		return false
	}
}

const PauseReasonMissingIntegrations = "missing_integrations"

type NodeOutput struct {
	NodeID string         `json:"node_id" bson:"node_id"`
	Output map[string]any `json:"output" bson:"output"`
}

// ExecutionPayload carries the run's input snapshot and, depending on status,
// the pause details, the ordered per-node outputs, the final output, or the
// captured error.
type ExecutionPayload struct {
	Input               map[string]any    `json:"input" bson:"input"`
	PauseReason         string            `json:"pause_reason,omitempty" bson:"pause_reason,omitempty"`
	MissingIntegrations []IntegrationType `json:"missing_integrations,omitempty" bson:"missing_integrations,omitempty"`
	NodeOutputs         []NodeOutput      `json:"node_outputs,omitempty" bson:"node_outputs,omitempty"`
	Output              map[string]any    `json:"output,omitempty" bson:"output,omitempty"`
	Error               string            `json:"error,omitempty" bson:"error,omitempty"`
}

// ExecutionRecord is the persisted state of one workflow run. A paused record
// holds enough state (input snapshot plus missing providers) to resume once
// the user reconnects.
type ExecutionRecord struct {
	ID          string           `json:"id" bson:"id"`
	WorkflowID  string           `json:"workflow_id" bson:"workflow_id"`
	UserID      string           `json:"user_id" bson:"user_id"`
	Status      ExecutionStatus  `json:"status" bson:"status"`
	Payload     ExecutionPayload `json:"payload" bson:"payload"`
	StartedAt   time.Time        `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

func (r ExecutionRecord) IsTerminal() bool {
	return r.Status == ExecutionStatusCompleted || r.Status == ExecutionStatusFailed
}

type ExecutionRecordStore interface {
	CreateExecutionRecord(ctx context.Context, record ExecutionRecord) error
	UpdateExecutionRecord(ctx context.Context, record ExecutionRecord) error
	GetExecutionRecord(ctx context.Context, executionID string) (ExecutionRecord, error)
	ListExecutionRecordsByWorkflow(ctx context.Context, workflowID string) ([]ExecutionRecord, error)
}
