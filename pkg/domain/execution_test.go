package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    ExecutionStatus
		to      ExecutionStatus
		allowed bool
	}{
		{ExecutionStatusPending, ExecutionStatusRunning, true},
		{ExecutionStatusPending, ExecutionStatusPaused, true},
		{ExecutionStatusPending, ExecutionStatusFailed, true},
		{ExecutionStatusPending, ExecutionStatusCompleted, false},
		{ExecutionStatusRunning, ExecutionStatusCompleted, true},
		{ExecutionStatusRunning, ExecutionStatusFailed, true},
		{ExecutionStatusRunning, ExecutionStatusPaused, true},
		{ExecutionStatusRunning, ExecutionStatusPending, false},
		{ExecutionStatusPaused, ExecutionStatusRunning, true},
		{ExecutionStatusPaused, ExecutionStatusFailed, true},
		{ExecutionStatusPaused, ExecutionStatusCompleted, false},
		{ExecutionStatusCompleted, ExecutionStatusRunning, false},
		{ExecutionStatusCompleted, ExecutionStatusFailed, false},
		{ExecutionStatusFailed, ExecutionStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestExecutionRecord_IsTerminal(t *testing.T) {
	assert.True(t, ExecutionRecord{Status: ExecutionStatusCompleted}.IsTerminal())
	assert.True(t, ExecutionRecord{Status: ExecutionStatusFailed}.IsTerminal())
	assert.False(t, ExecutionRecord{Status: ExecutionStatusPaused}.IsTerminal())
	assert.False(t, ExecutionRecord{Status: ExecutionStatusRunning}.IsTerminal())
	assert.False(t, ExecutionRecord{Status: ExecutionStatusPending}.IsTerminal())
}

func TestCredentialRequirement_Key(t *testing.T) {
	explicit := CredentialRequirement{Provider: IntegrationType_Slack, IntegrationID: "int_1"}
	assert.Equal(t, "int_1", explicit.Key())

	implicit := CredentialRequirement{Provider: IntegrationType_Slack}
	assert.Equal(t, "provider:slack", implicit.Key())
}

func TestWorkflowGraph_CredentialRequirements(t *testing.T) {
	graph := WorkflowGraph{
		Nodes: []GraphNode{
			{ID: "t", Provider: IntegrationType_Gmail, IsTrigger: true},
			{ID: "a", Provider: IntegrationType_Slack},
			{ID: "b", Provider: IntegrationType_Slack},
			{ID: "c", Provider: IntegrationType_Slack, IntegrationID: "int_42"},
			{ID: "d"},
		},
	}

	requirements := graph.CredentialRequirements()

	assert.Equal(t, []CredentialRequirement{
		{Provider: IntegrationType_Gmail},
		{Provider: IntegrationType_Slack},
		{Provider: IntegrationType_Slack},
		{Provider: IntegrationType_Slack, IntegrationID: "int_42"},
	}, requirements)
}
