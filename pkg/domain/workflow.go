package domain

import (
	"context"
	"errors"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// WorkflowGraph is the immutable node graph the engine executes. It is owned
// by the workflow-definition store; this core never mutates it.
type WorkflowGraph struct {
	ID     string      `json:"id" bson:"id"`
	Name   string      `json:"name" bson:"name"`
	UserID string      `json:"user_id" bson:"user_id"`
	Nodes  []GraphNode `json:"nodes" bson:"nodes"`
	Edges  []GraphEdge `json:"edges" bson:"edges"`
}

type GraphNode struct {
	ID       string          `json:"id" bson:"id"`
	Name     string          `json:"name" bson:"name"`
	Provider IntegrationType `json:"provider,omitempty" bson:"provider,omitempty"`
	// IntegrationID pins the node to an explicit credential. Empty means the
	// resolver falls back to a per-provider lookup.
	IntegrationID string         `json:"integration_id,omitempty" bson:"integration_id,omitempty"`
	IsTrigger     bool           `json:"is_trigger" bson:"is_trigger"`
	TriggerType   string         `json:"trigger_type,omitempty" bson:"trigger_type,omitempty"`
	Filter        *TriggerFilter `json:"filter,omitempty" bson:"filter,omitempty"`
	ActionType    string         `json:"action_type,omitempty" bson:"action_type,omitempty"`
	Config        map[string]any `json:"config,omitempty" bson:"config,omitempty"`
}

type GraphEdge struct {
	FromNodeID string `json:"from_node_id" bson:"from_node_id"`
	ToNodeID   string `json:"to_node_id" bson:"to_node_id"`
}

// TriggerNode returns the graph's single trigger node.
func (g WorkflowGraph) TriggerNode() (GraphNode, bool) {
	for _, node := range g.Nodes {
		if node.IsTrigger {
			return node, true
		}
	}

	return GraphNode{}, false
}

func (g WorkflowGraph) TriggerNodes() []GraphNode {
	triggers := []GraphNode{}

	for _, node := range g.Nodes {
		if node.IsTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}

func (g WorkflowGraph) GetNodeByID(nodeID string) (GraphNode, bool) {
	for _, node := range g.Nodes {
		if node.ID == nodeID {
			return node, true
		}
	}

	return GraphNode{}, false
}

// OutgoingEdges returns every edge leaving the node, in declaration order.
func (g WorkflowGraph) OutgoingEdges(nodeID string) []GraphEdge {
	edges := []GraphEdge{}

	for _, edge := range g.Edges {
		if edge.FromNodeID == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// CredentialRequirements enumerates the per-node credential requirements of
// the graph, in node order. Nodes without a provider contribute nothing.
func (g WorkflowGraph) CredentialRequirements() []CredentialRequirement {
	requirements := []CredentialRequirement{}

	for _, node := range g.Nodes {
		if node.Provider == "" {
			continue
		}

		requirements = append(requirements, CredentialRequirement{
			Provider:      node.Provider,
			IntegrationID: node.IntegrationID,
		})
	}

	return requirements
}

type WorkflowStore interface {
	GetWorkflowGraph(ctx context.Context, workflowID string) (WorkflowGraph, error)
}
