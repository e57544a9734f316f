package domain

import "context"

// ExecuteActionParams is the input for one concrete node execution. The
// credential is nil for nodes that declared no provider.
type ExecuteActionParams struct {
	Node       GraphNode
	Input      map[string]any
	UserID     string
	WorkflowID string
	Credential *ResolvedCredential
}

type ActionResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ActionExecutor runs one node against its resolved credential. It is an
// external collaborator; the engine treats a Success=false result identically
// to a returned error.
type ActionExecutor interface {
	Execute(ctx context.Context, p ExecuteActionParams) (ActionResult, error)
}
