package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTriggerResourceNotFound = errors.New("trigger resource not found")
)

type TriggerResourceKind string

const (
	TriggerResourceKindWebhook      TriggerResourceKind = "webhook"
	TriggerResourceKindSubscription TriggerResourceKind = "subscription"
	TriggerResourceKindPolling      TriggerResourceKind = "polling"
	TriggerResourceKindOther        TriggerResourceKind = "other"
)

type TriggerResourceStatus string

const (
	TriggerResourceStatusActive  TriggerResourceStatus = "active"
	TriggerResourceStatusExpired TriggerResourceStatus = "expired"
	TriggerResourceStatusDeleted TriggerResourceStatus = "deleted"
	TriggerResourceStatusError   TriggerResourceStatus = "error"
)

// TriggerResource is the local record of an external subscription or webhook
// (or a manual-setup placeholder) backing one workflow's trigger. At most one
// active resource exists per (workflow, provider, kind); lifecycles replace
// rather than duplicate.
type TriggerResource struct {
	ID            string                `json:"id" bson:"id"`
	WorkflowID    string                `json:"workflow_id" bson:"workflow_id"`
	UserID        string                `json:"user_id" bson:"user_id"`
	NodeID        string                `json:"node_id" bson:"node_id"`
	Provider      IntegrationType       `json:"provider" bson:"provider"`
	Kind          TriggerResourceKind   `json:"kind" bson:"kind"`
	ExternalID    string                `json:"external_id,omitempty" bson:"external_id,omitempty"`
	Status        TriggerResourceStatus `json:"status" bson:"status"`
	Config        map[string]any        `json:"config,omitempty" bson:"config,omitempty"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	LastCheckedAt *time.Time            `json:"last_checked_at,omitempty" bson:"last_checked_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at" bson:"updated_at"`
}

// Config keys lifecycles store for external consumers. CallbackURL and
// setup instructions are rendered by the UI for manual-setup providers.
const (
	TriggerConfigCallbackURL       = "callback_url"
	TriggerConfigSetupInstructions = "setup_instructions"
)

type TriggerResourceStore interface {
	// UpsertTriggerResource replaces any existing resource for the same
	// (workflow, provider, kind) key so repeated activations never duplicate.
	UpsertTriggerResource(ctx context.Context, resource TriggerResource) (TriggerResource, error)
	GetTriggerResource(ctx context.Context, workflowID string, provider IntegrationType, kind TriggerResourceKind) (TriggerResource, error)
	ListTriggerResourcesByWorkflow(ctx context.Context, workflowID string) ([]TriggerResource, error)
	ListActiveTriggerResources(ctx context.Context) ([]TriggerResource, error)
	UpdateTriggerResource(ctx context.Context, resource TriggerResource) error
	// DeleteTriggerResources removes every resource for the workflow+provider
	// pair and reports how many rows it removed.
	DeleteTriggerResources(ctx context.Context, workflowID string, provider IntegrationType) (int, error)
}

type ActivateTriggerParams struct {
	WorkflowID  string
	UserID      string
	NodeID      string
	Provider    IntegrationType
	TriggerType string
	Config      map[string]any
	WebhookURL  string
	TestMode    bool
}

type DeactivateTriggerParams struct {
	WorkflowID    string
	UserID        string
	Provider      IntegrationType
	TestSessionID string
}

type TriggerHealthParams struct {
	WorkflowID string
	UserID     string
	Provider   IntegrationType
}

type TriggerHealth struct {
	Healthy     bool       `json:"healthy"`
	Details     string     `json:"details"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastChecked time.Time  `json:"last_checked"`
}

// TriggerLifecycle is the per-provider contract for managing external trigger
// resources. Activation errors abort workflow activation; deactivation and
// deletion treat "already gone" as success so cleanup never blocks.
//
// One lifecycle instance may serve several provider identifiers when they
// share an underlying subscription mechanism; the params carry the provider
// the call was dispatched for.
type TriggerLifecycle interface {
	OnActivate(ctx context.Context, p ActivateTriggerParams) error
	OnDeactivate(ctx context.Context, p DeactivateTriggerParams) error
	OnDelete(ctx context.Context, p DeactivateTriggerParams) error
	CheckHealth(ctx context.Context, p TriggerHealthParams) (TriggerHealth, error)
}
