package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
)

// IntegrationType identifies an external provider an integration connects to.
type IntegrationType string

const (
	IntegrationType_Gmail           IntegrationType = "gmail"
	IntegrationType_GoogleCalendar  IntegrationType = "google_calendar"
	IntegrationType_OutlookMail     IntegrationType = "outlook_mail"
	IntegrationType_OutlookCalendar IntegrationType = "outlook_calendar"
	IntegrationType_Teams           IntegrationType = "teams"
	IntegrationType_OneDrive        IntegrationType = "onedrive"
	IntegrationType_Slack           IntegrationType = "slack"
	IntegrationType_Github          IntegrationType = "github"
	IntegrationType_Gitlab          IntegrationType = "gitlab"
	IntegrationType_Stripe          IntegrationType = "stripe"
)

type IntegrationStatus string

const (
	IntegrationStatusConnected    IntegrationStatus = "connected"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
	IntegrationStatusNeedsReauth  IntegrationStatus = "needs_reauth"
)

type SharingScope string

const (
	SharingScopePrivate      SharingScope = "private"
	SharingScopeTeam         SharingScope = "team"
	SharingScopeOrganization SharingScope = "organization"
)

// Integration is a stored external credential plus its ownership and sharing
// metadata. The access and refresh secrets are opaque to this core and held
// encrypted at rest by the store.
type Integration struct {
	ID            string            `json:"id" bson:"id"`
	UserID        string            `json:"user_id" bson:"user_id"`
	Provider      IntegrationType   `json:"provider" bson:"provider"`
	Status        IntegrationStatus `json:"status" bson:"status"`
	AccessSecret  string            `json:"-" bson:"access_secret"`
	RefreshSecret string            `json:"-" bson:"refresh_secret"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Scopes        []string          `json:"scopes" bson:"scopes"`
	SharingScope  SharingScope      `json:"sharing_scope" bson:"sharing_scope"`
	Metadata      map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

func (i Integration) IsConnected() bool {
	return i.Status == IntegrationStatusConnected
}

// IntegrationShare grants a user or a team access to another owner's
// integration. Read-only from this core's perspective.
type IntegrationShare struct {
	ID            string    `json:"id" bson:"id"`
	IntegrationID string    `json:"integration_id" bson:"integration_id"`
	GranteeUserID string    `json:"grantee_user_id,omitempty" bson:"grantee_user_id,omitempty"`
	GranteeTeamID string    `json:"grantee_team_id,omitempty" bson:"grantee_team_id,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// TeamMembership relates a user to a team. Read-only input to access checks.
type TeamMembership struct {
	ID     string `json:"id" bson:"id"`
	TeamID string `json:"team_id" bson:"team_id"`
	UserID string `json:"user_id" bson:"user_id"`
}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, integrationID string) (Integration, error)
	// ListIntegrationsByUser returns integrations owned by the user for the
	// given provider, ordered by creation time ascending.
	ListIntegrationsByUser(ctx context.Context, userID string, provider IntegrationType) ([]Integration, error)
	// ListIntegrationsByProvider returns every integration for a provider,
	// ordered by creation time ascending.
	ListIntegrationsByProvider(ctx context.Context, provider IntegrationType) ([]Integration, error)
	UpdateIntegration(ctx context.Context, integration Integration) error
}

type IntegrationShareStore interface {
	ListSharesByIntegration(ctx context.Context, integrationID string) ([]IntegrationShare, error)
	ListSharesToUser(ctx context.Context, userID string) ([]IntegrationShare, error)
	ListSharesToTeams(ctx context.Context, teamIDs []string) ([]IntegrationShare, error)
}

type TeamMembershipStore interface {
	ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error)
}
