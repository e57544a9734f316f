package domain

import (
	"context"
	"time"
)

// CredentialRequirement is one node's abstract credential need: a provider
// plus an optional explicit integration id pinning a specific account.
type CredentialRequirement struct {
	Provider      IntegrationType
	IntegrationID string
}

// Key is the dedupe key for resolution: the explicit integration id when
// present, otherwise a per-provider key. Two nodes pinned to distinct
// accounts of the same provider therefore resolve independently, while
// unpinned nodes share one lookup per provider.
func (r CredentialRequirement) Key() string {
	if r.IntegrationID != "" {
		return r.IntegrationID
	}

	return "provider:" + string(r.Provider)
}

type ResolvedCredential struct {
	Requirement CredentialRequirement
	Integration Integration
	Valid       bool
}

type CredentialResolution struct {
	// ByKey maps CredentialRequirement.Key() to its resolution outcome.
	ByKey map[string]ResolvedCredential
	// MissingProviders is the de-duplicated list of providers needing
	// reconnection, in first-seen order.
	MissingProviders []IntegrationType
}

func (r CredentialResolution) AllResolved() bool {
	return len(r.MissingProviders) == 0
}

func (r CredentialResolution) CredentialFor(req CredentialRequirement) (ResolvedCredential, bool) {
	resolved, ok := r.ByKey[req.Key()]
	if !ok || !resolved.Valid {
		return ResolvedCredential{}, false
	}

	return resolved, true
}

// CredentialResolver turns per-node requirements into concrete,
// access-checked, freshly-valid credentials for the requesting user.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string, requirements []CredentialRequirement) (CredentialResolution, error)
}

// TokenRefresher decides when an integration's secret needs refreshing and
// performs the provider-specific refresh. A failed refresh flips the
// integration to needs_reauth; it is the sole trigger of the engine's
// pause-for-reauth path.
type TokenRefresher interface {
	ShouldRefresh(integration Integration, threshold time.Duration) bool
	Refresh(ctx context.Context, integration Integration) (Integration, error)
}
