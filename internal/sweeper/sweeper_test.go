package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/chainreact/chainreact/internal/storage/memory"
	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLifecycle struct {
	health      domain.TriggerHealth
	activations []domain.ActivateTriggerParams
}

func (l *recordingLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	l.activations = append(l.activations, p)
	return nil
}

func (l *recordingLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return nil
}

func (l *recordingLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return nil
}

func (l *recordingLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	return l.health, nil
}

func seedResource(t *testing.T, resources *memory.TriggerResourceStore, expiresAt *time.Time) {
	t.Helper()

	_, err := resources.UpsertTriggerResource(context.Background(), domain.TriggerResource{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		NodeID:     "trigger",
		Provider:   domain.IntegrationType_Gmail,
		Kind:       domain.TriggerResourceKindSubscription,
		Status:     domain.TriggerResourceStatusActive,
		Config:     map[string]any{"label": "INBOX"},
		ExpiresAt:  expiresAt,
	})
	require.NoError(t, err)
}

func TestHealthSweeper_RenewsExpiringSubscription(t *testing.T) {
	resources := memory.NewTriggerResourceStore()

	soon := time.Now().Add(time.Hour)
	seedResource(t, resources, &soon)

	lifecycle := &recordingLifecycle{health: domain.TriggerHealth{Healthy: true}}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, lifecycle, "")

	s := NewHealthSweeper(HealthSweeperDependencies{
		TriggerLifecycleRegistry: registry,
		TriggerResourceStore:     resources,
		WebhookBaseURL:           "https://hooks.example.com",
	})

	s.Sweep(context.Background())

	require.Len(t, lifecycle.activations, 1)

	p := lifecycle.activations[0]
	assert.Equal(t, "wf_1", p.WorkflowID)
	assert.Equal(t, map[string]any{"label": "INBOX"}, p.Config)
	assert.Equal(t, "https://hooks.example.com/hooks/wf_1/gmail", p.WebhookURL)
}

func TestHealthSweeper_LeavesDistantExpiryAlone(t *testing.T) {
	resources := memory.NewTriggerResourceStore()

	distant := time.Now().Add(ExpiryRenewalWindow + time.Hour)
	seedResource(t, resources, &distant)

	lifecycle := &recordingLifecycle{health: domain.TriggerHealth{Healthy: true}}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, lifecycle, "")

	s := NewHealthSweeper(HealthSweeperDependencies{
		TriggerLifecycleRegistry: registry,
		TriggerResourceStore:     resources,
	})

	s.Sweep(context.Background())

	assert.Empty(t, lifecycle.activations)
}

func TestHealthSweeper_SkipsUnhealthyResource(t *testing.T) {
	resources := memory.NewTriggerResourceStore()

	soon := time.Now().Add(time.Hour)
	seedResource(t, resources, &soon)

	lifecycle := &recordingLifecycle{health: domain.TriggerHealth{Details: "subscription gone"}}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, lifecycle, "")

	s := NewHealthSweeper(HealthSweeperDependencies{
		TriggerLifecycleRegistry: registry,
		TriggerResourceStore:     resources,
	})

	s.Sweep(context.Background())

	// Unhealthy resources are reported, never blindly re-activated.
	assert.Empty(t, lifecycle.activations)
}

func TestHealthSweeper_HealthExpiryOverridesResource(t *testing.T) {
	resources := memory.NewTriggerResourceStore()

	distant := time.Now().Add(ExpiryRenewalWindow + time.Hour)
	seedResource(t, resources, &distant)

	soon := time.Now().Add(time.Hour)
	lifecycle := &recordingLifecycle{health: domain.TriggerHealth{Healthy: true, ExpiresAt: &soon}}

	registry := domain.NewTriggerLifecycleRegistry()
	registry.Register(domain.IntegrationType_Gmail, lifecycle, "")

	s := NewHealthSweeper(HealthSweeperDependencies{
		TriggerLifecycleRegistry: registry,
		TriggerResourceStore:     resources,
	})

	s.Sweep(context.Background())

	assert.Len(t, lifecycle.activations, 1)
}
