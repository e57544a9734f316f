package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLifecycle struct {
	name string
}

func (s *stubLifecycle) OnActivate(ctx context.Context, p ActivateTriggerParams) error   { return nil }
func (s *stubLifecycle) OnDeactivate(ctx context.Context, p DeactivateTriggerParams) error { return nil }
func (s *stubLifecycle) OnDelete(ctx context.Context, p DeactivateTriggerParams) error   { return nil }
func (s *stubLifecycle) CheckHealth(ctx context.Context, p TriggerHealthParams) (TriggerHealth, error) {
	return TriggerHealth{Healthy: true}, nil
}

func TestTriggerLifecycleRegistry_Get(t *testing.T) {
	registry := NewTriggerLifecycleRegistry()

	lifecycle := &stubLifecycle{name: "slack"}
	registry.Register(IntegrationType_Slack, lifecycle, "Slack events")

	got, err := registry.Get(IntegrationType_Slack)
	require.NoError(t, err)
	assert.Same(t, lifecycle, got)

	_, err = registry.Get(IntegrationType_Stripe)
	assert.ErrorIs(t, err, ErrProviderNotRegistered)
}

func TestTriggerLifecycleRegistry_LastRegistrationWins(t *testing.T) {
	registry := NewTriggerLifecycleRegistry()

	first := &stubLifecycle{name: "first"}
	second := &stubLifecycle{name: "second"}

	registry.Register(IntegrationType_Gmail, first, "first")
	registry.Register(IntegrationType_Gmail, second, "second")

	got, err := registry.Get(IntegrationType_Gmail)
	require.NoError(t, err)
	assert.Same(t, second, got)

	providers := registry.List()
	require.Len(t, providers, 1)
	assert.Equal(t, "second", providers[0].Description)
}

func TestTriggerLifecycleRegistry_SharedLifecycleInstance(t *testing.T) {
	registry := NewTriggerLifecycleRegistry()

	shared := &stubLifecycle{name: "graph"}

	for _, provider := range []IntegrationType{
		IntegrationType_OutlookMail,
		IntegrationType_OutlookCalendar,
		IntegrationType_Teams,
		IntegrationType_OneDrive,
	} {
		registry.Register(provider, shared, "Microsoft Graph change notifications")
	}

	for _, provider := range []IntegrationType{IntegrationType_Teams, IntegrationType_OneDrive} {
		got, err := registry.Get(provider)
		require.NoError(t, err)
		assert.Same(t, shared, got)
	}
}

func TestTriggerLifecycleRegistry_ListIsSorted(t *testing.T) {
	registry := NewTriggerLifecycleRegistry()

	registry.Register(IntegrationType_Stripe, &stubLifecycle{}, "Stripe")
	registry.Register(IntegrationType_Gmail, &stubLifecycle{}, "Gmail")
	registry.Register(IntegrationType_Slack, &stubLifecycle{}, "Slack")

	providers := registry.List()
	require.Len(t, providers, 3)
	assert.Equal(t, IntegrationType_Gmail, providers[0].Provider)
	assert.Equal(t, IntegrationType_Slack, providers[1].Provider)
	assert.Equal(t, IntegrationType_Stripe, providers[2].Provider)
}
