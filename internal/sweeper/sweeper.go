package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

// ExpiryRenewalWindow is how far ahead of a subscription's expiry the sweep
// re-registers it.
const ExpiryRenewalWindow = 12 * time.Hour

// HealthSweeper periodically walks the active trigger resources, checks
// each one's health against the provider and renews subscriptions that are
// close to expiring.
type HealthSweeper struct {
	registry   domain.TriggerLifecycleRegistry
	resources  domain.TriggerResourceStore
	webhookURL string
	schedule   string
	cron       *cron.Cron
}

type HealthSweeperDependencies struct {
	TriggerLifecycleRegistry domain.TriggerLifecycleRegistry
	TriggerResourceStore     domain.TriggerResourceStore
	// WebhookBaseURL rebuilds delivery URLs for renewals.
	WebhookBaseURL string
	// Schedule is a cron spec, e.g. "@every 30m".
	Schedule string
}

func NewHealthSweeper(deps HealthSweeperDependencies) *HealthSweeper {
	return &HealthSweeper{
		registry:   deps.TriggerLifecycleRegistry,
		resources:  deps.TriggerResourceStore,
		webhookURL: deps.WebhookBaseURL,
		schedule:   deps.Schedule,
	}
}

func (s *HealthSweeper) Start() error {
	c := cron.New()

	if err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule trigger health sweep: %w", err)
	}

	c.Start()
	s.cron = c

	log.Info().Str("schedule", s.schedule).Msg("Trigger health sweeper started")

	return nil
}

func (s *HealthSweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one pass over all active trigger resources. Failures on one
// resource never stop the pass.
func (s *HealthSweeper) Sweep(ctx context.Context) {
	resources, err := s.resources.ListActiveTriggerResources(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Trigger health sweep failed to list resources")
		return
	}

	for _, resource := range resources {
		s.sweepResource(ctx, resource)
	}
}

func (s *HealthSweeper) sweepResource(ctx context.Context, resource domain.TriggerResource) {
	lifecycle, err := s.registry.Get(resource.Provider)
	if err != nil {
		log.Warn().
			Str("provider", string(resource.Provider)).
			Str("workflow_id", resource.WorkflowID).
			Msg("No lifecycle registered for active trigger resource, skipping")
		return
	}

	health, err := lifecycle.CheckHealth(ctx, domain.TriggerHealthParams{
		WorkflowID: resource.WorkflowID,
		UserID:     resource.UserID,
		Provider:   resource.Provider,
	})
	if err != nil {
		log.Error().Err(err).
			Str("provider", string(resource.Provider)).
			Str("workflow_id", resource.WorkflowID).
			Msg("Trigger health check failed")
		return
	}

	if !health.Healthy {
		log.Warn().
			Str("provider", string(resource.Provider)).
			Str("workflow_id", resource.WorkflowID).
			Str("details", health.Details).
			Msg("Trigger resource unhealthy")
		return
	}

	if s.needsRenewal(resource, health) {
		s.renew(ctx, lifecycle, resource)
	}
}

func (s *HealthSweeper) needsRenewal(resource domain.TriggerResource, health domain.TriggerHealth) bool {
	expiresAt := resource.ExpiresAt
	if health.ExpiresAt != nil {
		expiresAt = health.ExpiresAt
	}

	if expiresAt == nil {
		return false
	}

	return time.Until(*expiresAt) < ExpiryRenewalWindow
}

// renew re-runs activation with the parameters stored on the resource, which
// replaces the provider-side subscription and extends its expiry.
func (s *HealthSweeper) renew(ctx context.Context, lifecycle domain.TriggerLifecycle, resource domain.TriggerResource) {
	params := domain.ActivateTriggerParams{
		WorkflowID: resource.WorkflowID,
		UserID:     resource.UserID,
		NodeID:     resource.NodeID,
		Provider:   resource.Provider,
		Config:     resource.Config,
		WebhookURL: fmt.Sprintf("%s/hooks/%s/%s", s.webhookURL, resource.WorkflowID, resource.Provider),
	}

	if err := lifecycle.OnActivate(ctx, params); err != nil {
		log.Error().Err(err).
			Str("provider", string(resource.Provider)).
			Str("workflow_id", resource.WorkflowID).
			Msg("Trigger subscription renewal failed")
		return
	}

	log.Info().
		Str("provider", string(resource.Provider)).
		Str("workflow_id", resource.WorkflowID).
		Msg("Trigger subscription renewed")
}
