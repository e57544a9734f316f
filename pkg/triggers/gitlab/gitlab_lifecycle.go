package gitlab

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/rs/zerolog/log"
	"github.com/xanzy/go-gitlab"
)

// TriggerLifecycle manages GitLab project hooks.
type TriggerLifecycle struct {
	resolver      domain.CredentialResolver
	resources     domain.TriggerResourceStore
	webhookSecret string
	baseURL       string
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
	// WebhookSecret becomes the hook token GitLab echoes on deliveries.
	WebhookSecret string
	// BaseURL overrides the GitLab API endpoint for self-hosted instances
	// and tests.
	BaseURL string
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:      deps.CredentialResolver,
		resources:     deps.TriggerResourceStore,
		webhookSecret: deps.WebhookSecret,
		baseURL:       deps.BaseURL,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	projectID, ok := p.Config["project_id"].(string)
	if !ok || projectID == "" {
		return domain.NewConfigurationError("gitlab trigger requires a project_id")
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return err
	}

	client, err := l.client(integration)
	if err != nil {
		return err
	}

	if existing, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Gitlab, domain.TriggerResourceKindWebhook); err == nil && existing.ExternalID != "" {
		l.deleteHook(ctx, client, projectID, existing.ExternalID)
	}

	opts := &gitlab.AddProjectHookOptions{
		URL:                 gitlab.Ptr(p.WebhookURL),
		Token:               gitlab.Ptr(l.webhookSecret),
		PushEvents:          gitlab.Ptr(boolValue(p.Config, "push_events", true)),
		IssuesEvents:        gitlab.Ptr(boolValue(p.Config, "issues_events", false)),
		MergeRequestsEvents: gitlab.Ptr(boolValue(p.Config, "merge_requests_events", false)),
		TagPushEvents:       gitlab.Ptr(boolValue(p.Config, "tag_push_events", false)),
	}

	hook, _, err := client.Projects.AddProjectHook(projectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return &domain.ExternalServiceError{Provider: domain.IntegrationType_Gitlab, Op: "add project hook", Err: err}
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_Gitlab,
		Kind:       domain.TriggerResourceKindWebhook,
		ExternalID: strconv.Itoa(hook.ID),
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"project_id": projectID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store gitlab trigger resource: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Gitlab, domain.TriggerResourceKindWebhook)
	if err == nil && resource.ExternalID != "" {
		projectID := stringValue(resource.Config, "project_id")

		integration, err := l.connectedIntegration(ctx, p.UserID)
		if err != nil || projectID == "" {
			log.Warn().Err(err).
				Str("workflow_id", p.WorkflowID).
				Msg("Cannot reach gitlab during deactivation, removing local resource only")
		} else if client, err := l.client(integration); err == nil {
			l.deleteHook(ctx, client, projectID, resource.ExternalID)
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_Gitlab); err != nil {
		return fmt.Errorf("failed to delete gitlab trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Gitlab, domain.TriggerResourceKindWebhook)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no gitlab hook registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return domain.TriggerHealth{Details: "gitlab integration is not connected", LastChecked: now}, nil
	}

	projectID := stringValue(resource.Config, "project_id")
	hookID, parseErr := strconv.Atoi(resource.ExternalID)

	if projectID != "" && parseErr == nil {
		client, err := l.client(integration)
		if err == nil {
			if _, response, err := client.Projects.GetProjectHook(projectID, hookID, gitlab.WithContext(ctx)); err != nil {
				if response != nil && response.StatusCode == 404 {
					resource.Status = domain.TriggerResourceStatusError
					if updateErr := l.resources.UpdateTriggerResource(ctx, resource); updateErr != nil {
						log.Warn().Err(updateErr).Msg("Failed to mark gitlab trigger resource errored")
					}

					return domain.TriggerHealth{Details: "gitlab hook no longer exists", LastChecked: now}, nil
				}

				return domain.TriggerHealth{Details: fmt.Sprintf("gitlab hook check failed: %v", err), LastChecked: now}, nil
			}
		}
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update gitlab trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "gitlab hook active", LastChecked: now}, nil
}

func (l *TriggerLifecycle) deleteHook(ctx context.Context, client *gitlab.Client, projectID string, externalID string) {
	hookID, err := strconv.Atoi(externalID)
	if err != nil {
		return
	}

	response, err := client.Projects.DeleteProjectHook(projectID, hookID, gitlab.WithContext(ctx))
	if err != nil && (response == nil || response.StatusCode != 404) {
		log.Warn().Err(err).
			Str("project_id", projectID).
			Msg("Gitlab hook delete failed, continuing")
	}
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_Gitlab}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected gitlab integration for user %s", userID)
	}

	return resolved.Integration, nil
}

func (l *TriggerLifecycle) client(integration domain.Integration) (*gitlab.Client, error) {
	opts := []gitlab.ClientOptionFunc{}
	if l.baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(l.baseURL))
	}

	client, err := gitlab.NewOAuthClient(integration.AccessSecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}

	return client, nil
}

func stringValue(config map[string]any, key string) string {
	value, ok := config[key].(string)
	if !ok {
		return ""
	}

	return value
}

func boolValue(config map[string]any, key string, fallback bool) bool {
	value, ok := config[key].(bool)
	if !ok {
		return fallback
	}

	return value
}
