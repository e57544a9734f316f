package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// TriggerLifecycle manages GitHub repository webhooks.
type TriggerLifecycle struct {
	resolver      domain.CredentialResolver
	resources     domain.TriggerResourceStore
	webhookSecret string
	apiBaseURL    string
}

type TriggerLifecycleDependencies struct {
	CredentialResolver   domain.CredentialResolver
	TriggerResourceStore domain.TriggerResourceStore
	// WebhookSecret is set on created hooks so the ingress layer can verify
	// delivery signatures.
	WebhookSecret string
	// APIBaseURL overrides the GitHub API endpoint; tests point it at a fake.
	APIBaseURL string
}

func NewTriggerLifecycle(deps TriggerLifecycleDependencies) domain.TriggerLifecycle {
	return &TriggerLifecycle{
		resolver:      deps.CredentialResolver,
		resources:     deps.TriggerResourceStore,
		webhookSecret: deps.WebhookSecret,
		apiBaseURL:    deps.APIBaseURL,
	}
}

func (l *TriggerLifecycle) OnActivate(ctx context.Context, p domain.ActivateTriggerParams) error {
	owner, repo, err := repositoryFromConfig(p.Config)
	if err != nil {
		return err
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return err
	}

	client, err := l.client(ctx, integration)
	if err != nil {
		return err
	}

	// Remove the previous hook so re-activation replaces it.
	if existing, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Github, domain.TriggerResourceKindWebhook); err == nil && existing.ExternalID != "" {
		l.deleteHook(ctx, client, owner, repo, existing.ExternalID)
	}

	events := stringSlice(p.Config, "events")
	if len(events) == 0 {
		events = []string{"push"}
	}

	hook := &github.Hook{
		Active: github.Bool(true),
		Events: events,
		Config: map[string]interface{}{
			"url":          p.WebhookURL,
			"content_type": "json",
			"secret":       l.webhookSecret,
		},
	}

	created, _, err := client.Repositories.CreateHook(ctx, owner, repo, hook)
	if err != nil {
		return &domain.ExternalServiceError{Provider: domain.IntegrationType_Github, Op: "create hook", Err: err}
	}

	_, err = l.resources.UpsertTriggerResource(ctx, domain.TriggerResource{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.NodeID,
		Provider:   domain.IntegrationType_Github,
		Kind:       domain.TriggerResourceKindWebhook,
		ExternalID: strconv.FormatInt(created.GetID(), 10),
		Status:     domain.TriggerResourceStatusActive,
		Config: map[string]any{
			"repository": owner + "/" + repo,
			"events":     events,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store github trigger resource: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDeactivate(ctx context.Context, p domain.DeactivateTriggerParams) error {
	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Github, domain.TriggerResourceKindWebhook)
	if err == nil && resource.ExternalID != "" {
		repository := stringValue(resource.Config, "repository")
		owner, repo, found := strings.Cut(repository, "/")

		integration, err := l.connectedIntegration(ctx, p.UserID)
		if err != nil || !found {
			log.Warn().Err(err).
				Str("workflow_id", p.WorkflowID).
				Msg("Cannot reach github during deactivation, removing local resource only")
		} else if client, err := l.client(ctx, integration); err == nil {
			l.deleteHook(ctx, client, owner, repo, resource.ExternalID)
		}
	}

	if _, err := l.resources.DeleteTriggerResources(ctx, p.WorkflowID, domain.IntegrationType_Github); err != nil {
		return fmt.Errorf("failed to delete github trigger resources: %w", err)
	}

	return nil
}

func (l *TriggerLifecycle) OnDelete(ctx context.Context, p domain.DeactivateTriggerParams) error {
	return l.OnDeactivate(ctx, p)
}

func (l *TriggerLifecycle) CheckHealth(ctx context.Context, p domain.TriggerHealthParams) (domain.TriggerHealth, error) {
	now := time.Now()

	resource, err := l.resources.GetTriggerResource(ctx, p.WorkflowID, domain.IntegrationType_Github, domain.TriggerResourceKindWebhook)
	if errors.Is(err, domain.ErrTriggerResourceNotFound) {
		return domain.TriggerHealth{Details: "no github webhook registered", LastChecked: now}, nil
	}
	if err != nil {
		return domain.TriggerHealth{}, err
	}

	integration, err := l.connectedIntegration(ctx, p.UserID)
	if err != nil {
		return domain.TriggerHealth{Details: "github integration is not connected", LastChecked: now}, nil
	}

	repository := stringValue(resource.Config, "repository")
	owner, repo, found := strings.Cut(repository, "/")
	hookID, parseErr := strconv.ParseInt(resource.ExternalID, 10, 64)

	if found && parseErr == nil {
		client, err := l.client(ctx, integration)
		if err == nil {
			if _, _, err := client.Repositories.GetHook(ctx, owner, repo, hookID); err != nil {
				if isGithubNotFound(err) {
					resource.Status = domain.TriggerResourceStatusError
					if updateErr := l.resources.UpdateTriggerResource(ctx, resource); updateErr != nil {
						log.Warn().Err(updateErr).Msg("Failed to mark github trigger resource errored")
					}

					return domain.TriggerHealth{Details: "github webhook no longer exists", LastChecked: now}, nil
				}

				return domain.TriggerHealth{Details: fmt.Sprintf("github webhook check failed: %v", err), LastChecked: now}, nil
			}
		}
	}

	resource.LastCheckedAt = &now
	if err := l.resources.UpdateTriggerResource(ctx, resource); err != nil {
		log.Warn().Err(err).Msg("Failed to update github trigger resource check time")
	}

	return domain.TriggerHealth{Healthy: true, Details: "github webhook active", LastChecked: now}, nil
}

func (l *TriggerLifecycle) deleteHook(ctx context.Context, client *github.Client, owner string, repo string, externalID string) {
	hookID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return
	}

	if _, err := client.Repositories.DeleteHook(ctx, owner, repo, hookID); err != nil && !isGithubNotFound(err) {
		log.Warn().Err(err).
			Str("repository", owner+"/"+repo).
			Msg("Github webhook delete failed, continuing")
	}
}

func (l *TriggerLifecycle) connectedIntegration(ctx context.Context, userID string) (domain.Integration, error) {
	requirement := domain.CredentialRequirement{Provider: domain.IntegrationType_Github}

	resolution, err := l.resolver.Resolve(ctx, userID, []domain.CredentialRequirement{requirement})
	if err != nil {
		return domain.Integration{}, err
	}

	resolved, ok := resolution.CredentialFor(requirement)
	if !ok {
		return domain.Integration{}, fmt.Errorf("no connected github integration for user %s", userID)
	}

	return resolved.Integration, nil
}

func (l *TriggerLifecycle) client(ctx context.Context, integration domain.Integration) (*github.Client, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: integration.AccessSecret})
	client := github.NewClient(oauth2.NewClient(ctx, tokenSource))

	if l.apiBaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(l.apiBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api base url: %w", err)
		}

		client.BaseURL = baseURL
	}

	return client, nil
}

func isGithubNotFound(err error) bool {
	var errResponse *github.ErrorResponse
	return errors.As(err, &errResponse) && errResponse.Response != nil && errResponse.Response.StatusCode == 404
}

func repositoryFromConfig(config map[string]any) (string, string, error) {
	repository, ok := config["repository"].(string)
	if !ok || repository == "" {
		return "", "", domain.NewConfigurationError("github trigger requires a repository in owner/name form")
	}

	owner, repo, found := strings.Cut(repository, "/")
	if !found || owner == "" || repo == "" {
		return "", "", domain.NewConfigurationError("github repository %q is not in owner/name form", repository)
	}

	return owner, repo, nil
}

func stringValue(config map[string]any, key string) string {
	value, ok := config[key].(string)
	if !ok {
		return ""
	}

	return value
}

func stringSlice(config map[string]any, key string) []string {
	switch raw := config[key].(type) {
	case []string:
		return raw
	case []any:
		values := []string{}
		for _, item := range raw {
			if value, ok := item.(string); ok {
				values = append(values, value)
			}
		}

		return values
	default:
		return nil
	}
}
