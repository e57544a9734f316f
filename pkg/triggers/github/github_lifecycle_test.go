package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/chainreact/chainreact/internal/storage/memory"
	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	integration domain.Integration
}

func (r *staticResolver) Resolve(ctx context.Context, userID string, requirements []domain.CredentialRequirement) (domain.CredentialResolution, error) {
	resolution := domain.CredentialResolution{ByKey: map[string]domain.ResolvedCredential{}}

	for _, requirement := range requirements {
		resolution.ByKey[requirement.Key()] = domain.ResolvedCredential{
			Requirement: requirement,
			Integration: r.integration,
			Valid:       true,
		}
	}

	return resolution, nil
}

// fakeGithub emulates the hook endpoints of the repositories API.
type fakeGithub struct {
	nextHookID int64
	created    atomic.Int64
	deleted    atomic.Int64
	hooks      map[int64]map[string]any
}

func newFakeGithub() *fakeGithub {
	return &fakeGithub{nextHookID: 100, hooks: map[int64]map[string]any{}}
}

func (f *fakeGithub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /repos/{owner}/{repo}/hooks", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.nextHookID++
		f.created.Add(1)
		f.hooks[f.nextHookID] = body

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": %d, "active": true}`, f.nextHookID)
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/hooks/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": %s, "active": true}`, r.PathValue("id"))
	})

	mux.HandleFunc("DELETE /repos/{owner}/{repo}/hooks/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deleted.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func newGithubLifecycle(t *testing.T, resources domain.TriggerResourceStore) (domain.TriggerLifecycle, *fakeGithub) {
	fake := newFakeGithub()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	lifecycle := NewTriggerLifecycle(TriggerLifecycleDependencies{
		CredentialResolver: &staticResolver{
			integration: domain.Integration{
				ID:           "int_1",
				Provider:     domain.IntegrationType_Github,
				Status:       domain.IntegrationStatusConnected,
				AccessSecret: "gho_token",
			},
		},
		TriggerResourceStore: resources,
		WebhookSecret:        "hook-secret",
		APIBaseURL:           server.URL,
	})

	return lifecycle, fake
}

func TestTriggerLifecycle_OnActivateCreatesHook(t *testing.T) {
	resources := memory.NewTriggerResourceStore()
	lifecycle, fake := newGithubLifecycle(t, resources)

	err := lifecycle.OnActivate(context.Background(), domain.ActivateTriggerParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		NodeID:     "trigger",
		Config:     map[string]any{"repository": "acme/widgets"},
		WebhookURL: "https://hooks.example.com/hooks/wf_1/github",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), fake.created.Load())

	resource, err := resources.GetTriggerResource(context.Background(), "wf_1", domain.IntegrationType_Github, domain.TriggerResourceKindWebhook)
	require.NoError(t, err)

	assert.Equal(t, "101", resource.ExternalID)
	assert.Equal(t, "acme/widgets", resource.Config["repository"])
	assert.Equal(t, []string{"push"}, resource.Config["events"])

	hook := fake.hooks[101]
	config, ok := hook["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/hooks/wf_1/github", config["url"])
	assert.Equal(t, "hook-secret", config["secret"])
}

func TestTriggerLifecycle_ReactivationReplacesHook(t *testing.T) {
	resources := memory.NewTriggerResourceStore()
	lifecycle, fake := newGithubLifecycle(t, resources)

	params := domain.ActivateTriggerParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Config:     map[string]any{"repository": "acme/widgets", "events": []string{"push", "pull_request"}},
		WebhookURL: "https://hooks.example.com/hooks/wf_1/github",
	}

	require.NoError(t, lifecycle.OnActivate(context.Background(), params))
	require.NoError(t, lifecycle.OnActivate(context.Background(), params))

	// The first hook is torn down before the replacement is registered.
	assert.Equal(t, int64(2), fake.created.Load())
	assert.Equal(t, int64(1), fake.deleted.Load())

	stored, err := resources.ListTriggerResourcesByWorkflow(context.Background(), "wf_1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "102", stored[0].ExternalID)
}

func TestTriggerLifecycle_OnActivateRejectsBadRepository(t *testing.T) {
	lifecycle, fake := newGithubLifecycle(t, memory.NewTriggerResourceStore())

	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing repository", config: map[string]any{}},
		{name: "no owner", config: map[string]any{"repository": "widgets"}},
		{name: "empty name", config: map[string]any{"repository": "acme/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lifecycle.OnActivate(context.Background(), domain.ActivateTriggerParams{
				WorkflowID: "wf_1",
				UserID:     "user_1",
				Config:     tt.config,
			})

			var configErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &configErr)
		})
	}

	assert.Equal(t, int64(0), fake.created.Load())
}

func TestTriggerLifecycle_OnDeactivateRemovesHookAndResource(t *testing.T) {
	resources := memory.NewTriggerResourceStore()
	lifecycle, fake := newGithubLifecycle(t, resources)

	require.NoError(t, lifecycle.OnActivate(context.Background(), domain.ActivateTriggerParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Config:     map[string]any{"repository": "acme/widgets"},
		WebhookURL: "https://hooks.example.com/hooks/wf_1/github",
	}))

	err := lifecycle.OnDeactivate(context.Background(), domain.DeactivateTriggerParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), fake.deleted.Load())

	stored, err := resources.ListTriggerResourcesByWorkflow(context.Background(), "wf_1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestTriggerLifecycle_CheckHealth(t *testing.T) {
	resources := memory.NewTriggerResourceStore()
	lifecycle, _ := newGithubLifecycle(t, resources)

	require.NoError(t, lifecycle.OnActivate(context.Background(), domain.ActivateTriggerParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
		Config:     map[string]any{"repository": "acme/widgets"},
		WebhookURL: "https://hooks.example.com/hooks/wf_1/github",
	}))

	health, err := lifecycle.CheckHealth(context.Background(), domain.TriggerHealthParams{
		WorkflowID: "wf_1",
		UserID:     "user_1",
	})
	require.NoError(t, err)

	assert.True(t, health.Healthy)
	assert.Equal(t, "github webhook active", health.Details)
}
