package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainreact/chainreact/internal/config"
	"github.com/chainreact/chainreact/internal/controllers"
	"github.com/chainreact/chainreact/internal/managers"
	"github.com/chainreact/chainreact/internal/server"
	mongostorage "github.com/chainreact/chainreact/internal/storage/mongo"
	"github.com/chainreact/chainreact/internal/sweeper"
	"github.com/chainreact/chainreact/pkg/clients/actionrunner"
	"github.com/chainreact/chainreact/pkg/domain"
	"github.com/chainreact/chainreact/pkg/domain/executor"
	githubtrigger "github.com/chainreact/chainreact/pkg/triggers/github"
	gitlabtrigger "github.com/chainreact/chainreact/pkg/triggers/gitlab"
	"github.com/chainreact/chainreact/pkg/triggers/gmail"
	"github.com/chainreact/chainreact/pkg/triggers/googlecalendar"
	"github.com/chainreact/chainreact/pkg/triggers/msgraph"
	slacktrigger "github.com/chainreact/chainreact/pkg/triggers/slack"
	stripetrigger "github.com/chainreact/chainreact/pkg/triggers/stripe"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ChainReact service",
		Long:  `Start the HTTP server, the trigger health sweeper and all provider trigger lifecycles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := mongostorage.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}

	integrations := mongostorage.NewIntegrationStore(db)
	triggerResources := mongostorage.NewTriggerResourceStore(db)
	executions := mongostorage.NewExecutionRecordStore(db)
	workflows := mongostorage.NewWorkflowStore(db)

	var locker managers.RefreshLocker
	if cfg.RedisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
		})
		locker = managers.NewRedisRefreshLocker(redisClient)

		log.Info().Str("address", cfg.RedisAddress).Msg("Using Redis refresh lock")
	} else {
		locker = managers.NewMutexRefreshLocker()

		log.Info().Msg("Redis not configured, using in-process refresh lock")
	}

	refresher := managers.NewOAuthTokenRefresher(managers.OAuthTokenRefresherDependencies{
		IntegrationStore: integrations,
		Clients:          oauthClients(cfg),
		RefreshLocker:    locker,
	})

	resolver := managers.NewCredentialResolver(managers.CredentialResolverDependencies{
		IntegrationStore:    integrations,
		ShareStore:          integrations,
		TeamMembershipStore: integrations,
		TokenRefresher:      refresher,
		RefreshThreshold:    cfg.RefreshThreshold,
	})

	signer := managers.NewCallbackURLSigner(managers.CallbackURLSignerDependencies{
		BaseURL:       cfg.WebhookBaseURL,
		SigningSecret: cfg.CallbackSigningSecret,
	})

	registry := buildTriggerRegistry(cfg, resolver, triggerResources, signer)

	engine := executor.NewEngine(executor.EngineDependencies{
		WorkflowStore:        workflows,
		ExecutionRecordStore: executions,
		CredentialResolver:   resolver,
		ActionExecutor: actionrunner.NewClient(
			actionrunner.WithBaseURL(cfg.ActionRunnerURL),
			actionrunner.WithAPIKey(cfg.ActionRunnerAPIKey),
		),
	})

	activation := managers.NewActivationManager(managers.ActivationManagerDependencies{
		Registry:       registry,
		WorkflowStore:  workflows,
		WebhookBaseURL: cfg.WebhookBaseURL,
	})

	healthSweeper := sweeper.NewHealthSweeper(sweeper.HealthSweeperDependencies{
		TriggerLifecycleRegistry: registry,
		TriggerResourceStore:     triggerResources,
		WebhookBaseURL:           cfg.WebhookBaseURL,
		Schedule:                 cfg.SweepSchedule,
	})

	if err := healthSweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start trigger health sweeper")
	}
	defer healthSweeper.Stop()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		ExecutionController: controllers.NewExecutionController(controllers.ExecutionControllerDependencies{
			Engine:               engine,
			ExecutionRecordStore: executions,
		}),
		TriggerController: controllers.NewTriggerController(controllers.TriggerControllerDependencies{
			ActivationManager:        activation,
			TriggerLifecycleRegistry: registry,
		}),
	})

	log.Info().Str("address", cfg.HTTPAddress).Msg("Starting ChainReact service")

	if err := app.Listen(cfg.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("ChainReact service stopped")

	return nil
}

func buildTriggerRegistry(
	cfg *config.Config,
	resolver domain.CredentialResolver,
	triggerResources domain.TriggerResourceStore,
	signer *managers.CallbackURLSigner,
) domain.TriggerLifecycleRegistry {
	registry := domain.NewTriggerLifecycleRegistry()

	registry.Register(domain.IntegrationType_Gmail, gmail.NewTriggerLifecycle(gmail.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
		PubSubTopic:          cfg.GmailPubSubTopic,
	}), "Gmail mailbox events via users.watch")

	registry.Register(domain.IntegrationType_GoogleCalendar, googlecalendar.NewTriggerLifecycle(googlecalendar.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
	}), "Google Calendar event changes via watch channels")

	graphLifecycle := msgraph.NewTriggerLifecycle(msgraph.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
	})
	for _, provider := range msgraph.Providers() {
		registry.Register(provider, graphLifecycle, "Microsoft Graph change notifications")
	}

	registry.Register(domain.IntegrationType_Github, githubtrigger.NewTriggerLifecycle(githubtrigger.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
		WebhookSecret:        cfg.GithubWebhookSecret,
	}), "GitHub repository webhooks")

	registry.Register(domain.IntegrationType_Gitlab, gitlabtrigger.NewTriggerLifecycle(gitlabtrigger.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
		WebhookSecret:        cfg.GitlabWebhookSecret,
	}), "GitLab project hooks")

	registry.Register(domain.IntegrationType_Stripe, stripetrigger.NewTriggerLifecycle(stripetrigger.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
	}), "Stripe webhook endpoints")

	registry.Register(domain.IntegrationType_Slack, slacktrigger.NewTriggerLifecycle(slacktrigger.TriggerLifecycleDependencies{
		CredentialResolver:   resolver,
		TriggerResourceStore: triggerResources,
		CallbackURLSigner:    signer,
	}), "Slack Events API (manual app setup)")

	return registry
}

func oauthClients(cfg *config.Config) map[domain.IntegrationType]managers.OAuthClientConfig {
	clients := map[domain.IntegrationType]managers.OAuthClientConfig{}

	assign := func(name string, providers ...domain.IntegrationType) {
		oc, ok := cfg.OAuthClients[name]
		if !ok {
			return
		}

		for _, provider := range providers {
			clients[provider] = managers.OAuthClientConfig{
				ClientID:     oc.ClientID,
				ClientSecret: oc.ClientSecret,
			}
		}
	}

	assign("google", domain.IntegrationType_Gmail, domain.IntegrationType_GoogleCalendar)
	assign("microsoft",
		domain.IntegrationType_OutlookMail,
		domain.IntegrationType_OutlookCalendar,
		domain.IntegrationType_Teams,
		domain.IntegrationType_OneDrive,
	)
	assign("slack", domain.IntegrationType_Slack)
	assign("github", domain.IntegrationType_Github)
	assign("gitlab", domain.IntegrationType_Gitlab)

	return clients
}
