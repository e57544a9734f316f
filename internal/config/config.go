package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// OAuthClient holds a provider's OAuth application credentials used for
// refresh-token exchanges.
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Config holds all service configuration.
type Config struct {
	HTTPAddress string `mapstructure:"http_address"`

	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	// RedisAddress is optional; without it the token refresher falls back to
	// an in-process lock.
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`

	// WebhookBaseURL is the public base URL providers deliver events to.
	WebhookBaseURL string `mapstructure:"webhook_base_url"`

	// CallbackSigningSecret signs the stable callback URLs handed to
	// manual-setup providers.
	CallbackSigningSecret string `mapstructure:"callback_signing_secret"`

	ActionRunnerURL    string `mapstructure:"action_runner_url"`
	ActionRunnerAPIKey string `mapstructure:"action_runner_api_key"`

	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"`

	GmailPubSubTopic    string `mapstructure:"gmail_pubsub_topic"`
	GithubWebhookSecret string `mapstructure:"github_webhook_secret"`
	GitlabWebhookSecret string `mapstructure:"gitlab_webhook_secret"`

	// OAuthClients is keyed by provider name (google, microsoft, slack,
	// github, gitlab).
	OAuthClients map[string]OAuthClient `mapstructure:"oauth_clients"`
}

// LoadConfig loads configuration from files and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("CHAINREACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("chainreact")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.chainreact")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_address", ":8080")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "chainreact")
	v.SetDefault("refresh_threshold", "10m")
	v.SetDefault("sweep_schedule", "@every 30m")
}
