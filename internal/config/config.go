// Package config loads application configuration from environment
// variables (optionally seeded from a .env file) into a validated struct.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

// Config holds all application configuration, grouped by concern.
type Config struct {
	AppEnv      string        `mapstructure:"app_env" validate:"required,oneof=dev staging prod"`
	Port        string        `mapstructure:"port" validate:"required"`
	DatabaseURL string        `mapstructure:"database_url" validate:"required"`
	JWTSecret   string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	AccessTTL   time.Duration `mapstructure:"access_ttl" validate:"required"`
	RefreshTTL  time.Duration `mapstructure:"refresh_ttl" validate:"required"`

	AdminEmail    string `mapstructure:"admin_email" validate:"omitempty,email"`
	AdminPassword string `mapstructure:"admin_password"`

	SupabaseURL    string `mapstructure:"supabase_url"`
	SupabaseKey    string `mapstructure:"supabase_service_key"`
	SupabaseBucket string `mapstructure:"supabase_bucket"`

	TamaraAPIURL            string `mapstructure:"tamara_api_url"`
	TamaraAPIToken          string `mapstructure:"tamara_api_token"`
	TamaraNotificationToken string `mapstructure:"tamara_notification_token"`

	GoogleClientID string `mapstructure:"google_client_id"`

	MailAPIURL  string `mapstructure:"mail_api_url"`
	MailAPIKey  string `mapstructure:"mail_api_key"`
	MailFrom    string `mapstructure:"mail_from"`
	FrontendURL string `mapstructure:"frontend_url"`

	// Public base URL of this backend, used for gateway callbacks.
	BackendURL string `mapstructure:"backend_url"`
}

// WebhookBaseURL is where the payment gateway should deliver order
// notifications. Falls back to the frontend origin for deployments that
// proxy /api through it.
func (c *Config) WebhookBaseURL() string {
	if c.BackendURL != "" {
		return c.BackendURL
	}
	return c.FrontendURL
}

// Load reads configuration from the environment. Environment variables use
// upper snake case matching the mapstructure tags (PORT, DATABASE_URL, ...).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app_env", "dev")
	v.SetDefault("port", "3000")
	v.SetDefault("access_ttl", "15m")
	v.SetDefault("refresh_ttl", "168h")
	v.SetDefault("tamara_api_url", "https://api-sandbox.tamara.co")
	v.SetDefault("frontend_url", "http://localhost:5173")

	v.AutomaticEnv()
	// AutomaticEnv alone does not surface env vars through Unmarshal, so
	// bind each key explicitly.
	for _, key := range []string{
		"app_env", "port", "database_url", "jwt_secret",
		"access_ttl", "refresh_ttl",
		"admin_email", "admin_password",
		"supabase_url", "supabase_service_key", "supabase_bucket",
		"tamara_api_url", "tamara_api_token", "tamara_notification_token",
		"google_client_id",
		"mail_api_url", "mail_api_key", "mail_from", "frontend_url",
		"backend_url",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if errs, err := validation.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	} else if errs != nil {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}

	return &cfg, nil
}
