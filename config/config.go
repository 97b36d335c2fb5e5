/*
Package config loads server settings.

SOURCES (later wins):
  1. defaults below
  2. config.yaml in the working directory, if present
  3. .env in the working directory, if present (copied into the environment)
  4. environment variables: REWARDS_PORT, REWARDS_DB, REWARDS_CORS_ORIGINS,
     REWARDS_RESET_COOLDOWN, REWARDS_AUDIT_INTERVAL, JWT_SECRET and
     ASSISTANT_PROVIDER, ASSISTANT_MODEL, ASSISTANT_API_KEY
  5. command-line flags, applied by cmd/server

JWT_SECRET has no default; the server refuses to start without it. The
assistant stays off unless a provider (openai or gemini) and key are set.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           int
	DBPath         string
	JWTSecret      string
	AllowedOrigins []string
	ResetCooldown  time.Duration
	AuditInterval  time.Duration // zero disables the ledger audit

	AssistantProvider string
	AssistantModel    string
	AssistantAPIKey   string
}

// Load reads configuration from dir (the working directory when empty).
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	if err := godotenv.Load(dir + "/.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "rewards.db")
	v.SetDefault("cors.origins", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("auth.reset_cooldown", "60s")
	v.SetDefault("audit.interval", "1h")

	v.SetEnvPrefix("REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bind(v, "server.port", "REWARDS_PORT")
	bind(v, "database.path", "REWARDS_DB")
	bind(v, "cors.origins", "REWARDS_CORS_ORIGINS")
	bind(v, "auth.reset_cooldown", "REWARDS_RESET_COOLDOWN")
	bind(v, "audit.interval", "REWARDS_AUDIT_INTERVAL")
	bind(v, "auth.jwt_secret", "JWT_SECRET")
	bind(v, "assistant.provider", "ASSISTANT_PROVIDER")
	bind(v, "assistant.model", "ASSISTANT_MODEL")
	bind(v, "assistant.api_key", "ASSISTANT_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if !errors.As(err, &missing) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetInt("server.port"),
		DBPath:         v.GetString("database.path"),
		JWTSecret:      v.GetString("auth.jwt_secret"),
		AllowedOrigins: splitList(v.GetString("cors.origins")),
		ResetCooldown:  v.GetDuration("auth.reset_cooldown"),
		AuditInterval:  v.GetDuration("audit.interval"),

		AssistantProvider: strings.ToLower(v.GetString("assistant.provider")),
		AssistantModel:    v.GetString("assistant.model"),
		AssistantAPIKey:   v.GetString("assistant.api_key"),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.ResetCooldown < 0 {
		return fmt.Errorf("invalid reset cooldown %s", c.ResetCooldown)
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("invalid audit interval %s", c.AuditInterval)
	}
	switch c.AssistantProvider {
	case "":
	case "openai", "gemini":
		if c.AssistantAPIKey == "" {
			return fmt.Errorf("ASSISTANT_API_KEY is required for the %s assistant", c.AssistantProvider)
		}
	default:
		return fmt.Errorf("unknown assistant provider %q", c.AssistantProvider)
	}
	return nil
}

func bind(v *viper.Viper, key, env string) {
	// BindEnv only fails when given no key.
	_ = v.BindEnv(key, env)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
