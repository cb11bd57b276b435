package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration (file + .env + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
		LogJSON  bool   `mapstructure:"log_json"`
	} `mapstructure:"server"`

	API struct {
		BaseURL           string `mapstructure:"base_url"`
		TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
		SessionCookieName string `mapstructure:"session_cookie_name"`
		SessionCookie     string `mapstructure:"session_cookie"`
		BearerToken       string `mapstructure:"bearer_token"`
	} `mapstructure:"api"`

	History struct {
		RefreshSeconds int `mapstructure:"refresh_seconds"`
	} `mapstructure:"history"`
}

var keys = []string{
	"server.addr", "server.log_level", "server.log_json",
	"api.base_url", "api.timeout_seconds", "api.session_cookie_name", "api.session_cookie", "api.bearer_token",
	"history.refresh_seconds",
}

// Load reads configs/application.yaml when present, then .env files, then
// APP_* environment variables (APP_API_BASE_URL overrides api.base_url).
func Load(envFiles ...string) Config {
	_ = godotenv.Load(envFiles...) // optional; real env wins over .env

	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5000/api"
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 15
	}
	if c.API.SessionCookieName == "" {
		c.API.SessionCookieName = "connect.sid"
	}
	if c.History.RefreshSeconds < 0 {
		c.History.RefreshSeconds = 0
	}
}

func (c Config) Timeout() time.Duration { return time.Duration(c.API.TimeoutSeconds) * time.Second }

// RefreshInterval is zero when periodic history refresh is disabled.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.History.RefreshSeconds) * time.Second
}
