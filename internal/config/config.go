// Package config loads server settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/taskcal/internal/backup"
	"github.com/dukerupert/taskcal/internal/llm"
	"github.com/dukerupert/taskcal/internal/push"
)

const EnvPrefix = "TASKCAL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Timezone string         `mapstructure:"timezone"`
	Session  SessionConfig  `mapstructure:"session"`
	AI       AIConfig       `mapstructure:"ai"`
	Google   GoogleConfig   `mapstructure:"google"`
	Push     PushConfig     `mapstructure:"push"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	GitHubToken   string           `mapstructure:"github_token"`
	ChatBaseURL   string           `mapstructure:"chat_base_url"`
	GeminiAPIKey  string           `mapstructure:"gemini_api_key"`
	GeminiBaseURL string           `mapstructure:"gemini_base_url"`
	DefaultModel  string           `mapstructure:"default_model"`
	FallbackModel string           `mapstructure:"fallback_model"`
	MaxTokens     int              `mapstructure:"max_tokens"`
	Temperature   float64          `mapstructure:"temperature"`
	Timeout       time.Duration    `mapstructure:"timeout"`
	RateLimit     int              `mapstructure:"rate_limit"`
	RateWindow    time.Duration    `mapstructure:"rate_window"`
	Routes        []llm.ModelRoute `mapstructure:"routes"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	CalendarID   string `mapstructure:"calendar_id"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	Subscriber      string        `mapstructure:"subscriber"`
	Interval        time.Duration `mapstructure:"interval"`
	ReminderLead    time.Duration `mapstructure:"reminder_lead"`
	DeadlineLead    time.Duration `mapstructure:"deadline_lead"`
}

type BackupConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Prefix        string        `mapstructure:"prefix"`
	Passphrase    string        `mapstructure:"passphrase"`
	Interval      time.Duration `mapstructure:"interval"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// defaults is the single source for default values and for the file written
// by WriteDefault. Every key must appear here for environment overrides to
// reach it.
func defaults() map[string]any {
	routes := make([]map[string]any, 0, len(llm.DefaultRoutes()))
	for _, r := range llm.DefaultRoutes() {
		routes = append(routes, map[string]any{"model": r.Model, "backend": string(r.Backend)})
	}
	return map[string]any{
		"server": map[string]any{
			"port":            8080,
			"base_url":        "http://localhost:8080",
			"allowed_origins": []string{},
			"secure_cookies":  false,
		},
		"database": map[string]any{"path": "taskcal.db"},
		"log":      map[string]any{"level": "info", "format": "text"},
		"timezone": "UTC",
		"session":  map[string]any{"ttl": "720h"},
		"ai": map[string]any{
			"github_token":    "",
			"chat_base_url":   llm.GitHubModelsURL,
			"gemini_api_key":  "",
			"gemini_base_url": "",
			"default_model":   llm.DefaultModel,
			"fallback_model":  llm.DefaultFallbackModel,
			"max_tokens":      llm.DefaultMaxTokens,
			"temperature":     llm.DefaultTemperature,
			"timeout":         "60s",
			"rate_limit":      20,
			"rate_window":     "1m",
			"routes":          routes,
		},
		"google": map[string]any{
			"client_id":     "",
			"client_secret": "",
			"redirect_url":  "http://localhost:8080/auth/google/callback",
			"calendar_id":   "primary",
		},
		"push": map[string]any{
			"vapid_public_key":  "",
			"vapid_private_key": "",
			"subscriber":        "",
			"interval":          "1m",
			"reminder_lead":     "15m",
			"deadline_lead":     "1h",
		},
		"backup": map[string]any{
			"endpoint":       "",
			"bucket":         "",
			"region":         "us-east-1",
			"access_key":     "",
			"secret_key":     "",
			"prefix":         "taskcal",
			"passphrase":     "",
			"interval":       "0s",
			"retention_days": 30,
		},
	}
}

// legacyEnv lists environment names accepted in addition to the
// TASKCAL_-prefixed form.
var legacyEnv = map[string]string{
	"ai.github_token":      "GITHUB_TOKEN",
	"ai.gemini_api_key":    "GEMINI_API_KEY",
	"google.client_id":     "GOOGLE_CLIENT_ID",
	"google.client_secret": "GOOGLE_CLIENT_SECRET",
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Load reads configuration. An explicit path must exist; otherwise
// ./taskcal.yaml and $HOME/.config/taskcal/taskcal.yaml are tried and may be
// absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, "", defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskcal")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "taskcal"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port: %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		add("database.path: required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level: unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format: must be text or json, got %q", c.Log.Format)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		add("timezone: %v", err)
	}
	if c.Session.TTL <= 0 {
		add("session.ttl: must be positive")
	}

	if err := llm.ValidateRoutes(c.AI.Routes, c.AI.DefaultModel, c.AI.FallbackModel); err != nil {
		add("ai.routes: %v", err)
	}
	if c.AI.MaxTokens <= 0 {
		add("ai.max_tokens: must be positive")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		add("ai.temperature: %.2f out of range [0, 2]", c.AI.Temperature)
	}
	if c.AI.RateLimit <= 0 || c.AI.RateWindow <= 0 {
		add("ai.rate_limit/ai.rate_window: must be positive")
	}

	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		add("google: client_id and client_secret must be set together")
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		add("push: vapid_public_key and vapid_private_key must be set together")
	}
	if c.Backup.Bucket != "" && c.Backup.Passphrase == "" {
		add("backup.passphrase: required when backup.bucket is set")
	}
	if c.Backup.Interval < 0 {
		add("backup.interval: must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RouterConfig is the model routing section in the form llm.NewRouter takes.
func (c *Config) RouterConfig() llm.RouterConfig {
	return llm.RouterConfig{
		Routes:        c.AI.Routes,
		DefaultModel:  c.AI.DefaultModel,
		FallbackModel: c.AI.FallbackModel,
		MaxTokens:     c.AI.MaxTokens,
		Temperature:   float32(c.AI.Temperature),
	}
}

func (c *Config) BackupConfig() backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  c.Backup.Endpoint,
			Bucket:    c.Backup.Bucket,
			Region:    c.Backup.Region,
			AccessKey: c.Backup.AccessKey,
			SecretKey: c.Backup.SecretKey,
			Prefix:    c.Backup.Prefix,
		},
		Passphrase:    c.Backup.Passphrase,
		Interval:      c.Backup.Interval,
		RetentionDays: c.Backup.RetentionDays,
	}
}

func (c *Config) PushConfig() push.Config {
	return push.Config{
		VAPIDPublicKey:  c.Push.VAPIDPublicKey,
		VAPIDPrivateKey: c.Push.VAPIDPrivateKey,
		Subscriber:      c.Push.Subscriber,
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// WriteDefault writes a default configuration file. It refuses
// to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := yaml.Marshal(defaults())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	header := []byte("# taskcal configuration. Environment variables TASKCAL_<SECTION>_<KEY> override these values.\n")
	if err := os.WriteFile(path, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
