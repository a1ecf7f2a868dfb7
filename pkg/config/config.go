package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rahul/aitester/internal/planner"
)

const EnvPrefix = "AITESTER"

type Config struct {
	Planner  PlannerConfig  `mapstructure:"planner"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Log      LogConfig      `mapstructure:"log"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Gateways GatewaysConfig `mapstructure:"gateways"`
}

type PlannerConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	// FunctionResponses appends a structured action result to every
	// feedback turn.
	FunctionResponses bool `mapstructure:"function_responses"`
}

type BrowserConfig struct {
	Backend           string         `mapstructure:"backend"`
	Headless          bool           `mapstructure:"headless"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout"`
	Viewport          ViewportConfig `mapstructure:"viewport"`
	// ControlURL attaches the rod backend to an already running browser.
	ControlURL string `mapstructure:"control_url"`
}

type ViewportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type CaptureConfig struct {
	Dir string `mapstructure:"dir"`
}

type PolicyConfig struct {
	FatalNavigation bool     `mapstructure:"fatal_navigation"`
	DenyActions     []string `mapstructure:"deny_actions"`
	DenyHosts       []string `mapstructure:"deny_hosts"`
	DenyPatterns    []string `mapstructure:"deny_patterns"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

type GatewaysConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Token        string  `mapstructure:"token"`
	AllowedChats []int64 `mapstructure:"allowed_chats"`
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// SetDefaults initializes default values for every key so environment
// overrides resolve even when no file is present.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("planner.provider", "gemini")
	v.SetDefault("planner.model", "")
	v.SetDefault("planner.api_key", "")
	v.SetDefault("planner.base_url", "")
	v.SetDefault("planner.function_responses", false)

	v.SetDefault("browser.backend", "chromedp")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.control_url", "")

	v.SetDefault("capture.dir", "captures")

	v.SetDefault("policy.fatal_navigation", true)
	v.SetDefault("policy.deny_actions", []string{})
	v.SetDefault("policy.deny_hosts", []string{})
	v.SetDefault("policy.deny_patterns", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("prompts.dir", "prompts")

	v.SetDefault("gateways.telegram.enabled", false)
	v.SetDefault("gateways.telegram.token", "")
	v.SetDefault("gateways.telegram.allowed_chats", []int64{})
}

// Load reads .env, then path (or ./config.yaml when path is empty and the
// file exists), then AITESTER_* environment variables. Entries in
// overrides, keyed like "planner.model", win over all of them.
func Load(path string, overrides map[string]any) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyEnvFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvFallbacks picks up the provider's conventional variables and
// its default model.
func (c *Config) applyEnvFallbacks() {
	if c.Planner.APIKey == "" {
		switch c.Planner.Provider {
		case "gemini":
			c.Planner.APIKey = firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY")
		case "openai":
			c.Planner.APIKey = firstEnv("OPENAI_API_KEY", "OPENROUTER_API_KEY")
		}
	}
	if c.Planner.Model == "" {
		switch c.Planner.Provider {
		case "gemini":
			c.Planner.Model = planner.DefaultGeminiModel
		case "openai":
			c.Planner.Model = planner.DefaultOpenAIModel
		}
	}
	if c.Gateways.Telegram.Token == "" {
		c.Gateways.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Planner.Provider {
	case "gemini", "openai":
	default:
		return &ValidationError{Field: "planner.provider", Reason: fmt.Sprintf("must be gemini or openai, got %q", c.Planner.Provider)}
	}
	if c.Planner.APIKey == "" {
		return &ValidationError{Field: "planner.api_key", Reason: "is required (or set GOOGLE_API_KEY / OPENAI_API_KEY)"}
	}
	switch c.Browser.Backend {
	case "chromedp", "rod":
	default:
		return &ValidationError{Field: "browser.backend", Reason: fmt.Sprintf("must be chromedp or rod, got %q", c.Browser.Backend)}
	}
	if c.Browser.NavigationTimeout <= 0 {
		return &ValidationError{Field: "browser.navigation_timeout", Reason: "must be positive"}
	}
	if c.Browser.ActionTimeout <= 0 {
		return &ValidationError{Field: "browser.action_timeout", Reason: "must be positive"}
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return &ValidationError{Field: "browser.viewport", Reason: "width and height must be positive"}
	}
	if strings.TrimSpace(c.Capture.Dir) == "" {
		return &ValidationError{Field: "capture.dir", Reason: "must not be empty"}
	}
	if c.Gateways.Telegram.Enabled && c.Gateways.Telegram.Token == "" {
		return &ValidationError{Field: "gateways.telegram.token", Reason: "is required when the gateway is enabled"}
	}
	return nil
}
