// Package config loads newsdigest settings from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teemow/newsdigest/internal/google"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// NEWSDIGEST_GMAIL_WINDOW_DAYS.
const EnvPrefix = "NEWSDIGEST"

// GmailConfig selects which newsletters are fetched.
type GmailConfig struct {
	Query      string `mapstructure:"query" yaml:"query" json:"query"`
	WindowDays int    `mapstructure:"window_days" yaml:"window_days" json:"window_days"`
	AllPages   bool   `mapstructure:"all_pages" yaml:"all_pages" json:"all_pages"`
}

// GoogleConfig locates the OAuth client secret and the cached token.
type GoogleConfig struct {
	Account       string `mapstructure:"account" yaml:"account" json:"account"`
	ClientSecrets string `mapstructure:"client_secrets" yaml:"client_secrets" json:"client_secrets"`
	// TokenDir overrides the user cache directory for token files.
	TokenDir string `mapstructure:"token_dir" yaml:"token_dir" json:"token_dir"`
}

// OpenAIConfig configures the chat completion backend.
type OpenAIConfig struct {
	APIKey           string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL          string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Model            string `mapstructure:"model" yaml:"model" json:"model"`
	TopicsMaxTokens  int    `mapstructure:"topics_max_tokens" yaml:"topics_max_tokens" json:"topics_max_tokens"`
	SummaryMaxTokens int    `mapstructure:"summary_max_tokens" yaml:"summary_max_tokens" json:"summary_max_tokens"`
}

// DigestConfig shapes the generated digest. Empty instruction lists select
// the built-in prompts.
type DigestConfig struct {
	Paragraphs          int      `mapstructure:"paragraphs" yaml:"paragraphs" json:"paragraphs"`
	TopicInstructions   []string `mapstructure:"topic_instructions" yaml:"topic_instructions" json:"topic_instructions"`
	SummaryInstructions []string `mapstructure:"summary_instructions" yaml:"summary_instructions" json:"summary_instructions"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Gmail  GmailConfig  `mapstructure:"gmail" yaml:"gmail" json:"gmail"`
	Google GoogleConfig `mapstructure:"google" yaml:"google" json:"google"`
	OpenAI OpenAIConfig `mapstructure:"openai" yaml:"openai" json:"openai"`
	Digest DigestConfig `mapstructure:"digest" yaml:"digest" json:"digest"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/newsdigest/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(dir, "newsdigest", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gmail.query", gmail.DefaultQuery)
	v.SetDefault("gmail.window_days", gmail.DefaultWindowDays)
	v.SetDefault("gmail.all_pages", false)
	v.SetDefault("google.account", google.DefaultAccount)
	v.SetDefault("google.client_secrets", "credentials.json")
	v.SetDefault("google.token_dir", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.topics_max_tokens", 500)
	v.SetDefault("openai.summary_max_tokens", 1000)
	v.SetDefault("digest.paragraphs", 5)
	v.SetDefault("digest.topic_instructions", []string{})
	v.SetDefault("digest.summary_instructions", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from the YAML file at path, layering environment
// overrides on top. A .env file in the working directory is applied to the
// environment first. An empty path selects DefaultConfigPath; a missing file
// is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional OpenAI variables are honoured without the prefix.
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding openai.api_key: %w", err)
	}
	if err := v.BindEnv("openai.base_url", EnvPrefix+"_OPENAI_BASE_URL", "OPENAI_BASE_URL"); err != nil {
		return nil, fmt.Errorf("binding openai.base_url: %w", err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

func loadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Gmail.WindowDays < 1 {
		return fmt.Errorf("gmail.window_days must be positive, got %d", c.Gmail.WindowDays)
	}
	if err := google.ValidateAccountName(c.Google.Account); err != nil {
		return fmt.Errorf("google.account: %w", err)
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model must not be empty")
	}
	if c.OpenAI.TopicsMaxTokens < 1 {
		return fmt.Errorf("openai.topics_max_tokens must be positive, got %d", c.OpenAI.TopicsMaxTokens)
	}
	if c.OpenAI.SummaryMaxTokens < 1 {
		return fmt.Errorf("openai.summary_max_tokens must be positive, got %d", c.OpenAI.SummaryMaxTokens)
	}
	if c.Digest.Paragraphs < 1 {
		return fmt.Errorf("digest.paragraphs must be positive, got %d", c.Digest.Paragraphs)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format %q must be one of: text, json", c.Log.Format)
	}
	return nil
}
