// Package config describes how Polaris is configured and builds the chat service the configuration selects.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MegaGrindStone/polaris/internal/chat"
	"github.com/MegaGrindStone/polaris/internal/services"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration file.
type Config struct {
	Port          string        `yaml:"port"`
	Persona       string        `yaml:"persona"`
	Renderer      string        `yaml:"renderer"`
	StorePath     string        `yaml:"storePath"`
	FrameInterval time.Duration `yaml:"frameInterval"`
	LogLevel      string        `yaml:"logLevel"`
	LLM           LLM           `yaml:"llm"`
}

// LLM selects and configures the hosted chat backend.
type LLM struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
	APIKey   string `yaml:"apiKey" mapstructure:"apiKey"`
	Host     string `yaml:"host" mapstructure:"host"`
	BaseURL  string `yaml:"baseURL" mapstructure:"baseURL"`

	Parameters services.LLMParameters `yaml:"parameters" mapstructure:"parameters"`
}

// Providers and their default models.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

var defaultModels = map[string]string{
	ProviderGemini:     "gemini-2.5-flash",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderAnthropic:  "claude-3-5-haiku-latest",
	ProviderOpenRouter: "google/gemini-2.5-flash",
}

// apiKeyEnv lists, per provider, the environment variables consulted when no apiKey is configured.
var apiKeyEnv = map[string][]string{
	ProviderGemini:     {"API_KEY", "GEMINI_API_KEY"},
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderAnthropic:  {"ANTHROPIC_API_KEY"},
	ProviderOpenRouter: {"OPENROUTER_API_KEY"},
}

// Default returns the configuration used when no file exists: Gemini with the credential taken from the
// environment.
func Default() Config {
	return Config{
		Port:          "8080",
		Renderer:      "markup",
		FrameInterval: 50 * time.Millisecond,
		LogLevel:      "info",
		LLM: LLM{
			Provider: ProviderGemini,
			Model:    defaultModels[ProviderGemini],
		},
	}
}

// UnmarshalYAML decodes the configuration over the defaults and validates the provider.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig Config
	raw := rawConfig(Default())
	raw.LLM = LLM{}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LLM.Provider == "" {
		raw.LLM.Provider = ProviderGemini
	}
	if err := raw.LLM.Validate(); err != nil {
		return err
	}

	*c = Config(raw)
	return nil
}

// Load reads the configuration file at path. A missing file yields Default.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

// Level converts LogLevel to a slog level.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the provider is known, that maxTokens is in range, and fills in the provider's default
// model.
func (l *LLM) Validate() error {
	if mt := l.Parameters.MaxTokens; mt != nil && (*mt <= 0 || *mt > math.MaxInt32) {
		return fmt.Errorf("maxTokens must be between 1 and %d, got %d", math.MaxInt32, *mt)
	}

	switch l.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter:
		if l.Model == "" {
			l.Model = defaultModels[l.Provider]
		}
	case ProviderOllama:
		if l.Model == "" {
			return fmt.Errorf("model is required for provider %s", l.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider: %s", l.Provider)
	}
	return nil
}

func (l LLM) apiKey() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	for _, env := range apiKeyEnv[l.Provider] {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// Service builds the chat service. A missing credential is not an error here; the service reports
// chat.ErrMissingCredential when a session is opened.
func (l LLM) Service(logger *slog.Logger) (chat.Service, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	switch l.Provider {
	case ProviderOpenAI:
		return services.NewOpenAI(l.apiKey(), l.BaseURL, l.Model, l.Parameters, logger), nil
	case ProviderAnthropic:
		return services.NewAnthropic(l.apiKey(), l.BaseURL, l.Model, l.Parameters, logger), nil
	case ProviderOpenRouter:
		return services.NewOpenRouter(l.apiKey(), l.BaseURL, l.Model, l.Parameters, logger), nil
	case ProviderOllama:
		host := l.Host
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		o, err := services.NewOllama(host, l.Model, l.Parameters, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return services.NewGemini(l.apiKey(), l.BaseURL, l.Model, l.Parameters, logger), nil
	}
}

// Path returns POLARIS_CONFIG when set, otherwise polaris/config.yaml under the user config directory.
func Path() (string, error) {
	if p := os.Getenv("POLARIS_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(dir, "polaris", "config.yaml"), nil
}
