// Package config loads salesagent settings from a YAML file, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Memory   MemoryConfig   `yaml:"memory"`
	Server   ServerConfig   `yaml:"server"`
}

type DatabaseConfig struct {
	Path             string            `yaml:"path"`
	Descriptions     map[string]string `yaml:"descriptions"`
	MandatoryColumns []string          `yaml:"mandatory_columns"`
	FilterColumns    []string          `yaml:"filter_columns"`
	QueryTimeout     time.Duration     `yaml:"query_timeout"`
	CacheTTL         time.Duration     `yaml:"cache_ttl"`
}

type LLMConfig struct {
	Provider        string `yaml:"provider"` // openai, azure, anthropic
	Model           string `yaml:"model"`
	ClassifierModel string `yaml:"classifier_model"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureDeployment string `yaml:"azure_deployment"`
	MaxTokens       int    `yaml:"max_tokens"`
	MaxTries        uint   `yaml:"max_tries"`
}

type AgentConfig struct {
	MaxToolSteps     int    `yaml:"max_tool_steps"`
	MaxChartAttempts int    `yaml:"max_chart_attempts"`
	HistoryMessages  int    `yaml:"history_messages"`
	InstructionsFile string `yaml:"instructions_file"`
	ArtifactsDir     string `yaml:"artifacts_dir"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads .env (when present), then path (when non-empty), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString(&c.Database.Path, "SALESAGENT_DB_PATH")
	setString(&c.Memory.Path, "SALESAGENT_MEMORY_PATH")
	setString(&c.Agent.ArtifactsDir, "SALESAGENT_ARTIFACTS_DIR")
	setString(&c.Agent.InstructionsFile, "SALESAGENT_INSTRUCTIONS_FILE")
	setString(&c.Server.Addr, "SALESAGENT_LISTEN_ADDR")
	setString(&c.Server.MetricsAddr, "SALESAGENT_METRICS_ADDR")
	setString(&c.LLM.Provider, "SALESAGENT_PROVIDER")
	setString(&c.LLM.Model, "SALESAGENT_MODEL")
	setString(&c.LLM.ClassifierModel, "SALESAGENT_CLASSIFIER_MODEL")
	setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.AzureEndpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&c.LLM.AzureDeployment, "AZURE_OPENAI_DEPLOYMENT_NAME")
	if err := setInt(&c.Agent.MaxToolSteps, "SALESAGENT_MAX_TOOL_STEPS"); err != nil {
		return err
	}
	if err := setInt(&c.Agent.MaxChartAttempts, "SALESAGENT_MAX_CHART_ATTEMPTS"); err != nil {
		return err
	}

	// プロバイダが未指定なら、設定されているキーから推測する
	if c.LLM.Provider == "" {
		switch {
		case c.LLM.AzureEndpoint != "":
			c.LLM.Provider = ProviderAzure
		case getenv("OPENAI_API_KEY") == "" && getenv("ANTHROPIC_API_KEY") != "":
			c.LLM.Provider = ProviderAnthropic
		default:
			c.LLM.Provider = ProviderOpenAI
		}
	}

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderAzure:
			c.LLM.APIKey = getenv("AZURE_OPENAI_API_KEY")
		case ProviderAnthropic:
			c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		}
	}
	return nil
}

// Validate fills in defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		c.Database.Path = "contoso-sales.db"
	}
	if c.Database.QueryTimeout <= 0 {
		c.Database.QueryTimeout = 15 * time.Second
	}
	if c.Database.CacheTTL <= 0 {
		c.Database.CacheTTL = 5 * time.Minute
	}

	switch c.LLM.Provider {
	case "":
		c.LLM.Provider = ProviderOpenAI
	case ProviderOpenAI, ProviderAzure, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			c.LLM.Model = "claude-sonnet-4-5"
		case ProviderAzure:
			c.LLM.Model = c.LLM.AzureDeployment
		default:
			c.LLM.Model = "gpt-4o"
		}
	}
	if c.LLM.ClassifierModel == "" {
		c.LLM.ClassifierModel = c.LLM.Model
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.MaxTries == 0 {
		c.LLM.MaxTries = 3
	}
	if c.LLM.Provider == ProviderAzure {
		if c.LLM.AzureEndpoint == "" {
			return errors.New("azure provider requires AZURE_OPENAI_ENDPOINT")
		}
		if c.LLM.Model == "" {
			return errors.New("azure provider requires AZURE_OPENAI_DEPLOYMENT_NAME")
		}
	}

	if c.Agent.MaxToolSteps <= 0 {
		c.Agent.MaxToolSteps = 8
	}
	if c.Agent.MaxChartAttempts <= 0 {
		c.Agent.MaxChartAttempts = 3
	}
	if c.Agent.HistoryMessages <= 0 {
		c.Agent.HistoryMessages = 20
	}
	if c.Agent.ArtifactsDir == "" {
		c.Agent.ArtifactsDir = filepath.Join(dataDir(), "artifacts")
	}

	if c.Memory.Path == "" {
		c.Memory.Path = filepath.Join(dataDir(), "memory.db")
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	return nil
}

// RequireAPIKey reports an error when no credential is configured for the
// selected provider.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	switch c.LLM.Provider {
	case ProviderAzure:
		return errors.New("AZURE_OPENAI_API_KEY environment variable is not set")
	case ProviderAnthropic:
		return errors.New("ANTHROPIC_API_KEY environment variable is not set")
	default:
		return errors.New("OPENAI_API_KEY environment variable is not set")
	}
}

func dataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".salesagent"
	}
	return filepath.Join(homeDir, ".local", "share", "salesagent")
}
