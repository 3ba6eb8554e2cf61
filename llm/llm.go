// Package llm provides chat completion clients for the supported model providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

const (
	defaultMaxTokens = 4096
	defaultMaxTries  = 3
)

// ChatCompleter sends a chat completion request. *openai.Client implements it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string

	// AzureEndpoint and AzureDeployment are used by the azure provider.
	AzureEndpoint   string
	AzureDeployment string

	// BaseURL overrides the OpenAI API endpoint.
	BaseURL string

	// MaxTokens bounds the output of the anthropic provider.
	MaxTokens int64
	MaxTries  uint

	Logger *slog.Logger
}

// New returns a ChatCompleter for cfg.Provider wrapped with retries.
func New(cfg Config) (ChatCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key for provider %q is required", cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var client ChatCompleter
	switch cfg.Provider {
	case ProviderOpenAI, "":
		config := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(config)
	case ProviderAzure:
		if cfg.AzureEndpoint == "" {
			return nil, errors.New("azure endpoint is required")
		}
		config := openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		if cfg.AzureDeployment != "" {
			deployment := cfg.AzureDeployment
			config.AzureModelMapperFunc = func(string) string {
				return deployment
			}
		}
		client = openai.NewClientWithConfig(config)
	case ProviderAnthropic:
		client = NewAnthropic(cfg.APIKey, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return &Retrying{
		Next:     client,
		Provider: cfg.Provider,
		MaxTries: cfg.MaxTries,
		Logger:   cfg.Logger,
	}, nil
}
