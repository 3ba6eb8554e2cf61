package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/shibayu36/salesagent/metrics"
)

// Retrying retries transient failures of Next with exponential backoff.
type Retrying struct {
	Next     ChatCompleter
	Provider string
	MaxTries uint
	Logger   *slog.Logger

	// InitialInterval overrides the first backoff delay. Used by tests.
	InitialInterval time.Duration
}

func (r *Retrying) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	bo := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		bo.InitialInterval = r.InitialInterval
	}

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (openai.ChatCompletionResponse, error) {
		attempt++
		if attempt > 1 && r.Logger != nil {
			r.Logger.Warn("llm: retrying chat completion", "provider", r.Provider, "attempt", attempt)
		}
		resp, err := r.Next.CreateChatCompletion(ctx, req)
		if err != nil {
			if !retryable(err) {
				return resp, backoff.Permanent(err)
			}
			return resp, err
		}
		return resp, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.MaxTries))

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMRequests.WithLabelValues(r.Provider, outcome).Inc()
	return resp, err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}
