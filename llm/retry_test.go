package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shibayu36/salesagent/llm/llmtest"
	"github.com/stretchr/testify/require"
)

func TestRetrying_RetriesTransientErrors(t *testing.T) {
	fake := (&llmtest.Scripted{}).
		Error(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}).
		Error(&openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"}).
		Text("hello")

	r := &Retrying{Next: fake, Provider: ProviderOpenAI, MaxTries: 3, InitialInterval: time.Millisecond}
	resp, err := r.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Choices[0].Message.Content)
	require.Len(t, fake.Requests(), 3)
}

func TestRetrying_ClientErrorIsPermanent(t *testing.T) {
	fake := (&llmtest.Scripted{}).
		Error(&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad request"}).
		Text("unused")

	r := &Retrying{Next: fake, Provider: ProviderOpenAI, MaxTries: 3, InitialInterval: time.Millisecond}
	_, err := r.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatusCode)
	require.Len(t, fake.Requests(), 1)
	require.Equal(t, 1, fake.Remaining())
}

func TestRetrying_GivesUp(t *testing.T) {
	fake := &llmtest.Scripted{}
	for i := 0; i < 5; i++ {
		fake.Error(errors.New("connection reset"))
	}

	r := &Retrying{Next: fake, Provider: ProviderOpenAI, MaxTries: 2, InitialInterval: time.Millisecond}
	_, err := r.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.ErrorContains(t, err, "connection reset")
	require.Len(t, fake.Requests(), 2)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Provider: ProviderOpenAI})
	require.ErrorContains(t, err, "API key")

	_, err = New(Config{Provider: ProviderAzure, APIKey: "k"})
	require.ErrorContains(t, err, "azure endpoint")

	_, err = New(Config{Provider: "cohere", APIKey: "k"})
	require.ErrorContains(t, err, "unknown provider")

	for _, p := range []string{ProviderOpenAI, ProviderAnthropic} {
		c, err := New(Config{Provider: p, APIKey: "k"})
		require.NoError(t, err)
		require.IsType(t, &Retrying{}, c)
	}
	c, err := New(Config{Provider: ProviderAzure, APIKey: "k", AzureEndpoint: "https://example.openai.azure.com", AzureDeployment: "gpt-4o"})
	require.NoError(t, err)
	require.IsType(t, &openai.Client{}, c.(*Retrying).Next)
}
