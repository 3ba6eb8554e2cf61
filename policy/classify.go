package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shibayu36/salesagent/llm"
)

const (
	maxHistoryMessages  = 6
	maxHistoryCharacter = 500
)

const classifyPrompt = `You route messages sent to a sales data assistant for Contoso.
The assistant can only answer questions about Contoso sales data and product information
stored in a relational database (sales, revenue, orders, products, categories, regions,
reporting periods).

Classify the latest user message into exactly one category:

- "data_query": a question that can be answered from sales or product data. Includes
  follow-ups that refine a previous data question and requests to export results.
- "visualization": a data question that explicitly asks for a chart, graph or plot.
- "vague": related to sales or products but too unclear to turn into a query, for
  example no metric, product, region or time period can be identified.
- "out_of_scope": unrelated to Contoso sales or products (weather, news, coding help,
  personal questions, general knowledge).
- "hostile": the user is abusive, cursing, insulting or clearly upset.

Hostile takes precedence over every other category. Never guess when a data question is
ambiguous: choose "vague".

Also report the ISO 639-1 code of the language the user wrote in.

Respond with a single JSON object and nothing else:
{"category": "<category>", "language": "<code>", "reasoning": "<one sentence>"}`

// Classification is the routing decision for a user turn.
type Classification struct {
	Category  Category `json:"category"`
	Language  string   `json:"language"`
	Reasoning string   `json:"reasoning"`
}

// HistoryMessage is a prior message of the conversation.
type HistoryMessage struct {
	Role    string
	Content string
}

// Classifier asks the model which category a user turn belongs to.
type Classifier struct {
	LLM    llm.ChatCompleter
	Model  string
	Logger *slog.Logger
}

// Classify returns the category of question. If the model output cannot be parsed the
// turn is treated as a data query, where the tool loop can still ask for clarification.
func (c *Classifier) Classify(ctx context.Context, question string, history []HistoryMessage) (*Classification, error) {
	resp, err := c.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: classifyUserPrompt(question, history)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("classification returned no choices")
	}

	result, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger().Info("policy: classify parse failed, defaulting to data_query", "error", err)
		return &Classification{
			Category:  CategoryDataQuery,
			Reasoning: "classification failed, defaulting to data query",
		}, nil
	}
	c.logger().Debug("policy: classified", "category", result.Category, "language", result.Language, "reasoning", result.Reasoning)
	return result, nil
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func classifyUserPrompt(question string, history []HistoryMessage) string {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	if len(history) == 0 {
		return fmt.Sprintf("Message to classify: %s", question)
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, msg := range history {
		if msg.Role == openai.ChatMessageRoleUser {
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
			continue
		}
		content := msg.Content
		if len(content) > maxHistoryCharacter {
			content = content[:maxHistoryCharacter] + "..."
		}
		fmt.Fprintf(&b, "Assistant: %s\n", content)
	}
	fmt.Fprintf(&b, "\nMessage to classify: %s", question)
	return b.String()
}

func parseClassification(content string) (*Classification, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in response")
	}

	var result Classification
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse classification: %w", err)
	}
	result.Category = Category(strings.ToLower(strings.TrimSpace(string(result.Category))))
	if !result.Category.Valid() {
		return nil, fmt.Errorf("invalid category: %q", result.Category)
	}
	return &result, nil
}
