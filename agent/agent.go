// Package agent answers user turns about the sales database.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/shibayu36/salesagent/chart"
	"github.com/shibayu36/salesagent/llm"
	"github.com/shibayu36/salesagent/memory"
	"github.com/shibayu36/salesagent/metrics"
	"github.com/shibayu36/salesagent/policy"
	"github.com/shibayu36/salesagent/render"
	"github.com/shibayu36/salesagent/salesdb"
	"github.com/shibayu36/salesagent/tools"
)

const (
	defaultMaxToolSteps    = 8
	defaultHistoryMessages = 20
)

// Database is the read-only sales database used by the agent.
type Database interface {
	tools.Querier
	Schema() *salesdb.Schema
}

// Config configures an Agent.
type Config struct {
	LLM             llm.ChatCompleter
	Model           string
	ClassifierModel string

	DB     Database
	Memory *memory.Manager // optional
	Charts *chart.Runner

	// Instructions is the system prompt template. The built-in template is used when empty.
	Instructions string

	ArtifactsDir string
	// ArtifactURL maps an artifact path to the link shown in answers. Defaults to the path.
	ArtifactURL func(path string) string

	MaxToolSteps     int
	MaxChartAttempts int
	HistoryMessages  int

	Logger *slog.Logger
}

// Reply is the answer to a single user turn.
type Reply struct {
	Category  policy.Category `json:"category"`
	Language  string          `json:"language,omitempty"`
	Text      string          `json:"text"`
	Artifacts []string        `json:"artifacts,omitempty"`
	Rows      int             `json:"rows"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Agent classifies user turns and answers data questions with tools.
type Agent struct {
	cfg          Config
	log          *slog.Logger
	classifier   *policy.Classifier
	systemPrompt string
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.LLM == nil {
		return nil, errors.New("llm client is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.ArtifactsDir == "" {
		return nil, errors.New("artifacts directory is required")
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = cfg.Model
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}
	if cfg.MaxToolSteps <= 0 {
		cfg.MaxToolSteps = defaultMaxToolSteps
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = defaultHistoryMessages
	}
	if cfg.ArtifactURL == nil {
		cfg.ArtifactURL = func(path string) string { return path }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Agent{
		cfg: cfg,
		log: cfg.Logger,
		classifier: &policy.Classifier{
			LLM:    cfg.LLM,
			Model:  cfg.ClassifierModel,
			Logger: cfg.Logger,
		},
		systemPrompt: BuildSystemPrompt(cfg.Instructions, cfg.DB.Schema()),
	}, nil
}

// SystemPrompt returns the system prompt sent with every tool loop.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// Respond answers message within session sessionID. sessionID may be empty when
// no session memory is configured.
func (a *Agent) Respond(ctx context.Context, sessionID, message string) (*Reply, error) {
	start := time.Now()
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is empty")
	}

	history, err := a.history(sessionID)
	if err != nil {
		return nil, err
	}
	if err := a.save(&memory.Message{SessionID: sessionID, Role: openai.ChatMessageRoleUser, Content: message}); err != nil {
		return nil, err
	}

	cls, err := a.classifier.Classify(ctx, message, history)
	if err != nil {
		return nil, err
	}
	a.log.Info("agent: classified", "session", sessionID, "category", cls.Category, "language", cls.Language)

	var reply *Reply
	if text, ok := cls.Category.Scripted(); ok {
		reply = &Reply{Category: cls.Category, Language: cls.Language, Text: text}
	} else {
		reply, err = a.answer(ctx, sessionID, message, cls, history)
		if err != nil {
			return nil, err
		}
	}

	metrics.Turns.WithLabelValues(string(reply.Category)).Inc()
	metrics.TurnDuration.WithLabelValues(string(reply.Category)).Observe(time.Since(start).Seconds())

	if err := a.save(&memory.Message{
		SessionID: sessionID,
		Role:      openai.ChatMessageRoleAssistant,
		Content:   reply.Text,
		Category:  string(reply.Category),
		Artifacts: reply.Artifacts,
	}); err != nil {
		return nil, err
	}
	return reply, nil
}

// answer はツールコールがなくなるまでLLMとツールを交互に実行する
func (a *Agent) answer(ctx context.Context, sessionID, message string, cls *policy.Classification, history []policy.HistoryMessage) (*Reply, error) {
	turn := &tools.Turn{
		ID:               uuid.NewString()[:8],
		DB:               a.cfg.DB,
		Charts:           a.cfg.Charts,
		ArtifactsDir:     a.cfg.ArtifactsDir,
		MaxChartAttempts: a.cfg.MaxChartAttempts,
		Logger:           a.log,
	}
	available := tools.GetAvailableTools(turn)
	schemas := tools.Schemas(available)

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt}}
	for _, h := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: turnNote(cls)},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message},
	)

	clarify := func(reason string) *Reply {
		a.log.Info("agent: falling back to clarification", "turn", turn.ID, "reason", reason)
		return &Reply{Category: policy.CategoryVague, Language: cls.Language, Text: policy.ClarificationMessage}
	}

	for step := 0; step < a.cfg.MaxToolSteps; step++ {
		resp, err := a.cfg.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.cfg.Model,
			Messages: messages,
			Tools:    schemas,
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no response received from the model")
		}

		responseMessage := resp.Choices[0].Message
		messages = append(messages, responseMessage)

		// ツールコールがない場合は最終応答
		if len(responseMessage.ToolCalls) == 0 {
			return a.finish(responseMessage.Content, cls, turn), nil
		}

		toolCallsJSON, err := json.Marshal(responseMessage.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCalls := string(toolCallsJSON)
		if err := a.save(&memory.Message{
			SessionID: sessionID,
			Role:      openai.ChatMessageRoleAssistant,
			Content:   responseMessage.Content,
			ToolCalls: &toolCalls,
		}); err != nil {
			return nil, err
		}

		for _, toolCall := range responseMessage.ToolCalls {
			a.log.Debug("agent: tool call", "turn", turn.ID, "tool", toolCall.Function.Name, "arguments", toolCall.Function.Arguments)

			result := toolError("Unknown tool: " + toolCall.Function.Name)
			if tool, exists := available[toolCall.Function.Name]; exists {
				result, err = tool.Function(ctx, toolCall.Function.Arguments)
				if err != nil {
					result = toolError("Tool execution failed: " + err.Error())
				}
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: toolCall.ID,
			})
			if err := a.save(&memory.Message{SessionID: sessionID, Role: openai.ChatMessageRoleTool, Content: result}); err != nil {
				return nil, err
			}
		}

		if turn.NeedsClarification() {
			return clarify("schema mismatch or clarification requested"), nil
		}
	}

	return clarify(fmt.Sprintf("maximum tool call steps (%d) exceeded", a.cfg.MaxToolSteps)), nil
}

// finish applies the formatting rules the model may have missed.
func (a *Agent) finish(content string, cls *policy.Classification, turn *tools.Turn) *Reply {
	reply := &Reply{
		Category:  cls.Category,
		Language:  cls.Language,
		Artifacts: turn.Artifacts,
	}
	text := strings.TrimSpace(content)

	result := turn.LastResult
	if result != nil {
		reply.Rows = len(result.Rows)
		reply.Truncated = result.Truncated
		if len(result.Rows) > 1 && !render.HasMarkdownTable(text) {
			text = joinBlocks(text, render.MarkdownTable(result.Columns, result.StringRows()))
		}
	}

	text, dropped := render.LimitTableRows(text, salesdb.RowCap)
	if (dropped || reply.Truncated) && !policy.MentionsRowCap(text, salesdb.RowCap) {
		text = joinBlocks(text, policy.RowCapNotice(cls.Language, salesdb.RowCap))
	}

	if turn.ChartPath != "" && !strings.Contains(text, filepath.Base(turn.ChartPath)) {
		text = joinBlocks(text, fmt.Sprintf("![chart](%s)", a.cfg.ArtifactURL(turn.ChartPath)))
	}

	for _, path := range turn.Artifacts {
		if filepath.Ext(path) != ".csv" || strings.Contains(text, filepath.Base(path)) {
			continue
		}
		text = joinBlocks(text, policy.ExportNotice(cls.Language, a.cfg.ArtifactURL(path)))
	}

	if text == "" {
		reply.Category = policy.CategoryVague
		text = policy.ClarificationMessage
	}
	reply.Text = text
	return reply
}

func (a *Agent) history(sessionID string) ([]policy.HistoryMessage, error) {
	if a.cfg.Memory == nil || sessionID == "" {
		return nil, nil
	}
	stored, err := a.cfg.Memory.GetSessionMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session messages: %w", err)
	}

	// ツール関連のメッセージは復元しない
	var replayed []*memory.Message
	for _, msg := range stored {
		switch {
		case msg.Role == openai.ChatMessageRoleUser:
		case msg.Role == openai.ChatMessageRoleAssistant && msg.ToolCalls == nil && msg.Content != "":
		default:
			continue
		}
		replayed = append(replayed, msg)
	}

	// 応答が保存されなかったユーザー入力は飛ばす
	var history []policy.HistoryMessage
	for i, msg := range replayed {
		if msg.Role == openai.ChatMessageRoleUser && (i+1 == len(replayed) || replayed[i+1].Role != openai.ChatMessageRoleAssistant) {
			continue
		}
		history = append(history, policy.HistoryMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(history) > a.cfg.HistoryMessages {
		history = history[len(history)-a.cfg.HistoryMessages:]
	}
	return history, nil
}

func (a *Agent) save(msg *memory.Message) error {
	if a.cfg.Memory == nil || msg.SessionID == "" {
		return nil
	}
	if err := a.cfg.Memory.SaveMessage(msg); err != nil {
		return fmt.Errorf("failed to save %s message: %w", msg.Role, err)
	}
	return nil
}

func turnNote(cls *policy.Classification) string {
	var b strings.Builder
	if cls.Language != "" {
		fmt.Fprintf(&b, "The user writes in language %q. Answer in that language.", cls.Language)
	}
	if cls.Category == policy.CategoryVisualization {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("The user asked for a chart: fetch the data, then call render_chart.")
	}
	if b.Len() == 0 {
		return "Answer the next question using the tools."
	}
	return b.String()
}

func toolError(message string) string {
	b, _ := json.Marshal(map[string]string{"error": message})
	return string(b)
}

func joinBlocks(text, block string) string {
	block = strings.TrimSpace(block)
	if text == "" {
		return block
	}
	return text + "\n\n" + block
}
