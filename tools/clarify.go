package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const RequestClarificationToolName = "request_clarification"

// RequestClarificationArgs はrequest_clarificationツールの引数を表す構造体
type RequestClarificationArgs struct {
	Reason string `json:"reason" description:"確認が必要な理由"`
}

// RequestClarificationResult はrequest_clarificationツールの結果を表す構造体
type RequestClarificationResult struct {
	Acknowledged bool `json:"acknowledged"`
}

// RequestClarification はターンを確認メッセージで終えるよう記録する
func RequestClarification(ctx context.Context, turn *Turn, args string) (string, error) {
	var clarifyArgs RequestClarificationArgs
	if err := json.Unmarshal([]byte(args), &clarifyArgs); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %v", err)
	}

	turn.ClarificationRequested = true
	turn.logger().Info("tools: clarification requested", "reason", clarifyArgs.Reason)

	resultJSON, _ := json.Marshal(RequestClarificationResult{Acknowledged: true})
	return string(resultJSON), nil
}

// GetRequestClarificationTool はrequest_clarificationツールの定義を返す
func GetRequestClarificationTool(turn *Turn) ToolDefinition {
	return ToolDefinition{
		Schema: openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        RequestClarificationToolName,
				Description: "Call when the question is ambiguous or cannot be matched to the tables and columns of the schema. Never guess instead.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"reason": {
							Type:        jsonschema.String,
							Description: "Why the question cannot be answered as asked",
						},
					},
					Required: []string{"reason"},
				},
			},
		},
		Function: func(ctx context.Context, args string) (string, error) {
			return RequestClarification(ctx, turn, args)
		},
	}
}
