package tools

import (
	"context"
	"sort"

	"github.com/sashabaranov/go-openai"
)

// ToolDefinition はLLMが呼び出せるツールを表す構造体
type ToolDefinition struct {
	Schema   openai.Tool
	Function func(ctx context.Context, args string) (string, error)
}

// GetAvailableTools はターンに紐づいた利用可能なすべてのツールを返す
func GetAvailableTools(turn *Turn) map[string]ToolDefinition {
	return map[string]ToolDefinition{
		FetchSalesDataToolName:       GetFetchSalesDataTool(turn),
		RenderChartToolName:          GetRenderChartTool(turn),
		ExportCSVToolName:            GetExportCSVTool(turn),
		RequestClarificationToolName: GetRequestClarificationTool(turn),
	}
}

// Schemas はツールのスキーマを名前順に並べて返す
func Schemas(tools map[string]ToolDefinition) []openai.Tool {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, tools[name].Schema)
	}
	return schemas
}
