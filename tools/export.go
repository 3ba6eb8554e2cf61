package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/shibayu36/salesagent/render"
)

const ExportCSVToolName = "export_csv"

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportCSVArgs はexport_csvツールの引数を表す構造体
type ExportCSVArgs struct {
	Filename string `json:"filename,omitempty" description:"出力するCSVファイル名"`
}

// ExportCSVResult はexport_csvツールの結果を表す構造体
type ExportCSVResult struct {
	Path  string `json:"path,omitempty"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// ExportCSV は直近のクエリ結果をCSVファイルとして書き出す
func ExportCSV(ctx context.Context, turn *Turn, args string) (string, error) {
	var exportArgs ExportCSVArgs
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &exportArgs); err != nil {
			return "", fmt.Errorf("failed to parse arguments: %v", err)
		}
	}

	genErrorResult := func(errorMessage string) string {
		resultJSON, _ := json.Marshal(ExportCSVResult{Error: errorMessage})
		return string(resultJSON)
	}

	if turn.LastResult == nil {
		return genErrorResult(fmt.Sprintf("No data to export. Call %s first.", FetchSalesDataToolName)), nil
	}

	path := filepath.Join(turn.ArtifactsDir, csvFilename(turn.ID, exportArgs.Filename))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return genErrorResult(fmt.Sprintf("failed to create artifact directory: %v", err)), nil
	}

	file, err := os.Create(path)
	if err != nil {
		return genErrorResult(fmt.Sprintf("failed to create file: %v", err)), nil
	}
	defer file.Close()

	if err := render.WriteCSV(file, turn.LastResult.Columns, turn.LastResult.StringRows()); err != nil {
		return genErrorResult(err.Error()), nil
	}

	turn.Artifacts = append(turn.Artifacts, path)
	resultJSON, _ := json.Marshal(ExportCSVResult{Path: path, Rows: len(turn.LastResult.Rows)})
	return string(resultJSON), nil
}

// csvFilename はファイル名を安全な文字に絞り、.csv拡張子をつける
func csvFilename(turnID, name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Trim(unsafeFilenameRe.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "export"
	}
	return fmt.Sprintf("%s-%s.csv", turnID, name)
}

// GetExportCSVTool はexport_csvツールの定義を返す
func GetExportCSVTool(turn *Turn) ToolDefinition {
	return ToolDefinition{
		Schema: openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ExportCSVToolName,
				Description: "Export the rows of the last fetch_sales_data result to a CSV file. Use when the user asks to export or download data. Still show the data as a table in the answer.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"filename": {
							Type:        jsonschema.String,
							Description: "Optional file name without directory",
						},
					},
				},
			},
		},
		Function: func(ctx context.Context, args string) (string, error) {
			return ExportCSV(ctx, turn, args)
		},
	}
}
