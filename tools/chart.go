package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/shibayu36/salesagent/chart"
	"github.com/shibayu36/salesagent/metrics"
)

const RenderChartToolName = "render_chart"

// RenderChartArgs はrender_chartツールの引数を表す構造体
type RenderChartArgs struct {
	Script string `json:"script" description:"チャートを描画するStarlarkスクリプト"`
}

// RenderChartResult はrender_chartツールの結果を表す構造体
type RenderChartResult struct {
	Path         string `json:"path,omitempty"`
	Error        string `json:"error,omitempty"`
	AttemptsLeft int    `json:"attempts_left"`
	GiveUp       bool   `json:"give_up,omitempty"`
}

// RenderChart は直近のクエリ結果に対してスクリプトを実行し、PNGを生成する
func RenderChart(ctx context.Context, turn *Turn, args string) (string, error) {
	var chartArgs RenderChartArgs
	if err := json.Unmarshal([]byte(args), &chartArgs); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %v", err)
	}

	genResult := func(result RenderChartResult) string {
		resultJSON, _ := json.Marshal(result)
		return string(resultJSON)
	}

	maxAttempts := turn.maxChartAttempts()
	if turn.chartAttempts >= maxAttempts {
		metrics.ChartAttempts.WithLabelValues("exhausted").Inc()
		return genResult(RenderChartResult{
			Error:  fmt.Sprintf("The chart could not be rendered after %d attempts. Answer with the data only and do not try again.", maxAttempts),
			GiveUp: true,
		}), nil
	}
	if turn.LastResult == nil {
		return genResult(RenderChartResult{
			Error:        fmt.Sprintf("No data to plot. Call %s first.", FetchSalesDataToolName),
			AttemptsLeft: maxAttempts - turn.chartAttempts,
		}), nil
	}

	turn.chartAttempts++
	attemptsLeft := maxAttempts - turn.chartAttempts

	// 再生成されたスクリプトの差分をデバッグ用に残す
	if turn.lastScript != "" {
		if diff := formatUnifiedDiff(turn.lastScript, chartArgs.Script, "previous.star", "current.star"); diff != "" {
			turn.logger().Debug("tools: chart script regenerated", "attempt", turn.chartAttempts, "diff", diff)
		}
	}
	turn.lastScript = chartArgs.Script

	runner := turn.Charts
	if runner == nil {
		runner = &chart.Runner{}
	}
	spec, err := runner.Run(ctx, chartArgs.Script, turn.LastResult.Columns, turn.LastResult.Records())
	if err != nil {
		metrics.ChartAttempts.WithLabelValues("script_error").Inc()
		turn.logger().Info("tools: chart script failed", "attempt", turn.chartAttempts, "error", err)
		return genResult(RenderChartResult{
			Error:        fmt.Sprintf("%v. Fix the script and call %s again.", err, RenderChartToolName),
			AttemptsLeft: attemptsLeft,
			GiveUp:       attemptsLeft == 0,
		}), nil
	}

	name := fmt.Sprintf("%s-chart-%d.png", turn.ID, turn.chartAttempts)
	path, err := chart.Render(spec, filepath.Join(turn.ArtifactsDir, name))
	if err != nil {
		metrics.ChartAttempts.WithLabelValues("render_error").Inc()
		turn.logger().Info("tools: chart render failed", "attempt", turn.chartAttempts, "error", err)
		return genResult(RenderChartResult{
			Error:        fmt.Sprintf("%v. Fix the script and call %s again.", err, RenderChartToolName),
			AttemptsLeft: attemptsLeft,
			GiveUp:       attemptsLeft == 0,
		}), nil
	}

	metrics.ChartAttempts.WithLabelValues("ok").Inc()
	turn.ChartPath = path
	turn.Artifacts = append(turn.Artifacts, path)
	return genResult(RenderChartResult{Path: path, AttemptsLeft: attemptsLeft}), nil
}

const renderChartDescription = `Render a PNG chart from the rows returned by the last fetch_sales_data call.
Write a short Starlark (Python-like) script. Predeclared names:
- rows: list of dicts, one per row, keyed by column name
- columns: list of column names
- bar_chart(title, labels, values, x_label="", y_label="")
- line_chart(title, x, y, x_label="", y_label="")  (x may be numbers or strings)
- scatter_chart(title, x, y, x_label="", y_label="")
Call exactly one chart function. Translate the title and axis labels to the user's language.
If the result contains an error, fix the script and retry while attempts_left > 0.
Include the returned path in the answer.`

// GetRenderChartTool はrender_chartツールの定義を返す
func GetRenderChartTool(turn *Turn) ToolDefinition {
	return ToolDefinition{
		Schema: openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        RenderChartToolName,
				Description: renderChartDescription,
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"script": {
							Type:        jsonschema.String,
							Description: "Starlark script that calls one chart function",
						},
					},
					Required: []string{"script"},
				},
			},
		},
		Function: func(ctx context.Context, args string) (string, error) {
			return RenderChart(ctx, turn, args)
		},
	}
}
