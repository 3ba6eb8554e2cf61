package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/shibayu36/salesagent/metrics"
	"github.com/shibayu36/salesagent/salesdb"
)

const FetchSalesDataToolName = "fetch_sales_data"

const noResultsNotice = "The query returned no results. Try a different question."

// FetchSalesDataArgs はfetch_sales_dataツールの引数を表す構造体
type FetchSalesDataArgs struct {
	SqliteQuery string `json:"sqlite_query" description:"実行するSQLiteクエリ"`
}

// FetchSalesDataResult はfetch_sales_dataツールの結果を表す構造体
type FetchSalesDataResult struct {
	Query     string   `json:"query,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	RowCount  int      `json:"row_count"`
	RowCap    int      `json:"row_cap"`
	Truncated bool     `json:"truncated,omitempty"`
	Notice    string   `json:"notice,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// FetchSalesData は読み取り専用クエリを実行し、最大RowCap行をJSONで返す
func FetchSalesData(ctx context.Context, turn *Turn, args string) (string, error) {
	var fetchArgs FetchSalesDataArgs
	if err := json.Unmarshal([]byte(args), &fetchArgs); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %v", err)
	}

	genErrorResult := func(errorMessage string) string {
		result := FetchSalesDataResult{
			Query:  fetchArgs.SqliteQuery,
			RowCap: salesdb.RowCap,
			Error:  errorMessage,
		}
		resultJSON, _ := json.Marshal(result)
		return string(resultJSON)
	}

	turn.logger().Info("tools: executing query", "sql", fetchArgs.SqliteQuery)

	// 失敗や0件の場合に前のクエリ結果が残らないようにする
	turn.LastResult = nil

	result, err := turn.DB.Query(ctx, fetchArgs.SqliteQuery)
	if err != nil {
		switch {
		case errors.Is(err, salesdb.ErrSchemaMismatch):
			// スキーマにないテーブルやカラムは推測で補わず、確認に回す
			turn.schemaMismatches++
			metrics.Queries.WithLabelValues("schema_mismatch").Inc()
			return genErrorResult(fmt.Sprintf("%v. Use only the tables and columns listed in the schema. If the question cannot be matched to the schema, call %s.", err, RequestClarificationToolName)), nil
		case errors.Is(err, salesdb.ErrNotReadOnly):
			metrics.Queries.WithLabelValues("rejected").Inc()
			return genErrorResult(err.Error()), nil
		}
		metrics.Queries.WithLabelValues("error").Inc()
		return genErrorResult(fmt.Sprintf("SQLite query failed: %v", err)), nil
	}

	if len(result.Rows) == 0 {
		metrics.Queries.WithLabelValues("empty").Inc()
		resultJSON, _ := json.Marshal(FetchSalesDataResult{
			Query:   result.SQL,
			Columns: result.Columns,
			RowCap:  salesdb.RowCap,
			Notice:  noResultsNotice,
		})
		return string(resultJSON), nil
	}

	metrics.Queries.WithLabelValues("ok").Inc()
	turn.LastResult = result

	out := FetchSalesDataResult{
		Query:     result.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  len(result.Rows),
		RowCap:    salesdb.RowCap,
		Truncated: result.Truncated,
	}
	if result.Truncated {
		metrics.TruncatedResults.Inc()
		out.Notice = fmt.Sprintf("The query matched more than %d rows. Only the first %d rows are returned. Tell the user that results are limited to %d rows.", salesdb.RowCap, salesdb.RowCap, salesdb.RowCap)
	}
	resultJSON, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(resultJSON), nil
}

// GetFetchSalesDataTool はfetch_sales_dataツールの定義を返す
func GetFetchSalesDataTool(turn *Turn) ToolDefinition {
	return ToolDefinition{
		Schema: openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: FetchSalesDataToolName,
				Description: fmt.Sprintf("Execute a read-only SQLite query against the sales database and return the result as JSON. "+
					"Only SELECT statements over the tables in the schema are allowed. At most %d rows are returned; "+
					"prefer aggregate queries (SUM, AVG, COUNT, GROUP BY) unless the user asks for row level detail.", salesdb.RowCap),
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"sqlite_query": {
							Type:        jsonschema.String,
							Description: "A well-formed SQLite SELECT query that answers the user's question",
						},
					},
					Required: []string{"sqlite_query"},
				},
			},
		},
		Function: func(ctx context.Context, args string) (string, error) {
			return FetchSalesData(ctx, turn, args)
		},
	}
}
