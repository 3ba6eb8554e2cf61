package chart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testColumns = []string{"region", "total"}

var testRecords = []map[string]any{
	{"region": "AFRICA", "total": float64(19000)},
	{"region": "ASIA", "total": float64(20000)},
	{"region": "EUROPE", "total": int64(21000)},
}

func TestRunner_BarChart(t *testing.T) {
	r := &Runner{}
	spec, err := r.Run(context.Background(), `
labels = [row["region"] for row in rows]
values = [row["total"] for row in rows]
bar_chart("Revenue by region", labels, values, y_label="USD")
`, testColumns, testRecords)
	require.NoError(t, err)
	require.Equal(t, KindBar, spec.Kind)
	require.Equal(t, "Revenue by region", spec.Title)
	require.Equal(t, "USD", spec.YLabel)
	require.Equal(t, []string{"AFRICA", "ASIA", "EUROPE"}, spec.Labels)
	require.Equal(t, []float64{19000, 20000, 21000}, spec.Y)
}

func TestRunner_LineChartWithCategoryX(t *testing.T) {
	r := &Runner{}
	spec, err := r.Run(context.Background(), `
line_chart(title="Trend", x=[r["region"] for r in rows], y=[r["total"] for r in rows])
`, testColumns, testRecords)
	require.NoError(t, err)
	require.Equal(t, KindLine, spec.Kind)
	require.Empty(t, spec.X)
	require.Equal(t, []string{"AFRICA", "ASIA", "EUROPE"}, spec.Labels)
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{name: "empty", script: "  ", wantErr: "script is empty"},
		{name: "syntax error", script: "bar_chart(", wantErr: "script failed"},
		{name: "unknown column", script: `bar_chart("t", [r["missing"] for r in rows], [1, 2, 3])`, wantErr: "script failed"},
		{name: "no chart", script: "x = 1", wantErr: "did not call"},
		{name: "two charts", script: "bar_chart('a', ['x'], [1])\nbar_chart('b', ['y'], [2])", wantErr: "exactly one chart"},
		{name: "non numeric values", script: "bar_chart('a', ['x'], ['oops'])", wantErr: "want a number"},
		{name: "length mismatch", script: "bar_chart('a', ['x', 'y'], [1])", wantErr: "one label per value"},
		{name: "scatter with strings", script: "scatter_chart('a', ['x'], [1])", wantErr: "want a number"},
		{name: "infinite loop", script: "while True:\n    pass", wantErr: "script failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Runner{MaxSteps: 10_000}
			_, err := r.Run(context.Background(), tt.script, testColumns, testRecords)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := &Runner{MaxSteps: 1 << 40}
	_, err := r.Run(ctx, "while True:\n    pass", testColumns, testRecords)
	require.Error(t, err)
}
