package chart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const defaultMaxSteps = 1_000_000

// Runner executes chart scripts written in Starlark.
//
// A script sees the last query result as `rows` (a list of dicts) and `columns`,
// and must call exactly one of bar_chart, line_chart or scatter_chart.
type Runner struct {
	// MaxSteps bounds the number of Starlark execution steps.
	MaxSteps uint64
}

// Run executes script against the given result and returns the chart it describes.
func (r *Runner) Run(ctx context.Context, script string, columns []string, records []map[string]any) (*Spec, error) {
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("script is empty")
	}
	maxSteps := r.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}

	var specs []*Spec
	record := func(s *Spec) {
		specs = append(specs, s)
	}

	thread := &starlark.Thread{
		Name:  "chart",
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"rows":          toStarlarkRows(columns, records),
		"columns":       toStarlarkStrings(columns),
		"bar_chart":     starlark.NewBuiltin("bar_chart", labeledChart(KindBar, record)),
		"line_chart":    starlark.NewBuiltin("line_chart", xyChart(KindLine, record)),
		"scatter_chart": starlark.NewBuiltin("scatter_chart", xyChart(KindScatter, record)),
	}

	opts := &syntax.FileOptions{
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
	if _, err := starlark.ExecFileOptions(opts, thread, "chart.star", script, predeclared); err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("script failed: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	switch len(specs) {
	case 0:
		return nil, errors.New("script did not call bar_chart, line_chart or scatter_chart")
	case 1:
	default:
		return nil, fmt.Errorf("script must draw exactly one chart, got %d", len(specs))
	}
	if err := specs[0].Validate(); err != nil {
		return nil, err
	}
	return specs[0], nil
}

type builtinFunc func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// labeledChart implements bar_chart(title, labels, values, x_label="", y_label="").
func labeledChart(kind Kind, record func(*Spec)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			title          string
			labels, values *starlark.List
			xLabel, yLabel string
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"title", &title, "labels", &labels, "values", &values,
			"x_label?", &xLabel, "y_label?", &yLabel); err != nil {
			return nil, err
		}
		y, err := toFloats(b.Name(), "values", values)
		if err != nil {
			return nil, err
		}
		record(&Spec{
			Kind:   kind,
			Title:  title,
			XLabel: xLabel,
			YLabel: yLabel,
			Labels: toLabels(labels),
			Y:      y,
		})
		return starlark.None, nil
	}
}

// xyChart implements line_chart and scatter_chart(title, x, y, x_label="", y_label="").
// For line charts x may hold strings, which are drawn as category labels.
func xyChart(kind Kind, record func(*Spec)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			title          string
			xs, ys         *starlark.List
			xLabel, yLabel string
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"title", &title, "x", &xs, "y", &ys,
			"x_label?", &xLabel, "y_label?", &yLabel); err != nil {
			return nil, err
		}
		y, err := toFloats(b.Name(), "y", ys)
		if err != nil {
			return nil, err
		}
		spec := &Spec{Kind: kind, Title: title, XLabel: xLabel, YLabel: yLabel, Y: y}
		if x, err := toFloats(b.Name(), "x", xs); err == nil {
			spec.X = x
		} else if kind == KindLine {
			spec.Labels = toLabels(xs)
		} else {
			return nil, err
		}
		record(spec)
		return starlark.None, nil
	}
}

func toFloats(fn, name string, list *starlark.List) ([]float64, error) {
	out := make([]float64, list.Len())
	for i := 0; i < list.Len(); i++ {
		f, ok := starlark.AsFloat(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: %s[%d] is %s, want a number", fn, name, i, list.Index(i).Type())
		}
		out[i] = f
	}
	return out, nil
}

func toLabels(list *starlark.List) []string {
	out := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		v := list.Index(i)
		if s, ok := starlark.AsString(v); ok {
			out[i] = s
		} else {
			out[i] = v.String()
		}
	}
	return out
}

func toStarlarkStrings(values []string) *starlark.List {
	elems := make([]starlark.Value, len(values))
	for i, v := range values {
		elems[i] = starlark.String(v)
	}
	return starlark.NewList(elems)
}

func toStarlarkRows(columns []string, records []map[string]any) *starlark.List {
	elems := make([]starlark.Value, 0, len(records))
	for _, rec := range records {
		d := starlark.NewDict(len(columns))
		for _, col := range columns {
			// SetKey は文字列キーでは失敗しない
			_ = d.SetKey(starlark.String(col), toStarlarkValue(rec[col]))
		}
		elems = append(elems, d)
	}
	return starlark.NewList(elems)
}

func toStarlarkValue(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(x)
	case []byte:
		return starlark.String(string(x))
	case int64:
		return starlark.MakeInt64(x)
	case int:
		return starlark.MakeInt(x)
	case float64:
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	default:
		return starlark.String(fmt.Sprint(x))
	}
}
