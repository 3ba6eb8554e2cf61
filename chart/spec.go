// Package chart runs chart scripts and renders the resulting charts as PNG files.
package chart

import (
	"errors"
	"fmt"
	"math"
)

// Kind is the type of chart to draw.
type Kind string

const (
	KindBar     Kind = "bar"
	KindLine    Kind = "line"
	KindScatter Kind = "scatter"
)

// Spec describes a single chart.
type Spec struct {
	Kind   Kind
	Title  string
	XLabel string
	YLabel string
	// Labels are category names on the X axis. Required for bar charts.
	Labels []string
	// X holds numeric X positions for line and scatter charts.
	X []float64
	Y []float64
}

// Validate checks that the series are consistent with the kind.
func (s *Spec) Validate() error {
	if len(s.Y) == 0 {
		return errors.New("chart has no values")
	}
	for i, v := range s.Y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value %d is not a finite number", i)
		}
	}

	switch s.Kind {
	case KindBar:
		if len(s.Labels) != len(s.Y) {
			return fmt.Errorf("bar chart needs one label per value: %d labels, %d values", len(s.Labels), len(s.Y))
		}
	case KindLine:
		if len(s.X) == 0 && len(s.Labels) == 0 {
			return errors.New("line chart needs x values or labels")
		}
		if len(s.X) > 0 && len(s.X) != len(s.Y) {
			return fmt.Errorf("line chart x and y lengths differ: %d vs %d", len(s.X), len(s.Y))
		}
		if len(s.Labels) > 0 && len(s.Labels) != len(s.Y) {
			return fmt.Errorf("line chart labels and y lengths differ: %d vs %d", len(s.Labels), len(s.Y))
		}
	case KindScatter:
		if len(s.X) != len(s.Y) {
			return fmt.Errorf("scatter chart x and y lengths differ: %d vs %d", len(s.X), len(s.Y))
		}
	default:
		return fmt.Errorf("unknown chart kind %q", s.Kind)
	}
	return nil
}
