package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	imageWidth  = 8 * vg.Inch
	imageHeight = 4 * vg.Inch
)

// PNGPath replaces any extension of path with .png.
func PNGPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
}

// Render draws spec and writes it as a PNG image. The returned path always ends
// in .png.
func Render(spec *Spec, path string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	path = PNGPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	p.Add(plotter.NewGrid())

	switch spec.Kind {
	case KindBar:
		width := vg.Points(300 / float64(len(spec.Y)))
		if width > vg.Points(40) {
			width = vg.Points(40)
		}
		bars, err := plotter.NewBarChart(plotter.Values(spec.Y), width)
		if err != nil {
			return "", fmt.Errorf("failed to build bar chart: %w", err)
		}
		p.Add(bars)
		p.NominalX(spec.Labels...)
	case KindLine:
		line, err := plotter.NewLine(points(spec))
		if err != nil {
			return "", fmt.Errorf("failed to build line chart: %w", err)
		}
		p.Add(line)
		if len(spec.X) == 0 {
			p.NominalX(spec.Labels...)
		}
	case KindScatter:
		scatter, err := plotter.NewScatter(points(spec))
		if err != nil {
			return "", fmt.Errorf("failed to build scatter chart: %w", err)
		}
		p.Add(scatter)
	}

	if err := p.Save(imageWidth, imageHeight, path); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	return path, nil
}

func points(spec *Spec) plotter.XYs {
	xys := make(plotter.XYs, len(spec.Y))
	for i, y := range spec.Y {
		xys[i].Y = y
		if len(spec.X) > 0 {
			xys[i].X = spec.X[i]
		} else {
			xys[i].X = float64(i)
		}
	}
	return xys
}
