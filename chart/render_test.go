package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPNGPath(t *testing.T) {
	require.Equal(t, "out/chart.png", PNGPath("out/chart.svg"))
	require.Equal(t, "out/chart.png", PNGPath("out/chart"))
	require.Equal(t, "out/chart.png", PNGPath("out/chart.png"))
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	specs := []*Spec{
		{Kind: KindBar, Title: "bar", Labels: []string{"A", "B"}, Y: []float64{1, 2}},
		{Kind: KindLine, Title: "line", X: []float64{2023, 2024}, Y: []float64{1, 2}},
		{Kind: KindLine, Title: "line labels", Labels: []string{"Q1", "Q2"}, Y: []float64{1, 2}},
		{Kind: KindScatter, Title: "scatter", X: []float64{1, 2, 3}, Y: []float64{3, 1, 2}},
	}
	for _, spec := range specs {
		t.Run(spec.Title, func(t *testing.T) {
			path, err := Render(spec, filepath.Join(dir, spec.Title+".jpg"))
			require.NoError(t, err)
			require.Equal(t, ".png", filepath.Ext(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, []byte("\x89PNG"), data[:4])
		})
	}
}

func TestRender_Invalid(t *testing.T) {
	_, err := Render(&Spec{Kind: "pie", Y: []float64{1}}, filepath.Join(t.TempDir(), "x.png"))
	require.ErrorContains(t, err, "unknown chart kind")
}
