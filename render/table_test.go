package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownTable(t *testing.T) {
	out := MarkdownTable(
		[]string{"region", "total_revenue"},
		[][]string{{"AFRICA", "19000"}, {"ASIA", "20000"}, {"EUROPE|WEST", "21000"}},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "region")
	require.Contains(t, lines[0], "total_revenue")
	require.True(t, strings.HasPrefix(lines[1], "|"))
	require.Contains(t, lines[1], "---")
	require.Contains(t, out, `EUROPE\|WEST`)

	require.True(t, HasMarkdownTable(out))
	require.Equal(t, 3, CountTableRows(out))
}

func TestHasMarkdownTable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "plain text", text: "Total revenue was 19000.", want: false},
		{name: "pipe without separator", text: "a | b\nc | d", want: false},
		{
			name: "model written table",
			text: "Here you go:\n\n| Region | Revenue |\n|--------|--------:|\n| AFRICA | 19000 |\n",
			want: true,
		},
		{
			name: "no outer pipes",
			text: "Region | Revenue\n--- | ---\nAFRICA | 19000",
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HasMarkdownTable(tt.text))
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"region", "note"}, [][]string{{"AFRICA", "a,b"}, {"ASIA", ""}})
	require.NoError(t, err)
	require.Equal(t, "region,note\nAFRICA,\"a,b\"\nASIA,\n", buf.String())
}

func TestLimitTableRows(t *testing.T) {
	var rows [][]string
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{fmt.Sprintf("r%d", i)})
	}
	text := "Intro\n\n" + MarkdownTable([]string{"name"}, rows) + "\nOutro"

	limited, dropped := LimitTableRows(text, 3)
	require.True(t, dropped)
	require.Equal(t, 3, CountTableRows(limited))
	require.Contains(t, limited, "Intro")
	require.Contains(t, limited, "Outro")
	require.NotContains(t, limited, "r3")

	same, dropped := LimitTableRows(text, 5)
	require.False(t, dropped)
	require.Equal(t, text, same)
}
