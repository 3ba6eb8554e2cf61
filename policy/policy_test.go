package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/shibayu36/salesagent/llm/llmtest"
	"github.com/stretchr/testify/require"
)

func TestCategory_Scripted(t *testing.T) {
	tests := []struct {
		category Category
		want     string
		scripted bool
	}{
		{CategoryDataQuery, "", false},
		{CategoryVisualization, "", false},
		{CategoryVague, "I wasn't able to match that with any Contoso sales data or product information. Could you rephrase your question or specify a product, region, or time period?", true},
		{CategoryOutOfScope, "I'm here to assist with Contoso sales data and product information. For other topics, please contact IT support.", true},
		{CategoryHostile, "I'm here to help with your sales data and product information inquiries. For additional support, please contact IT.", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got, ok := tt.category.Scripted()
			require.Equal(t, tt.scripted, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRowCapNotice(t *testing.T) {
	require.Equal(t, "Only the first 30 rows are shown. Results are limited to 30 rows per response.", RowCapNotice("en", 30))
	require.True(t, strings.HasPrefix(RowCapNotice("es-PE", 30), "Solo se muestran las primeras 30 filas."))
	require.Equal(t, RowCapNotice("en", 30), RowCapNotice("", 30))
	require.Equal(t, RowCapNotice("en", 30), RowCapNotice("ja", 30))
}

func TestMentionsRowCap(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "english", text: "Results are limited to 30 rows.", want: true},
		{name: "notice", text: RowCapNotice("en", 30), want: true},
		{name: "spanish", text: "Se muestran 30 filas como máximo.", want: true},
		{name: "german notice", text: RowCapNotice("de", 30), want: true},
		{name: "amount", text: "The largest order was 4,300.00 in 2023 across 40 rows.", want: false},
		{name: "year", text: "There are 12 rows for 2030.", want: false},
		{name: "thousands", text: "1,230 rows matched.", want: false},
		{name: "decimal", text: "Average of 30.5 per row.", want: false},
		{name: "no row word", text: "Revenue grew 30 percent.", want: false},
		{name: "inside table", text: "| rows | 30 |\n|---|---|\n| a | 1 |", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MentionsRowCap(tt.text, 30))
		})
	}
}

func TestExportNotice(t *testing.T) {
	require.Equal(t, "CSV export available: /artifacts/a.csv", ExportNotice("en", "/artifacts/a.csv"))
	require.Equal(t, "Exportación CSV disponible: /artifacts/a.csv", ExportNotice("es-MX", "/artifacts/a.csv"))
	require.Equal(t, ExportNotice("en", "x.csv"), ExportNotice("ja", "x.csv"))
}

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		want     Category
		language string
	}{
		{name: "data query", reply: `{"category": "data_query", "language": "en", "reasoning": "asks for revenue"}`, want: CategoryDataQuery, language: "en"},
		{name: "weather", reply: `{"category": "out_of_scope", "language": "en", "reasoning": "weather"}`, want: CategoryOutOfScope, language: "en"},
		{name: "cursing", reply: `{"category": "hostile", "language": "en", "reasoning": "insult"}`, want: CategoryHostile, language: "en"},
		{name: "wrapped in prose", reply: "Sure:\n```json\n{\"category\": \"VAGUE\", \"language\": \"es\"}\n```", want: CategoryVague, language: "es"},
		{name: "unknown category", reply: `{"category": "smalltalk"}`, want: CategoryDataQuery},
		{name: "not json", reply: "data query", want: CategoryDataQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := (&llmtest.Scripted{}).Text(tt.reply)
			c := &Classifier{LLM: fake, Model: "gpt-4o-mini"}

			got, err := c.Classify(context.Background(), "question", nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Category)
			require.Equal(t, tt.language, got.Language)

			req := fake.Requests()[0]
			require.Equal(t, "gpt-4o-mini", req.Model)
			require.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
		})
	}
}

func TestClassifier_History(t *testing.T) {
	fake := (&llmtest.Scripted{}).Text(`{"category": "data_query", "language": "en"}`)
	c := &Classifier{LLM: fake}

	history := []HistoryMessage{
		{Role: "user", Content: "old question 0"},
		{Role: "assistant", Content: strings.Repeat("x", 600)},
	}
	for i := 1; i <= 6; i++ {
		history = append(history, HistoryMessage{Role: "user", Content: "question " + string(rune('0'+i))})
	}
	_, err := c.Classify(context.Background(), "and for 2024?", history)
	require.NoError(t, err)

	prompt := fake.Requests()[0].Messages[1].Content
	require.Contains(t, prompt, "Previous conversation:")
	require.Contains(t, prompt, "User: question 6")
	require.NotContains(t, prompt, "old question 0")
	require.True(t, strings.HasSuffix(prompt, "Message to classify: and for 2024?"))
}

func TestClassifier_TruncatesAssistantHistory(t *testing.T) {
	fake := (&llmtest.Scripted{}).Text(`{"category": "data_query"}`)
	c := &Classifier{LLM: fake}

	_, err := c.Classify(context.Background(), "more", []HistoryMessage{{Role: "assistant", Content: strings.Repeat("y", 600)}})
	require.NoError(t, err)

	prompt := fake.Requests()[0].Messages[1].Content
	require.Contains(t, prompt, "Assistant: "+strings.Repeat("y", 500)+"...")
}

func TestClassifier_LLMError(t *testing.T) {
	fake := (&llmtest.Scripted{}).Error(errors.New("boom"))
	c := &Classifier{LLM: fake}

	_, err := c.Classify(context.Background(), "question", nil)
	require.ErrorContains(t, err, "boom")
}
