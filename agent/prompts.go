package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shibayu36/salesagent/salesdb"
)

//go:embed instructions.md
var defaultInstructions string

const (
	schemaPlaceholder = "{database_schema_string}"
	rowCapPlaceholder = "{row_cap}"
)

// LoadInstructions reads an instructions template from path, or returns the
// built-in template when path is empty.
func LoadInstructions(path string) (string, error) {
	if path == "" {
		return defaultInstructions, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read instructions: %w", err)
	}
	return string(data), nil
}

// BuildSystemPrompt fills the placeholders of an instructions template.
func BuildSystemPrompt(instructions string, schema *salesdb.Schema) string {
	return strings.NewReplacer(
		schemaPlaceholder, schema.Describe(),
		rowCapPlaceholder, strconv.Itoa(salesdb.RowCap),
	).Replace(strings.TrimSpace(instructions))
}
