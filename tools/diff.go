package tools

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// formatUnifiedDiff は2つのテキストを行単位のユニファイドdiff形式に整形する
func formatUnifiedDiff(oldText, newText, oldPath, newPath string) string {
	if oldText == newText {
		return ""
	}

	uri := span.URIFromPath(oldPath)
	edits := myers.ComputeEdits(uri, oldText, newText)
	if len(edits) == 0 {
		return ""
	}

	unified := gotextdiff.ToUnified(oldPath, newPath, oldText, edits)
	return fmt.Sprint(unified)
}
