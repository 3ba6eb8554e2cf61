// Package policy decides how a user turn is answered.
package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scripted replies. These are returned byte for byte and never paraphrased.
const (
	OutOfScopeMessage    = "I'm here to assist with Contoso sales data and product information. For other topics, please contact IT support."
	DeescalationMessage  = "I'm here to help with your sales data and product information inquiries. For additional support, please contact IT."
	ClarificationMessage = "I wasn't able to match that with any Contoso sales data or product information. Could you rephrase your question or specify a product, region, or time period?"
)

// Category is the class of a user turn.
type Category string

const (
	CategoryDataQuery     Category = "data_query"
	CategoryVisualization Category = "visualization"
	CategoryVague         Category = "vague"
	CategoryOutOfScope    Category = "out_of_scope"
	CategoryHostile       Category = "hostile"
)

// Categories lists every category in the order they are described to the model.
var Categories = []Category{
	CategoryDataQuery,
	CategoryVisualization,
	CategoryVague,
	CategoryOutOfScope,
	CategoryHostile,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Scripted returns the fixed reply for categories that are never sent to the tool loop.
func (c Category) Scripted() (string, bool) {
	switch c {
	case CategoryVague:
		return ClarificationMessage, true
	case CategoryOutOfScope:
		return OutOfScopeMessage, true
	case CategoryHostile:
		return DeescalationMessage, true
	}
	return "", false
}

var rowCapNotices = map[string]string{
	"en": "Only the first %d rows are shown. Results are limited to %d rows per response.",
	"es": "Solo se muestran las primeras %d filas. Los resultados están limitados a %d filas por respuesta.",
	"pt": "Apenas as primeiras %d linhas são exibidas. Os resultados são limitados a %d linhas por resposta.",
	"fr": "Seules les %d premières lignes sont affichées. Les résultats sont limités à %d lignes par réponse.",
	"de": "Es werden nur die ersten %d Zeilen angezeigt. Ergebnisse sind auf %d Zeilen pro Antwort begrenzt.",
	"it": "Vengono mostrate solo le prime %d righe. I risultati sono limitati a %d righe per risposta.",
}

// RowCapNotice returns the sentence explaining the row cap, in language when known.
// language is an ISO 639-1 code such as "es" or "pt-BR".
func RowCapNotice(language string, rowCap int) string {
	format, ok := rowCapNotices[baseLanguage(language)]
	if !ok {
		format = rowCapNotices["en"]
	}
	return fmt.Sprintf(format, rowCap, rowCap)
}

// rowWordRe matches the word for "rows" in the languages RowCapNotice supports.
var rowWordRe = regexp.MustCompile(`(?i)\b(rows?|records?|filas?|registros?|linhas?|lignes?|zeilen?|righe|riga)\b`)

// MentionsRowCap reports whether a line outside of tables states the row cap:
// rowCap as a number of its own on the same line as a word for rows.
func MentionsRowCap(text string, rowCap int) bool {
	n := strconv.Itoa(rowCap)
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "|") || !rowWordRe.MatchString(line) {
			continue
		}
		if containsNumber(line, n) {
			return true
		}
	}
	return false
}

// containsNumber reports whether n appears in line as a whole number, so "30"
// is found in "limited to 30." but not in "2030" or "4,300.00".
func containsNumber(line, n string) bool {
	for i := 0; ; {
		j := strings.Index(line[i:], n)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(n)
		if !partOfNumber(line, start-1, start-2) && !partOfNumber(line, end, end+1) {
			return true
		}
		i = start + 1
	}
}

// partOfNumber reports whether the byte at i extends a number: a digit, or a
// separator followed (at next) by a digit.
func partOfNumber(line string, i, next int) bool {
	if i < 0 || i >= len(line) {
		return false
	}
	if isDigit(line[i]) {
		return true
	}
	if line[i] == '.' || line[i] == ',' {
		return next >= 0 && next < len(line) && isDigit(line[next])
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

var exportNotices = map[string]string{
	"en": "CSV export available: %s",
	"es": "Exportación CSV disponible: %s",
	"pt": "Exportação CSV disponível: %s",
	"fr": "Export CSV disponible : %s",
	"de": "CSV-Export verfügbar: %s",
	"it": "Esportazione CSV disponibile: %s",
}

// ExportNotice returns the line pointing the user at an exported CSV file.
func ExportNotice(language, url string) string {
	format, ok := exportNotices[baseLanguage(language)]
	if !ok {
		format = exportNotices["en"]
	}
	return fmt.Sprintf(format, url)
}

func baseLanguage(language string) string {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
