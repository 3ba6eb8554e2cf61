package salesdb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrNotReadOnly is returned for anything other than a single SELECT/WITH statement.
	ErrNotReadOnly = errors.New("only a single read-only SELECT statement is allowed")

	// ErrSchemaMismatch is returned when a query references a table or column that
	// does not exist in the schema.
	ErrSchemaMismatch = errors.New("query does not match the database schema")
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	forbiddenRe    = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|ANALYZE|TRUNCATE)\b|\bREPLACE\s+INTO\b`)
	tableRefRe     = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+(\"[^\"]+\"|`[^`]+`|\\[[^\\]]+\\]|[A-Za-z_][A-Za-z0-9_]*)")
	cteNameRe      = regexp.MustCompile(`(?i)(?:\bWITH\s+(?:RECURSIVE\s+)?|,\s*)([A-Za-z_][A-Za-z0-9_]*)\s+AS\s*\(`)
)

// normalizeStatement strips comments and a trailing semicolon, and rejects anything
// that is not a single read-only statement.
func normalizeStatement(query string) (string, error) {
	stmt := blockCommentRe.ReplaceAllString(query, " ")
	stmt = lineCommentRe.ReplaceAllString(stmt, " ")
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\n"))
	if stmt == "" {
		return "", fmt.Errorf("%w: empty query", ErrNotReadOnly)
	}
	// 文字列リテラルの中身はキーワードや区切りとして扱わない
	masked := maskLiterals(stmt)
	if strings.Contains(masked, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}

	fields := strings.Fields(stmt)
	first := strings.ToUpper(fields[0])
	if first != "SELECT" && first != "WITH" {
		return "", fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, first)
	}
	if m := forbiddenRe.FindString(masked); m != "" {
		return "", fmt.Errorf("%w: %s is not allowed", ErrNotReadOnly, strings.ToUpper(m))
	}
	return stmt, nil
}

// referencedTables returns the table names following FROM/JOIN, excluding CTE names.
func referencedTables(stmt string) []string {
	stmt = maskLiterals(stmt)
	ctes := make(map[string]bool)
	for _, m := range cteNameRe.FindAllStringSubmatch(stmt, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	var tables []string
	seen := make(map[string]bool)
	for _, m := range tableRefRe.FindAllStringSubmatch(stmt, -1) {
		name := unquoteIdent(m[1])
		key := strings.ToLower(name)
		if ctes[key] || seen[key] {
			continue
		}
		seen[key] = true
		tables = append(tables, name)
	}
	return tables
}

// maskLiterals empties the contents of single-quoted string literals, keeping
// the quotes. A doubled quote inside a literal is an escaped quote.
func maskLiterals(stmt string) string {
	var b strings.Builder
	inLiteral := false
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if c == '\'' {
			if inLiteral && i+1 < len(stmt) && stmt[i+1] == '\'' {
				i++
				continue
			}
			inLiteral = !inLiteral
			b.WriteByte(c)
			continue
		}
		if !inLiteral {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// compactSpace collapses runs of whitespace outside string literals into a single space.
func compactSpace(stmt string) string {
	var b strings.Builder
	inLiteral, space := false, false
	for _, r := range stmt {
		if r == '\'' {
			inLiteral = !inLiteral
		} else if !inLiteral && unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
