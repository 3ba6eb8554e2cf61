package salesdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const maxSampleValues = 20

// Column describes a single column of a table.
type Column struct {
	Name        string
	Type        string
	Description string
	// Values holds the distinct values of low-cardinality columns.
	Values []string
}

// Table describes a table or view of the sales database.
type Table struct {
	Name    string
	Columns []Column
}

// Schema is the set of tables and columns a query may reference.
type Schema struct {
	Tables           []Table
	MandatoryColumns []string
	FilterColumns    []string

	descriptions map[string]string
}

// Table returns the table with the given name, case-insensitively.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

func (s *Schema) checkTables(stmt string) error {
	for _, name := range referencedTables(stmt) {
		if _, ok := s.Table(name); !ok {
			return fmt.Errorf("%w: no such table: %s", ErrSchemaMismatch, name)
		}
	}
	return nil
}

// Describe renders the schema as text for the system prompt.
func (s *Schema) Describe() string {
	var b strings.Builder
	if len(s.MandatoryColumns) > 0 {
		b.WriteString("Columns to include in answers when available: ")
		b.WriteString(strings.Join(s.MandatoryColumns, ", "))
		b.WriteString("\n\n")
	}
	if len(s.FilterColumns) > 0 {
		b.WriteString("Columns to filter by:\n")
		for _, name := range s.FilterColumns {
			fmt.Fprintf(&b, "- %s", name)
			if d := describeColumn(s.descriptions, "", name); d != "" {
				fmt.Fprintf(&b, ": %s", d)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	for i, t := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s\n", t.Name)
		for _, c := range t.Columns {
			typ := c.Type
			if typ == "" {
				typ = "ANY"
			}
			fmt.Fprintf(&b, "- %s (%s)", c.Name, typ)
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			if len(c.Values) > 0 {
				fmt.Fprintf(&b, ". Values: %s", strings.Join(c.Values, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func loadSchema(ctx context.Context, db *sql.DB, opts Options) (*Schema, error) {
	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	schema := &Schema{
		MandatoryColumns: opts.MandatoryColumns,
		FilterColumns:    opts.FilterColumns,
		descriptions:     opts.Descriptions,
	}
	for _, name := range names {
		columns, err := tableColumns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		for i := range columns {
			columns[i].Description = describeColumn(opts.Descriptions, name, columns[i].Name)
			if opts.SkipSampleValues || !sampleable(columns[i].Type) {
				continue
			}
			values, err := sampleValues(ctx, db, name, columns[i].Name)
			if err != nil {
				return nil, err
			}
			columns[i].Values = values
		}
		schema.Tables = append(schema.Tables, Table{Name: name, Columns: columns})
	}
	return schema, nil
}

func describeColumn(descriptions map[string]string, table, column string) string {
	if d, ok := descriptions[table+"."+column]; ok {
		return d
	}
	return descriptions[column]
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, Column{Name: name, Type: strings.ToUpper(typ)})
	}
	return columns, rows.Err()
}

// sampleable reports whether a declared column type has TEXT or INTEGER affinity.
func sampleable(typ string) bool {
	for _, s := range []string{"INT", "CHAR", "CLOB", "TEXT"} {
		if strings.Contains(typ, s) {
			return true
		}
	}
	return false
}

// sampleValues returns the distinct values of a column when there are few of them.
func sampleValues(ctx context.Context, db *sql.DB, table, column string) ([]string, error) {
	var n int
	// maxSampleValues+1 件見つかった時点で打ち切る
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL LIMIT %[3]d)",
		quoteIdent(column), quoteIdent(table), maxSampleValues+1)
	if err := db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to count values of %s.%s: %w", table, column, err)
	}
	if n == 0 || n > maxSampleValues {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY 1",
		quoteIdent(column), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to sample values of %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value of %s.%s: %w", table, column, err)
		}
		values = append(values, FormatValue(v))
	}
	return values, rows.Err()
}
