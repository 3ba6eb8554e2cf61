package salesdb_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shibayu36/salesagent/salesdb"
	"github.com/shibayu36/salesagent/salesdb/salesdbtest"
	"github.com/stretchr/testify/require"
)

func openFixture(t *testing.T, opts salesdb.Options) *salesdb.Database {
	t.Helper()
	db, err := salesdb.Open(context.Background(), salesdbtest.NewSalesDB(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQuery_RowCap(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	result, err := db.Query(context.Background(), "SELECT * FROM sales_data")
	require.NoError(t, err)
	require.Len(t, result.Rows, salesdb.RowCap)
	require.True(t, result.Truncated)
	require.Equal(t, []string{"id", "region", "product_type", "main_category", "year", "month", "revenue", "number_of_orders"}, result.Columns)
}

func TestQuery_Aggregate(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	result, err := db.Query(context.Background(), `
		-- revenue per region
		SELECT region, COUNT(*) AS orders, SUM(revenue) AS total
		FROM sales_data
		GROUP BY region
		ORDER BY region;`)
	require.NoError(t, err)
	require.False(t, result.Truncated)
	require.Len(t, result.Rows, 4)
	require.Equal(t, "AFRICA", result.Rows[0][0])
	require.Equal(t, int64(10), result.Rows[0][1])
	require.Equal(t, float64(19000), result.Rows[0][2])

	records := result.Records()
	require.Equal(t, "ASIA", records[1]["region"])
}

func TestQuery_ExactlyRowCapIsNotTruncated(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	result, err := db.Query(context.Background(), "SELECT id FROM sales_data ORDER BY id LIMIT 30")
	require.NoError(t, err)
	require.Len(t, result.Rows, salesdb.RowCap)
	require.False(t, result.Truncated)
}

func TestQuery_WithCTE(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	result, err := db.Query(context.Background(), `
		WITH yearly AS (SELECT year, SUM(revenue) AS total FROM sales_data GROUP BY year)
		SELECT year, total FROM yearly ORDER BY year`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, int64(2023), result.Rows[0][0])
}

func TestQuery_RejectsWrites(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	tests := []struct {
		name  string
		query string
	}{
		{name: "delete", query: "DELETE FROM sales_data"},
		{name: "drop", query: "DROP TABLE sales_data"},
		{name: "pragma", query: "PRAGMA table_info(sales_data)"},
		{name: "multiple statements", query: "SELECT 1; DELETE FROM sales_data"},
		{name: "insert in select", query: "SELECT * FROM sales_data WHERE id IN (SELECT 1) UNION SELECT * FROM sales_data; INSERT INTO sales_data DEFAULT VALUES"},
		{name: "empty", query: "  ;  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Query(context.Background(), tt.query)
			require.ErrorIs(t, err, salesdb.ErrNotReadOnly)
		})
	}
}

func TestQuery_SchemaMismatch(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	_, err := db.Query(context.Background(), "SELECT * FROM weather")
	require.ErrorIs(t, err, salesdb.ErrSchemaMismatch)

	_, err = db.Query(context.Background(), "SELECT temperature FROM sales_data")
	require.ErrorIs(t, err, salesdb.ErrSchemaMismatch)
}

func TestQuery_Cached(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	first, err := db.Query(context.Background(), "SELECT COUNT(*) FROM sales_data")
	require.NoError(t, err)
	second, err := db.Query(context.Background(), "SELECT   COUNT(*)\n\tFROM sales_data")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestQuery_CacheKeepsLiteralCase(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	lower, err := db.Query(context.Background(), "SELECT COUNT(*) AS n FROM sales_data WHERE region = 'asia'")
	require.NoError(t, err)
	upper, err := db.Query(context.Background(), "SELECT COUNT(*) AS n FROM sales_data WHERE region = 'ASIA'")
	require.NoError(t, err)

	require.NotSame(t, lower, upper)
	require.Equal(t, int64(0), lower.Rows[0][0])
	require.Equal(t, int64(10), upper.Rows[0][0])

	// リテラル内の空白も区別する
	spaced, err := db.Query(context.Background(), "SELECT COUNT(*) AS n FROM sales_data WHERE region = 'NORTH  AMERICA'")
	require.NoError(t, err)
	require.Equal(t, int64(0), spaced.Rows[0][0])
	single, err := db.Query(context.Background(), "SELECT COUNT(*) AS n FROM sales_data WHERE region = 'NORTH AMERICA'")
	require.NoError(t, err)
	require.Equal(t, int64(10), single.Rows[0][0])
}

func TestQuery_KeywordsInsideLiterals(t *testing.T) {
	db := openFixture(t, salesdb.Options{})

	tests := []struct {
		name  string
		query string
	}{
		{name: "write keyword", query: "SELECT COUNT(*) FROM sales_data WHERE region = 'update'"},
		{name: "semicolon", query: "SELECT COUNT(*) FROM sales_data WHERE region = 'a;b'"},
		{name: "from in literal", query: "SELECT COUNT(*) FROM sales_data WHERE region = 'from Asia'"},
		{name: "escaped quote", query: "SELECT COUNT(*) FROM sales_data WHERE region = 'it''s; drop table x'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := db.Query(context.Background(), tt.query)
			require.NoError(t, err)
			require.Equal(t, int64(0), result.Rows[0][0])
		})
	}

	_, err := db.Query(context.Background(), "SELECT 'ok'; DELETE FROM sales_data")
	require.ErrorIs(t, err, salesdb.ErrNotReadOnly)
}

func TestSchema_Describe(t *testing.T) {
	db := openFixture(t, salesdb.Options{
		Descriptions:     map[string]string{"region": "Sales region", "sales_data.revenue": "Revenue in USD"},
		MandatoryColumns: []string{"region"},
	})

	table, ok := db.Schema().Table("SALES_DATA")
	require.True(t, ok)
	require.Len(t, table.Columns, 8)

	desc := db.Schema().Describe()
	require.Contains(t, desc, "Table sales_data")
	require.Contains(t, desc, "- region (TEXT): Sales region. Values: AFRICA, ASIA, EUROPE, NORTH AMERICA")
	require.Contains(t, desc, "- revenue (REAL): Revenue in USD")
	require.Contains(t, desc, "- year (INTEGER). Values: 2023, 2024")
	require.Contains(t, desc, "Columns to include in answers when available: region")
	require.NotContains(t, desc, "- revenue (REAL): Revenue in USD. Values")
}

func TestSchema_FilterColumns(t *testing.T) {
	db := openFixture(t, salesdb.Options{
		Descriptions:  map[string]string{"region": "Sales region"},
		FilterColumns: []string{"region", "product_type"},
	})

	desc := db.Schema().Describe()
	require.Contains(t, desc, "Columns to filter by:\n- region: Sales region\n- product_type\n")
}

func TestSchema_SampleValuesByType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE prices (tier TEXT, price REAL, code INTEGER)`)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = raw.Exec(`INSERT INTO prices (tier, price, code) VALUES (?, ?, ?)`, fmt.Sprintf("T%d", i), 9.5, i)
		require.NoError(t, err)
	}
	for i := 3; i < 50; i++ {
		_, err = raw.Exec(`INSERT INTO prices (tier, price, code) VALUES ('T0', 9.5, ?)`, i)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	db, err := salesdb.Open(context.Background(), path, salesdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, ok := db.Schema().Table("prices")
	require.True(t, ok)
	values := map[string][]string{}
	for _, c := range table.Columns {
		values[c.Name] = c.Values
	}
	require.Equal(t, []string{"T0", "T1", "T2"}, values["tier"])
	require.Empty(t, values["price"])
	require.Empty(t, values["code"])
}

func TestOpen_SkipSampleValues(t *testing.T) {
	db := openFixture(t, salesdb.Options{SkipSampleValues: true})

	for _, c := range db.Schema().Tables[0].Columns {
		require.Empty(t, c.Values)
	}
}
