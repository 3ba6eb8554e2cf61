// Package salesdbtest builds small sales databases for tests.
package salesdbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// FixtureRows is the number of rows in the sales_data fixture table.
const FixtureRows = 40

var (
	Regions      = []string{"AFRICA", "ASIA", "EUROPE", "NORTH AMERICA"}
	ProductTypes = []string{"JACKETS", "TENTS", "BACKPACKS", "CLIMBING", "FOOTWEAR"}
)

// NewSalesDB writes a sales_data table with FixtureRows rows to a temp file and
// returns its path.
func NewSalesDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE sales_data (
		id INTEGER PRIMARY KEY,
		region TEXT NOT NULL,
		product_type TEXT NOT NULL,
		main_category TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		revenue REAL NOT NULL,
		number_of_orders INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	for i := 0; i < FixtureRows; i++ {
		category := "APPAREL"
		if i%2 == 1 {
			category = "CAMPING"
		}
		_, err := db.Exec(
			`INSERT INTO sales_data (region, product_type, main_category, year, month, revenue, number_of_orders)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			Regions[i%len(Regions)],
			ProductTypes[i%len(ProductTypes)],
			category,
			2023+i%2,
			i%12+1,
			float64(100*(i+1)),
			i+1,
		)
		require.NoError(t, err, fmt.Sprintf("insert row %d", i))
	}
	return path
}
