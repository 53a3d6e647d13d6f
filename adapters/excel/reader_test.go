package excel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crimestats/domain/core"
)

func TestReadData_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crime.csv")
	content := "\ufeff,Jurisdiction,Year,Murder\n0,Kent County,2019,3\n1,Cecil County,2020\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := NewDataReader(path).ReadData()
	require.NoError(t, err)

	assert.Equal(t, []string{"Jurisdiction", "Year", "Murder"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Kent County", table.Rows[0]["Jurisdiction"])
	assert.Equal(t, "", table.Rows[1]["Murder"], "short rows are padded")
	assert.Equal(t, []string{"2019", "2020"}, table.Column("Year"))
	assert.True(t, table.HasColumn("Murder"))
	assert.False(t, table.HasColumn(""))
}

func TestReadData_TSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crime.tsv")
	require.NoError(t, os.WriteFile(path, []byte("Jurisdiction\tYear\nKent County\t2019\n"), 0o644))

	table, err := NewDataReader(path).ReadData()
	require.NoError(t, err)
	assert.Equal(t, "2019", table.Rows[0]["Year"])
}

func TestReadData_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crime.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Jurisdiction", "Year", "Murder"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Kent County", 2019, 3}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := NewDataReader(path).ReadData()
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "2019", table.Rows[0]["Year"])
	assert.Equal(t, "3", table.Rows[0]["Murder"])

	_, err = NewDataReader(path).WithSheet("Missing").ReadData()
	assert.Error(t, err)
}

func TestReadData_NotFound(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "nope.csv")).ReadData()
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := NewDataReader("inline.csv").ReadCSV(strings.NewReader(""), ',')
	assert.Error(t, err)
}

func TestIsSpreadsheetPath(t *testing.T) {
	assert.True(t, IsSpreadsheetPath("data/crime.CSV"))
	assert.True(t, IsSpreadsheetPath("crime.xlsx"))
	assert.False(t, IsSpreadsheetPath("postgres://localhost/crime"))
}
