package parse

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	input := "שם,סכום,תאריך תשלום\nדני כהן,1200,01/03/2024\nרות לוי,800,15/3/24\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"שם", "סכום", "תאריך תשלום"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "דני כהן", table.Rows[0]["שם"])
	assert.Equal(t, "1200", table.Rows[0]["סכום"])
	assert.Equal(t, "15/3/24", table.Rows[1]["תאריך תשלום"])
}

func TestParseCSV_StripsBOM(t *testing.T) {
	input := "\uFEFFname,amount\nדני,100\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "amount"}, table.Headers)
}

func TestParseCSV_RaggedRows(t *testing.T) {
	input := "name,amount,status\nדני,100\nרות,200,paid,extra\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	// Short row padded, long row truncated to the header set.
	assert.Equal(t, "", table.Rows[0]["status"])
	assert.Equal(t, "paid", table.Rows[1]["status"])
	assert.Len(t, table.Rows[1], 3)
}

func TestParseCSV_SkipsEmptyRows(t *testing.T) {
	input := "name\nדני\n\n \nרות\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"שם", "סכום"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"דני", 1200}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := ParseXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"שם", "סכום"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "דני", table.Rows[0]["שם"])
	assert.Equal(t, "1200", table.Rows[0]["סכום"])
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	_, err := ParseFile("data.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
