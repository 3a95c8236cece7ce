package tabular

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const metadataCSV = "\ufeffDataset,Field,Value\n" +
	"cod-ps-sld,title,Simland - Subnational Population Statistics\n" +
	",,\n" +
	"cod-ps-sld,tags,\"baseline population, census\"\n" +
	"cod-ps-sld,notes\n"

func readAll(t *testing.T, r Reader) [][]string {
	t.Helper()
	var out [][]string
	for r.Next() {
		out = append(out, r.Row().Values)
	}
	require.NoError(t, r.Err())
	return out
}

func TestCSVReaderStripsBOMAndSkipsEmptyRows(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(metadataCSV)), DefaultSettings())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"Dataset", "Field", "Value"}, r.Headers())

	rows := readAll(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, "baseline population, census", rows[1][2])
	// ragged row is padded to the header width
	assert.Equal(t, []string{"cod-ps-sld", "notes", ""}, rows[2])
}

func TestCSVReaderKeepsSourceLineNumbers(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(metadataCSV)), DefaultSettings())
	require.NoError(t, err)
	defer r.Close()

	var numbers []int
	for r.Next() {
		numbers = append(numbers, r.Row().Number)
	}
	assert.Equal(t, []int{2, 4, 5}, numbers)
}

func TestCSVReaderDelimiters(t *testing.T) {
	src := "Dataset|Field|Value\nx|title|A title\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(src)), Settings{Delimiter: "pipe"})
	require.NoError(t, err)

	rows := readAll(t, r)
	require.Len(t, rows, 1)
	value, ok := r.Row().Get("Value")
	assert.True(t, ok)
	assert.Equal(t, "A title", value)
}

func TestCSVReaderEmptySourceHasNoHeaders(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("")), DefaultSettings())
	require.NoError(t, err)
	assert.Empty(t, r.Headers())
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestOpenInfersFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatFromPath("metadata.XLSX"))
	assert.Equal(t, FormatCSV, FormatFromPath("https://example.org/export?format=csv"))
	assert.Equal(t, FormatCSV, FormatFromPath("metadata"))

	_, err := Open("whatever.json", "json")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.csv")
	require.NoError(t, os.WriteFile(path, []byte(metadataCSV), 0o644))

	r, err := Open(path, "")
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 3)
}

func TestOpenXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]string{
		{"Dataset", "Field", "Value"},
		{"cod-ab-sld", "title", "Simland - Subnational Administrative Boundaries"},
		{},
		{"cod-ab-sld", "groups", "Simland"},
	}
	for i, row := range cells {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	r, err := Open(path, "")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"Dataset", "Field", "Value"}, r.Headers())
	rows := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"cod-ab-sld", "groups", "Simland"}, rows[1])
}

func TestOpenXLSXUnknownSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := OpenWithSettings(path, FormatXLSX, Settings{Sheet: "Missing"})
	assert.Error(t, err)
}
