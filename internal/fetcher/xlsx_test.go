package fetcher

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// buildWorkbook assembles an in-memory XLSX workbook with one sheet.
func buildWorkbook(t *testing.T, sheetName string, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadXLSXBytes_Basic(t *testing.T) {
	data := buildWorkbook(t, "Sheet1", [][]string{
		{"post_id", "likes"},
		{"p1", "10"},
		{"p2", "20"},
	})

	rows, err := ReadXLSXBytes(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"post_id", "likes"}, rows[0])
	assert.Equal(t, []string{"p2", "20"}, rows[2])
}

func TestReadXLSXBytes_SkipRows(t *testing.T) {
	data := buildWorkbook(t, "Sheet1", [][]string{
		{"export generated 2024-01-01"},
		{"post_id", "likes"},
		{"p1", "10"},
	})

	rows, err := ReadXLSXBytes(data, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"post_id", "likes"}, rows[0])
}

func TestReadXLSXBytes_SheetByName(t *testing.T) {
	data := buildWorkbook(t, "Posts", [][]string{{"a"}, {"1"}})

	rows, err := ReadXLSXBytes(data, XLSXOptions{SheetName: "Posts"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSXBytes(data, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSXBytes_SheetIndexOutOfRange(t *testing.T) {
	data := buildWorkbook(t, "Sheet1", [][]string{{"a"}})

	_, err := ReadXLSXBytes(data, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSXBytes_NotAWorkbook(t *testing.T) {
	_, err := ReadXLSXBytes([]byte("plainly not a zip"), XLSXOptions{})
	require.Error(t, err)
}

func TestReadXLSX_FromDisk(t *testing.T) {
	data := buildWorkbook(t, "Sheet1", [][]string{
		{"post_id", "likes"},
		{"p1", "10"},
	})
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, writeBytes(path, data))

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"p1", "10"}, rows[1])
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	require.Error(t, err)
}
