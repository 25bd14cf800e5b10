package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// utf16le encodes ASCII text as UTF-16LE with a byte order mark, the way
// Meta's wide-char exports arrive.
func utf16le(s string) []byte {
	b := []byte{0xff, 0xfe}
	for _, r := range s {
		b = append(b, byte(r), 0x00)
	}
	return b
}

func workbookBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
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

func zipBundle(t *testing.T, members map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(members[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadRaw_PlainCSV(t *testing.T) {
	data := []byte("post_id,timestamp,likes\np1,2024-06-15 10:30:00,5\n")

	raw, err := ReadRaw(context.Background(), "export.csv", data)
	require.NoError(t, err)
	assert.Equal(t, "export.csv", raw.Source)
	assert.Equal(t, []string{"post_id", "timestamp", "likes"}, raw.Columns)
	require.Len(t, raw.Rows, 1)
	assert.Equal(t, []string{"p1", "2024-06-15 10:30:00", "5"}, raw.Rows[0])
}

func TestReadRaw_UTF8BOMStripped(t *testing.T) {
	data := append([]byte{0xef, 0xbb, 0xbf}, []byte("post_id,timestamp\np1,2024-06-15\n")...)

	raw, err := ReadRaw(context.Background(), "export.csv", data)
	require.NoError(t, err)
	assert.Equal(t, "post_id", raw.Columns[0], "BOM must not stick to the first column name")
}

func TestReadRaw_UTF16TabDelimited(t *testing.T) {
	data := utf16le("Post ID\tLikes\nIG_1\t10\n")

	raw, err := ReadRaw(context.Background(), "meta_export.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post ID", "Likes"}, raw.Columns)
	require.Len(t, raw.Rows, 1)
	assert.Equal(t, []string{"IG_1", "10"}, raw.Rows[0])
}

func TestReadRaw_UTF16CommaDelimited(t *testing.T) {
	data := utf16le("post_id,likes\np1,10\n")

	raw, err := ReadRaw(context.Background(), "export.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"post_id", "likes"}, raw.Columns)
}

func TestReadRaw_XLSXWorkbook(t *testing.T) {
	data := workbookBytes(t, [][]string{
		{"post_id", "timestamp"},
		{"p1", "2024-06-15 10:30:00"},
	})

	raw, err := ReadRaw(context.Background(), "export.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"post_id", "timestamp"}, raw.Columns)
	require.Len(t, raw.Rows, 1)
}

func TestReadRaw_ZipBundle(t *testing.T) {
	data := zipBundle(t, map[string]string{
		"readme.txt": "shipped by the platform",
		"posts.csv":  "post_id,timestamp\np1,2024-06-15 10:30:00\n",
	}, []string{"readme.txt", "posts.csv"})

	raw, err := ReadRaw(context.Background(), "bundle.zip", data)
	require.NoError(t, err)
	assert.Equal(t, "bundle.zip!posts.csv", raw.Source)
	assert.Equal(t, []string{"post_id", "timestamp"}, raw.Columns)
}

func TestReadRaw_ZipBundleWithWorkbook(t *testing.T) {
	workbook := workbookBytes(t, [][]string{{"post_id", "timestamp"}, {"p1", "2024-06-15"}})
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("export.xlsx")
	require.NoError(t, err)
	_, err = w.Write(workbook)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	raw, rerr := ReadRaw(context.Background(), "bundle.zip", buf.Bytes())
	require.NoError(t, rerr)
	assert.Equal(t, "bundle.zip!export.xlsx", raw.Source)
	assert.Equal(t, []string{"post_id", "timestamp"}, raw.Columns)
}

func TestReadRaw_ZipBundleNoTable(t *testing.T) {
	data := zipBundle(t, map[string]string{"readme.txt": "nothing here"}, []string{"readme.txt"})

	_, err := ReadRaw(context.Background(), "bundle.zip", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle.zip")
}

func TestReadRaw_EmptyInput(t *testing.T) {
	raw, err := ReadRaw(context.Background(), "empty.csv", nil)
	require.NoError(t, err)
	assert.Empty(t, raw.Columns)
	assert.Empty(t, raw.Rows)
}

func TestReadRaw_HeaderOnly(t *testing.T) {
	raw, err := ReadRaw(context.Background(), "header.csv", []byte("post_id,timestamp\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"post_id", "timestamp"}, raw.Columns)
	assert.Empty(t, raw.Rows)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc\n1\t2\t3\n")))
	assert.Equal(t, rune(0), sniffDelimiter([]byte("a,b,c\n")))
	// Mixed headers keep the comma default.
	assert.Equal(t, rune(0), sniffDelimiter([]byte("a,b\tc\n")))
}
