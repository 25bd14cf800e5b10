package fetcher

import (
	"archive/zip"
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBytes(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// buildBundle assembles an in-memory zip with the given members in order.
func buildBundle(t *testing.T, members map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(members[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFirstTableMember_PicksFirstCSV(t *testing.T) {
	data := buildBundle(t, map[string][]byte{
		"readme.txt": []byte("exported by platform"),
		"posts.csv":  []byte("post_id,likes\np1,10\n"),
		"extra.csv":  []byte("other"),
	}, []string{"readme.txt", "posts.csv", "extra.csv"})

	name, content, err := FirstTableMember(data)
	require.NoError(t, err)
	assert.Equal(t, "posts.csv", name)
	assert.Equal(t, "post_id,likes\np1,10\n", string(content))
}

func TestFirstTableMember_SkipsArchiverJunk(t *testing.T) {
	data := buildBundle(t, map[string][]byte{
		"__MACOSX/._posts.csv": []byte("resource fork noise"),
		".hidden.csv":          []byte("dotfile"),
		"export/posts.csv":     []byte("post_id\np1\n"),
	}, []string{"__MACOSX/._posts.csv", ".hidden.csv", "export/posts.csv"})

	name, content, err := FirstTableMember(data)
	require.NoError(t, err)
	assert.Equal(t, "export/posts.csv", name)
	assert.Equal(t, "post_id\np1\n", string(content))
}

func TestFirstTableMember_XLSXMember(t *testing.T) {
	workbook := buildWorkbook(t, "Sheet1", [][]string{{"post_id"}, {"p1"}})
	data := buildBundle(t, map[string][]byte{
		"notes.txt":   []byte("ignore"),
		"export.xlsx": workbook,
	}, []string{"notes.txt", "export.xlsx"})

	name, content, err := FirstTableMember(data)
	require.NoError(t, err)
	assert.Equal(t, "export.xlsx", name)
	assert.Equal(t, workbook, content)
}

func TestFirstTableMember_NoTable(t *testing.T) {
	data := buildBundle(t, map[string][]byte{
		"readme.txt": []byte("nothing useful"),
	}, []string{"readme.txt"})

	_, _, err := FirstTableMember(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no csv or xlsx member")
}

func TestFirstTableMember_NotAZip(t *testing.T) {
	_, _, err := FirstTableMember([]byte("not a zip at all"))
	require.Error(t, err)
}

func TestIsXLSX(t *testing.T) {
	workbook := buildWorkbook(t, "Sheet1", [][]string{{"a"}})
	assert.True(t, IsXLSX(workbook))

	bundle := buildBundle(t, map[string][]byte{
		"posts.csv": []byte("post_id\np1\n"),
	}, []string{"posts.csv"})
	assert.False(t, IsXLSX(bundle))

	assert.False(t, IsXLSX([]byte("garbage")))
}
