package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// maxMemberSize bounds how much a single bundle member may expand to, so a
// hostile archive cannot exhaust memory.
const maxMemberSize = 256 << 20

// IsXLSX reports whether the zip bytes are an Office Open XML workbook rather
// than a plain zip bundle. Both share the same magic number.
func IsXLSX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == "xl/workbook.xml" || strings.HasPrefix(f.Name, "xl/worksheets/") {
			return true
		}
	}
	return false
}

// FirstTableMember extracts the first .csv or .xlsx member of a zip bundle,
// skipping directories and archiver junk like __MACOSX entries. Platforms
// ship exports zipped with screenshots and readme files alongside the data.
func FirstTableMember(data []byte) (string, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open bundle")
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), ".") {
			continue
		}
		ext := strings.ToLower(path.Ext(name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		if f.UncompressedSize64 > maxMemberSize {
			return "", nil, eris.Errorf("zip: member %s too large (%d bytes)", name, f.UncompressedSize64)
		}

		rc, err := f.Open()
		if err != nil {
			return "", nil, eris.Wrapf(err, "zip: open member %s", name)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		_ = rc.Close()
		if err != nil {
			return "", nil, eris.Wrapf(err, "zip: read member %s", name)
		}
		return name, content, nil
	}

	return "", nil, eris.New("zip: no csv or xlsx member in bundle")
}
