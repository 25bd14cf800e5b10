package ingest

import (
	"bytes"
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/pulse-metrics/insights-cli/internal/fetcher"
)

// RawImport is a parsed export file before schema adaptation: the header as
// shipped plus every data row as strings. Ephemeral; only adapters read it.
type RawImport struct {
	Source  string
	Columns []string
	Rows    [][]string
}

var (
	zipMagic   = []byte{0x50, 0x4b, 0x03, 0x04}
	utf8BOM    = []byte{0xef, 0xbb, 0xbf}
	utf16LEBOM = []byte{0xff, 0xfe}
	utf16BEBOM = []byte{0xfe, 0xff}
)

// ReadRaw parses export bytes into a RawImport. The container format is
// sniffed from content, never from the file name: a zip magic number means
// an XLSX workbook or a zip bundle (first .csv/.xlsx member wins), a UTF-16
// BOM means Meta's wide-char CSV dialect, anything else is plain CSV.
func ReadRaw(ctx context.Context, name string, data []byte) (*RawImport, error) {
	if bytes.HasPrefix(data, zipMagic) && !fetcher.IsXLSX(data) {
		member, content, err := fetcher.FirstTableMember(data)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: parse %s", name)
		}
		name = name + "!" + member
		data = content
	}

	rows, err := parseTable(ctx, data)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", name)
	}

	raw := &RawImport{Source: name}
	if len(rows) > 0 {
		raw.Columns = rows[0]
		raw.Rows = rows[1:]
	}
	return raw, nil
}

func parseTable(ctx context.Context, data []byte) ([][]string, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return fetcher.ReadXLSXBytes(data, fetcher.XLSXOptions{})
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		decoded, err := decodeUTF16(data)
		if err != nil {
			return nil, err
		}
		return readCSVRows(ctx, decoded)
	case bytes.HasPrefix(data, utf8BOM):
		return readCSVRows(ctx, data[len(utf8BOM):])
	default:
		return readCSVRows(ctx, data)
	}
}

func readCSVRows(ctx context.Context, text []byte) ([][]string, error) {
	opts := fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true}
	if d := sniffDelimiter(text); d != 0 {
		opts.Delimiter = d
	}

	rowCh, errCh := fetcher.StreamCSV(ctx, bytes.NewReader(text), opts)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// sniffDelimiter picks tab over comma when the header line is tab-separated,
// which is how Meta ships its UTF-16 exports.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	if bytes.ContainsRune(line, '\t') && !bytes.ContainsRune(line, ',') {
		return '\t'
	}
	return 0
}

func decodeUTF16(data []byte) ([]byte, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: decode utf-16")
	}
	return out, nil
}
