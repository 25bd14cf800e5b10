package ingest

import (
	"fmt"
	"strings"
)

// UnrecognizedFormatError is returned when an export header matches no known
// format. Nothing is persisted for the import; the observed columns are
// carried so operators can see what the file actually shipped.
type UnrecognizedFormatError struct {
	Columns []string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("ingest: unrecognized export format (columns: %s)", strings.Join(e.Columns, ", "))
}

// NoValidRecordsError is returned when an import yields zero canonical posts:
// the file had no data rows, or every row failed extraction.
type NoValidRecordsError struct {
	Rows int
}

func (e *NoValidRecordsError) Error() string {
	if e.Rows == 0 {
		return "ingest: import contains no data rows"
	}
	return fmt.Sprintf("ingest: no valid records among %d rows", e.Rows)
}
