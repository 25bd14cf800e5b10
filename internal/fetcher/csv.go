package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions tunes decoding of a CSV export. Platform exports vary in
// quoting discipline, so LazyQuotes is usually wanted.
type CSVOptions struct {
	Delimiter  rune // default ','
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV decodes rows from r and delivers them on the returned channel,
// so large exports never sit fully in memory. Exactly one error, if any,
// arrives on the error channel; both channels close when decoding stops.
// Ragged rows are passed through as-is, the adapter decides what to do
// with them.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		dec := csv.NewReader(r)
		if opts.Delimiter != 0 {
			dec.Comma = opts.Delimiter
		}
		dec.LazyQuotes = opts.LazyQuotes
		dec.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := dec.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i := range row {
					row[i] = strings.TrimSpace(row[i])
				}
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
