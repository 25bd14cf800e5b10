// Package ingest turns social-media export files of unknown shape into
// canonical posts: sniff the container, classify the header, adapt rows,
// persist with insert-if-absent dedup.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulse-metrics/insights-cli/internal/model"
	"github.com/pulse-metrics/insights-cli/internal/store"
)

// Result summarizes one ingestion attempt. Error is set only by the
// multi-file path, where one bad file must not hide its siblings' results.
type Result struct {
	Source     string              `json:"source"`
	Variant    model.FormatVariant `json:"variant"`
	RowsIn     int                 `json:"rows_in"`
	Adapted    int                 `json:"adapted"`
	Skipped    int                 `json:"skipped"`
	Saved      int                 `json:"saved"`
	Duplicates int                 `json:"duplicates"`
	Error      string              `json:"error,omitempty"`
}

// Ingestor drives the ingestion path end to end.
type Ingestor struct {
	store store.Store
}

func NewIngestor(st store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// prepared is the store-free half of an ingestion: everything up to and
// including adaptation, ready to be committed by a single writer.
type prepared struct {
	rec   model.ImportRecord
	posts []model.CanonicalPost
	err   error
}

// IngestFile ingests one export file from disk.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return in.IngestReader(ctx, filepath.Base(path), f)
}

// IngestReader ingests one export from a stream. On classification or
// adaptation failure nothing is written to the posts table; the attempt is
// still recorded in the import audit log with its error.
func (in *Ingestor) IngestReader(ctx context.Context, name string, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", name)
	}
	return in.commit(ctx, in.prepare(ctx, name, data))
}

// IngestFiles ingests several export files in one batch. Parsing and
// adaptation run in parallel, bounded by concurrency; commits stay
// serialized because the store tolerates only a single writer. A file that
// fails yields a Result carrying its error rather than aborting the batch.
func (in *Ingestor) IngestFiles(ctx context.Context, paths []string, concurrency int) []*Result {
	if concurrency < 1 {
		concurrency = 1
	}

	preps := make([]*prepared, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				preps[i] = &prepared{
					rec: model.ImportRecord{
						SourceName: filepath.Base(path),
						Variant:    model.FormatUnknown,
						StartedAt:  time.Now().UTC(),
					},
					err: eris.Wrapf(err, "ingest: open %s", path),
				}
				return nil
			}
			preps[i] = in.prepare(gctx, filepath.Base(path), data)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in preps

	results := make([]*Result, 0, len(preps))
	for _, prep := range preps {
		res, err := in.commit(ctx, prep)
		if err != nil {
			res = &Result{
				Source:  prep.rec.SourceName,
				Variant: prep.rec.Variant,
				RowsIn:  prep.rec.RowsIn,
				Error:   err.Error(),
			}
		}
		results = append(results, res)
	}
	return results
}

// prepare runs the store-free ingestion phase: parse the container,
// classify the header, adapt the rows.
func (in *Ingestor) prepare(ctx context.Context, name string, data []byte) *prepared {
	log := zap.L().With(zap.String("source", name))
	prep := &prepared{rec: model.ImportRecord{
		SourceName: name,
		Variant:    model.FormatUnknown,
		StartedAt:  time.Now().UTC(),
	}}

	raw, err := ReadRaw(ctx, name, data)
	if err != nil {
		prep.err = err
		return prep
	}
	prep.rec.RowsIn = len(raw.Rows)

	variant := Classify(raw.Columns)
	prep.rec.Variant = variant
	log.Info("classified export",
		zap.String("variant", string(variant)), zap.Int("rows", len(raw.Rows)))

	adapter, ok := ForVariant(variant)
	if !ok {
		prep.err = &UnrecognizedFormatError{Columns: raw.Columns}
		return prep
	}

	prep.posts, prep.err = adapter.Adapt(raw)
	return prep
}

// commit writes a prepared ingestion to the store and records the audit
// row. It is the only place ingestion touches the store; callers that run
// prepare phases in parallel must funnel commits through one goroutine.
func (in *Ingestor) commit(ctx context.Context, prep *prepared) (*Result, error) {
	log := zap.L().With(zap.String("source", prep.rec.SourceName))

	if prep.err != nil {
		in.audit(ctx, prep.rec, prep.err)
		return nil, prep.err
	}

	saved, err := in.store.SavePosts(ctx, prep.posts)
	if err != nil {
		in.audit(ctx, prep.rec, err)
		return nil, eris.Wrapf(err, "ingest: save posts from %s", prep.rec.SourceName)
	}

	res := &Result{
		Source:     prep.rec.SourceName,
		Variant:    prep.rec.Variant,
		RowsIn:     prep.rec.RowsIn,
		Adapted:    len(prep.posts),
		Skipped:    prep.rec.RowsIn - len(prep.posts),
		Saved:      saved,
		Duplicates: len(prep.posts) - saved,
	}

	prep.rec.PostsSaved = res.Saved
	prep.rec.PostsDuplicate = res.Duplicates
	prep.rec.RowsSkipped = res.Skipped
	in.audit(ctx, prep.rec, nil)

	log.Info("ingested export",
		zap.Int("adapted", res.Adapted),
		zap.Int("saved", res.Saved),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// audit appends the attempt to the import log. Audit failures are logged and
// swallowed so they never mask the real outcome.
func (in *Ingestor) audit(ctx context.Context, rec model.ImportRecord, cause error) {
	if cause != nil {
		rec.Error = cause.Error()
	}
	rec.FinishedAt = time.Now().UTC()
	if err := in.store.RecordImport(ctx, rec); err != nil {
		zap.L().Warn("ingest: record import failed",
			zap.String("source", rec.SourceName), zap.Error(err))
	}
}
