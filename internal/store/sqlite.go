package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS posts (
	post_id         TEXT PRIMARY KEY,
	ts              DATETIME NOT NULL,
	caption         TEXT NOT NULL DEFAULT '',
	likes           INTEGER NOT NULL DEFAULT 0,
	comments        INTEGER NOT NULL DEFAULT 0,
	shares          INTEGER NOT NULL DEFAULT 0,
	saves           INTEGER NOT NULL DEFAULT 0,
	impressions     INTEGER NOT NULL DEFAULT 0,
	reach           INTEGER NOT NULL DEFAULT 0,
	follower_count  INTEGER NOT NULL DEFAULT 0,
	audience_gender TEXT NOT NULL DEFAULT 'Mixed',
	audience_age    TEXT NOT NULL DEFAULT '18-24',
	location        TEXT NOT NULL DEFAULT 'India',
	hashtags        TEXT NOT NULL DEFAULT '#social #media',
	media_type      TEXT NOT NULL DEFAULT 'Image',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL DEFAULT 'running',
	outcomes          TEXT,
	recovery_attempts INTEGER NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        DATETIME NOT NULL,
	ended_at          DATETIME
);

CREATE TABLE IF NOT EXISTS module_results (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES pipeline_runs(id),
	module_name   TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT,
	reason        TEXT,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	metrics       TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS predictions (
	id              TEXT PRIMARY KEY,
	module_name     TEXT NOT NULL,
	prediction_type TEXT NOT NULL,
	payload         TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS import_log (
	id              TEXT PRIMARY KEY,
	source_name     TEXT NOT NULL,
	variant         TEXT NOT NULL,
	rows_in         INTEGER NOT NULL DEFAULT 0,
	posts_saved     INTEGER NOT NULL DEFAULT 0,
	posts_duplicate INTEGER NOT NULL DEFAULT 0,
	rows_skipped    INTEGER NOT NULL DEFAULT 0,
	error           TEXT,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_ts ON posts(ts);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_module_results_run_id ON module_results(run_id);
CREATE INDEX IF NOT EXISTS idx_predictions_module ON predictions(module_name);
CREATE INDEX IF NOT EXISTS idx_import_log_started_at ON import_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePosts inserts the posts whose post_id is not yet present and reports
// how many rows were written. Existing rows stay untouched. Row-level insert
// failures are logged and skipped, never aborting the batch.
func (s *SQLiteStore) SavePosts(ctx context.Context, posts []model.CanonicalPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	existing, err := s.existingPostIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	const insertSQL = `INSERT INTO posts
		(post_id, ts, caption, likes, comments, shares, saves, impressions, reach,
		 follower_count, audience_gender, audience_age, location, hashtags, media_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	saved := 0
	for _, p := range posts {
		if existing[p.PostID] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, insertSQL,
			p.PostID, p.Timestamp.UTC(), p.Caption, p.Likes, p.Comments, p.Shares, p.Saves,
			p.Impressions, p.Reach, p.FollowerCount,
			p.AudienceGender, p.AudienceAge, p.Location, p.Hashtags, string(p.MediaType),
		); err != nil {
			zap.L().Warn("sqlite: insert post failed",
				zap.String("post_id", p.PostID), zap.Error(err))
			continue
		}
		// Also dedupes repeats within the same batch.
		existing[p.PostID] = true
		saved++
	}
	return saved, nil
}

func (s *SQLiteStore) existingPostIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))

	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT post_id FROM posts WHERE post_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: query existing post ids")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan post id")
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: iterate existing post ids")
		}
		rows.Close()
	}
	return existing, nil
}

// LoadPosts returns every canonical post ordered by timestamp then post_id.
// The ordering is content-derived, so identical datasets load identically
// regardless of insertion history.
func (s *SQLiteStore) LoadPosts(ctx context.Context) ([]model.CanonicalPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, ts, caption, likes, comments, shares, saves, impressions, reach,
		        follower_count, audience_gender, audience_age, location, hashtags, media_type
		 FROM posts ORDER BY ts ASC, post_id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load posts")
	}
	defer rows.Close()

	var posts []model.CanonicalPost
	for rows.Next() {
		var p model.CanonicalPost
		var mediaType string
		if err := rows.Scan(&p.PostID, &p.Timestamp, &p.Caption, &p.Likes, &p.Comments,
			&p.Shares, &p.Saves, &p.Impressions, &p.Reach, &p.FollowerCount,
			&p.AudienceGender, &p.AudienceAge, &p.Location, &p.Hashtags, &mediaType); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan post")
		}
		p.MediaType = model.MediaType(mediaType)
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "sqlite: load posts iterate")
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count posts")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, recovery_attempts, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.RecoveryAttempts, run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.PipelineRun) error {
	outcomesJSON, err := json.Marshal(run.Outcomes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcomes")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, outcomes = ?, recovery_attempts = ?, error = ?, ended_at = ? WHERE id = ?`,
		string(run.Status), string(outcomesJSON), run.RecoveryAttempts,
		nullableString(run.Error), run.EndedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, outcomes, recovery_attempts, error, started_at, ended_at
		 FROM pipeline_runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, status, outcomes, recovery_attempts, error, started_at, ended_at
	          FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveModuleResult(ctx context.Context, runID string, outcome model.ModuleOutcome) error {
	metricsJSON, err := json.Marshal(outcome.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO module_results
		 (id, run_id, module_name, status, error, reason, fallback_used, attempts, duration_ms, metrics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, outcome.Module, string(outcome.Status),
		nullableString(outcome.Error), nullableString(outcome.Reason),
		outcome.FallbackUsed, outcome.Attempts, outcome.DurationMs,
		string(metricsJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert module result for run %s", runID)
}

func (s *SQLiteStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal prediction payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, module_name, prediction_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Module, p.PredictionType, string(payloadJSON), p.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert prediction")
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, module string, limit int) ([]model.Prediction, error) {
	query := `SELECT id, module_name, prediction_type, payload, created_at FROM predictions WHERE 1=1`
	var args []any

	if module != "" {
		query += ` AND module_name = ?`
		args = append(args, module)
	}
	query += ` ORDER BY created_at DESC`

	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		var payloadJSON string
		if err := rows.Scan(&p.ID, &p.Module, &p.PredictionType, &payloadJSON, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal prediction payload")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) RecordImport(ctx context.Context, rec model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_log
		 (id, source_name, variant, rows_in, posts_saved, posts_duplicate, rows_skipped, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceName, string(rec.Variant), rec.RowsIn, rec.PostsSaved,
		rec.PostsDuplicate, rec.RowsSkipped, nullableString(rec.Error),
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert import record")
}

func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]model.ImportRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_name, variant, rows_in, posts_saved, posts_duplicate, rows_skipped, error, started_at, finished_at
		 FROM import_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list imports")
	}
	defer rows.Close()

	var recs []model.ImportRecord
	for rows.Next() {
		var rec model.ImportRecord
		var variant string
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SourceName, &variant, &rec.RowsIn, &rec.PostsSaved,
			&rec.PostsDuplicate, &rec.RowsSkipped, &errMsg, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import record")
		}
		rec.Variant = model.FormatVariant(variant)
		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list imports iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var outcomesJSON, errMsg sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &outcomesJSON, &r.RecoveryAttempts, &errMsg, &r.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if outcomesJSON.Valid && outcomesJSON.String != "" {
		if err := json.Unmarshal([]byte(outcomesJSON.String), &r.Outcomes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcomes")
		}
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}
