package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/db"
	"github.com/pulse-metrics/insights-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_post":          `INSERT INTO posts (post_id, ts, caption, likes, comments, shares, saves, impressions, reach, follower_count, audience_gender, audience_age, location, hashtags, media_type) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
	"existing_post_ids":    `SELECT post_id FROM posts WHERE post_id = ANY($1)`,
	"insert_run":           `INSERT INTO pipeline_runs (id, status, recovery_attempts, started_at) VALUES ($1, $2, $3, $4)`,
	"complete_run":         `UPDATE pipeline_runs SET status = $1, outcomes = $2, recovery_attempts = $3, error = $4, ended_at = $5 WHERE id = $6`,
	"get_run":              `SELECT id, status, outcomes, recovery_attempts, error, started_at, ended_at FROM pipeline_runs WHERE id = $1`,
	"insert_module_result": `INSERT INTO module_results (id, run_id, module_name, status, error, reason, fallback_used, attempts, duration_ms, metrics, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"insert_prediction":    `INSERT INTO predictions (id, module_name, prediction_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_import":        `INSERT INTO import_log (id, source_name, variant, rows_in, posts_saved, posts_duplicate, rows_skipped, error, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS posts (
	post_id         TEXT PRIMARY KEY,
	ts              TIMESTAMPTZ NOT NULL,
	caption         TEXT NOT NULL DEFAULT '',
	likes           BIGINT NOT NULL DEFAULT 0,
	comments        BIGINT NOT NULL DEFAULT 0,
	shares          BIGINT NOT NULL DEFAULT 0,
	saves           BIGINT NOT NULL DEFAULT 0,
	impressions     BIGINT NOT NULL DEFAULT 0,
	reach           BIGINT NOT NULL DEFAULT 0,
	follower_count  BIGINT NOT NULL DEFAULT 0,
	audience_gender TEXT NOT NULL DEFAULT 'Mixed',
	audience_age    TEXT NOT NULL DEFAULT '18-24',
	location        TEXT NOT NULL DEFAULT 'India',
	hashtags        TEXT NOT NULL DEFAULT '#social #media',
	media_type      TEXT NOT NULL DEFAULT 'Image',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL DEFAULT 'running',
	outcomes          JSONB,
	recovery_attempts INTEGER NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS module_results (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES pipeline_runs(id),
	module_name   TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT,
	reason        TEXT,
	fallback_used BOOLEAN NOT NULL DEFAULT false,
	attempts      INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	metrics       JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	id              TEXT PRIMARY KEY,
	module_name     TEXT NOT NULL,
	prediction_type TEXT NOT NULL,
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
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
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_ts ON posts(ts);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_module_results_run_id ON module_results(run_id);
CREATE INDEX IF NOT EXISTS idx_predictions_module ON predictions(module_name);
CREATE INDEX IF NOT EXISTS idx_import_log_started_at ON import_log(started_at);
`

// postColumns is the column order used for bulk COPY of posts.
var postColumns = []string{
	"post_id", "ts", "caption", "likes", "comments", "shares", "saves",
	"impressions", "reach", "follower_count", "audience_gender", "audience_age",
	"location", "hashtags", "media_type",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SavePosts inserts the posts whose post_id is not yet present and reports
// how many rows were written. New rows go in through the COPY protocol; if
// the bulk copy fails the store falls back to row-at-a-time inserts so one
// bad row cannot sink the batch.
func (s *PostgresStore) SavePosts(ctx context.Context, posts []model.CanonicalPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}

	rows, err := s.pool.Query(ctx, `SELECT post_id FROM posts WHERE post_id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: query existing post ids")
	}
	existing := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan post id")
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, eris.Wrap(err, "postgres: iterate existing post ids")
	}
	rows.Close()

	var fresh []model.CanonicalPost
	for _, p := range posts {
		if existing[p.PostID] {
			continue
		}
		// Also dedupes repeats within the same batch.
		existing[p.PostID] = true
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	copyRows := make([][]any, 0, len(fresh))
	for _, p := range fresh {
		copyRows = append(copyRows, postCopyRow(p))
	}

	n, err := db.CopyFrom(ctx, s.pool, "posts", postColumns, copyRows)
	if err == nil {
		return int(n), nil
	}
	zap.L().Warn("postgres: bulk copy failed, retrying row by row", zap.Error(err))

	saved := 0
	for _, p := range fresh {
		if _, err := s.pool.Exec(ctx, preparedStatements["insert_post"], postCopyRow(p)...); err != nil {
			zap.L().Warn("postgres: insert post failed",
				zap.String("post_id", p.PostID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved, nil
}

func postCopyRow(p model.CanonicalPost) []any {
	return []any{
		p.PostID, p.Timestamp.UTC(), p.Caption, p.Likes, p.Comments, p.Shares, p.Saves,
		p.Impressions, p.Reach, p.FollowerCount, p.AudienceGender, p.AudienceAge,
		p.Location, p.Hashtags, string(p.MediaType),
	}
}

// LoadPosts returns every canonical post ordered by timestamp then post_id.
func (s *PostgresStore) LoadPosts(ctx context.Context) ([]model.CanonicalPost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT post_id, ts, caption, likes, comments, shares, saves, impressions, reach,
		        follower_count, audience_gender, audience_age, location, hashtags, media_type
		 FROM posts ORDER BY ts ASC, post_id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load posts")
	}
	defer rows.Close()

	var posts []model.CanonicalPost
	for rows.Next() {
		var p model.CanonicalPost
		var mediaType string
		if err := rows.Scan(&p.PostID, &p.Timestamp, &p.Caption, &p.Likes, &p.Comments,
			&p.Shares, &p.Saves, &p.Impressions, &p.Reach, &p.FollowerCount,
			&p.AudienceGender, &p.AudienceAge, &p.Location, &p.Hashtags, &mediaType); err != nil {
			return nil, eris.Wrap(err, "postgres: scan post")
		}
		p.MediaType = model.MediaType(mediaType)
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "postgres: load posts iterate")
}

func (s *PostgresStore) CountPosts(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count posts")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, recovery_attempts, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.RecoveryAttempts, run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.PipelineRun) error {
	outcomesJSON, err := json.Marshal(run.Outcomes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcomes")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, outcomes = $2, recovery_attempts = $3, error = $4, ended_at = $5 WHERE id = $6`,
		string(run.Status), outcomesJSON, run.RecoveryAttempts,
		nullableString(run.Error), run.EndedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT id, status, outcomes, recovery_attempts, error, started_at, ended_at
		 FROM pipeline_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, status, outcomes, recovery_attempts, error, started_at, ended_at
	          FROM pipeline_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveModuleResult(ctx context.Context, runID string, outcome model.ModuleOutcome) error {
	metricsJSON, err := json.Marshal(outcome.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO module_results
		 (id, run_id, module_name, status, error, reason, fallback_used, attempts, duration_ms, metrics, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New().String(), runID, outcome.Module, string(outcome.Status),
		nullableString(outcome.Error), nullableString(outcome.Reason),
		outcome.FallbackUsed, outcome.Attempts, outcome.DurationMs,
		metricsJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert module result for run %s", runID)
}

func (s *PostgresStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal prediction payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, module_name, prediction_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Module, p.PredictionType, payloadJSON, p.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert prediction")
}

func (s *PostgresStore) ListPredictions(ctx context.Context, module string, limit int) ([]model.Prediction, error) {
	query := `SELECT id, module_name, prediction_type, payload, created_at FROM predictions WHERE true`
	args := []any{}
	argIdx := 1

	if module != "" {
		query += fmt.Sprintf(` AND module_name = $%d`, argIdx)
		args = append(args, module)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		var payloadJSON []byte
		if err := rows.Scan(&p.ID, &p.Module, &p.PredictionType, &payloadJSON, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		if err := json.Unmarshal(payloadJSON, &p.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal prediction payload")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func (s *PostgresStore) RecordImport(ctx context.Context, rec model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_log
		 (id, source_name, variant, rows_in, posts_saved, posts_duplicate, rows_skipped, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.SourceName, string(rec.Variant), rec.RowsIn, rec.PostsSaved,
		rec.PostsDuplicate, rec.RowsSkipped, nullableString(rec.Error),
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert import record")
}

func (s *PostgresStore) ListImports(ctx context.Context, limit int) ([]model.ImportRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, source_name, variant, rows_in, posts_saved, posts_duplicate, rows_skipped, error, started_at, finished_at
		 FROM import_log ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list imports")
	}
	defer rows.Close()

	var recs []model.ImportRecord
	for rows.Next() {
		var rec model.ImportRecord
		var variant string
		var errMsg *string
		if err := rows.Scan(&rec.ID, &rec.SourceName, &variant, &rec.RowsIn, &rec.PostsSaved,
			&rec.PostsDuplicate, &rec.RowsSkipped, &errMsg, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import record")
		}
		rec.Variant = model.FormatVariant(variant)
		if errMsg != nil {
			rec.Error = *errMsg
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list imports iterate")
}

// scanPgRun scans one pipeline run row from pgx.
func scanPgRun(row pgx.Row) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var outcomesJSON []byte
	var errMsg *string
	var endedAt *time.Time

	if err := row.Scan(&r.ID, &r.Status, &outcomesJSON, &r.RecoveryAttempts, &errMsg, &r.StartedAt, &endedAt); err != nil {
		return nil, err
	}

	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &r.Outcomes); err != nil {
			return nil, eris.Wrap(err, "unmarshal outcomes")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if endedAt != nil {
		r.EndedAt = *endedAt
	}
	return &r, nil
}
