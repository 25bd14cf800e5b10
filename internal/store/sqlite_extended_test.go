package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// TestNewSQLite_InvalidDSN verifies that NewSQLite returns an error for a
// path inside a nonexistent directory.
func TestNewSQLite_InvalidDSN(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

// TestNewSQLite_WALMode confirms NewSQLite applies the WAL pragma.
func TestNewSQLite_WALMode(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "valid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// TestNewSQLite_CloseAndReopen verifies the database survives a close and
// reopen with its schema intact.
func TestNewSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Migrate(t.Context()))
	saved, err := s1.SavePosts(t.Context(), []model.CanonicalPost{testPost("p1", time.Now().UTC())})
	require.NoError(t, err)
	require.Equal(t, 1, saved)
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() }) //nolint:errcheck

	count, err := s2.CountPosts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestGetRun_CorruptOutcomesJSON exercises the unmarshal error path by
// planting invalid JSON directly in the outcomes column.
func TestGetRun_CorruptOutcomesJSON(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.db.ExecContext(t.Context(),
		`INSERT INTO pipeline_runs (id, status, outcomes, started_at) VALUES (?, ?, ?, ?)`,
		"corrupt-run", "completed", "not-valid-json{{{", time.Now().UTC(),
	)
	require.NoError(t, err)

	_, err = s.GetRun(t.Context(), "corrupt-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal outcomes")
}

// TestListPredictions_CorruptPayload covers the payload unmarshal error path.
func TestListPredictions_CorruptPayload(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.db.ExecContext(t.Context(),
		`INSERT INTO predictions (id, module_name, prediction_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		"corrupt-pred", "engagement_summary", "engagement_stats", "not-valid-json{{{", time.Now().UTC(),
	)
	require.NoError(t, err)

	_, err = s.ListPredictions(t.Context(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal prediction payload")
}

// fakeResult implements sql.Result for checkRowsAffected tests.
type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

func TestCheckRowsAffected_ZeroRows(t *testing.T) {
	err := checkRowsAffected(&fakeResult{rowsAffected: 0}, "run", "abc-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: abc-123")
}

func TestCheckRowsAffected_Error(t *testing.T) {
	err := checkRowsAffected(&fakeResult{rowsAffected: 0, err: assert.AnError}, "run", "abc-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected")
}

func TestCheckRowsAffected_Success(t *testing.T) {
	assert.NoError(t, checkRowsAffected(&fakeResult{rowsAffected: 1}, "run", "abc-123"))
}
