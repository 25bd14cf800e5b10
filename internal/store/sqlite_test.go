package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(t.Context()))
	return st
}

func testPost(id string, ts time.Time) model.CanonicalPost {
	return model.CanonicalPost{
		PostID:         id,
		Timestamp:      ts,
		Caption:        "caption for " + id,
		Likes:          10,
		Comments:       2,
		Shares:         1,
		Saves:          3,
		Impressions:    1000,
		Reach:          750,
		FollowerCount:  5000,
		AudienceGender: "Mixed",
		AudienceAge:    "18-24",
		Location:       "India",
		Hashtags:       "#social #media",
		MediaType:      model.MediaImage,
	}
}

func TestSQLite_SavePosts_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ts := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	want := model.CanonicalPost{
		PostID:         "p1",
		Timestamp:      ts,
		Caption:        "Launch day #new",
		Likes:          50,
		Comments:       5,
		Shares:         3,
		Saves:          2,
		Impressions:    900,
		Reach:          700,
		FollowerCount:  16000,
		AudienceGender: "Female",
		AudienceAge:    "25-34",
		Location:       "Brazil",
		Hashtags:       "#new",
		MediaType:      model.MediaVideo,
	}

	saved, err := st.SavePosts(t.Context(), []model.CanonicalPost{want})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	posts, err := st.LoadPosts(t.Context())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	got := posts[0]
	assert.Equal(t, want.PostID, got.PostID)
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "want %v, got %v", want.Timestamp, got.Timestamp)
	assert.Equal(t, want.Caption, got.Caption)
	assert.Equal(t, want.Likes, got.Likes)
	assert.Equal(t, want.Comments, got.Comments)
	assert.Equal(t, want.Shares, got.Shares)
	assert.Equal(t, want.Saves, got.Saves)
	assert.Equal(t, want.Impressions, got.Impressions)
	assert.Equal(t, want.Reach, got.Reach)
	assert.Equal(t, want.FollowerCount, got.FollowerCount)
	assert.Equal(t, want.AudienceGender, got.AudienceGender)
	assert.Equal(t, want.AudienceAge, got.AudienceAge)
	assert.Equal(t, want.Location, got.Location)
	assert.Equal(t, want.Hashtags, got.Hashtags)
	assert.Equal(t, want.MediaType, got.MediaType)
}

func TestSQLite_SavePosts_InsertIfAbsent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	original := testPost("p1", ts)
	original.Caption = "original caption"

	saved, err := st.SavePosts(t.Context(), []model.CanonicalPost{original})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	// Re-saving the same post id with different content must not refresh it.
	modified := original
	modified.Caption = "modified caption"
	modified.Likes = 999

	saved, err = st.SavePosts(t.Context(), []model.CanonicalPost{modified})
	require.NoError(t, err)
	assert.Equal(t, 0, saved)

	posts, err := st.LoadPosts(t.Context())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "original caption", posts[0].Caption)
	assert.Equal(t, int64(10), posts[0].Likes)
}

func TestSQLite_SavePosts_IntraBatchDedup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	saved, err := st.SavePosts(t.Context(), []model.CanonicalPost{
		testPost("p1", ts),
		testPost("p1", ts),
		testPost("p2", ts),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	n, err := st.CountPosts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_SavePosts_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	saved, err := st.SavePosts(t.Context(), nil)
	require.NoError(t, err)
	assert.Zero(t, saved)
}

func TestSQLite_SavePosts_LargeBatchChunking(t *testing.T) {
	st := newTestSQLiteStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// More ids than one IN clause chunk holds.
	posts := make([]model.CanonicalPost, 0, 600)
	for i := range 600 {
		posts = append(posts, testPost(fmt.Sprintf("p%04d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	saved, err := st.SavePosts(t.Context(), posts)
	require.NoError(t, err)
	assert.Equal(t, 600, saved)

	// Re-save with one extra post: only the new one lands.
	posts = append(posts, testPost("extra", base))
	saved, err = st.SavePosts(t.Context(), posts)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	n, err := st.CountPosts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 601, n)
}

func TestSQLite_LoadPosts_Ordering(t *testing.T) {
	st := newTestSQLiteStore(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of chronological order; equal timestamps tie-break by id.
	_, err := st.SavePosts(t.Context(), []model.CanonicalPost{
		testPost("z_late", base.Add(48*time.Hour)),
		testPost("b_tied", base),
		testPost("a_tied", base),
	})
	require.NoError(t, err)

	posts, err := st.LoadPosts(t.Context())
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "a_tied", posts[0].PostID)
	assert.Equal(t, "b_tied", posts[1].PostID)
	assert.Equal(t, "z_late", posts[2].PostID)
}

func TestSQLite_CountPosts_EmptyDatabase(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.CountPosts(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)

	run := &model.PipelineRun{
		ID:        "run-1",
		Status:    model.RunStatusRunning,
		StartedAt: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateRun(t.Context(), run))

	got, err := st.GetRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Empty(t, got.Outcomes)
	assert.True(t, got.EndedAt.IsZero())

	run.Status = model.RunStatusPartial
	run.RecoveryAttempts = 1
	run.Error = "one module failed"
	run.EndedAt = run.StartedAt.Add(2 * time.Minute)
	run.Outcomes = []model.ModuleOutcome{
		{Module: "engagement_summary", Status: model.ModuleCompleted, Attempts: 1},
		{Module: "posting_cadence", Status: model.ModuleFailed, Error: "boom", Attempts: 3},
	}
	require.NoError(t, st.CompleteRun(t.Context(), run))

	got, err = st.GetRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	assert.Equal(t, 1, got.RecoveryAttempts)
	assert.Equal(t, "one module failed", got.Error)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, "posting_cadence", got.Outcomes[1].Module)
	assert.Equal(t, model.ModuleFailed, got.Outcomes[1].Status)
	assert.Equal(t, 3, got.Outcomes[1].Attempts)
	assert.False(t, got.EndedAt.IsZero())
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	run := &model.PipelineRun{
		ID:      "ghost",
		Status:  model.RunStatusCompleted,
		EndedAt: time.Now().UTC(),
	}
	err := st.CompleteRun(t.Context(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(t.Context(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_FilterLimitOffset(t *testing.T) {
	st := newTestSQLiteStore(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []model.RunStatus{
		model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusCompleted,
	} {
		run := &model.PipelineRun{
			ID:        fmt.Sprintf("run-%d", i),
			Status:    model.RunStatusRunning,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, st.CreateRun(t.Context(), run))
		run.Status = status
		run.EndedAt = run.StartedAt.Add(time.Minute)
		require.NoError(t, st.CompleteRun(t.Context(), run))
	}

	all, err := st.ListRuns(t.Context(), RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-2", all[0].ID, "newest first")

	completed, err := st.ListRuns(t.Context(), RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	limited, err := st.ListRuns(t.Context(), RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)

	page2, err := st.ListRuns(t.Context(), RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "run-1", page2[0].ID)
}

func TestSQLite_SaveModuleResult(t *testing.T) {
	st := newTestSQLiteStore(t)

	run := &model.PipelineRun{ID: "run-1", Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, st.CreateRun(t.Context(), run))

	err := st.SaveModuleResult(t.Context(), "run-1", model.ModuleOutcome{
		Module:     "engagement_summary",
		Status:     model.ModuleCompleted,
		Attempts:   1,
		DurationMs: 42,
		Metrics:    map[string]any{"avg_engagement": 12.5},
	})
	require.NoError(t, err)

	err = st.SaveModuleResult(t.Context(), "run-1", model.ModuleOutcome{
		Module:       "hashtag_performance",
		Status:       model.ModuleCompleted,
		FallbackUsed: true,
		Attempts:     2,
	})
	require.NoError(t, err)
}

// --- Predictions ---

func TestSQLite_Predictions(t *testing.T) {
	st := newTestSQLiteStore(t)

	require.NoError(t, st.SavePrediction(t.Context(), model.Prediction{
		Module:         "engagement_summary",
		PredictionType: "engagement_stats",
		Payload:        map[string]any{"avg": 12.5, "posts": float64(10)},
	}))
	require.NoError(t, st.SavePrediction(t.Context(), model.Prediction{
		Module:         "posting_cadence",
		PredictionType: "cadence",
		Payload:        map[string]any{"best_day": "Tuesday"},
	}))

	all, err := st.ListPredictions(t.Context(), "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, pred := range all {
		assert.NotEmpty(t, pred.ID, "id is assigned on save")
		assert.False(t, pred.CreatedAt.IsZero())
	}

	byModule, err := st.ListPredictions(t.Context(), "engagement_summary", 10)
	require.NoError(t, err)
	require.Len(t, byModule, 1)
	assert.Equal(t, "engagement_stats", byModule[0].PredictionType)
	assert.Equal(t, 12.5, byModule[0].Payload["avg"])
}

func TestSQLite_ListPredictions_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)

	for i := range 5 {
		require.NoError(t, st.SavePrediction(t.Context(), model.Prediction{
			Module:         "engagement_summary",
			PredictionType: fmt.Sprintf("type-%d", i),
			Payload:        map[string]any{"i": float64(i)},
		}))
	}

	preds, err := st.ListPredictions(t.Context(), "", 3)
	require.NoError(t, err)
	assert.Len(t, preds, 3)
}

// --- Import log ---

func TestSQLite_Imports(t *testing.T) {
	st := newTestSQLiteStore(t)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.RecordImport(t.Context(), model.ImportRecord{
		SourceName:     "first.csv",
		Variant:        model.FormatStandardSchema,
		RowsIn:         10,
		PostsSaved:     8,
		PostsDuplicate: 1,
		RowsSkipped:    1,
		StartedAt:      base,
		FinishedAt:     base.Add(time.Second),
	}))
	require.NoError(t, st.RecordImport(t.Context(), model.ImportRecord{
		SourceName: "second.csv",
		Variant:    model.FormatUnknown,
		RowsIn:     3,
		Error:      "ingest: unrecognized export format (columns: foo, bar)",
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(time.Minute + time.Second),
	}))

	recs, err := st.ListImports(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "second.csv", recs[0].SourceName, "newest first")
	assert.Equal(t, model.FormatUnknown, recs[0].Variant)
	assert.NotEmpty(t, recs[0].Error)

	assert.Equal(t, "first.csv", recs[1].SourceName)
	assert.Equal(t, 8, recs[1].PostsSaved)
	assert.Equal(t, 1, recs[1].PostsDuplicate)
	assert.Empty(t, recs[1].Error)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(t.Context()))
}
