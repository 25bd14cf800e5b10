package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

func standardRaw(rows [][]string) *RawImport {
	return &RawImport{
		Source: "normalized.csv",
		Columns: []string{
			"post_id", "timestamp", "caption", "likes", "comments", "shares",
			"saves", "impressions", "reach", "follower_count", "audience_gender",
			"audience_age", "location", "hashtags", "media_type",
		},
		Rows: rows,
	}
}

func TestStandardAdapt_PassThrough(t *testing.T) {
	raw := standardRaw([][]string{
		{"p1", "2024-06-15 10:30:00", "Summer sale #sale", "10", "2", "1", "3",
			"1000", "800", "5000", "Female", "25-34", "Brazil", "#sale #summer", "video"},
	})

	posts, err := (&standardAdapter{}).Adapt(raw)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	p := posts[0]
	assert.Equal(t, "p1", p.PostID)
	assert.Equal(t, time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC), p.Timestamp)
	assert.Equal(t, int64(10), p.Likes)
	assert.Equal(t, int64(1000), p.Impressions)
	assert.Equal(t, int64(800), p.Reach)
	assert.Equal(t, int64(5000), p.FollowerCount)
	assert.Equal(t, "Female", p.AudienceGender)
	assert.Equal(t, "25-34", p.AudienceAge)
	assert.Equal(t, "Brazil", p.Location)
	assert.Equal(t, "#sale #summer", p.Hashtags, "hashtags column wins over caption extraction")
	assert.Equal(t, model.MediaVideo, p.MediaType)
}

func TestStandardAdapt_DefaultsForMissingFields(t *testing.T) {
	raw := &RawImport{
		Source:  "minimal.csv",
		Columns: []string{"post_id", "timestamp", "caption"},
		Rows: [][]string{
			{"p1", "2024-06-15 10:30:00", "No tags caption"},
		},
	}

	posts, err := (&standardAdapter{}).Adapt(raw)
	require.NoError(t, err)
	p := posts[0]
	assert.Equal(t, "Mixed", p.AudienceGender)
	assert.Equal(t, "18-24", p.AudienceAge)
	assert.Equal(t, "India", p.Location)
	assert.Equal(t, model.DefaultHashtags, p.Hashtags)
	assert.Equal(t, model.MediaImage, p.MediaType)
	assert.Zero(t, p.Likes)
	assert.Zero(t, p.Impressions)
}

func TestStandardAdapt_HashtagsExtractedWhenColumnEmpty(t *testing.T) {
	raw := standardRaw([][]string{
		{"p1", "2024-06-15 10:30:00", "Launch #go #build", "0", "0", "0", "0",
			"0", "0", "0", "", "", "", "", ""},
	})

	posts, err := (&standardAdapter{}).Adapt(raw)
	require.NoError(t, err)
	assert.Equal(t, "#go #build", posts[0].Hashtags)
}

func TestStandardAdapt_SkipsBadTimestamps(t *testing.T) {
	raw := standardRaw([][]string{
		{"p1", "garbage", "", "0", "0", "0", "0", "0", "0", "0", "", "", "", "", ""},
		{"p2", "2024-06-15 10:30:00", "", "0", "0", "0", "0", "0", "0", "0", "", "", "", "", ""},
	})

	posts, err := (&standardAdapter{}).Adapt(raw)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].PostID)
}

func TestStandardAdapt_MediaTypeExactMatch(t *testing.T) {
	tests := []struct {
		in   string
		want model.MediaType
	}{
		{"video", model.MediaVideo},
		{"Reel", model.MediaVideo},
		{"carousel", model.MediaCarousel},
		{"image", model.MediaImage},
		{"something else", model.MediaImage},
		{"", model.MediaImage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, standardMediaType(tt.in), "media_type %q", tt.in)
	}
}

func TestStandardAdapt_EmptyFile(t *testing.T) {
	raw := &RawImport{
		Source:  "empty.csv",
		Columns: []string{"post_id", "timestamp"},
		Rows:    nil,
	}
	_, err := (&standardAdapter{}).Adapt(raw)
	var nvr *NoValidRecordsError
	require.ErrorAs(t, err, &nvr)
	assert.Equal(t, 0, nvr.Rows)
	assert.Contains(t, err.Error(), "no data rows")
}
