package ingest

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// standardTimeLayout is the timestamp layout of already-normalized exports.
const standardTimeLayout = "2006-01-02 15:04:05"

// standardAdapter maps exports that already carry the canonical column names.
// Mostly a pass-through: numeric cells still go through coercion and missing
// audience fields still pick up the defaults, so hand-edited files survive.
type standardAdapter struct{}

func (a *standardAdapter) Variant() model.FormatVariant { return model.FormatStandardSchema }

func (a *standardAdapter) Adapt(raw *RawImport) ([]model.CanonicalPost, error) {
	log := zap.L().With(zap.String("adapter", "standard"), zap.String("source", raw.Source))
	colIdx := mapColumns(raw.Columns)

	posts := make([]model.CanonicalPost, 0, len(raw.Rows))
	for i, record := range raw.Rows {
		ts, ok := safeDate(getCol(record, colIdx, "timestamp"), standardTimeLayout)
		if !ok {
			log.Debug("skipping row: unparseable timestamp", zap.Int("row", i+1))
			continue
		}

		postID := strings.TrimSpace(getCol(record, colIdx, "post_id"))
		if postID == "" {
			postID = fmt.Sprintf("post_%d", i+1)
		}

		caption := firstNonEmpty(record, colIdx, "caption", "description", "text")

		hashtags := strings.TrimSpace(getCol(record, colIdx, "hashtags"))
		if hashtags == "" {
			hashtags = extractHashtags(caption)
		}

		posts = append(posts, model.CanonicalPost{
			PostID:         postID,
			Timestamp:      ts,
			Caption:        caption,
			Likes:          safeInt(getCol(record, colIdx, "likes")),
			Comments:       safeInt(getCol(record, colIdx, "comments")),
			Shares:         safeInt(getCol(record, colIdx, "shares")),
			Saves:          safeInt(getCol(record, colIdx, "saves")),
			Impressions:    safeInt(getCol(record, colIdx, "impressions")),
			Reach:          safeInt(getCol(record, colIdx, "reach")),
			FollowerCount:  safeInt(firstNonEmpty(record, colIdx, "follower_count", "followers")),
			AudienceGender: defaultIfEmpty(firstNonEmpty(record, colIdx, "audience_gender", "gender"), "Mixed"),
			AudienceAge:    defaultIfEmpty(firstNonEmpty(record, colIdx, "audience_age", "age"), "18-24"),
			Location:       defaultIfEmpty(getCol(record, colIdx, "location"), "India"),
			Hashtags:       hashtags,
			MediaType:      standardMediaType(firstNonEmpty(record, colIdx, "media_type", "post_type", "type")),
		})
	}

	if len(posts) == 0 {
		return nil, &NoValidRecordsError{Rows: len(raw.Rows)}
	}
	return posts, nil
}

func defaultIfEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func standardMediaType(s string) model.MediaType {
	switch normalizeColumn(s) {
	case "video", "reel":
		return model.MediaVideo
	case "carousel":
		return model.MediaCarousel
	default:
		return model.MediaImage
	}
}
