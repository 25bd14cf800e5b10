package ingest

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// instagramTimeLayout is the publish-time layout of Meta Business Suite
// Instagram exports (US month-first, 24h clock).
const instagramTimeLayout = "01/02/2006 15:04"

const (
	instagramBaseFollowers      = 10000
	instagramFollowersPerDay    = 3
	instagramFollowersPerFollow = 100
)

// instagramAdapter maps Instagram post exports onto the canonical schema.
// The export carries no impression or follower history, so both are derived:
// impressions fall back from views to reach to a likes-based floor, and the
// follower count is synthesized from post age plus the per-post follows
// column.
type instagramAdapter struct{}

func (a *instagramAdapter) Variant() model.FormatVariant { return model.FormatInstagramPostExport }

func (a *instagramAdapter) Adapt(raw *RawImport) ([]model.CanonicalPost, error) {
	log := zap.L().With(zap.String("adapter", "instagram"), zap.String("source", raw.Source))
	colIdx := mapColumns(raw.Columns)

	posts := make([]model.CanonicalPost, 0, len(raw.Rows))
	for i, record := range raw.Rows {
		ts, ok := safeDate(firstNonEmpty(record, colIdx, "publish time", "date"), instagramTimeLayout)
		if !ok {
			log.Debug("skipping row: unparseable publish time", zap.Int("row", i+1))
			continue
		}

		postID := strings.TrimSpace(getCol(record, colIdx, "post id"))
		if postID == "" {
			postID = fmt.Sprintf("post_%d", i+1)
		}

		caption := firstNonEmpty(record, colIdx, "description", "caption")
		likes := safeInt(getCol(record, colIdx, "likes"))

		views := safeInt(firstNonEmpty(record, colIdx, "views", "plays", "impressions"))
		reach := safeInt(getCol(record, colIdx, "reach"))

		impressions := views
		if impressions == 0 {
			impressions = reach
		}
		if impressions == 0 {
			impressions = likes * 10
			if impressions < 100 {
				impressions = 100
			}
		}
		if reach == 0 {
			reach = impressions * 3 / 4
		}

		follows := safeInt(getCol(record, colIdx, "follows"))
		followers := int64(instagramBaseFollowers) +
			instagramFollowersPerDay*daysSinceAnchor(ts) +
			instagramFollowersPerFollow*follows

		posts = append(posts, model.CanonicalPost{
			PostID:         postID,
			Timestamp:      ts,
			Caption:        caption,
			Likes:          likes,
			Comments:       safeInt(getCol(record, colIdx, "comments")),
			Shares:         safeInt(getCol(record, colIdx, "shares")),
			Saves:          safeInt(getCol(record, colIdx, "saves")),
			Impressions:    impressions,
			Reach:          reach,
			FollowerCount:  followers,
			AudienceGender: "Mixed",
			AudienceAge:    "18-24",
			Location:       "India",
			Hashtags:       extractHashtags(caption),
			MediaType:      instagramMediaType(getCol(record, colIdx, "post type")),
		})
	}

	if len(posts) == 0 {
		return nil, &NoValidRecordsError{Rows: len(raw.Rows)}
	}
	return posts, nil
}

func instagramMediaType(postType string) model.MediaType {
	t := normalizeColumn(postType)
	switch {
	case strings.Contains(t, "reel"), strings.Contains(t, "video"):
		return model.MediaVideo
	case strings.Contains(t, "carousel"):
		return model.MediaCarousel
	default:
		return model.MediaImage
	}
}
