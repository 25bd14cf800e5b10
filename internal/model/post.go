package model

import "time"

// MediaType classifies the creative format of a post.
type MediaType string

const (
	MediaImage    MediaType = "Image"
	MediaVideo    MediaType = "Video"
	MediaCarousel MediaType = "Carousel"
)

// FormatVariant identifies a recognized export schema shape.
type FormatVariant string

const (
	FormatInstagramPostExport FormatVariant = "instagram_post_export"
	FormatFacebookVideoExport FormatVariant = "facebook_video_export"
	FormatStandardSchema      FormatVariant = "standard_schema"
	FormatUnknown             FormatVariant = "unknown"
)

// DefaultHashtags is substituted when a post carries no hashtag at all.
// The canonical contract guarantees Hashtags is never empty.
const DefaultHashtags = "#social #media"

// CanonicalPost is the normalized, schema-stable record every adapter
// produces and every analysis module consumes. Instances are immutable once
// constructed: the store never rewrites a persisted row (insert-if-absent,
// see store.Store.SavePosts).
//
// Count fields are int64 with a non-negative invariant enforced at the
// coercion boundary; missing or unparseable values default to 0, never null.
type CanonicalPost struct {
	PostID         string    `json:"post_id"`
	Timestamp      time.Time `json:"timestamp"`
	Caption        string    `json:"caption"`
	Likes          int64     `json:"likes"`
	Comments       int64     `json:"comments"`
	Shares         int64     `json:"shares"`
	Saves          int64     `json:"saves"`
	Impressions    int64     `json:"impressions"`
	Reach          int64     `json:"reach"`
	FollowerCount  int64     `json:"follower_count"`
	AudienceGender string    `json:"audience_gender"`
	AudienceAge    string    `json:"audience_age"`
	Location       string    `json:"location"`
	Hashtags       string    `json:"hashtags"`
	MediaType      MediaType `json:"media_type"`
}

// Engagement returns the summed interaction count for the post.
func (p CanonicalPost) Engagement() int64 {
	return p.Likes + p.Comments + p.Shares + p.Saves
}

// EngagementRate returns engagement per impression, or 0 when the post has
// no impressions.
func (p CanonicalPost) EngagementRate() float64 {
	if p.Impressions == 0 {
		return 0
	}
	return float64(p.Engagement()) / float64(p.Impressions)
}
