package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

const (
	defaultTopHashtags    = 10
	defaultMinCadenceDays = 14
)

// BuildRegistry assembles the built-in stages in their canonical order,
// honoring optional per-stage settings. A nil config enables everything
// with defaults.
func BuildRegistry(cfg *ModulesConfig) *Registry {
	settings := func(name string) ModuleSettings {
		if cfg == nil {
			return ModuleSettings{}
		}
		return cfg.Modules[name]
	}

	var mods []Module
	if s := settings("engagement_summary"); s.enabled() {
		mods = append(mods, engagementSummaryModule())
	}
	if s := settings("posting_cadence"); s.enabled() {
		mods = append(mods, postingCadenceModule(s.MinDays))
	}
	if s := settings("hashtag_performance"); s.enabled() {
		mods = append(mods, hashtagPerformanceModule(s.TopK))
	}
	if s := settings("reach_efficiency"); s.enabled() {
		mods = append(mods, reachEfficiencyModule())
	}
	if s := settings("audience_breakdown"); s.enabled() {
		mods = append(mods, audienceBreakdownModule())
	}
	return NewRegistry(mods...)
}

// DefaultRegistry returns all built-in stages with default options.
func DefaultRegistry() *Registry {
	return BuildRegistry(nil)
}

// engagementSummaryModule aggregates raw engagement across the dataset and
// names the top-performing post.
func engagementSummaryModule() Module {
	return Module{
		Name: "engagement_summary",
		Run: func(_ context.Context, ds *Dataset) (*Result, error) {
			var totalEng, totalImpressions int64
			var topID string
			topEng := int64(-1)
			for _, p := range ds.Posts {
				eng := p.Engagement()
				totalEng += eng
				totalImpressions += p.Impressions
				if eng > topEng {
					topID, topEng = p.PostID, eng
				}
			}

			avg := float64(totalEng) / float64(len(ds.Posts))
			rate := 0.0
			if totalImpressions > 0 {
				rate = float64(totalEng) / float64(totalImpressions)
			}

			payload := map[string]any{
				"posts":            len(ds.Posts),
				"total_engagement": totalEng,
				"avg_engagement":   avg,
				"engagement_rate":  rate,
				"top_post_id":      topID,
			}
			return &Result{
				Metrics: payload,
				Predictions: []model.Prediction{{
					PredictionType: "engagement_stats",
					Payload:        payload,
				}},
			}, nil
		},
	}
}

// postingCadenceModule reads posting rhythm out of the timestamps: best
// weekday, best hour, posts per week. It needs a minimum span of history
// to say anything useful.
func postingCadenceModule(minDays int) Module {
	if minDays <= 0 {
		minDays = defaultMinCadenceDays
	}
	return Module{
		Name: "posting_cadence",
		Precondition: func(ds *Dataset) error {
			days := historyDays(ds.Posts)
			if days < minDays {
				return eris.Errorf("insufficient history: %d days observed, need %d", days, minDays)
			}
			return nil
		},
		Run: func(_ context.Context, ds *Dataset) (*Result, error) {
			var stamps []time.Time
			var byWeekday [7]int
			var byHour [24]int
			for _, p := range ds.Posts {
				if p.Timestamp.IsZero() {
					continue
				}
				stamps = append(stamps, p.Timestamp)
				byWeekday[p.Timestamp.Weekday()]++
				byHour[p.Timestamp.Hour()]++
			}
			sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

			bestDay := time.Sunday
			for d := time.Sunday; d <= time.Saturday; d++ {
				if byWeekday[d] > byWeekday[bestDay] {
					bestDay = d
				}
			}
			bestHour := 0
			for h, n := range byHour {
				if n > byHour[bestHour] {
					bestHour = h
				}
			}

			days := historyDays(ds.Posts)
			postsPerWeek := float64(len(stamps)) * 7 / float64(days)

			var gapHours float64
			if len(stamps) > 1 {
				span := stamps[len(stamps)-1].Sub(stamps[0])
				gapHours = span.Hours() / float64(len(stamps)-1)
			}

			payload := map[string]any{
				"days_observed":  days,
				"posts_per_week": postsPerWeek,
				"best_day":       bestDay.String(),
				"best_hour":      bestHour,
				"avg_gap_hours":  gapHours,
			}
			return &Result{
				Metrics: payload,
				Predictions: []model.Prediction{{
					PredictionType: "cadence",
					Payload:        payload,
				}},
			}, nil
		},
	}
}

// historyDays measures the whole-day span between the oldest and newest
// timestamped posts. Zero timestamps count as missing history.
func historyDays(posts []model.CanonicalPost) int {
	var oldest, newest time.Time
	for _, p := range posts {
		if p.Timestamp.IsZero() {
			continue
		}
		if oldest.IsZero() || p.Timestamp.Before(oldest) {
			oldest = p.Timestamp
		}
		if newest.IsZero() || p.Timestamp.After(newest) {
			newest = p.Timestamp
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return int(newest.Sub(oldest).Hours() / 24)
}

// hashtagPerformanceModule ranks hashtags by average engagement. Its
// fallback re-ranks with a halved top-K.
func hashtagPerformanceModule(topK int) Module {
	if topK <= 0 {
		topK = defaultTopHashtags
	}
	fallbackK := topK / 2
	if fallbackK < 1 {
		fallbackK = 1
	}
	return Module{
		Name: "hashtag_performance",
		Run: func(_ context.Context, ds *Dataset) (*Result, error) {
			return rankHashtags(ds, topK)
		},
		Fallback: func(_ context.Context, ds *Dataset) (*Result, error) {
			return rankHashtags(ds, fallbackK)
		},
	}
}

func rankHashtags(ds *Dataset, topK int) (*Result, error) {
	type tagStat struct {
		tag        string
		engagement int64
		posts      int
	}
	byTag := make(map[string]*tagStat)
	for _, p := range ds.Posts {
		for _, tag := range strings.Fields(p.Hashtags) {
			if !strings.HasPrefix(tag, "#") {
				continue
			}
			tag = strings.ToLower(tag)
			st, ok := byTag[tag]
			if !ok {
				st = &tagStat{tag: tag}
				byTag[tag] = st
			}
			st.engagement += p.Engagement()
			st.posts++
		}
	}
	if len(byTag) == 0 {
		return nil, eris.New("no hashtags in dataset")
	}

	stats := make([]*tagStat, 0, len(byTag))
	for _, st := range byTag {
		stats = append(stats, st)
	}
	// Average engagement descending, tag ascending for a stable ranking.
	sort.Slice(stats, func(i, j int) bool {
		ai := float64(stats[i].engagement) / float64(stats[i].posts)
		aj := float64(stats[j].engagement) / float64(stats[j].posts)
		if ai != aj {
			return ai > aj
		}
		return stats[i].tag < stats[j].tag
	})
	if len(stats) > topK {
		stats = stats[:topK]
	}

	top := make([]map[string]any, 0, len(stats))
	for _, st := range stats {
		top = append(top, map[string]any{
			"tag":            st.tag,
			"posts":          st.posts,
			"avg_engagement": float64(st.engagement) / float64(st.posts),
		})
	}

	payload := map[string]any{
		"hashtags_total": len(byTag),
		"top_k":          topK,
		"top_hashtags":   top,
	}
	return &Result{
		Metrics: payload,
		Predictions: []model.Prediction{{
			PredictionType: "hashtag_ranking",
			Payload:        payload,
		}},
	}, nil
}

// reachEfficiencyModule relates reach and engagement to impressions. It
// can only run when at least one post carries impression data.
func reachEfficiencyModule() Module {
	return Module{
		Name: "reach_efficiency",
		Precondition: func(ds *Dataset) error {
			for _, p := range ds.Posts {
				if p.Impressions > 0 {
					return nil
				}
			}
			return eris.New("no posts with impressions")
		},
		Run: func(_ context.Context, ds *Dataset) (*Result, error) {
			var posts int
			var impressions, reach, engagement int64
			for _, p := range ds.Posts {
				if p.Impressions <= 0 {
					continue
				}
				posts++
				impressions += p.Impressions
				reach += p.Reach
				engagement += p.Engagement()
			}

			payload := map[string]any{
				"posts_with_impressions":    posts,
				"reach_rate":                float64(reach) / float64(impressions),
				"engagement_per_impression": float64(engagement) / float64(impressions),
			}
			return &Result{
				Metrics: payload,
				Predictions: []model.Prediction{{
					PredictionType: "reach_efficiency",
					Payload:        payload,
				}},
			}, nil
		},
	}
}

// audienceBreakdownModule tallies the audience dimensions and names the
// dominant segment of each.
func audienceBreakdownModule() Module {
	return Module{
		Name: "audience_breakdown",
		Run: func(_ context.Context, ds *Dataset) (*Result, error) {
			genders := make(map[string]int)
			ages := make(map[string]int)
			locations := make(map[string]int)
			for _, p := range ds.Posts {
				genders[p.AudienceGender]++
				ages[p.AudienceAge]++
				locations[p.Location]++
			}

			dominantGender := dominantKey(genders)
			payload := map[string]any{
				"genders":           genders,
				"ages":              ages,
				"locations":         locations,
				"dominant_gender":   dominantGender,
				"dominant_age":      dominantKey(ages),
				"dominant_location": dominantKey(locations),
				"dominant_gender_share": float64(genders[dominantGender]) /
					float64(len(ds.Posts)),
			}
			return &Result{
				Metrics: payload,
				Predictions: []model.Prediction{{
					PredictionType: "audience_breakdown",
					Payload:        payload,
				}},
			}, nil
		},
	}
}

// dominantKey picks the highest count; ties go to the lexicographically
// smaller key so the answer is stable across map iteration order.
func dominantKey(counts map[string]int) string {
	best := ""
	bestN := -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
