// Package preprocess normalizes a loaded canonical dataset before analysis
// modules see it. Numeric fields are clamped, gaps are backfilled, and large
// datasets are downsampled with a fixed seed so repeated runs over the same
// data analyze the same subset.
package preprocess

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// DefaultSampleSize caps how many posts reach the analysis modules unless
// overridden.
const DefaultSampleSize = 5000

// sampleSeed fixes the downsample permutation. Identical input must select
// an identical subset across runs.
const sampleSeed = 42

// EmptyDatasetError reports that there is nothing to analyze.
type EmptyDatasetError struct{}

func (e *EmptyDatasetError) Error() string {
	return "preprocess: empty dataset"
}

// Options tunes a preprocessing pass.
type Options struct {
	// SampleSize is the maximum number of posts kept. Zero or negative
	// means DefaultSampleSize.
	SampleSize int
}

// Stats reports what a preprocessing pass changed.
type Stats struct {
	RowsIn          int  `json:"rows_in"`
	RowsOut         int  `json:"rows_out"`
	ClampedNumerics int  `json:"clamped_numerics"`
	SynthesizedIDs  int  `json:"synthesized_ids"`
	FilledHashtags  int  `json:"filled_hashtags"`
	Downsampled     bool `json:"downsampled"`
}

// Run coerces and downsamples posts. The input slice is not modified; the
// returned slice preserves the input's relative order even after sampling.
// Zero timestamps pass through untouched and are treated as missing history
// by the modules.
func Run(posts []model.CanonicalPost, opts Options) ([]model.CanonicalPost, Stats, error) {
	stats := Stats{RowsIn: len(posts)}
	if len(posts) == 0 {
		return nil, stats, &EmptyDatasetError{}
	}

	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	out := make([]model.CanonicalPost, len(posts))
	copy(out, posts)

	for i := range out {
		p := &out[i]
		stats.ClampedNumerics += clampCounters(p)
		if p.PostID == "" {
			p.PostID = fmt.Sprintf("post_%d", i+1)
			stats.SynthesizedIDs++
		}
		if p.Hashtags == "" {
			p.Hashtags = model.DefaultHashtags
			stats.FilledHashtags++
		}
	}

	if len(out) > sampleSize {
		out = downsample(out, sampleSize)
		stats.Downsampled = true
	}
	stats.RowsOut = len(out)

	zap.L().Debug("preprocessed dataset",
		zap.Int("rows_in", stats.RowsIn),
		zap.Int("rows_out", stats.RowsOut),
		zap.Int("clamped", stats.ClampedNumerics),
		zap.Bool("downsampled", stats.Downsampled))
	return out, stats, nil
}

// clampCounters floors negative engagement counters at zero and reports how
// many fields were touched.
func clampCounters(p *model.CanonicalPost) int {
	clamped := 0
	for _, field := range []*int64{
		&p.Likes, &p.Comments, &p.Shares, &p.Saves,
		&p.Impressions, &p.Reach, &p.FollowerCount,
	} {
		if *field < 0 {
			*field = 0
			clamped++
		}
	}
	return clamped
}

// downsample picks n posts via a seeded permutation, then restores the
// original ordering of the survivors.
func downsample(posts []model.CanonicalPost, n int) []model.CanonicalPost {
	rng := rand.New(rand.NewPCG(sampleSeed, 0))
	perm := rng.Perm(len(posts))

	selected := perm[:n]
	sort.Ints(selected)

	out := make([]model.CanonicalPost, 0, n)
	for _, idx := range selected {
		out = append(out, posts[idx])
	}
	return out
}
