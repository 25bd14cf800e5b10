package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// lenientLayouts are tried in order after a format's strict layout fails.
// The order is fixed: changing it changes which ambiguous dates parse.
var lenientLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04",
	"1/2/2006",
	"Jan 2, 2006",
}

// safeInt coerces a free-form numeric cell to a non-negative int64. Empty,
// non-numeric, NaN and negative inputs become 0; floats are truncated;
// thousands separators are tolerated. Substitutions are silent.
func safeInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v < 0 {
			return 0
		}
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int64(f)
}

// safeDate parses a timestamp cell: the strict layout first (when given),
// then each lenient layout in order. ok is false when nothing matches;
// callers skip the row rather than fail the import.
func safeDate(s, strict string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strict != "" {
		if t, err := time.Parse(strict, s); err == nil {
			return t, true
		}
	}
	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looksLikeDate reports whether a cell parses under any known layout. Used to
// find the first data row in exports that ship preamble rows above the data.
func looksLikeDate(s string) bool {
	_, ok := safeDate(s, "")
	return ok
}

var hashtagPattern = regexp.MustCompile(`#\w+`)

const maxHashtags = 10

// extractHashtags pulls up to maxHashtags #tokens out of a caption. Captions
// without hashtags get the generic default pair so the column is never empty.
func extractHashtags(caption string) string {
	tags := hashtagPattern.FindAllString(caption, maxHashtags)
	if len(tags) == 0 {
		return model.DefaultHashtags
	}
	return strings.Join(tags, " ")
}

// followerAnchor is the reference date for the synthetic follower curve used
// by exports that carry no follower column.
var followerAnchor = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

// daysSinceAnchor returns whole days between the anchor and t, floored at 0.
func daysSinceAnchor(t time.Time) int64 {
	d := int64(t.Sub(followerAnchor).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// normalizeColumn lowercases and trims a header cell for cross-format matching.
func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// mapColumns builds a normalized column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[normalizeColumn(col)] = i
	}
	return m
}

// getCol gets a column value by normalized name, empty string when absent.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[normalizeColumn(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// firstNonEmpty returns the first non-empty value among the named columns.
func firstNonEmpty(record []string, colIdx map[string]int, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(getCol(record, colIdx, name)); v != "" {
			return v
		}
	}
	return ""
}

// findColContains returns the index of the first column whose normalized
// name contains the marker, or -1. Exports rename columns across regions
// ("3-second video views" vs "Total 3-second video views"), so substring
// matching is the only stable lookup.
func findColContains(header []string, marker string) int {
	for i, col := range header {
		if strings.Contains(normalizeColumn(col), marker) {
			return i
		}
	}
	return -1
}

// cellAt returns record[idx], or empty string when idx is -1 or out of range.
func cellAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
