package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

const (
	facebookImpressionFloor = 100
	facebookVideoThreshold  = 20
)

// facebookAdapter maps Facebook video exports onto the canonical schema.
// These files ship preamble rows above the data (report banner, date range,
// column notes) and a trailing "Grand Total" row; both are discarded. The
// audience estimate is computed once over the whole file from demographic
// breakdown columns and stamped on every post.
type facebookAdapter struct{}

func (a *facebookAdapter) Variant() model.FormatVariant { return model.FormatFacebookVideoExport }

func (a *facebookAdapter) Adapt(raw *RawImport) ([]model.CanonicalPost, error) {
	log := zap.L().With(zap.String("adapter", "facebook"), zap.String("source", raw.Source))

	rows := stripPreamble(raw.Rows)
	colIdx := mapColumns(raw.Columns)
	threeSecIdx := findColContains(raw.Columns, "3-second video views")
	oneMinIdx := findColContains(raw.Columns, "1-minute video views")
	followersIdx := findColContains(raw.Columns, "followers")

	audience := detectAudience(raw.Columns, rows)

	posts := make([]model.CanonicalPost, 0, len(rows))
	for i, record := range rows {
		if isAllEmpty(record) || isGrandTotal(record) {
			continue
		}

		ts, ok := safeDate(record[0], "")
		if !ok {
			log.Debug("skipping row: unparseable date", zap.Int("row", i+1))
			continue
		}

		threeSec := safeInt(cellAt(record, threeSecIdx))
		oneMin := safeInt(cellAt(record, oneMinIdx))

		impressions := threeSec
		if impressions < facebookImpressionFloor {
			impressions = facebookImpressionFloor
		}

		mediaType := model.MediaImage
		if oneMin > 0 || threeSec > facebookVideoThreshold {
			mediaType = model.MediaVideo
		}

		caption := firstNonEmpty(record, colIdx, "title", "video title", "description")

		posts = append(posts, model.CanonicalPost{
			PostID:         fmt.Sprintf("post_%d", i+1),
			Timestamp:      ts,
			Caption:        caption,
			Likes:          safeInt(firstNonEmpty(record, colIdx, "reactions", "likes")),
			Comments:       safeInt(getCol(record, colIdx, "comments")),
			Shares:         safeInt(getCol(record, colIdx, "shares")),
			Saves:          safeInt(getCol(record, colIdx, "saves")),
			Impressions:    impressions,
			Reach:          impressions * 3 / 4,
			FollowerCount:  safeInt(cellAt(record, followersIdx)),
			AudienceGender: audience.Gender,
			AudienceAge:    audience.Age,
			Location:       audience.Location,
			Hashtags:       extractHashtags(caption),
			MediaType:      mediaType,
		})
	}

	if len(posts) == 0 {
		return nil, &NoValidRecordsError{Rows: len(raw.Rows)}
	}
	return posts, nil
}

// stripPreamble drops leading rows until the first one whose leading cell
// parses as a date. Returns nil when no data row exists at all.
func stripPreamble(rows [][]string) [][]string {
	for i, record := range rows {
		if len(record) > 0 && looksLikeDate(record[0]) {
			return rows[i:]
		}
	}
	return nil
}

func isGrandTotal(record []string) bool {
	return len(record) > 0 && strings.Contains(normalizeColumn(record[0]), "grand total")
}

func isAllEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// audienceEstimate is the file-level demographic majority, defaulting to the
// generic mix when no breakdown column dominates.
type audienceEstimate struct {
	Gender   string
	Age      string
	Location string
}

var ageBuckets = []string{"13-17", "18-24", "25-34", "35-44", "45-54", "55-64", "65+"}

var locationMarkers = []struct{ token, label string }{
	{"united states", "United States"},
	{"united kingdom", "United Kingdom"},
	{"india", "India"},
	{"indonesia", "Indonesia"},
	{"brazil", "Brazil"},
	{"mexico", "Mexico"},
	{"philippines", "Philippines"},
	{"vietnam", "Vietnam"},
	{"thailand", "Thailand"},
	{"egypt", "Egypt"},
	{"bangladesh", "Bangladesh"},
	{"pakistan", "Pakistan"},
	{"nigeria", "Nigeria"},
	{"germany", "Germany"},
}

// detectAudience sums demographic breakdown columns across the data rows and
// picks a majority per dimension. A label wins only when its total leads the
// runner-up by at least 20%; anything closer stays on the defaults. Gender
// columns are matched on whole tokens ("female" before "male", and never
// "men" inside "comments").
func detectAudience(header []string, rows [][]string) audienceEstimate {
	est := audienceEstimate{Gender: "Mixed", Age: "18-24", Location: "India"}

	genderSums := make(map[string]int64)
	ageSums := make(map[string]int64)
	locSums := make(map[string]int64)

	for ci, col := range header {
		name := normalizeColumn(col)
		toks := columnTokens(name)

		genderLabel := ""
		switch {
		case toks["female"] || toks["women"] || toks["woman"]:
			genderLabel = "Female"
		case toks["male"] || toks["men"] || toks["man"]:
			genderLabel = "Male"
		}

		ageLabel := ""
		for _, bucket := range ageBuckets {
			if strings.Contains(name, bucket) {
				ageLabel = bucket
				break
			}
		}

		locLabel := ""
		for _, m := range locationMarkers {
			if strings.Contains(name, m.token) {
				locLabel = m.label
				break
			}
		}

		if genderLabel == "" && ageLabel == "" && locLabel == "" {
			continue
		}

		var sum int64
		for _, record := range rows {
			sum += safeInt(cellAt(record, ci))
		}
		if sum == 0 {
			continue
		}

		if genderLabel != "" {
			genderSums[genderLabel] += sum
		}
		if ageLabel != "" {
			ageSums[ageLabel] += sum
		}
		if locLabel != "" {
			locSums[locLabel] += sum
		}
	}

	if w, ok := dominant(genderSums); ok {
		est.Gender = w
	}
	if w, ok := dominant(ageSums); ok {
		est.Age = w
	}
	if w, ok := dominant(locSums); ok {
		est.Location = w
	}
	return est
}

// dominant returns the label with the highest sum when it is at least 1.2x
// the runner-up. Ties and empty maps report no winner.
func dominant(sums map[string]int64) (string, bool) {
	var top, second int64
	var topLabel string
	for label, v := range sums {
		if v > top {
			second = top
			top = v
			topLabel = label
		} else if v > second {
			second = v
		}
	}
	if top > 0 && top*10 >= second*12 {
		return topLabel, true
	}
	return "", false
}

func columnTokens(name string) map[string]bool {
	toks := make(map[string]bool)
	for _, t := range strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) }) {
		toks[t] = true
	}
	return toks
}
