package ingest

import (
	"strings"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

// classifierRule pairs a header predicate with the variant it identifies.
// Rules run in slice order and the first match wins, so the most distinctive
// formats must sit above the generic ones.
type classifierRule struct {
	variant model.FormatVariant
	match   func(h headerView) bool
}

// headerView is the normalized header a rule inspects.
type headerView struct {
	set  map[string]bool
	cols []string
}

func (h headerView) hasAny(names ...string) bool {
	for _, n := range names {
		if h.set[n] {
			return true
		}
	}
	return false
}

func (h headerView) hasAll(names ...string) bool {
	for _, n := range names {
		if !h.set[n] {
			return false
		}
	}
	return true
}

func (h headerView) anyContains(marker string) bool {
	for _, c := range h.cols {
		if strings.Contains(c, marker) {
			return true
		}
	}
	return false
}

var classifierRules = []classifierRule{
	{model.FormatInstagramPostExport, func(h headerView) bool {
		return h.hasAny("post id", "account username", "permalink")
	}},
	{model.FormatFacebookVideoExport, func(h headerView) bool {
		return h.anyContains("3-second video views")
	}},
	{model.FormatStandardSchema, func(h headerView) bool {
		return h.hasAll("post_id", "timestamp")
	}},
}

// Classify maps an export header onto a known format variant. Pure and
// deterministic: the same columns always yield the same variant.
func Classify(columns []string) model.FormatVariant {
	h := headerView{
		set:  make(map[string]bool, len(columns)),
		cols: make([]string, 0, len(columns)),
	}
	for _, c := range columns {
		n := normalizeColumn(c)
		h.set[n] = true
		h.cols = append(h.cols, n)
	}

	for _, rule := range classifierRules {
		if rule.match(h) {
			return rule.variant
		}
	}
	return model.FormatUnknown
}
