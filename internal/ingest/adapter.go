package ingest

import (
	"github.com/pulse-metrics/insights-cli/internal/model"
)

// Adapter converts one recognized export format into canonical posts.
// Adapt skips rows it cannot extract (logged at debug, never fatal) and
// returns *NoValidRecordsError only when nothing at all survives.
type Adapter interface {
	Variant() model.FormatVariant
	Adapt(raw *RawImport) ([]model.CanonicalPost, error)
}

// ForVariant returns the adapter for a classified format. ok is false for
// Unknown, which has no adapter: callers surface *UnrecognizedFormatError
// instead.
func ForVariant(v model.FormatVariant) (Adapter, bool) {
	switch v {
	case model.FormatInstagramPostExport:
		return &instagramAdapter{}, true
	case model.FormatFacebookVideoExport:
		return &facebookAdapter{}, true
	case model.FormatStandardSchema:
		return &standardAdapter{}, true
	default:
		return nil, false
	}
}
