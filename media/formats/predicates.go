package formats

import (
	"strings"

	"github.com/ytget/mediamux/types"
)

// hasDirectURL returns true when the format carries a URL that can be
// fetched with plain HTTP range requests.
func hasDirectURL(url string) bool {
	return strings.TrimSpace(url) != ""
}

// languageAccepted reports whether tag passes the caller's language list.
// An untagged format always passes; an empty list accepts every language.
func languageAccepted(tag string, accepted []string) bool {
	if tag == "" || len(accepted) == 0 {
		return true
	}
	for _, l := range accepted {
		if strings.EqualFold(strings.TrimSpace(l), tag) {
			return true
		}
	}
	return false
}

// sizeFromBitrate estimates a size in bytes from a duration in seconds and a
// bitrate in kbps. It returns nil unless both are known and positive.
func sizeFromBitrate(duration *float64, kbps *float64) *int64 {
	if duration == nil || kbps == nil || *duration <= 0 || *kbps <= 0 {
		return nil
	}
	v := int64(*duration * *kbps * 1000 / 8)
	return &v
}

// approxSize keeps the provider sizes and fills the approximate one from the
// bitrate when neither is present.
func approxSize(raw types.RawFormat, duration *float64, kbps *float64) (exact, approx *int64) {
	exact, approx = raw.Filesize, raw.FilesizeApprox
	if exact == nil && approx == nil {
		approx = sizeFromBitrate(duration, kbps)
	}
	return exact, approx
}

// HasDirectURL reports whether the video side can be range-fetched.
func (v VideoFormat) HasDirectURL() bool { return hasDirectURL(v.URL) }

// HasDirectURL reports whether the audio side can be range-fetched.
func (a AudioFormat) HasDirectURL() bool { return hasDirectURL(a.URL) }

// SizeHint returns the exact size, else the approximate one, else 0.
func (v VideoFormat) SizeHint() int64 {
	if s := orApprox(v.Filesize, v.FilesizeApprox); s != nil {
		return *s
	}
	return 0
}

// SizeHint returns the exact size, else the approximate one, else 0.
func (a AudioFormat) SizeHint() int64 {
	if s := orApprox(a.Filesize, a.FilesizeApprox); s != nil {
		return *s
	}
	return 0
}
