package mimeext

import (
	"path"
	"strings"
)

const (
	// DefaultImageExt is used for thumbnails of unknown type.
	DefaultImageExt = "jpg"

	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
	MimeAVIF = "image/avif"
	MimeGIF  = "image/gif"
)

var imageExts = map[string]string{
	MimeJPEG:    "jpg",
	"image/jpg": "jpg",
	MimePNG:     "png",
	MimeWebP:    "webp",
	MimeAVIF:    "avif",
	MimeGIF:     "gif",
}

// ExtFromMime returns the file extension (without dot) for an image content
// type. Parameters are ignored; unknown types fall back to the subtype, then
// to jpg.
func ExtFromMime(mime string) string {
	base := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if ext, ok := imageExts[base]; ok {
		return ext
	}
	if sub, ok := strings.CutPrefix(base, "image/"); ok && sub != "" && !strings.ContainsAny(sub, "+./") {
		return sub
	}
	return DefaultImageExt
}

// ExtFromURL guesses a thumbnail extension from the URL path.
func ExtFromURL(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	switch ext {
	case "jpeg":
		return "jpg"
	case "jpg", "png", "webp", "avif", "gif":
		return ext
	}
	return DefaultImageExt
}
