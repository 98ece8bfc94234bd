package sanitize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

const (
	// MaxFilenameLength is the maximum length in bytes of the filename base.
	MaxFilenameLength = 120
	// DefaultExt is used when no extension is provided.
	DefaultExt = "mp4"
	// DefaultName replaces an empty title.
	DefaultName = "media"
)

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// ToSafeFilename builds a cross-platform safe filename from title and ext
// (with or without the dot).
func ToSafeFilename(title, ext string) string {
	return clean(title, MaxFilenameLength) + "." + cleanExt(ext)
}

// WithKey is ToSafeFilename with a short stable hash of key before the
// extension, so items sharing a title do not overwrite each other.
func WithKey(title, key, ext string) string {
	tag := fmt.Sprintf(" [%s]", ShortHash(key))
	return clean(title, MaxFilenameLength-len(tag)) + tag + "." + cleanExt(ext)
}

// ShortHash returns 8 hex digits derived from key.
func ShortHash(key string) string {
	return fmt.Sprintf("%08x", uint32(xxh3.HashString(key)))
}

// ReplaceExt swaps the extension of path for ext.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + cleanExt(ext)
}

func clean(title string, max int) string {
	// Whitespace first, so tabs and newlines become spaces rather than "_".
	name := spaces.ReplaceAllString(title, " ")
	name = strings.TrimSpace(unsafeChars.ReplaceAllString(name, "_"))
	name = strings.Trim(name, ".")
	if name == "" {
		name = DefaultName
	}
	if len(name) > max {
		name = name[:max]
		// Do not cut a multi-byte rune in half.
		for len(name) > 0 && !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
		name = strings.TrimSpace(name)
	}
	return name
}

func cleanExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return DefaultExt
	}
	return ext
}
