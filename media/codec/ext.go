package codec

import "strings"

// Extensions that by themselves identify an audio-only file, and the codec
// each one implies.
var audioExts = map[string]AudioKind{
	"m4a":  AACOrALAC,
	"aac":  AACOrALAC,
	"mp3":  MP3,
	"opus": Opus,
	"ogg":  Opus,
	"weba": Opus,
	"flac": FLAC,
	"wav":  PCM,
}

var videoExts = map[string]bool{
	"mp4":  true,
	"m4v":  true,
	"mov":  true,
	"mkv":  true,
	"webm": true,
	"ts":   true,
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// IsAudioExt reports whether ext names an audio-only file type.
func IsAudioExt(ext string) bool {
	_, ok := audioExts[normExt(ext)]
	return ok
}

// IsVideoExt reports whether ext names a video container.
func IsVideoExt(ext string) bool {
	return videoExts[normExt(ext)]
}

// AudioFromExt returns the codec implied by an audio-only extension.
func AudioFromExt(ext string) (Audio, bool) {
	e := normExt(ext)
	k, ok := audioExts[e]
	if !ok {
		return Audio{}, false
	}
	return Audio{Kind: k, Raw: e}, true
}
