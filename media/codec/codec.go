// Package codec models the audio codecs, video codecs and containers the
// merge pipeline can handle, and which of them can be combined.
//
// Classification is a deliberately loose, case-insensitive prefix match on
// the provider's codec string. Profiles and numeric suffixes are never
// inspected: "avc1.64001F" and "avc3" are both H.264.
package codec

import (
	"strings"

	"github.com/ytget/mediamux/errs"
)

// VideoKind enumerates the supported video codec families.
type VideoKind int

const (
	H264 VideoKind = iota + 1
	H265
	VP9
	ProRes
)

// AudioKind enumerates the supported audio codec families.
type AudioKind int

const (
	AACOrALAC AudioKind = iota + 1
	FLAC
	Opus
	MP3
	PCM
)

// ContainerKind enumerates the supported containers.
type ContainerKind int

const (
	MP4 ContainerKind = iota + 1
	MOV
	MKV
	TS
)

// Video is a classified video codec. Raw keeps the provider string for diagnostics.
type Video struct {
	Kind VideoKind
	Raw  string
}

// Audio is a classified audio codec.
type Audio struct {
	Kind AudioKind
	Raw  string
}

// Container is a classified container.
type Container struct {
	Kind ContainerKind
	Raw  string
}

type prefixRule[K comparable] struct {
	prefixes []string
	kind     K
}

// Checked in order; the first rule with a matching prefix wins.
var (
	videoRules = []prefixRule[VideoKind]{
		{[]string{"avc", "h264"}, H264},
		{[]string{"hevc", "h265", "hev1", "hvc1"}, H265},
		{[]string{"vp9", "vp09"}, VP9},
		{[]string{"prores", "apch", "apcn", "apcs", "apco", "ap4h", "ap4x"}, ProRes},
	}
	audioRules = []prefixRule[AudioKind]{
		{[]string{"mp4a", "aac", "alac"}, AACOrALAC},
		{[]string{"flac"}, FLAC},
		{[]string{"opus"}, Opus},
		{[]string{"mp3", "mpga"}, MP3},
		{[]string{"pcm", "lpcm"}, PCM},
	}
	containerRules = []prefixRule[ContainerKind]{
		{[]string{"mp4", "m4a", "m4v"}, MP4},
		{[]string{"mov", "qt"}, MOV},
		{[]string{"mkv", "matroska", "webm"}, MKV},
		{[]string{"ts", "mpegts", "m2ts"}, TS},
	}
)

func match[K comparable](rules []prefixRule[K], raw string) (K, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, r := range rules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(s, p) {
				return r.kind, true
			}
		}
	}
	var zero K
	return zero, false
}

// ParseVideo classifies a provider video codec string.
func ParseVideo(raw string) (Video, error) {
	if raw != "" {
		if k, ok := match(videoRules, raw); ok {
			return Video{Kind: k, Raw: raw}, nil
		}
	}
	return Video{}, &errs.UnsupportedError{What: "video codec", Raw: raw}
}

// ParseAudio classifies a provider audio codec string.
func ParseAudio(raw string) (Audio, error) {
	if raw != "" {
		if k, ok := match(audioRules, raw); ok {
			return Audio{Kind: k, Raw: raw}, nil
		}
	}
	return Audio{}, &errs.UnsupportedError{What: "audio codec", Raw: raw}
}

// ParseContainer classifies a container or file extension string.
func ParseContainer(raw string) (Container, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), ".")
	if s != "" {
		if k, ok := match(containerRules, s); ok {
			return Container{Kind: k, Raw: raw}, nil
		}
	}
	return Container{}, &errs.UnsupportedError{What: "container", Raw: raw}
}

var (
	videoNames = map[VideoKind]string{H264: "h264", H265: "h265", VP9: "vp9", ProRes: "prores"}
	audioNames = map[AudioKind]string{AACOrALAC: "aac", FLAC: "flac", Opus: "opus", MP3: "mp3", PCM: "pcm"}

	containerNames = map[ContainerKind]string{MP4: "mp4", MOV: "mov", MKV: "mkv", TS: "ts"}
	// ffmpeg -f names
	muxerNames = map[ContainerKind]string{MP4: "mp4", MOV: "mov", MKV: "matroska", TS: "mpegts"}
)

func (k VideoKind) String() string     { return videoNames[k] }
func (k AudioKind) String() string     { return audioNames[k] }
func (k ContainerKind) String() string { return containerNames[k] }

// Ext returns the canonical file extension for the container.
func (c Container) Ext() string { return c.Kind.String() }

// MuxerName returns the ffmpeg output format name for the container.
func (c Container) MuxerName() string { return muxerNames[c.Kind] }

// NewContainer builds a Container of kind k with its canonical name as Raw.
func NewContainer(k ContainerKind) Container {
	return Container{Kind: k, Raw: k.String()}
}

// NewAudio builds an Audio of kind k with its canonical name as Raw.
func NewAudio(k AudioKind) Audio {
	return Audio{Kind: k, Raw: k.String()}
}
