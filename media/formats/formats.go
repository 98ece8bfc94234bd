// Package formats turns provider stream descriptors into typed audio, video
// and combined formats, and pairs split streams into merge candidates.
package formats

import (
	"github.com/ytget/mediamux/media/codec"
)

// VideoFormat is a classified video stream. Codec is nil when the provider
// did not name one and the format was classified by extension.
type VideoFormat struct {
	ID             string
	URL            string
	Codec          *codec.Video
	Container      codec.Container
	Bitrate        *float64 // kbps
	Width          *int
	Height         *int
	Filesize       *int64
	FilesizeApprox *int64
	Language       string
}

// AudioFormat is a classified audio stream.
type AudioFormat struct {
	ID             string
	URL            string
	Codec          codec.Audio
	Bitrate        *float64 // kbps
	Filesize       *int64
	FilesizeApprox *int64
	Language       string
}

// unknownCodecPriority stands in for a missing video codec.
const unknownCodecPriority = 5

// Priority returns the curated priority for well-known ids, else the codec
// priority plus the container priority. Lower is better.
func (v VideoFormat) Priority() int {
	if p, ok := videoCatalogue[v.ID]; ok {
		return p
	}
	p := unknownCodecPriority
	if v.Codec != nil {
		p = v.Codec.Priority()
	}
	return p + v.Container.Priority()
}

// Priority returns the curated priority for well-known ids, else the codec priority.
func (a AudioFormat) Priority() int {
	if p, ok := audioCatalogue[a.ID]; ok {
		return p
	}
	return a.Codec.Priority()
}

// CombinedFormat pairs a video stream with an audio stream. When both sides
// carry the same id the provider already serves them interleaved.
type CombinedFormat struct {
	Video VideoFormat
	Audio AudioFormat
}

// NewCombined pairs v and a if the audio codec can live next to the video
// codec inside the video's container.
func NewCombined(v VideoFormat, a AudioFormat) (CombinedFormat, bool) {
	if !codec.AudioSupports(a.Codec, v.Container) {
		return CombinedFormat{}, false
	}
	if v.Codec != nil && !codec.VideoSupports(*v.Codec, v.Container) {
		return CombinedFormat{}, false
	}
	return CombinedFormat{Video: v, Audio: a}, true
}

// FormatID joins both ids as "video+audio".
func (c CombinedFormat) FormatID() string {
	return c.Video.ID + "+" + c.Audio.ID
}

// IDsEqual reports whether this is a native single-stream format.
func (c CombinedFormat) IDsEqual() bool {
	return c.Video.ID == c.Audio.ID
}

// Ext returns the extension of the merged file.
func (c CombinedFormat) Ext() string {
	return c.Video.Container.Ext()
}

// Priority is the sum of both sides' priorities.
func (c CombinedFormat) Priority() int {
	return c.Video.Priority() + c.Audio.Priority()
}

// Bitrate is the video bitrate plus the audio bitrate, missing values count as 0.
func (c CombinedFormat) Bitrate() float64 {
	var total float64
	if c.Video.Bitrate != nil {
		total += *c.Video.Bitrate
	}
	if c.Audio.Bitrate != nil {
		total += *c.Audio.Bitrate
	}
	return total
}

// Language returns the audio language, else the video language.
func (c CombinedFormat) Language() string {
	if c.Audio.Language != "" {
		return c.Audio.Language
	}
	return c.Video.Language
}

// Filesize returns the exact total size, or nil when neither side knows it.
func (c CombinedFormat) Filesize() *int64 {
	return sumSizes(c.Video.Filesize, c.Audio.Filesize)
}

// FilesizeOrApprox is like Filesize but falls back to approximate sizes per side.
func (c CombinedFormat) FilesizeOrApprox() *int64 {
	return sumSizes(
		orApprox(c.Video.Filesize, c.Video.FilesizeApprox),
		orApprox(c.Audio.Filesize, c.Audio.FilesizeApprox),
	)
}

func orApprox(exact, approx *int64) *int64 {
	if exact != nil {
		return exact
	}
	return approx
}

func sumSizes(a, b *int64) *int64 {
	switch {
	case a != nil && b != nil:
		s := *a + *b
		return &s
	case a != nil:
		v := *a
		return &v
	case b != nil:
		v := *b
		return &v
	}
	return nil
}
