package formats

import (
	"fmt"
	"strings"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/media/codec"
	"github.com/ytget/mediamux/types"
)

// Kind tells which streams a classified descriptor carries.
type Kind int

const (
	KindAudio Kind = iota + 1
	KindVideo
	KindCombined
)

// Classified is the typed result of classifying one descriptor. Audio is set
// for KindAudio, Video for KindVideo, and Combined for KindCombined.
type Classified struct {
	Kind     Kind
	Audio    *AudioFormat
	Video    *VideoFormat
	Combined *CombinedFormat
}

// Classify converts one provider descriptor into an audio, video or combined
// format. duration is the media length in seconds and may be nil; languages
// is the list of acceptable language tags (empty accepts all).
//
// The branches are checked in a fixed order and the first match wins:
//  1. tagged with a language outside the list: rejected
//  2. both codecs named: combined, container derived from the codec pair
//  3. both codecs "none": combined muxed stream, assumed MP3 audio
//  4. only audio named: audio
//  5. only video named: video in the extension's container
//  6. audio unreported, audio extension: audio by extension
//  7. video unreported, video extension: video by extension
//  8. anything else: unknown format
func Classify(raw types.RawFormat, duration *float64, languages []string) (Classified, error) {
	c, err := classify(raw, duration, languages)
	if err != nil {
		return Classified{}, &errs.ClassifyError{FormatID: raw.ID, Err: err}
	}
	return c, nil
}

func classify(raw types.RawFormat, duration *float64, languages []string) (Classified, error) {
	lang := strings.TrimSpace(raw.Language)
	if !languageAccepted(lang, languages) {
		return Classified{}, fmt.Errorf("%w: %s", errs.ErrUnpreferredLanguage, lang)
	}

	switch {
	case raw.ACodec.Known() && raw.VCodec.Known():
		return classifyMuxed(raw, duration, lang)
	case raw.ACodec.None() && raw.VCodec.None():
		return classifyBare(raw, duration, lang)
	case raw.ACodec.Known():
		a, err := codec.ParseAudio(raw.ACodec.Raw)
		if err != nil {
			return Classified{}, err
		}
		return audioResult(raw, a, duration, lang), nil
	case raw.VCodec.Known():
		v, err := codec.ParseVideo(raw.VCodec.Raw)
		if err != nil {
			return Classified{}, err
		}
		return videoResult(raw, &v, duration, lang)
	case raw.ACodec.State == types.CodecUnknown && codec.IsAudioExt(raw.Ext):
		a, _ := codec.AudioFromExt(raw.Ext)
		return audioResult(raw, a, duration, lang), nil
	case raw.VCodec.State == types.CodecUnknown && codec.IsVideoExt(raw.Ext):
		return videoResult(raw, nil, duration, lang)
	}
	return Classified{}, errs.ErrUnknownFormat
}

// classifyMuxed handles a descriptor that names both codecs.
func classifyMuxed(raw types.RawFormat, duration *float64, lang string) (Classified, error) {
	a, err := codec.ParseAudio(raw.ACodec.Raw)
	if err != nil {
		return Classified{}, err
	}
	v, err := codec.ParseVideo(raw.VCodec.Raw)
	if err != nil {
		return Classified{}, err
	}
	c, ok := codec.DeriveContainer(a, v)
	if !ok {
		return Classified{}, &errs.UnsupportedError{What: "codec pair", Raw: a.Raw + "+" + v.Raw}
	}
	if !codec.VideoSupports(v, c) {
		return Classified{}, fmt.Errorf("%w: %s in %s", errs.ErrContainerNotSupported, v.Raw, c.Ext())
	}
	return combinedResult(raw, &v, a, c, duration, lang)
}

// classifyBare handles providers that omit codec metadata on already-muxed
// formats: the container comes from the extension and the audio is assumed MP3.
func classifyBare(raw types.RawFormat, duration *float64, lang string) (Classified, error) {
	c, err := codec.ParseContainer(raw.Ext)
	if err != nil {
		return Classified{}, err
	}
	return combinedResult(raw, nil, codec.NewAudio(codec.MP3), c, duration, lang)
}

func combinedResult(raw types.RawFormat, v *codec.Video, a codec.Audio, c codec.Container, duration *float64, lang string) (Classified, error) {
	exact, approx := approxSize(raw, duration, raw.TBR)

	// Bitrate and size describe the whole stream; keep them on the video side
	// so the combined sums do not count them twice.
	vbr, abr := raw.TBR, (*float64)(nil)
	if vbr == nil {
		vbr, abr = raw.VBR, raw.ABR
	}

	video := VideoFormat{
		ID:             raw.ID,
		URL:            raw.URL,
		Codec:          v,
		Container:      c,
		Bitrate:        vbr,
		Width:          raw.Width,
		Height:         raw.Height,
		Filesize:       exact,
		FilesizeApprox: approx,
		Language:       lang,
	}
	audio := AudioFormat{
		ID:       raw.ID,
		URL:      raw.URL,
		Codec:    a,
		Bitrate:  abr,
		Language: lang,
	}
	cf, ok := NewCombined(video, audio)
	if !ok {
		return Classified{}, fmt.Errorf("%w: %s with %s in %s", errs.ErrContainerNotSupported, a.Raw, raw.VCodec.Raw, c.Ext())
	}
	return Classified{Kind: KindCombined, Combined: &cf}, nil
}

func audioResult(raw types.RawFormat, a codec.Audio, duration *float64, lang string) Classified {
	exact, approx := approxSize(raw, duration, raw.ABR)
	return Classified{Kind: KindAudio, Audio: &AudioFormat{
		ID:             raw.ID,
		URL:            raw.URL,
		Codec:          a,
		Bitrate:        raw.ABR,
		Filesize:       exact,
		FilesizeApprox: approx,
		Language:       lang,
	}}
}

func videoResult(raw types.RawFormat, v *codec.Video, duration *float64, lang string) (Classified, error) {
	if strings.TrimSpace(raw.Ext) == "" {
		return Classified{}, errs.ErrVideoContainerEmpty
	}
	c, err := codec.ParseContainer(raw.Ext)
	if err != nil {
		return Classified{}, err
	}
	if v != nil && !codec.VideoSupports(*v, c) {
		return Classified{}, fmt.Errorf("%w: %s in %s", errs.ErrContainerNotSupported, v.Raw, raw.Ext)
	}
	bitrate := raw.VBR
	if bitrate == nil {
		bitrate = raw.TBR
	}
	exact, approx := approxSize(raw, duration, bitrate)
	return Classified{Kind: KindVideo, Video: &VideoFormat{
		ID:             raw.ID,
		URL:            raw.URL,
		Codec:          v,
		Container:      c,
		Bitrate:        bitrate,
		Width:          raw.Width,
		Height:         raw.Height,
		Filesize:       exact,
		FilesizeApprox: approx,
		Language:       lang,
	}}, nil
}
