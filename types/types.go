package types

import "strings"

// CodecState tells apart a codec the provider named, one it explicitly
// reported as "none", and one it did not report at all.
type CodecState int

const (
	// CodecUnknown means the provider omitted the field or left it empty.
	CodecUnknown CodecState = iota
	// CodecNone means the provider explicitly reported "none".
	CodecNone
	// CodecKnown means the provider named a codec.
	CodecKnown
)

// Codec is a provider-reported codec string together with its state.
type Codec struct {
	State CodecState
	Raw   string
}

// ParseCodec maps a raw provider value to a Codec.
func ParseCodec(raw string) Codec {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return Codec{State: CodecUnknown}
	case strings.EqualFold(v, "none"):
		return Codec{State: CodecNone, Raw: v}
	default:
		return Codec{State: CodecKnown, Raw: v}
	}
}

// Known reports whether the provider named a codec.
func (c Codec) Known() bool { return c.State == CodecKnown }

// None reports whether the provider explicitly reported no codec.
func (c Codec) None() bool { return c.State == CodecNone }

// RawFormat describes one downloadable stream variant as reported by the
// metadata provider. Bitrates are in kbps, sizes in bytes. Optional numeric
// fields are nil when the provider did not report them.
type RawFormat struct {
	ID             string
	URL            string
	Ext            string
	ACodec         Codec
	VCodec         Codec
	Language       string
	ABR            *float64
	VBR            *float64
	TBR            *float64
	Width          *int
	Height         *int
	Filesize       *int64
	FilesizeApprox *int64
}

// MediaInfo describes one media item and its available formats.
type MediaInfo struct {
	ID         string
	Title      string
	Duration   *float64
	WebpageURL string
	Thumbnail  string
	Formats    []RawFormat
}
