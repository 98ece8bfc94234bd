package ytdlp

import (
	"github.com/ytget/mediamux/types"
)

// document is the subset of yt-dlp's --dump-single-json output we read.
// Numeric fields are floats because yt-dlp emits sizes like 1.23e7 for
// estimates.
type document struct {
	Type       string     `json:"_type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Duration   *float64   `json:"duration"`
	WebpageURL string     `json:"webpage_url"`
	URL        string     `json:"url"`
	Thumbnail  string     `json:"thumbnail"`
	Formats    []format   `json:"formats"`
	Entries    []document `json:"entries"`
}

type format struct {
	FormatID       string   `json:"format_id"`
	URL            string   `json:"url"`
	Ext            string   `json:"ext"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	Language       string   `json:"language"`
	ABR            *float64 `json:"abr"`
	VBR            *float64 `json:"vbr"`
	TBR            *float64 `json:"tbr"`
	Width          *float64 `json:"width"`
	Height         *float64 `json:"height"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

func (d document) isPlaylist() bool {
	return d.Type == "playlist" || d.Type == "multi_video" || (len(d.Entries) > 0 && len(d.Formats) == 0)
}

func (d document) mediaInfo() types.MediaInfo {
	page := d.WebpageURL
	if page == "" {
		page = d.URL
	}
	info := types.MediaInfo{
		ID:         d.ID,
		Title:      d.Title,
		Duration:   d.Duration,
		WebpageURL: page,
		Thumbnail:  d.Thumbnail,
		Formats:    make([]types.RawFormat, 0, len(d.Formats)),
	}
	for _, f := range d.Formats {
		info.Formats = append(info.Formats, f.raw())
	}
	return info
}

func (f format) raw() types.RawFormat {
	return types.RawFormat{
		ID:             f.FormatID,
		URL:            f.URL,
		Ext:            f.Ext,
		ACodec:         types.ParseCodec(f.ACodec),
		VCodec:         types.ParseCodec(f.VCodec),
		Language:       f.Language,
		ABR:            positive(f.ABR),
		VBR:            positive(f.VBR),
		TBR:            positive(f.TBR),
		Width:          toInt(f.Width),
		Height:         toInt(f.Height),
		Filesize:       toInt64(f.Filesize),
		FilesizeApprox: toInt64(f.FilesizeApprox),
	}
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func toInt(v *float64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func toInt64(v *float64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	i := int64(*v)
	return &i
}
