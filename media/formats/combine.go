package formats

import (
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/types"
)

// Combine builds every merge candidate for one media item: pre-combined
// formats pass straight through, and each audio-only format is paired with
// each video-only format whose container can carry both codecs. Unpaired
// streams are simply absent from the result.
func Combine(items []Classified) []CombinedFormat {
	var (
		out    []CombinedFormat
		videos []VideoFormat
		audios []AudioFormat
	)
	for _, it := range items {
		switch it.Kind {
		case KindCombined:
			out = append(out, *it.Combined)
		case KindVideo:
			videos = append(videos, *it.Video)
		case KindAudio:
			audios = append(audios, *it.Audio)
		}
	}
	for _, a := range audios {
		for _, v := range videos {
			if cf, ok := NewCombined(v, a); ok {
				out = append(out, cf)
			}
		}
	}
	return out
}

// Build classifies every descriptor of one media item and combines the
// results. A descriptor that fails classification is dropped without
// affecting the others; the per-descriptor errors are returned for
// diagnostics.
func Build(raws []types.RawFormat, duration *float64, languages []string) ([]CombinedFormat, []error) {
	log := logger.WithComponent(logger.ComponentFormat)

	var (
		items   []Classified
		dropped []error
	)
	for _, raw := range raws {
		c, err := Classify(raw, duration, languages)
		if err != nil {
			log.Debug("Format dropped", map[string]interface{}{"id": raw.ID, "err": err.Error()})
			dropped = append(dropped, err)
			continue
		}
		items = append(items, c)
	}

	combined := Combine(items)
	log.Debug("Formats combined", map[string]interface{}{
		"descriptors": len(raws),
		"classified":  len(items),
		"candidates":  len(combined),
	})
	return combined, dropped
}
