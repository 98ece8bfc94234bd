// Package jsfilter narrows merge candidates with a user-supplied JavaScript
// expression evaluated against each candidate as the object `f`, for
// example `f.height <= 1080 && f.vcodec != "vp9"`.
package jsfilter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/media/formats"
)

// DefaultTimeout bounds one evaluation.
const DefaultTimeout = 100 * time.Millisecond

// ErrTimeout is returned when an expression runs longer than its budget.
var ErrTimeout = errors.New("filter expression timed out")

// Engine names.
const (
	Goja = "goja"
	Otto = "otto"
)

// Filter decides whether one candidate stays. Implementations compile the
// expression once and are safe for concurrent use.
type Filter interface {
	Match(f formats.CombinedFormat) (bool, error)
}

// New compiles expr for the named engine. An empty engine means goja.
func New(engine, expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty filter expression")
	}
	switch strings.ToLower(engine) {
	case "", Goja:
		return newGoja(expr, DefaultTimeout)
	case Otto:
		return newOtto(expr, DefaultTimeout)
	}
	return nil, fmt.Errorf("unknown filter engine %q", engine)
}

// Apply keeps the candidates f matches, in order. An evaluation error drops
// that candidate only; the errors are returned alongside.
func Apply(f Filter, in []formats.CombinedFormat) ([]formats.CombinedFormat, []error) {
	if f == nil {
		return in, nil
	}
	log := logger.WithComponent(logger.ComponentFilter)
	var (
		out  []formats.CombinedFormat
		errs []error
	)
	for _, c := range in {
		ok, err := f.Match(c)
		if err != nil {
			log.Debug("Filter error", map[string]interface{}{"format": c.FormatID(), "err": err.Error()})
			errs = append(errs, fmt.Errorf("format %s: %w", c.FormatID(), err))
			continue
		}
		if ok {
			out = append(out, c)
		}
	}
	log.Debug("Filtered candidates", map[string]interface{}{"in": len(in), "out": len(out)})
	return out, errs
}

// View is the object an expression sees as `f`.
func View(c formats.CombinedFormat) map[string]interface{} {
	v := map[string]interface{}{
		"id":        c.FormatID(),
		"video_id":  c.Video.ID,
		"audio_id":  c.Audio.ID,
		"ext":       c.Ext(),
		"container": c.Video.Container.Kind.String(),
		"vcodec":    "",
		"acodec":    c.Audio.Codec.Kind.String(),
		"width":     0,
		"height":    0,
		"bitrate":   c.Bitrate(),
		"filesize":  int64(0),
		"language":  c.Language(),
		"priority":  c.Priority(),
		"native":    c.IDsEqual(),
	}
	if c.Video.Codec != nil {
		v["vcodec"] = c.Video.Codec.Kind.String()
	}
	if c.Video.Width != nil {
		v["width"] = *c.Video.Width
	}
	if c.Video.Height != nil {
		v["height"] = *c.Video.Height
	}
	if s := c.FilesizeOrApprox(); s != nil {
		v["filesize"] = *s
	}
	return v
}
