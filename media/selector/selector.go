// Package selector ranks merge candidates against a size budget and a
// language preference and picks the best one.
package selector

import (
	"math"
	"sort"
	"strings"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/media/formats"
)

// Scoring constants.
const (
	unknownSizeWeight  = 0.3
	noLanguageWeight   = 0.2
	nativeBonus        = 0.75
	languageStep       = 0.1
	languageFloor      = 0.4
	nearBudgetFraction = 0.2
)

// Options control filtering and scoring.
type Options struct {
	// Budget is the maximum size in bytes. Candidates without any size
	// information are never filtered by it.
	Budget int64
	// Languages lists preferred language tags, most preferred first.
	Languages []string
}

// Weights holds every scoring factor of one candidate.
type Weights struct {
	Bitrate  float64
	Size     float64
	Priority float64
	Native   float64
	Language float64
	Total    float64
}

// Scored is a candidate with its weights.
type Scored struct {
	Format formats.CombinedFormat
	Weights
}

// Filter drops candidates whose exact, else approximate, size exceeds budget.
func Filter(candidates []formats.CombinedFormat, budget int64) []formats.CombinedFormat {
	out := make([]formats.CombinedFormat, 0, len(candidates))
	for _, c := range candidates {
		if s := c.FilesizeOrApprox(); s != nil && *s > budget {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Score filters candidates and returns them ordered by total weight,
// highest first. Equal totals keep their input order.
func Score(candidates []formats.CombinedFormat, opts Options) []Scored {
	kept := Filter(candidates, opts.Budget)

	var maxBitrate float64
	for _, c := range kept {
		maxBitrate = math.Max(maxBitrate, c.Bitrate())
	}

	scored := make([]Scored, 0, len(kept))
	for _, c := range kept {
		w := Weights{
			Bitrate:  bitrateWeight(c.Bitrate(), maxBitrate),
			Size:     sizeWeight(c.FilesizeOrApprox(), opts.Budget),
			Priority: 1 / float64(c.Priority()+1),
			Language: languageWeight(c.Language(), opts.Languages),
		}
		if c.IDsEqual() {
			w.Native = nativeBonus
		}
		w.Total = w.Bitrate + w.Size*2 + w.Priority + w.Native + w.Language*2
		scored = append(scored, Scored{Format: c, Weights: w})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Total > scored[j].Total
	})
	return scored
}

// Select returns the best candidate, or errs.ErrNoAcceptableFormat when
// nothing survives the budget.
func Select(candidates []formats.CombinedFormat, opts Options) (formats.CombinedFormat, error) {
	log := logger.WithComponent(logger.ComponentSelect)

	scored := Score(candidates, opts)
	if len(scored) == 0 {
		log.Debug("No candidate within budget", map[string]interface{}{
			"candidates": len(candidates),
			"budget":     opts.Budget,
		})
		return formats.CombinedFormat{}, errs.ErrNoAcceptableFormat
	}
	for _, s := range scored {
		log.Trace("Candidate scored", map[string]interface{}{
			"id":       s.Format.FormatID(),
			"total":    s.Total,
			"bitrate":  s.Bitrate,
			"size":     s.Size,
			"priority": s.Priority,
			"native":   s.Native,
			"language": s.Language,
		})
	}

	best := scored[0]
	log.Debug("Format selected", map[string]interface{}{
		"id":    best.Format.FormatID(),
		"total": best.Total,
		"kept":  len(scored),
	})
	return best.Format, nil
}

func bitrateWeight(bitrate, max float64) float64 {
	w := bitrate / max
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return w
}

// sizeWeight favours sizes close to the budget: 0.8..1.0 within 20% of it,
// 0.3..0.5 further away.
func sizeWeight(size *int64, budget int64) float64 {
	if size == nil {
		return unknownSizeWeight
	}
	b := float64(budget)
	distance := math.Abs(b - float64(*size))
	near := nearBudgetFraction * b
	if distance <= near {
		return 1.0 - ratio(distance, near)*0.2
	}
	return 0.5 - ratio(distance-near, b-near)*0.2
}

// ratio returns min(n/d, 1), treating a zero denominator as 0.
func ratio(n, d float64) float64 {
	if d <= 0 {
		return 0
	}
	return math.Min(n/d, 1.0)
}

func languageWeight(tag string, preferred []string) float64 {
	if tag == "" {
		return noLanguageWeight
	}
	for p, l := range preferred {
		if strings.EqualFold(strings.TrimSpace(l), tag) {
			return math.Max(1.0-float64(p)*languageStep, languageFloor)
		}
	}
	return 0
}
