package main

import (
	"fmt"
	"strings"

	"mvdan.cc/xurls/v2"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/config"
	"github.com/ytget/mediamux/internal/ffmpeg"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/internal/ytdlp"
)

// extractURLs returns every distinct http(s) URL in args, in order.
func extractURLs(args []string) []string {
	rx := xurls.Strict()
	seen := make(map[string]bool)
	var out []string
	for _, m := range rx.FindAllString(strings.Join(args, " "), -1) {
		lower := strings.ToLower(m)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// exitCode maps an error to a process exit status by its kind.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNoFormat:
		return 3
	case errs.KindTimeout:
		return 4
	case errs.KindMerge:
		return 5
	case errs.KindTransport:
		return 6
	case errs.KindAcquisition:
		return 7
	case errs.KindClassification:
		return 8
	}
	return 1
}

// preflight checks that the external tools a command needs can be found.
// Merging also needs ffmpeg.
func preflight(cfg *config.Config, merging bool) error {
	log := logger.WithComponent(logger.ComponentApp)

	tool := ytdlp.New(cfg.YTDLPPath)
	path, ok := tool.FindPath()
	if !ok {
		return fmt.Errorf("%w: %s not found, install it or set --ytdlp-path", errs.ErrAcquisition, tool.Path)
	}
	log.Debug("Found yt-dlp", map[string]interface{}{"path": path})

	if merging {
		m := ffmpeg.New(cfg.FFmpegPath)
		if !m.Available() {
			return fmt.Errorf("%w: %s not found, install it or set --ffmpeg-path", errs.ErrAcquisition, m.Path)
		}
	}
	return nil
}
