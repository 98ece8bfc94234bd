// Package ytdlp drives the yt-dlp executable: it reads media metadata and
// writes a single format either to a file or to a pipe.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/types"
)

// DefaultPath is looked up in PATH when no explicit path is configured.
const DefaultPath = "yt-dlp"

// Tool runs yt-dlp.
type Tool struct {
	Path string
	// ExtraArgs are passed to every invocation, e.g. --proxy.
	ExtraArgs []string
}

// New returns a Tool for path, or for yt-dlp in PATH when path is empty.
func New(path string) *Tool {
	if path == "" {
		path = DefaultPath
	}
	return &Tool{Path: path}
}

// FindPath reports the resolved executable.
func (t *Tool) FindPath() (string, bool) {
	p, err := exec.LookPath(t.Path)
	if err != nil {
		return "", false
	}
	return p, true
}

// Probe fetches metadata for url. items is a yt-dlp --playlist-items selector
// and may be empty. Exactly one of the returned media item and playlist is
// non-nil on success.
func (t *Tool) Probe(ctx context.Context, url, items string) (*types.MediaInfo, *types.Playlist, error) {
	log := logger.WithComponent(logger.ComponentExtract)

	args := append([]string{}, t.ExtraArgs...)
	args = append(args, "--dump-single-json", "--no-warnings", "--no-progress")
	if items != "" {
		args = append(args, "--playlist-items", items)
	}
	args = append(args, "--", url)

	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Probing", map[string]interface{}{"url": url, "items": items})
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("yt-dlp error: %v\nstderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, pl, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, nil, err
	}
	if pl != nil {
		log.Debug("Playlist probed", map[string]interface{}{"id": pl.ID, "entries": len(pl.Entries)})
	} else {
		log.Debug("Media probed", map[string]interface{}{"id": info.ID, "formats": len(info.Formats)})
	}
	return info, pl, nil
}

// Parse decodes a --dump-single-json document.
func Parse(data []byte) (*types.MediaInfo, *types.Playlist, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling yt-dlp JSON: %v", err)
	}
	if doc.isPlaylist() {
		pl := &types.Playlist{ID: doc.ID, Title: doc.Title}
		for _, e := range doc.Entries {
			pl.Entries = append(pl.Entries, e.mediaInfo())
		}
		return nil, pl, nil
	}
	info := doc.mediaInfo()
	return &info, nil, nil
}

// Stream writes format formatID of pageURL to w and waits for yt-dlp to exit.
// When w is an *os.File the child writes to it directly.
func (t *Tool) Stream(ctx context.Context, pageURL, formatID string, w io.Writer) error {
	return t.run(ctx, w, "-f", formatID, "-o", "-", "--", pageURL)
}

// DownloadTo saves format formatID of pageURL at path.
func (t *Tool) DownloadTo(ctx context.Context, pageURL, formatID, path string) error {
	return t.run(ctx, nil, "-f", formatID, "-o", OutputTemplate(path), "--no-part", "--", pageURL)
}

// OutputTemplate escapes path for -o, which yt-dlp expands as a template:
// a literal "%(id)s" in a title must stay literal.
func OutputTemplate(path string) string {
	return strings.ReplaceAll(path, "%", "%%")
}

func (t *Tool) run(ctx context.Context, stdout io.Writer, tail ...string) error {
	log := logger.WithComponent(logger.ComponentExtract)

	args := append([]string{}, t.ExtraArgs...)
	args = append(args, "--no-warnings", "--no-progress", "--quiet")
	args = append(args, tail...)

	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug("Running", map[string]interface{}{"args": strings.Join(args, " ")})
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("yt-dlp error: %w\nstderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
