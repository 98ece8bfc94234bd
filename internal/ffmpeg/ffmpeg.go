// Package ffmpeg runs the ffmpeg muxer over two inherited pipe descriptors:
// video on fd 3, audio on fd 4, stream copy into one output file.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
)

// DefaultPath is looked up in PATH when no explicit path is configured.
const DefaultPath = "ffmpeg"

// stderrTailLines is how much of ffmpeg's stderr a MergeError keeps.
const stderrTailLines = 20

// Options describe one merge.
type Options struct {
	// Muxer is the ffmpeg output format name, e.g. "mp4" or "matroska".
	Muxer string
	// Output is the destination file path.
	Output string
	// Title is written as container metadata when non-empty.
	Title string
}

// Muxer runs ffmpeg.
type Muxer struct {
	Path string
}

// New returns a Muxer for path, or for ffmpeg in PATH when path is empty.
func New(path string) *Muxer {
	if path == "" {
		path = DefaultPath
	}
	return &Muxer{Path: path}
}

// Available reports whether the executable can be found.
func (m *Muxer) Available() bool {
	_, err := exec.LookPath(m.Path)
	return err == nil
}

// Args builds the argument list. The inputs are read from the first two
// inherited descriptors.
func Args(opts Options) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-i", "pipe:3",
		"-i", "pipe:4",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		"-shortest",
	}
	if opts.Title != "" {
		args = append(args, "-metadata", "title="+opts.Title)
	}
	if opts.Muxer != "" {
		args = append(args, "-f", opts.Muxer)
	}
	return append(args, "-y", opts.Output)
}

// Start spawns ffmpeg with video and audio as its fds 3 and 4. The caller
// keeps ownership of both files and should close its copies once Start
// returns.
func (m *Muxer) Start(ctx context.Context, video, audio *os.File, opts Options) (*Process, error) {
	args := Args(opts)
	cmd := exec.CommandContext(ctx, m.Path, args...)
	cmd.ExtraFiles = []*os.File{video, audio}

	p := &Process{cmd: cmd}
	cmd.Stderr = &p.stderr

	logger.WithComponent(logger.ComponentMerge).Debug("Starting muxer", map[string]interface{}{
		"path": m.Path,
		"args": strings.Join(args, " "),
	})
	if err := cmd.Start(); err != nil {
		return nil, &errs.AcquisitionError{Stream: "muxer", Op: "spawn", Err: err}
	}
	return p, nil
}

// Process is a running muxer.
type Process struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer

	once sync.Once
	err  error
}

// Wait blocks until ffmpeg exits. A non-zero exit is a *errs.MergeError
// carrying the tail of stderr. Wait may be called more than once.
func (p *Process) Wait() error {
	p.once.Do(func() {
		err := p.cmd.Wait()
		if err != nil {
			me := &errs.MergeError{ExitCode: -1, Stderr: tail(p.stderr.String(), stderrTailLines), Err: err}
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				me.ExitCode = ee.ExitCode()
			}
			p.err = me
		}
	})
	return p.err
}

// Kill terminates ffmpeg.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill muxer: %w", err)
	}
	return nil
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
