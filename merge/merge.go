// Package merge delivers one selected format as a single file. A native
// single-stream format is downloaded straight to its path. A split pair is
// streamed through two OS pipes into the muxer, which copies both streams
// into one container under a hard timeout.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/ffmpeg"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/media/formats"
)

const (
	// DefaultTimeout bounds the muxer run.
	DefaultTimeout = 180 * time.Second
	// producerGrace is how long a finished muxer waits for producers and the
	// thumbnail before abandoning them.
	producerGrace = 2 * time.Second
)

// Source delegates acquisition to an external downloader.
type Source interface {
	// Stream writes one format of pageURL to w until it ends.
	Stream(ctx context.Context, pageURL, formatID string, w io.Writer) error
	// DownloadTo saves one format of pageURL at path.
	DownloadTo(ctx context.Context, pageURL, formatID, path string) error
}

// Fetcher reads a direct URL with range requests.
type Fetcher interface {
	Stream(ctx context.Context, name, url string, size int64, w io.Writer) (int64, error)
}

// Thumbnailer saves a thumbnail and returns its content type.
type Thumbnailer interface {
	FetchFile(ctx context.Context, url, path string) (string, error)
}

// Process is a running muxer.
type Process interface {
	Wait() error
	Kill() error
}

// Muxer spawns the merge tool reading video and audio from the given files.
type Muxer interface {
	Start(ctx context.Context, video, audio *os.File, opts ffmpeg.Options) (Process, error)
}

// FFmpeg adapts *ffmpeg.Muxer to Muxer.
func FFmpeg(m *ffmpeg.Muxer) Muxer { return ffmpegMuxer{m} }

type ffmpegMuxer struct{ m *ffmpeg.Muxer }

func (f ffmpegMuxer) Start(ctx context.Context, video, audio *os.File, opts ffmpeg.Options) (Process, error) {
	return f.m.Start(ctx, video, audio, opts)
}

// Job is one merge request.
type Job struct {
	// ID tags log lines.
	ID string
	// PageURL is what the external downloader is pointed at.
	PageURL string
	Format  formats.CombinedFormat
	// Output is the destination path including extension.
	Output string
	Title  string
	// ThumbnailURL and ThumbnailPath are optional; both must be set for a
	// thumbnail fetch.
	ThumbnailURL  string
	ThumbnailPath string
	// Timeout overrides the orchestrator timeout when positive.
	Timeout time.Duration
}

// Result describes a delivered file.
type Result struct {
	Path          string
	ThumbnailPath string
	// ThumbnailType is the thumbnail's content type when one was saved.
	ThumbnailType string
	Format        formats.CombinedFormat
	Native        bool
	Elapsed       time.Duration
}

// Orchestrator runs merge jobs. Source, Fetcher and Muxer are required,
// Thumbs is optional.
type Orchestrator struct {
	Source  Source
	Fetcher Fetcher
	Thumbs  Thumbnailer
	Muxer   Muxer
	Pipe    PipeFunc
	Timeout time.Duration
	// OnState, when set, observes every transition of every job.
	OnState func(job string, s State)
}

// New returns an Orchestrator with OS pipes and the default timeout.
func New(src Source, fetch Fetcher, mux Muxer) *Orchestrator {
	return &Orchestrator{
		Source:  src,
		Fetcher: fetch,
		Muxer:   mux,
		Pipe:    OSPipe,
		Timeout: DefaultTimeout,
	}
}

// run tracks one job.
type run struct {
	o     *Orchestrator
	job   Job
	log   *logger.ComponentLogger
	start time.Time
}

func (r *run) set(s State) {
	r.log.Debug("State", map[string]interface{}{"job": r.job.ID, "state": s.String()})
	if r.o.OnState != nil {
		r.o.OnState(r.job.ID, s)
	}
}

func (r *run) fail(err error) (*Result, error) {
	r.set(Failed)
	r.log.Warn("Merge failed", map[string]interface{}{
		"job":  r.job.ID,
		"kind": errs.KindOf(err).String(),
		"err":  err.Error(),
	})
	return nil, err
}

// Run delivers job.Format at job.Output.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	r := &run{o: o, job: job, log: logger.WithComponent(logger.ComponentMerge), start: time.Now()}
	r.set(Planning)

	timeout := o.Timeout
	if job.Timeout > 0 {
		timeout = job.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if job.Format.IDsEqual() {
		return r.native(ctx, timeout)
	}
	return r.split(ctx, timeout)
}

// native downloads a single interleaved stream to its path.
func (r *run) native(ctx context.Context, timeout time.Duration) (*Result, error) {
	id := r.job.Format.Video.ID
	r.log.Info("Native format, downloading directly", map[string]interface{}{"job": r.job.ID, "format": id})

	thumbs := r.startThumbnail(ctx)

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.o.Source.DownloadTo(dctx, r.job.PageURL, id, r.job.Output); err != nil {
		switch {
		case errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("%w: native download exceeded %s", errs.ErrTimeout, timeout)
		case ctx.Err() != nil:
			err = ctx.Err()
		default:
			err = &errs.AcquisitionError{Stream: "native", Op: "download", Err: err}
		}
		thumbs.abandon(r)
		return r.fail(err)
	}

	res := r.result(true)
	thumbs.collect(r, res)
	r.set(Done)
	return res, nil
}

// side is one stream of a split pair.
type side struct {
	name string
	id   string
	url  string
	size int64
}

// split streams both sides through pipes into the muxer.
func (r *run) split(ctx context.Context, timeout time.Duration) (*Result, error) {
	f := r.job.Format
	sides := [2]side{
		{name: "video", id: f.Video.ID, url: f.Video.URL, size: f.Video.SizeHint()},
		{name: "audio", id: f.Audio.ID, url: f.Audio.URL, size: f.Audio.SizeHint()},
	}

	r.set(Acquiring)
	var readers, writers [2]*os.File
	closeAll := func() {
		for i := range readers {
			if readers[i] != nil {
				_ = readers[i].Close()
			}
			if writers[i] != nil {
				_ = writers[i].Close()
			}
		}
	}
	for i, s := range sides {
		rd, wr, err := r.o.Pipe()
		if err != nil {
			closeAll()
			return r.fail(&errs.AcquisitionError{Stream: s.name, Op: "pipe", Err: err})
		}
		readers[i], writers[i] = rd, wr
		if err := markCloseOnExec(wr); err != nil {
			closeAll()
			return r.fail(&errs.AcquisitionError{Stream: s.name, Op: "pipe", Err: err})
		}
	}

	// The muxer must be reading before either producer starts, or a full
	// pipe buffer would stall both sides.
	muxCtx, cancelMux := context.WithCancel(ctx)
	defer cancelMux()
	proc, err := r.o.Muxer.Start(muxCtx, readers[0], readers[1], ffmpeg.Options{
		Muxer:  f.Video.Container.MuxerName(),
		Output: r.job.Output,
		Title:  r.job.Title,
	})
	if err != nil {
		closeAll()
		if !errors.Is(err, errs.ErrAcquisition) {
			err = &errs.AcquisitionError{Stream: "muxer", Op: "spawn", Err: err}
		}
		return r.fail(err)
	}
	for i := range readers {
		_ = readers[i].Close()
		readers[i] = nil
	}

	prodCtx, cancelProd := context.WithCancel(ctx)
	results := make(chan producerResult, len(sides))
	for i, s := range sides {
		go r.produce(prodCtx, s, writers[i], results)
	}
	thumbs := r.startThumbnail(ctx)

	r.set(Merging)
	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var muxErr error
	select {
	case muxErr = <-waitErr:
	case <-timer.C:
		r.log.Warn("Muxer timed out, killing", map[string]interface{}{"job": r.job.ID, "timeout": timeout.String()})
		_ = proc.Kill()
		<-waitErr
		muxErr = fmt.Errorf("%w: muxer did not finish within %s", errs.ErrTimeout, timeout)
	case <-ctx.Done():
		_ = proc.Kill()
		<-waitErr
		muxErr = ctx.Err()
	}
	exited := time.Now()

	// A failed muxer reads nothing more; stop the producers before waiting
	// so they report promptly.
	if muxErr != nil {
		cancelProd()
	}
	pending, prodErr := r.collectProducers(results, len(sides), exited, producerGrace)
	cancelProd()
	if pending > 0 {
		go r.abandonProducers(results, pending)
	}

	err = muxErr
	if prodErr != nil {
		// The producer failure is the root cause of whatever the muxer did.
		err = errors.Join(prodErr, muxErr)
	}
	if err != nil {
		thumbs.abandon(r)
		_ = os.Remove(r.job.Output)
		return r.fail(err)
	}

	res := r.result(false)
	thumbs.collect(r, res)
	r.set(Done)
	r.log.Info("Merged", map[string]interface{}{
		"job":     r.job.ID,
		"format":  f.FormatID(),
		"path":    r.job.Output,
		"elapsed": res.Elapsed.String(),
	})
	return res, nil
}

type producerResult struct {
	name string
	err  error
	at   time.Time
}

// produce fills w with one side and closes it. A side with a direct URL and
// a known or estimated size is range-fetched, anything else goes through the
// external downloader.
func (r *run) produce(ctx context.Context, s side, w *os.File, out chan<- producerResult) {
	var err error
	if s.url != "" && s.size > 0 {
		r.log.Debug("Producer: range fetch", map[string]interface{}{"job": r.job.ID, "stream": s.name, "size": s.size})
		_, err = r.o.Fetcher.Stream(ctx, s.name, s.url, s.size, w)
	} else {
		r.log.Debug("Producer: external downloader", map[string]interface{}{"job": r.job.ID, "stream": s.name, "format": s.id})
		err = r.o.Source.Stream(ctx, r.job.PageURL, s.id, w)
		if err != nil && !errors.Is(err, errs.ErrAcquisition) && !errors.Is(err, errs.ErrTransport) && ctx.Err() == nil {
			err = &errs.AcquisitionError{Stream: s.name, Op: "external download", Err: err}
		}
	}
	at := time.Now()
	if cerr := w.Close(); err == nil && cerr != nil {
		err = &errs.AcquisitionError{Stream: s.name, Op: "close", Err: cerr}
	}
	out <- producerResult{name: s.name, err: err, at: at}
}

// collectProducers gathers producer outcomes until all reported or grace
// ran out. Failures after the muxer stopped reading are expected and
// ignored.
func (r *run) collectProducers(results <-chan producerResult, n int, exited time.Time, grace time.Duration) (int, error) {
	var first error
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for n > 0 {
		var res producerResult
		select {
		case res = <-results:
		default:
			select {
			case res = <-results:
			case <-timer.C:
				return n, first
			}
		}
		n--
		if res.err == nil || benign(res.err, res.at, exited) {
			continue
		}
		r.log.Debug("Producer failed", map[string]interface{}{"job": r.job.ID, "stream": res.name, "err": res.err.Error()})
		if first == nil {
			first = res.err
		}
	}
	return 0, first
}

// abandonProducers waits out producers nobody is waiting for anymore. Their
// contexts are already cancelled; this only logs how they ended.
func (r *run) abandonProducers(results <-chan producerResult, n int) {
	for ; n > 0; n-- {
		res := <-results
		fields := map[string]interface{}{"job": r.job.ID, "stream": res.name}
		if res.err != nil {
			fields["err"] = res.err.Error()
		}
		r.log.Debug("Abandoned producer finished", fields)
	}
}

// benign reports errors that only mean the muxer had stopped reading.
func benign(err error, at, exited time.Time) bool {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, context.Canceled) {
		return true
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGPIPE {
			return true
		}
	}
	return !at.Before(exited)
}

func (r *run) result(native bool) *Result {
	return &Result{
		Path:    r.job.Output,
		Format:  r.job.Format,
		Native:  native,
		Elapsed: time.Since(r.start),
	}
}
