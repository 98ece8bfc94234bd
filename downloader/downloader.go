// Package downloader fetches media over HTTP: sequential range chunks into a
// writer (usually a pipe), resumable downloads to a file, and small one-shot
// fetches such as thumbnails.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/pkg/client"
)

const (
	// DefaultChunkSize is the size of each bounded range request.
	DefaultChunkSize = 10 << 20

	temporaryFileSuffix = ".tmp"
	copyBufferSizeBytes = 32 * 1024

	headerRange           = "Range"
	headerContentRange    = "Content-Range"
	headerContentLength   = "Content-Length"
	headerAccept          = "Accept"
	headerAcceptEncoding  = "Accept-Encoding"
	headerContentEncoding = "Content-Encoding"
	headerCacheControl    = "Cache-Control"
)

// errRangeIgnored is returned when the server answers a non-zero range with
// the whole body.
var errRangeIgnored = errors.New("server ignored range request")

// Progress holds information about download progress of one stream.
type Progress struct {
	Name           string
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader fetches media with chunked HTTP range requests, the client's
// retry policy and optional rate limiting.
type Downloader struct {
	Client       *client.Client
	Fs           afero.Fs
	ProgressFunc func(Progress)
	// OnBytes, when set, is told about every block written, e.g. for metrics.
	OnBytes func(name string, n int)

	chunkSize int64
	limiter   *rate.Limiter
}

// New creates a new downloader instance with sane defaults.
// If c is nil, client.New() is used. rateLimitBps=0 disables limiting.
func New(c *client.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if c == nil {
		c = client.New()
	}
	d := &Downloader{
		Client:       c,
		Fs:           afero.NewOsFs(),
		ProgressFunc: progressFunc,
		chunkSize:    DefaultChunkSize,
	}
	if rateLimitBps > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(rateLimitBps), copyBufferSizeBytes)
	}
	return d
}

// WithChunkSize sets the bounded range size. Non-positive values are ignored.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

// WithFs sets the filesystem used for file downloads.
func (d *Downloader) WithFs(fs afero.Fs) *Downloader {
	if fs != nil {
		d.Fs = fs
	}
	return d
}

// Stream writes the body at url to w using sequential range requests of the
// configured chunk size, starting at offset 0. size is the exact or
// approximate total; once the remainder fits in one chunk the last request is
// open-ended so an underestimated size still yields the full body. It returns
// the number of bytes written.
func (d *Downloader) Stream(ctx context.Context, name, url string, size int64, w io.Writer) (int64, error) {
	log := logger.WithComponent(logger.ComponentFetch)
	log.Debug("Range fetch started", map[string]interface{}{"stream": name, "size": size, "chunk": d.chunkSize})

	n, err := d.streamFrom(ctx, name, url, 0, size, w)
	if err != nil {
		log.Debug("Range fetch failed", map[string]interface{}{"stream": name, "written": n, "err": err.Error()})
		return n, err
	}
	log.Debug("Range fetch finished", map[string]interface{}{"stream": name, "written": n})
	return n, nil
}

// streamFrom is Stream starting at offset. A zero size means the length is
// unknown and a single open-ended range is requested.
func (d *Downloader) streamFrom(ctx context.Context, name, url string, offset, size int64, w io.Writer) (int64, error) {
	t := newTracker(name, size, offset)
	var written int64
	for {
		last := size <= 0 || size-offset <= d.chunkSize
		end := int64(-1)
		if !last {
			end = offset + d.chunkSize - 1
		}

		n, done, err := d.fetchRange(ctx, url, offset, end, w, t)
		offset += n
		written += n
		if err != nil {
			return written, err
		}
		if last || done {
			return written, nil
		}
	}
}

// fetchRange requests bytes=start-end (end < 0 means open-ended) and copies
// the body to w. done reports that the body ended before the range did, or
// that the server already sent everything.
func (d *Downloader) fetchRange(ctx context.Context, url string, start, end int64, w io.Writer, t *tracker) (n int64, done bool, err error) {
	rangeVal := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		rangeVal = fmt.Sprintf("bytes=%d-%d", start, end)
	}
	header := http.Header{}
	header.Set(headerAccept, "*/*")
	header.Set(headerAcceptEncoding, "identity")
	header.Set(headerCacheControl, "no-cache")
	header.Set(headerRange, rangeVal)

	resp, err := d.Client.Get(ctx, url, header)
	if err != nil {
		var te *errs.TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusRequestedRangeNotSatisfiable && start > 0 {
			// The size estimate ran past the end of the body.
			return 0, true, nil
		}
		return 0, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if start > 0 {
			return 0, false, &errs.TransportError{URL: url, StatusCode: resp.StatusCode, Err: errRangeIgnored}
		}
		// Whole body in one response.
		end = -1
		done = true
	default:
		return 0, false, &errs.TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	n, err = d.copy(ctx, w, resp.Body, url, t)
	if err != nil {
		return n, false, err
	}
	if end >= 0 && n < end-start+1 {
		done = true
	}
	return n, done, nil
}

// copy moves body to w in fixed blocks, honouring the rate limit and
// reporting progress. Read failures are transport errors, write failures
// acquisition errors.
func (d *Downloader) copy(ctx context.Context, w io.Writer, body io.Reader, url string, t *tracker) (int64, error) {
	buf := make([]byte, copyBufferSizeBytes)
	var total int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					return total, err
				}
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, &errs.AcquisitionError{Stream: t.name, Op: "write", Err: werr}
			}
			total += int64(n)
			d.report(t, n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			return total, &errs.TransportError{URL: url, Err: rerr}
		}
	}
}

func (d *Downloader) report(t *tracker, n int) {
	t.add(n)
	if d.OnBytes != nil {
		d.OnBytes(t.name, n)
	}
	if d.ProgressFunc != nil {
		d.ProgressFunc(t.progress())
	}
}

// tracker accumulates progress for one transfer.
type tracker struct {
	name       string
	total      int64
	downloaded int64
}

func newTracker(name string, total, downloaded int64) *tracker {
	return &tracker{name: name, total: total, downloaded: downloaded}
}

func (t *tracker) add(n int) { t.downloaded += int64(n) }

func (t *tracker) progress() Progress {
	p := Progress{
		Name:           t.name,
		TotalSize:      t.total,
		DownloadedSize: t.downloaded,
	}
	if t.total > 0 {
		p.Percent = float64(t.downloaded) / float64(t.total) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}

// detectTotalSize tries HEAD first, then GET bytes=0-0 to infer total size.
func (d *Downloader) detectTotalSize(ctx context.Context, url string) (int64, error) {
	header := http.Header{}
	header.Set(headerAccept, "*/*")
	header.Set(headerAcceptEncoding, "identity")

	if resp, err := d.Client.Do(ctx, http.MethodHead, url, header); err == nil {
		_ = resp.Body.Close()
		if v, ok := sizeFromHeaders(resp.Header); ok {
			return v, nil
		}
	}

	header.Set(headerRange, "bytes=0-0")
	resp, err := d.Client.Get(ctx, url, header)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusPartialContent {
		if v, ok := totalFromContentRange(resp.Header.Get(headerContentRange)); ok {
			return v, nil
		}
		return 0, errors.New("cannot determine total size")
	}
	if v, ok := sizeFromHeaders(resp.Header); ok {
		return v, nil
	}
	return 0, errors.New("cannot determine total size")
}

func sizeFromHeaders(h http.Header) (int64, bool) {
	if v, ok := totalFromContentRange(h.Get(headerContentRange)); ok {
		return v, true
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// totalFromContentRange parses the total of "bytes a-b/total".
func totalFromContentRange(cr string) (int64, bool) {
	parts := strings.Split(cr, "/")
	if len(parts) != 2 {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
