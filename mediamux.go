package mediamux

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"

	"github.com/ytget/mediamux/downloader"
	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/ffmpeg"
	"github.com/ytget/mediamux/internal/jsfilter"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/internal/mimeext"
	"github.com/ytget/mediamux/internal/sanitize"
	"github.com/ytget/mediamux/internal/stats"
	"github.com/ytget/mediamux/internal/ytdlp"
	"github.com/ytget/mediamux/media/formats"
	"github.com/ytget/mediamux/media/selector"
	"github.com/ytget/mediamux/merge"
	"github.com/ytget/mediamux/pkg/client"
	"github.com/ytget/mediamux/types"
)

// NoBudget is the Budget of a Downloader without a size limit.
const NoBudget int64 = math.MaxInt64

// Options contains configuration for downloads.
//
// Use chainable setters on Downloader to populate these options.
type Options struct {
	OutputPath    string
	Budget        int64
	Languages     []string
	Filter        jsfilter.Filter
	PlaylistItems string
	HTTPClient    *client.Client
	ProgressFunc  func(Progress)
	RateLimitBps  int64
	ChunkSize     int64
	YTDLPPath     string
	YTDLPArgs     []string
	FFmpegPath    string
	MergeTimeout  time.Duration
	Thumbnail     bool
	DirectNative  bool
	Concurrency   int
	StateFunc     func(job string, s merge.State)
}

// Progress describes current progress of one stream of one item.
type Progress struct {
	ItemID         string
	Stream         string
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Result describes one delivered file.
type Result struct {
	JobID         string
	ItemID        string
	Title         string
	Path          string
	ThumbnailPath string
	Format        string
	Native        bool
	Elapsed       time.Duration
}

// prober reads media metadata.
type prober interface {
	Probe(ctx context.Context, url, items string) (*types.MediaInfo, *types.Playlist, error)
}

// Downloader provides a high-level API: probe a URL, rank its formats and
// deliver the best one as a single file.
type Downloader struct {
	options Options
	stats   *stats.Stats

	prober prober
	source merge.Source
	muxer  merge.Muxer
}

// New creates a new Downloader with default options.
func New() *Downloader {
	return &Downloader{options: Options{Budget: NoBudget, Concurrency: 1}}
}

// WithOutputPath sets the output file or directory. If empty, a safe
// filename is derived from the title in the working directory.
func (d *Downloader) WithOutputPath(path string) *Downloader {
	d.options.OutputPath = path
	return d
}

// WithBudget sets the maximum file size in bytes. A zero budget rejects
// every candidate whose size is known; use WithoutBudget to lift the limit.
func (d *Downloader) WithBudget(bytes int64) *Downloader {
	if bytes < 0 {
		bytes = 0
	}
	d.options.Budget = bytes
	return d
}

// WithoutBudget removes the size limit. This is the default.
func (d *Downloader) WithoutBudget() *Downloader {
	d.options.Budget = NoBudget
	return d
}

// WithLanguages sets the accepted and preferred audio languages, most
// preferred first. An empty list accepts every language.
func (d *Downloader) WithLanguages(langs ...string) *Downloader {
	d.options.Languages = langs
	return d
}

// WithFilter narrows candidates before ranking.
func (d *Downloader) WithFilter(f jsfilter.Filter) *Downloader {
	d.options.Filter = f
	return d
}

// WithPlaylistItems limits a playlist to a yt-dlp item selector such as "1-3,7".
func (d *Downloader) WithPlaylistItems(sel string) *Downloader {
	d.options.PlaylistItems = strings.TrimSpace(sel)
	return d
}

// WithHTTPClient sets the client used for range fetches and thumbnails.
func (d *Downloader) WithHTTPClient(c *client.Client) *Downloader {
	d.options.HTTPClient = c
	return d
}

// WithProgress registers a callback that receives progress updates.
func (d *Downloader) WithProgress(f func(Progress)) *Downloader {
	d.options.ProgressFunc = f
	return d
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables limiting.
func (d *Downloader) WithRateLimit(bytesPerSecond int64) *Downloader {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	d.options.RateLimitBps = bytesPerSecond
	return d
}

// WithChunkSize sets the HTTP range chunk size.
func (d *Downloader) WithChunkSize(n int64) *Downloader {
	d.options.ChunkSize = n
	return d
}

// WithTools sets the yt-dlp and ffmpeg executables. Empty values use PATH.
func (d *Downloader) WithTools(ytdlpPath, ffmpegPath string) *Downloader {
	d.options.YTDLPPath = ytdlpPath
	d.options.FFmpegPath = ffmpegPath
	return d
}

// WithToolArgs passes extra arguments to every yt-dlp invocation.
func (d *Downloader) WithToolArgs(args ...string) *Downloader {
	d.options.YTDLPArgs = args
	return d
}

// WithMergeTimeout bounds each merge.
func (d *Downloader) WithMergeTimeout(t time.Duration) *Downloader {
	d.options.MergeTimeout = t
	return d
}

// WithThumbnail saves the thumbnail next to each output file.
func (d *Downloader) WithThumbnail(on bool) *Downloader {
	d.options.Thumbnail = on
	return d
}

// WithDirectNative fetches native formats that carry a direct URL over HTTP
// instead of through yt-dlp.
func (d *Downloader) WithDirectNative(on bool) *Downloader {
	d.options.DirectNative = on
	return d
}

// WithConcurrency sets how many playlist items download in parallel.
func (d *Downloader) WithConcurrency(n int) *Downloader {
	if n < 1 {
		n = 1
	}
	d.options.Concurrency = n
	return d
}

// WithStats records metrics on s.
func (d *Downloader) WithStats(s *stats.Stats) *Downloader {
	d.stats = s
	return d
}

// WithStateFunc observes merge state transitions.
func (d *Downloader) WithStateFunc(f func(job string, s merge.State)) *Downloader {
	d.options.StateFunc = f
	return d
}

func (d *Downloader) tool() *ytdlp.Tool {
	t := ytdlp.New(d.options.YTDLPPath)
	t.ExtraArgs = d.options.YTDLPArgs
	return t
}

func (d *Downloader) getProber() prober {
	if d.prober != nil {
		return d.prober
	}
	return d.tool()
}

func (d *Downloader) getSource() merge.Source {
	if d.source != nil {
		return d.source
	}
	return d.tool()
}

func (d *Downloader) getMuxer() merge.Muxer {
	if d.muxer != nil {
		return d.muxer
	}
	return merge.FFmpeg(ffmpeg.New(d.options.FFmpegPath))
}

// Probe returns the media items behind url: one for a single item, the
// selected entries for a playlist.
func (d *Downloader) Probe(ctx context.Context, url string) ([]types.MediaInfo, error) {
	info, pl, err := d.getProber().Probe(ctx, url, d.options.PlaylistItems)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	items := types.Items(info, pl)
	for i := range items {
		if items[i].WebpageURL == "" && pl == nil {
			items[i].WebpageURL = url
		}
	}
	return items, nil
}

// Candidates classifies, combines, filters and scores the formats of info,
// best first. The second result lists descriptors and candidates that were
// dropped along the way.
func (d *Downloader) Candidates(info types.MediaInfo) ([]selector.Scored, []error) {
	combined, dropped := formats.Build(info.Formats, info.Duration, d.options.Languages)
	if d.options.Filter != nil {
		var filterErrs []error
		combined, filterErrs = jsfilter.Apply(d.options.Filter, combined)
		dropped = append(dropped, filterErrs...)
	}
	d.stats.Candidates(len(combined))
	return selector.Score(combined, d.selectorOptions()), dropped
}

// Select returns the best candidate of info.
func (d *Downloader) Select(info types.MediaInfo) (formats.CombinedFormat, error) {
	scored, _ := d.Candidates(info)
	if len(scored) == 0 {
		return formats.CombinedFormat{}, errs.ErrNoAcceptableFormat
	}
	return scored[0].Format, nil
}

func (d *Downloader) selectorOptions() selector.Options {
	return selector.Options{Budget: d.options.Budget, Languages: d.options.Languages}
}

// Download probes url and delivers every item it names.
func (d *Downloader) Download(ctx context.Context, url string) ([]Result, error) {
	items, err := d.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: nothing to download", url)
	}
	return d.DownloadAll(ctx, items)
}

// DownloadAll delivers items with the configured concurrency. Results keep
// the input order and omit failed items; the failures are joined in the
// returned error.
func (d *Downloader) DownloadAll(ctx context.Context, items []types.MediaInfo) ([]Result, error) {
	n := d.options.Concurrency
	if n < 1 {
		n = 1
	}
	if len(items) > 1 && d.options.OutputPath != "" && !isDir(d.options.OutputPath) {
		return nil, fmt.Errorf("output %q must be a directory for %d items", d.options.OutputPath, len(items))
	}
	results := make([]*Result, len(items))
	failures := make([]error, len(items))

	swg := sizedwaitgroup.New(n)
	for i := range items {
		if err := swg.AddWithContext(ctx); err != nil {
			failures[i] = err
			break
		}
		go func(i int) {
			defer swg.Done()
			res, err := d.DownloadItem(ctx, items[i])
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", itemName(items[i]), err)
				return
			}
			results[i] = res
		}(i)
	}
	swg.Wait()

	out := make([]Result, 0, len(items))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, errors.Join(failures...)
}

// DownloadItem selects the best format of one probed item and delivers it.
func (d *Downloader) DownloadItem(ctx context.Context, info types.MediaInfo) (*Result, error) {
	jobID := uuid.NewString()
	log := logger.WithComponent(logger.ComponentApp)

	f, err := d.Select(info)
	if err != nil {
		return nil, err
	}

	output, err := d.outputPath(info, f.Ext())
	if err != nil {
		return nil, err
	}
	job := merge.Job{
		ID:      jobID,
		PageURL: info.WebpageURL,
		Format:  f,
		Output:  output,
		Title:   info.Title,
		Timeout: d.options.MergeTimeout,
	}
	if d.options.Thumbnail && info.Thumbnail != "" {
		job.ThumbnailURL = info.Thumbnail
		job.ThumbnailPath = sanitize.ReplaceExt(output, mimeext.ExtFromURL(info.Thumbnail))
	}

	log.Info("Downloading", map[string]interface{}{
		"job":    jobID,
		"item":   info.ID,
		"format": f.FormatID(),
		"path":   output,
	})

	dl := d.newFetcher(info.ID)
	var src merge.Source = d.getSource()
	if d.options.DirectNative && f.IDsEqual() && f.Video.HasDirectURL() {
		src = directSource{Source: src, dl: dl, url: f.Video.URL}
	}
	o := merge.New(src, dl, d.getMuxer())
	o.Thumbs = dl
	o.OnState = d.options.StateFunc
	if d.options.MergeTimeout > 0 {
		o.Timeout = d.options.MergeTimeout
	}

	d.stats.Started()
	res, err := o.Run(ctx, job)
	if err != nil {
		d.stats.Finished(err, f.IDsEqual(), 0)
		return nil, err
	}
	d.stats.Finished(nil, res.Native, res.Elapsed)

	thumb := res.ThumbnailPath
	if thumb != "" && res.ThumbnailType != "" {
		if want := sanitize.ReplaceExt(thumb, mimeext.ExtFromMime(res.ThumbnailType)); want != thumb {
			if err := os.Rename(thumb, want); err == nil {
				thumb = want
			}
		}
	}

	return &Result{
		JobID:         jobID,
		ItemID:        info.ID,
		Title:         info.Title,
		Path:          res.Path,
		ThumbnailPath: thumb,
		Format:        f.FormatID(),
		Native:        res.Native,
		Elapsed:       res.Elapsed,
	}, nil
}

func (d *Downloader) newFetcher(itemID string) *downloader.Downloader {
	c := d.options.HTTPClient
	if c == nil {
		// No overall timeout: stream bodies are large.
		c, _ = client.NewWith(client.Config{})
	}
	dl := downloader.New(c, func(p downloader.Progress) {
		if d.options.ProgressFunc != nil {
			d.options.ProgressFunc(Progress{
				ItemID:         itemID,
				Stream:         p.Name,
				TotalSize:      p.TotalSize,
				DownloadedSize: p.DownloadedSize,
				Percent:        p.Percent,
			})
		}
	}, d.options.RateLimitBps).WithChunkSize(d.options.ChunkSize)
	if d.stats != nil {
		dl.OnBytes = d.stats.Fetched
	}
	return dl
}

// outputPath derives the destination for info. A directory (existing, or
// given with a trailing separator) receives a title-derived name; any other
// path is used as is.
func (d *Downloader) outputPath(info types.MediaInfo, ext string) (string, error) {
	name := sanitize.WithKey(info.Title, info.ID, ext)
	out := d.options.OutputPath
	if out == "" {
		return name, nil
	}
	if strings.HasSuffix(out, string(os.PathSeparator)) {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		return filepath.Join(out, name), nil
	}
	if isDir(out) {
		return filepath.Join(out, name), nil
	}
	return out, nil
}

func isDir(path string) bool {
	if strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// directSource serves a native format with a direct URL through the HTTP
// downloader. Streaming still goes through the wrapped source.
type directSource struct {
	merge.Source
	dl  *downloader.Downloader
	url string
}

func (s directSource) DownloadTo(ctx context.Context, _, _ string, path string) error {
	return s.dl.Download(ctx, s.url, path)
}

func itemName(info types.MediaInfo) string {
	if info.Title != "" {
		return info.Title
	}
	return info.ID
}
