package mediamux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/ffmpeg"
	"github.com/ytget/mediamux/internal/jsfilter"
	"github.com/ytget/mediamux/internal/sanitize"
	"github.com/ytget/mediamux/internal/stats"
	"github.com/ytget/mediamux/merge"
	"github.com/ytget/mediamux/pkg/client"
	"github.com/ytget/mediamux/types"
)

type fakeProber struct {
	info  *types.MediaInfo
	pl    *types.Playlist
	err   error
	items string
}

func (p *fakeProber) Probe(ctx context.Context, url, items string) (*types.MediaInfo, *types.Playlist, error) {
	p.items = items
	return p.info, p.pl, p.err
}

type fakeSource struct {
	mu         sync.Mutex
	downloaded []string
	streamed   []string
}

func (s *fakeSource) Stream(ctx context.Context, pageURL, formatID string, w io.Writer) error {
	s.mu.Lock()
	s.streamed = append(s.streamed, formatID)
	s.mu.Unlock()
	_, err := io.WriteString(w, "stream:"+formatID)
	return err
}

func (s *fakeSource) DownloadTo(ctx context.Context, pageURL, formatID, path string) error {
	s.mu.Lock()
	s.downloaded = append(s.downloaded, formatID)
	s.mu.Unlock()
	return os.WriteFile(path, []byte("native:"+formatID+"@"+pageURL), 0644)
}

// copyMuxer concatenates both inputs as "video|audio" into the output.
type copyMuxer struct{}

type copyProcess struct {
	done chan struct{}
	err  error
}

func (p *copyProcess) Wait() error { <-p.done; return p.err }
func (p *copyProcess) Kill() error { return nil }

func dupFile(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

func (copyMuxer) Start(ctx context.Context, video, audio *os.File, opts ffmpeg.Options) (merge.Process, error) {
	v, err := dupFile(video)
	if err != nil {
		return nil, err
	}
	a, err := dupFile(audio)
	if err != nil {
		v.Close()
		return nil, err
	}
	p := &copyProcess{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer v.Close()
		defer a.Close()
		var vb, ab []byte
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); vb, _ = io.ReadAll(v) }()
		go func() { defer wg.Done(); ab, _ = io.ReadAll(a) }()
		wg.Wait()
		p.err = os.WriteFile(opts.Output, []byte(fmt.Sprintf("%s|%s", vb, ab)), 0644)
	}()
	return p, nil
}

func i64(v int64) *int64 { return &v }

func native22(url string) types.RawFormat {
	return types.RawFormat{ID: "22", URL: url, Ext: "mp4",
		ACodec: types.ParseCodec("mp4a.40.2"), VCodec: types.ParseCodec("avc1.64001F"), Filesize: i64(5 << 20)}
}

func video137(url string, size int64) types.RawFormat {
	return types.RawFormat{ID: "137", URL: url, Ext: "mp4",
		ACodec: types.ParseCodec("none"), VCodec: types.ParseCodec("avc1.640028"), Filesize: i64(size)}
}

func audio140(url string, size int64) types.RawFormat {
	return types.RawFormat{ID: "140", URL: url, Ext: "m4a",
		ACodec: types.ParseCodec("mp4a.40.2"), VCodec: types.ParseCodec("none"), Filesize: i64(size)}
}

func newTestDownloader(t *testing.T, src *fakeSource) *Downloader {
	t.Helper()
	d := New().WithOutputPath(t.TempDir())
	d.source = src
	d.muxer = copyMuxer{}
	return d
}

func TestProbe(t *testing.T) {
	p := &fakeProber{info: &types.MediaInfo{ID: "a", Title: "A"}}
	d := New().WithPlaylistItems(" 1-3 ")
	d.prober = p

	items, err := d.Probe(context.Background(), "https://example.com/watch?v=a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/watch?v=a", items[0].WebpageURL)
	assert.Equal(t, "1-3", p.items)

	p.info, p.pl = nil, &types.Playlist{ID: "pl", Entries: []types.MediaInfo{{ID: "x"}, {ID: "y"}}}
	items, err = d.Probe(context.Background(), "https://example.com/playlist")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	p.err = errors.New("exit status 1")
	_, err = d.Probe(context.Background(), "https://example.com/bad")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	info := types.MediaInfo{ID: "v", Formats: []types.RawFormat{
		native22("https://cdn/22"),
		video137("https://cdn/137", 50<<20),
		audio140("https://cdn/140", 3<<20),
	}}

	t.Run("budget", func(t *testing.T) {
		f, err := New().WithBudget(10 << 20).Select(info)
		require.NoError(t, err)
		assert.Equal(t, "22+22", f.FormatID())
	})

	t.Run("filter", func(t *testing.T) {
		flt, err := jsfilter.New(jsfilter.Goja, `!f.native`)
		require.NoError(t, err)
		f, err := New().WithFilter(flt).Select(info)
		require.NoError(t, err)
		assert.Equal(t, "137+140", f.FormatID())
	})

	t.Run("nothing fits", func(t *testing.T) {
		_, err := New().WithBudget(1024).Select(info)
		assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)
		assert.Equal(t, errs.KindNoFormat, errs.KindOf(err))
	})

	t.Run("zero budget", func(t *testing.T) {
		split := types.MediaInfo{ID: "v", Formats: []types.RawFormat{
			video137("https://cdn/137", 50<<20),
			audio140("https://cdn/140", 3<<20),
		}}
		_, err := New().WithBudget(0).Select(split)
		assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)

		f, err := New().WithBudget(0).WithoutBudget().Select(split)
		require.NoError(t, err)
		assert.Equal(t, "137+140", f.FormatID())

		f, err = New().Select(split)
		require.NoError(t, err)
		assert.Equal(t, "137+140", f.FormatID())
	})

	t.Run("language", func(t *testing.T) {
		fr := info
		fr.Formats = append([]types.RawFormat{}, info.Formats...)
		for i := range fr.Formats {
			fr.Formats[i].Language = "fr"
		}
		_, err := New().WithLanguages("en").Select(fr)
		assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)
	})
}

func TestCandidatesReportsDropped(t *testing.T) {
	info := types.MediaInfo{Formats: []types.RawFormat{
		native22(""),
		{ID: "sb0", Ext: "mhtml", ACodec: types.ParseCodec("none"), VCodec: types.ParseCodec("none")},
	}}
	st := stats.New()
	scored, dropped := New().WithStats(st).Candidates(info)
	assert.Len(t, scored, 1)
	assert.Len(t, dropped, 1)
	assert.Equal(t, 1, mustCount(t, st, "mediamux_candidates"))
}

func TestDownloadItemNative(t *testing.T) {
	src := &fakeSource{}
	st := stats.New()
	d := newTestDownloader(t, src).WithStats(st)
	info := types.MediaInfo{ID: "abc", Title: "My: Clip", WebpageURL: "https://page/abc",
		Formats: []types.RawFormat{native22("")}}

	var states []merge.State
	d.WithStateFunc(func(_ string, s merge.State) { states = append(states, s) })

	res, err := d.DownloadItem(context.Background(), info)
	require.NoError(t, err)
	assert.True(t, res.Native)
	assert.Equal(t, "22+22", res.Format)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, sanitize.WithKey("My: Clip", "abc", "mp4"), filepath.Base(res.Path))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "native:22@https://page/abc", string(data))
	assert.Equal(t, []string{"22"}, src.downloaded)
	assert.Equal(t, []merge.State{merge.Planning, merge.Done}, states)
	assert.Equal(t, 1, mustCount(t, st, "mediamux_downloads_total"))
}

func TestDownloadItemDirectNative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "v.mp4", time.Time{}, bytes.NewReader([]byte("direct-bytes")))
	}))
	defer srv.Close()

	src := &fakeSource{}
	d := newTestDownloader(t, src).
		WithDirectNative(true).
		WithHTTPClient(&client.Client{HTTPClient: srv.Client(), Retries: 1})

	res, err := d.DownloadItem(context.Background(), types.MediaInfo{ID: "n", Title: "N",
		Formats: []types.RawFormat{native22(srv.URL + "/v.mp4")}})
	require.NoError(t, err)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "direct-bytes", string(data))
	assert.Empty(t, src.downloaded)
}

func TestDownloadItemSplitWithThumbnail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "v", time.Time{}, strings.NewReader("VIDEO"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "a", time.Time{}, strings.NewReader("AUDIO"))
	})
	mux.HandleFunc("/thumb.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFF"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var mu sync.Mutex
	var progress []Progress
	d := newTestDownloader(t, &fakeSource{}).
		WithThumbnail(true).
		WithHTTPClient(&client.Client{HTTPClient: srv.Client(), Retries: 1}).
		WithProgress(func(p Progress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		})

	info := types.MediaInfo{ID: "s", Title: "Split", Thumbnail: srv.URL + "/thumb.jpg",
		Formats: []types.RawFormat{video137(srv.URL+"/v", 5), audio140(srv.URL+"/a", 5)}}
	res, err := d.DownloadItem(context.Background(), info)
	require.NoError(t, err)
	assert.False(t, res.Native)
	assert.Equal(t, "137+140", res.Format)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "VIDEO|AUDIO", string(data))

	require.NotEmpty(t, res.ThumbnailPath)
	assert.Equal(t, ".webp", filepath.Ext(res.ThumbnailPath))
	_, err = os.Stat(res.ThumbnailPath)
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, "s", progress[0].ItemID)
}

func TestDownloadAll(t *testing.T) {
	src := &fakeSource{}
	d := newTestDownloader(t, src).WithConcurrency(2)
	items := []types.MediaInfo{
		{ID: "1", Title: "One", Formats: []types.RawFormat{native22("")}},
		{ID: "2", Title: "Two"},
		{ID: "3", Title: "Three", Formats: []types.RawFormat{native22("")}},
	}

	results, err := d.DownloadAll(context.Background(), items)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)
	assert.Contains(t, err.Error(), "Two")
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ItemID)
	assert.Equal(t, "3", results[1].ItemID)
}

func TestDownloadAllRejectsFileOutput(t *testing.T) {
	d := New().WithOutputPath(filepath.Join(t.TempDir(), "one.mp4"))
	_, err := d.DownloadAll(context.Background(), []types.MediaInfo{{ID: "1"}, {ID: "2"}})
	assert.Error(t, err)
}

func TestDownloadProbesFirst(t *testing.T) {
	src := &fakeSource{}
	d := newTestDownloader(t, src)
	d.prober = &fakeProber{pl: &types.Playlist{}}
	_, err := d.Download(context.Background(), "https://example.com/empty")
	assert.Error(t, err)

	d.prober = &fakeProber{info: &types.MediaInfo{ID: "x", Title: "X", Formats: []types.RawFormat{native22("")}}}
	results, err := d.Download(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"22"}, src.downloaded)
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	info := types.MediaInfo{ID: "id", Title: "T"}
	name := sanitize.WithKey("T", "id", "mkv")

	got, err := New().outputPath(info, "mkv")
	require.NoError(t, err)
	assert.Equal(t, name, got)

	got, err = New().WithOutputPath(dir).outputPath(info, "mkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), got)

	fresh := filepath.Join(dir, "new") + string(os.PathSeparator)
	got, err = New().WithOutputPath(fresh).outputPath(info, "mkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fresh, name), got)
	assert.DirExists(t, fresh)

	file := filepath.Join(dir, "exact.mkv")
	got, err = New().WithOutputPath(file).outputPath(info, "mkv")
	require.NoError(t, err)
	assert.Equal(t, file, got)
}

func mustCount(t *testing.T, st *stats.Stats, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(st.Registry(), name)
	require.NoError(t, err)
	return n
}
