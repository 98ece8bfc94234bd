package downloader

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/pkg/client"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// rangeServer serves data honouring "bytes=a-b" and "bytes=a-" and records
// every Range header it sees.
type rangeServer struct {
	*httptest.Server
	mu     sync.Mutex
	ranges []string
}

func newRangeServer(data []byte) *rangeServer {
	rs := &rangeServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		rs.mu.Lock()
		rs.ranges = append(rs.ranges, rangeHdr)
		rs.mu.Unlock()

		start, end := 0, len(data)-1
		if rangeHdr != "" {
			var a, b int
			if n, _ := fmt.Sscanf(rangeHdr, "bytes=%d-%d", &a, &b); n >= 1 {
				start = a
				if n == 2 && b < end {
					end = b
				}
			}
			if start >= len(data) {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(data)))
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
			w.Header().Set("Content-Length", fmt.Sprintf("%d", end-start+1))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data[start : end+1])
	}))
	return rs
}

func (rs *rangeServer) seen() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

func testClient(s *httptest.Server) *client.Client {
	return &client.Client{HTTPClient: s.Client(), Retries: 1}
}

func TestStream_ChunkedRanges(t *testing.T) {
	data := payload(2500)
	srv := newRangeServer(data)
	defer srv.Close()

	d := New(testClient(srv.Server), nil, 0).WithChunkSize(1000)
	var buf bytes.Buffer
	n, err := d.Stream(context.Background(), "video", srv.URL, int64(len(data)), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, []string{"bytes=0-999", "bytes=1000-1999", "bytes=2000-"}, srv.seen())
}

func TestStream_ApproximateSizeTooSmall(t *testing.T) {
	data := payload(3000)
	srv := newRangeServer(data)
	defer srv.Close()

	d := New(testClient(srv.Server), nil, 0).WithChunkSize(1000)
	var buf bytes.Buffer
	_, err := d.Stream(context.Background(), "audio", srv.URL, 1500, &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, []string{"bytes=0-999", "bytes=1000-"}, srv.seen())
}

func TestStream_ApproximateSizeTooLarge(t *testing.T) {
	data := payload(1200)
	srv := newRangeServer(data)
	defer srv.Close()

	d := New(testClient(srv.Server), nil, 0).WithChunkSize(1000)
	var buf bytes.Buffer
	_, err := d.Stream(context.Background(), "audio", srv.URL, 5000, &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
	// The short second chunk ends the transfer.
	assert.Equal(t, []string{"bytes=0-999", "bytes=1000-1999"}, srv.seen())
}

func TestStream_RangeIgnored(t *testing.T) {
	data := payload(1500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	d := New(testClient(srv), nil, 0).WithChunkSize(1000)
	var buf bytes.Buffer
	_, err := d.Stream(context.Background(), "video", srv.URL, int64(len(data)), &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}

func TestStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := New(testClient(srv), nil, 0)
	_, err := d.Stream(context.Background(), "video", srv.URL, 100, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransport)

	var te *errs.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStream_WriteError(t *testing.T) {
	srv := newRangeServer(payload(100))
	defer srv.Close()

	d := New(testClient(srv.Server), nil, 0)
	_, err := d.Stream(context.Background(), "audio", srv.URL, 100, failWriter{})
	require.Error(t, err)
	assert.Equal(t, errs.KindAcquisition, errs.KindOf(err))

	var ae *errs.AcquisitionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "audio", ae.Stream)
}

func TestStream_ProgressAndBytes(t *testing.T) {
	data := payload(70 * 1024)
	srv := newRangeServer(data)
	defer srv.Close()

	var last Progress
	var counted int
	d := New(testClient(srv.Server), func(p Progress) { last = p }, 0)
	d.OnBytes = func(name string, n int) {
		assert.Equal(t, "video", name)
		counted += n
	}

	_, err := d.Stream(context.Background(), "video", srv.URL, int64(len(data)), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, len(data), counted)
	assert.Equal(t, int64(len(data)), last.DownloadedSize)
	assert.InDelta(t, 100.0, last.Percent, 0.001)
	assert.Equal(t, "video", last.Name)
}

func TestStream_RateLimit(t *testing.T) {
	data := payload(96 * 1024)
	srv := newRangeServer(data)
	defer srv.Close()

	// 32KB burst then 64KB at 128KB/s: roughly half a second.
	d := New(testClient(srv.Server), nil, 128*1024)
	start := time.Now()
	_, err := d.Stream(context.Background(), "video", srv.URL, int64(len(data)), &bytes.Buffer{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestStream_Cancelled(t *testing.T) {
	srv := newRangeServer(payload(100))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := New(testClient(srv.Server), nil, 0)
	_, err := d.Stream(ctx, "video", srv.URL, 100, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadResume(t *testing.T) {
	data := payload(2 << 20)
	srv := newRangeServer(data)
	defer srv.Close()

	fs := afero.NewMemMapFs()
	d := New(testClient(srv.Server), nil, 0).WithFs(fs).WithChunkSize(1 << 20)
	out := "/out/file.bin"

	require.NoError(t, fs.MkdirAll("/out", 0755))
	require.NoError(t, afero.WriteFile(fs, out+".tmp", data[:1<<20], 0644))

	require.NoError(t, d.Download(context.Background(), srv.URL, out))

	got, err := afero.ReadFile(fs, out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.False(t, d.Exists(out+".tmp"))
	assert.Contains(t, srv.seen(), "bytes=1048576-")
}

func TestDownload_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	d := New(testClient(srv), nil, 0).WithFs(fs)
	err := d.Download(context.Background(), srv.URL, "/out/empty.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAcquisition)
	assert.False(t, d.Exists("/out/empty.bin"))
}

func TestFetchFile_Encodings(t *testing.T) {
	image := []byte("\x89PNG fake thumbnail bytes")

	encode := map[string]func([]byte) []byte{
		"": func(b []byte) []byte { return b },
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(b)
			_ = zw.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write(b)
			_ = bw.Close()
			return buf.Bytes()
		},
	}

	for enc, fn := range encode {
		t.Run("encoding="+enc, func(t *testing.T) {
			body := fn(image)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
				w.Header().Set("Content-Type", "image/png")
				if enc != "" {
					w.Header().Set("Content-Encoding", enc)
				}
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			fs := afero.NewMemMapFs()
			d := New(testClient(srv), nil, 0).WithFs(fs)
			ct, err := d.FetchFile(context.Background(), srv.URL, "/thumbs/x")
			require.NoError(t, err)
			assert.Equal(t, "image/png", ct)

			got, err := afero.ReadFile(fs, "/thumbs/x")
			require.NoError(t, err)
			assert.Equal(t, image, got)
		})
	}
}

func TestFetchFile_UnknownEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	d := New(testClient(srv), nil, 0).WithFs(afero.NewMemMapFs())
	_, err := d.FetchFile(context.Background(), srv.URL, "/thumbs/x")
	assert.ErrorIs(t, err, errs.ErrTransport)
}

func TestTotalFromContentRange(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"bytes 0-1/1000000", 1000000, true},
		{"bytes 0-0/42", 42, true},
		{"bytes */42", 42, true},
		{"invalid-format", 0, false},
		{"bytes 0-1/*", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := totalFromContentRange(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDetectTotalSize(t *testing.T) {
	srv := newRangeServer(payload(4321))
	defer srv.Close()

	d := New(testClient(srv.Server), nil, 0)
	size, err := d.detectTotalSize(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(4321), size)
}
