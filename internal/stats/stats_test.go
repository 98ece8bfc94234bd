package stats

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediamux/errs"
)

func TestFinishedCountsByKind(t *testing.T) {
	s := New()
	s.Started()
	s.Started()
	s.Started()
	s.Finished(nil, true, time.Second)
	s.Finished(errs.ErrTimeout, false, time.Second)
	s.Finished(&errs.TransportError{StatusCode: 403}, false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.downloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.downloads.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.downloads.WithLabelValues("transport")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.inFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(s.mergeDuration))
}

func TestFetchedAndCandidates(t *testing.T) {
	s := New()
	s.Fetched("video", 100)
	s.Fetched("video", 50)
	s.Fetched("audio", 0)
	s.Candidates(12)

	assert.Equal(t, 150.0, testutil.ToFloat64(s.bytesFetched.WithLabelValues("video")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.bytesFetched))
	assert.Equal(t, 1, testutil.CollectAndCount(s.candidates))
}

func TestNilStats(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.Started()
		s.Finished(errors.New("x"), false, 0)
		s.Fetched("video", 1)
		s.Candidates(1)
	})
}

func TestHandler(t *testing.T) {
	s := New()
	s.Fetched("audio", 7)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mediamux_bytes_fetched_total{stream="audio"} 7`)

	resp2, err := http.Get(srv.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMetricNames(t *testing.T) {
	s := New()
	s.Candidates(3)
	s.Fetched("video", 1)
	s.Started()
	s.Finished(nil, false, time.Second)
	expected := `
# HELP mediamux_downloads_total Finished downloads by outcome
# TYPE mediamux_downloads_total counter
mediamux_downloads_total{outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "mediamux_downloads_total"))
}
