package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uilive"
	"github.com/paulbellamy/ratecounter"

	"github.com/ytget/mediamux"
)

const progressRefresh = 250 * time.Millisecond

// streamState is the last known progress of one stream and its throughput.
type streamState struct {
	last mediamux.Progress
	rate *ratecounter.RateCounter
}

// progress renders one live line per active stream.
type progress struct {
	writer *uilive.Writer

	mu      sync.Mutex
	streams map[string]*streamState

	stop chan struct{}
	done chan struct{}
}

func newProgress(out io.Writer) *progress {
	w := uilive.New()
	w.Out = out
	return &progress{
		writer:  w,
		streams: make(map[string]*streamState),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Update records p. It is safe for concurrent use.
func (p *progress) Update(u mediamux.Progress) {
	key := u.ItemID + "/" + u.Stream
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[key]
	if !ok {
		s = &streamState{rate: ratecounter.NewRateCounter(time.Second)}
		p.streams[key] = s
	}
	if delta := u.DownloadedSize - s.last.DownloadedSize; delta > 0 {
		s.rate.Incr(delta)
	}
	s.last = u
}

// Start refreshes the display until Stop.
func (p *progress) Start() {
	go func() {
		defer close(p.done)
		t := time.NewTicker(progressRefresh)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				p.flush()
				return
			case <-t.C:
				p.flush()
			}
		}
	}()
}

// Stop renders a final frame and returns once the display is idle.
func (p *progress) Stop() {
	close(p.stop)
	<-p.done
}

func (p *progress) flush() {
	fmt.Fprint(p.writer, p.render())
	_ = p.writer.Flush()
}

func (p *progress) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.streams))
	for k := range p.streams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out string
	for _, k := range keys {
		s := p.streams[k]
		total := "?"
		if s.last.TotalSize > 0 {
			total = humanize.Bytes(uint64(s.last.TotalSize))
		}
		out += fmt.Sprintf("%-24s %6.1f%%  %s / %s  %s/s\n",
			k, s.last.Percent,
			humanize.Bytes(uint64(s.last.DownloadedSize)), total,
			humanize.Bytes(uint64(s.rate.Rate())))
	}
	return out
}
