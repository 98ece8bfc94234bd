package merge

import (
	"context"
	"time"
)

type thumbResult struct {
	contentType string
	err         error
}

// thumbTask is a best-effort thumbnail fetch running next to the streams.
type thumbTask struct {
	ch     chan thumbResult
	path   string
	cancel context.CancelFunc
}

// startThumbnail starts the fetch if the job asks for one. The returned task
// is nil-safe.
func (r *run) startThumbnail(ctx context.Context) *thumbTask {
	if r.o.Thumbs == nil || r.job.ThumbnailURL == "" || r.job.ThumbnailPath == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &thumbTask{ch: make(chan thumbResult, 1), path: r.job.ThumbnailPath, cancel: cancel}
	go func() {
		ct, err := r.o.Thumbs.FetchFile(ctx, r.job.ThumbnailURL, t.path)
		t.ch <- thumbResult{contentType: ct, err: err}
	}()
	return t
}

// collect attaches the thumbnail to res if it arrives within the grace period.
func (t *thumbTask) collect(r *run, res *Result) {
	if t == nil {
		return
	}
	select {
	case tr := <-t.ch:
		t.cancel()
		if tr.err != nil {
			r.log.Debug("Thumbnail skipped", map[string]interface{}{"job": r.job.ID, "err": tr.err.Error()})
			return
		}
		res.ThumbnailPath = t.path
		res.ThumbnailType = tr.contentType
	case <-time.After(producerGrace):
		t.abandon(r)
	}
}

// abandon cancels a thumbnail fetch nobody waits for and logs its outcome.
func (t *thumbTask) abandon(r *run) {
	if t == nil {
		return
	}
	t.cancel()
	go func() {
		tr := <-t.ch
		if tr.err != nil {
			r.log.Debug("Abandoned thumbnail finished", map[string]interface{}{"job": r.job.ID, "err": tr.err.Error()})
		}
	}()
}
