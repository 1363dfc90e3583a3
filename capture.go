package screendiff

import (
	"context"
	"errors"
	"os"

	"github.com/root4loot/goutils/log"
)

type task struct {
	id        string
	url       string
	path      string
	reference bool
}

func (r *Runner) capture(ctx context.Context, t task) {
	filename := r.relative(t.path)

	if _, err := os.Stat(t.path); err == nil {
		log.Debugf("%s already exists, skipping %s", filename, t.url)
		r.record(t, func(res *Result) {
			if t.reference {
				res.RefSkipped = true
			} else {
				res.Skipped = true
			}
		})
		return
	}

	err := r.pacer.wait(ctx, t.url)
	if err != nil {
		r.fail(t, err)
		return
	}

	tctx := ctx
	if r.job.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.job.Timeout)
		defer cancel()
	}

	c, err := r.engine.Capture(tctx, t.url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warnf("Timeout exceeded for %s", t.url)
		}
		r.fail(t, err)
		return
	}

	if err := os.WriteFile(t.path, c.Image, 0o644); err != nil {
		r.fail(t, err)
		return
	}

	r.record(t, func(res *Result) {
		if t.reference {
			res.RefTitle = c.Title
		} else {
			res.Title = c.Title
		}
	})
	log.Infof("✓ %s → %s", t.url, filename)
}

func (r *Runner) fail(t task, err error) {
	log.Warnf("Could not capture %s: %v", t.url, err)
	r.record(t, func(res *Result) {
		if t.reference {
			res.RefError = err.Error()
			res.RefFilename = ""
			res.refPath = ""
		} else {
			res.Error = err.Error()
			res.Filename = ""
			res.path = ""
		}
	})
}

// record sets the task's url and filename on its result, then applies fn.
// A URL and its reference counterpart share a result and may finish in
// either order.
func (r *Runner) record(t task, fn func(*Result)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	res, ok := r.results[t.id]
	if !ok {
		res = &Result{}
		r.results[t.id] = res
	}

	if t.reference {
		res.RefURL = t.url
		res.RefFilename = r.relative(t.path)
		res.refPath = t.path
	} else {
		res.URL = t.url
		res.Filename = r.relative(t.path)
		res.path = t.path
	}
	fn(res)
}
