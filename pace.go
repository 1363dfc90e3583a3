package screendiff

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces out the start of requests to the same host.
type pacer struct {
	delay time.Duration

	mutex    sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *pacer) limiter(host string) *rate.Limiter {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.delay), 1)
		p.limiters[host] = l
	}
	return l
}

// wait blocks until a request to rawURL's host may start.
func (p *pacer) wait(ctx context.Context, rawURL string) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	return p.limiter(u.Host).Wait(ctx)
}
