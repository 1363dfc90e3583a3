package screener

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine captures full-page screenshots.
type Engine interface {
	// Capture navigates to targetURL and returns a full-page PNG capture.
	Capture(ctx context.Context, targetURL string) (*Capture, error)
	// Close releases the browser.
	Close() error
}

// Capture contains the result of a screenshot capture.
type Capture struct {
	TargetURL  string
	LandingURL string
	Title      string
	Image      []byte
}

// Engine names accepted by New.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// Options contains the options for capturing screenshots.
type Options struct {
	ViewportWidth            int           // Width of the browser viewport
	ViewportHeight           int           // Height of the browser viewport
	Wait                     time.Duration // Wait after load, before capture
	Parallel                 int           // Number of pages kept open
	OnLoad                   OnLoad        // Runs in the page before the wait
	UserAgent                string        // User agent
	RespectCertificateErrors bool          // Respect certificate errors
	UseHTTP2                 bool          // Use HTTP2
	Stealth                  bool          // Create pages with go-rod/stealth (rod only)
}

// NewOptions returns an Options struct initialized with default values.
func NewOptions() Options {
	return Options{
		ViewportWidth:  1366,
		ViewportHeight: 768,
		Wait:           2 * time.Second,
		Parallel:       10,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	}
}

// New returns the engine registered under name. An empty name selects rod.
func New(name string, options Options) (Engine, error) {
	switch strings.ToLower(name) {
	case "", EngineRod:
		return NewScreener(options), nil
	case EngineChromedp:
		return NewChromeScreener(options), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (use %s or %s)", name, EngineRod, EngineChromedp)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
