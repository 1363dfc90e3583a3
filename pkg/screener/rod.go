// Package screener drives a headless browser to capture full-page screenshots.
package screener

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/root4loot/goutils/log"
)

// Screener captures pages with go-rod. Pages are recycled through a
// rod.Pool sized to Options.Parallel.
type Screener struct {
	options  Options
	once     sync.Once
	err      error
	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     rod.Pool[rod.Page]
}

// NewScreener creates a Screener. Chrome is launched on the first capture.
func NewScreener(options Options) *Screener {
	if options.Parallel < 1 {
		options.Parallel = 1
	}
	return &Screener{
		options: options,
		pool:    rod.NewPagePool(options.Parallel),
	}
}

func (s *Screener) start() error {
	s.once.Do(func() {
		l := launcher.New().
			Headless(true).
			NoSandbox(true)

		if path, found := launcher.LookPath(); found {
			l = l.Bin(path)
		}

		if s.options.UserAgent != "" {
			l.Set("user-agent", s.options.UserAgent)
		}

		if !s.options.RespectCertificateErrors {
			l.Set("ignore-certificate-errors", "true")
		}

		if !s.options.UseHTTP2 {
			l.Set("disable-http2", "true")
		}

		controlURL, err := l.Launch()
		if err != nil {
			s.err = fmt.Errorf("error launching browser: %w", err)
			return
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Cleanup()
			s.err = fmt.Errorf("error connecting to browser: %w", err)
			return
		}

		log.Debugf("Browser launched at %s", controlURL)
		s.launcher = l
		s.browser = browser
	})
	return s.err
}

// Capture takes a full-page screenshot of targetURL.
func (s *Screener) Capture(ctx context.Context, targetURL string) (*Capture, error) {
	if err := s.start(); err != nil {
		return nil, err
	}

	page, err := s.pool.Get(s.newPage)
	if err != nil {
		s.pool.Put(nil)
		return nil, fmt.Errorf("error creating page: %w", err)
	}

	result, err := s.capture(ctx, page, targetURL)
	if err != nil {
		// a page left mid-navigation is not reused
		_ = page.Close()
		s.pool.Put(nil)
		return nil, err
	}

	s.pool.Put(page)
	return result, nil
}

func (s *Screener) newPage() (*rod.Page, error) {
	var page *rod.Page
	var err error

	if s.options.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, err
	}

	if s.options.ViewportWidth != 0 && s.options.ViewportHeight != 0 {
		viewport := &proto.EmulationSetDeviceMetricsOverride{
			Width:             s.options.ViewportWidth,
			Height:            s.options.ViewportHeight,
			DeviceScaleFactor: 1,
			Mobile:            false,
		}
		if err := page.SetViewport(viewport); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("error setting viewport: %w", err)
		}
	}

	return page, nil
}

func (s *Screener) capture(ctx context.Context, page *rod.Page, targetURL string) (*Capture, error) {
	p := page.Context(ctx)

	if err := p.Navigate(targetURL); err != nil {
		return nil, fmt.Errorf("error navigating to %s: %w", targetURL, err)
	}

	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%s did not finish loading: %w", targetURL, err)
	}

	if s.options.OnLoad != nil {
		if err := s.options.OnLoad(ctx, rodPage{p}); err != nil {
			log.Warnf("On-load script failed on %s: %v", targetURL, err)
		}
	}

	if err := sleep(ctx, s.options.Wait); err != nil {
		return nil, fmt.Errorf("waiting on %s: %w", targetURL, err)
	}

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("error reading page info for %s: %w", targetURL, err)
	}

	image, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", targetURL, err)
	}

	return &Capture{
		TargetURL:  targetURL,
		LandingURL: info.URL,
		Title:      info.Title,
		Image:      image,
	}, nil
}

// Close closes the pooled pages and the browser.
func (s *Screener) Close() error {
	s.pool.Cleanup(func(p *rod.Page) { _ = p.Close() })

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p rodPage) Eval(ctx context.Context, fn string) error {
	_, err := p.page.Context(ctx).Eval(fn)
	return err
}
