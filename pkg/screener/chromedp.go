package screener

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

// ChromeScreener captures pages with chromedp. Every capture runs in its
// own tab of a shared browser.
type ChromeScreener struct {
	options       Options
	once          sync.Once
	err           error
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

// NewChromeScreener creates a ChromeScreener. Chrome is launched on the
// first capture.
func NewChromeScreener(options Options) *ChromeScreener {
	return &ChromeScreener{options: options}
}

// allocatorOptions returns the exec allocator options derived from Options.
func (s *ChromeScreener) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if s.options.ViewportWidth != 0 && s.options.ViewportHeight != 0 {
		opts = append(opts, chromedp.WindowSize(s.options.ViewportWidth, s.options.ViewportHeight))
	}

	if !s.options.RespectCertificateErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !s.options.UseHTTP2 {
		opts = append(opts, chromedp.Flag("disable-http2", true))
	}

	if s.options.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.options.UserAgent))
	}

	return opts
}

func (s *ChromeScreener) start() error {
	s.once.Do(func() {
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

		// an empty Run starts the browser
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			s.err = fmt.Errorf("error launching browser: %w", err)
			return
		}

		log.Debug("Browser launched with chromedp")
		s.cancelAlloc = cancelAlloc
		s.browserCtx = browserCtx
		s.cancelBrowser = cancelBrowser
	})
	return s.err
}

// Capture takes a full-page screenshot of targetURL in a new tab.
func (s *ChromeScreener) Capture(ctx context.Context, targetURL string) (*Capture, error) {
	if err := s.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	result := &Capture{TargetURL: targetURL}

	tasks := chromedp.Tasks{}
	if s.options.ViewportWidth != 0 && s.options.ViewportHeight != 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(s.options.ViewportWidth), int64(s.options.ViewportHeight)))
	}

	tasks = append(tasks,
		chromedp.Navigate(targetURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.options.OnLoad == nil {
				return nil
			}
			if err := s.options.OnLoad(ctx, chromePage{}); err != nil {
				log.Warnf("On-load script failed on %s: %v", targetURL, err)
			}
			return nil
		}),
		chromedp.Sleep(s.options.Wait),
		chromedp.Location(&result.LandingURL),
		chromedp.Title(&result.Title),
		chromedp.FullScreenshot(&result.Image, 100),
	)

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("capture of %s aborted: %w", targetURL, ctx.Err())
		}
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", targetURL, err)
	}

	return result, nil
}

// Close shuts the browser down.
func (s *ChromeScreener) Close() error {
	if s.cancelBrowser != nil {
		s.cancelBrowser()
		s.cancelBrowser = nil
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
		s.cancelAlloc = nil
	}
	return nil
}

// chromePage evaluates against the tab bound to the action context.
type chromePage struct{}

func (chromePage) Eval(ctx context.Context, fn string) error {
	return chromedp.Evaluate("("+fn+")()", nil, awaitPromise).Do(ctx)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
