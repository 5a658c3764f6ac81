package pageload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Browser renders script-heavy pages in headless Chrome. The browser is
// launched lazily on first Render and lives for the session; Close tears it
// down.
type Browser struct {
	logger    *slog.Logger
	remoteURL string
	stealth   bool
	navWait   time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithRemote connects to an external Chrome over its WebSocket URL instead
// of launching a local one.
func WithRemote(wsURL string) BrowserOption {
	return func(b *Browser) { b.remoteURL = wsURL }
}

// WithStealth applies anti-detection patches to each page.
func WithStealth(on bool) BrowserOption {
	return func(b *Browser) { b.stealth = on }
}

// WithNavTimeout bounds navigation plus load wait. Default: 30s.
func WithNavTimeout(d time.Duration) BrowserOption {
	return func(b *Browser) { b.navWait = d }
}

// WithBrowserLogger sets a custom logger.
func WithBrowserLogger(l *slog.Logger) BrowserOption {
	return func(b *Browser) { b.logger = l }
}

// NewBrowser creates a Browser. Chrome is not started until Render is
// called.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		logger:  slog.Default(),
		stealth: true,
		navWait: 30 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Render navigates to pageURL in a fresh tab and returns the document's
// outer HTML after load.
func (b *Browser) Render(ctx context.Context, pageURL string) ([]byte, error) {
	br, err := b.connect()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if b.stealth {
		page, err = stealth.Page(br)
	} else {
		page, err = br.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("pageload: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.navWait)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("pageload: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("pageload: wait load timeout", "url", pageURL, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("pageload: serialise dom: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.remoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("pageload: launch chrome: %w", err)
		}
		b.lnch = l
		wsURL = u
		b.logger.Info("pageload: launched local chrome")
	} else {
		b.logger.Info("pageload: connecting to remote chrome", "url", wsURL)
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		return nil, fmt.Errorf("pageload: connect: %w", err)
	}
	if err := br.IgnoreCertErrors(true); err != nil {
		b.logger.Warn("pageload: ignore cert errors failed", "error", err)
	}
	b.browser = br
	return br, nil
}

// Close shuts down Chrome if it was started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}
