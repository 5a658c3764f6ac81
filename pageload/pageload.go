// Package pageload acquires the live page the engine operates on. The cheap
// path is a plain HTTP GET; when the response looks like a script-rendered
// shell the loader escalates to a headless browser so the tree the engine
// patches matches what a visitor actually sees.
package pageload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Page is an acquired document ready for the engine.
type Page struct {
	URL  string
	HTML []byte

	// Rendered is true when the HTML came from a browser rather than the
	// raw HTTP response.
	Rendered bool
}

// Renderer is the browser escalation path. *Browser implements it; tests
// plug in a fake.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// Loader orchestrates acquisition: HTTP first, browser when the HTTP body
// is insufficient and a renderer is available.
type Loader struct {
	fetcher  *Fetcher
	renderer Renderer
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRenderer enables browser escalation.
func WithRenderer(r Renderer) LoaderOption {
	return func(l *Loader) { l.renderer = r }
}

// WithLoaderLogger sets a custom logger.
func WithLoaderLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// NewLoader creates a Loader around a Fetcher.
func NewLoader(f *Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{fetcher: f, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load acquires pageURL. The raw HTTP body is returned when it carries
// enough real content; otherwise the loader renders the page in a browser,
// falling back to the HTTP body if rendering fails too.
func (l *Loader) Load(ctx context.Context, pageURL string) (*Page, error) {
	res, err := l.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if res.Sufficient || l.renderer == nil {
		return &Page{URL: pageURL, HTML: res.Body}, nil
	}

	l.logger.Info("pageload: escalating to browser",
		"url", pageURL, "http_size", len(res.Body))

	html, err := l.renderer.Render(ctx, pageURL)
	if err != nil {
		l.logger.Warn("pageload: render failed, using http body",
			"url", pageURL, "error", err)
		return &Page{URL: pageURL, HTML: res.Body}, nil
	}
	return &Page{URL: pageURL, HTML: html, Rendered: true}, nil
}

// LoadFile reads a local HTML file, for offline sessions.
func LoadFile(path string) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pageload: read file: %w", err)
	}
	url := path
	if !strings.HasPrefix(url, "file://") {
		url = "file://" + path
	}
	return &Page{URL: url, HTML: data}, nil
}
