// Command checkra serves an in-page fix session over a live document.
//
// Usage:
//
//	checkra -url https://example.com            # acquire a live page
//	checkra -file page.html                     # operate on a local file
//	checkra -config checkra.yaml -url <url>     # with a config file
//
// The session exposes the fix surface over HTTP: list, apply, toggle, close,
// rate, plus the patched document and the conversation history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"
	_ "modernc.org/sqlite"

	"github.com/sunmer/checkra/dbopen"
	"github.com/sunmer/checkra/dom"
	"github.com/sunmer/checkra/engine"
	"github.com/sunmer/checkra/history"
	"github.com/sunmer/checkra/pageload"
	"github.com/sunmer/checkra/patch"
	"github.com/sunmer/checkra/shield"
)

func main() {
	configPath := flag.String("config", "", "path to checkra.yaml config file")
	pageURL := flag.String("url", "", "URL of the page to operate on")
	filePath := flag.String("file", "", "local HTML file to operate on")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *filePath, *listen); err != nil {
		logger.Error("checkra: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, filePath, listen string) error {
	cfg := engine.DefaultConfig()
	if configPath != "" {
		loaded, err := engine.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if listen != "" {
		cfg.Listen = listen
	}

	page, err := acquire(ctx, logger, cfg, pageURL, filePath)
	if err != nil {
		return err
	}

	doc, err := html.Parse(strings.NewReader(string(page.HTML)))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(history.Schema))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	log := history.New(
		history.WithLogger(logger),
		history.WithPersister(history.NewStore(db)))
	if err := log.Reload(ctx); err != nil {
		logger.Warn("checkra: history reload failed, starting empty", "error", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithHistory(log),
	}
	if cfg.RatingEnabled {
		opts = append(opts, engine.WithRating(func(snap patch.Snapshot) {
			logger.Info("checkra: fix rated", "id", snap.ID)
		}))
	}

	eng, err := engine.New(engine.Deps{
		Doc:       doc,
		Generator: noGenerator{},
		Selector:  dom.PathSelector,
	}, opts...)
	if err != nil {
		return err
	}
	defer eng.Teardown()

	r := chi.NewRouter()
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxBody(1 << 20))
	r.Use(shield.TraceID)
	r.Mount("/", eng.Routes())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("checkra: listening", "addr", cfg.Listen, "page", page.URL)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("checkra: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func acquire(ctx context.Context, logger *slog.Logger, cfg *engine.Config, pageURL, filePath string) (*pageload.Page, error) {
	if filePath != "" {
		return pageload.LoadFile(filePath)
	}
	if pageURL == "" {
		return nil, fmt.Errorf("usage: checkra -url <url> | -file <path>")
	}

	fetcher := pageload.NewFetcher(pageload.WithLogger(logger))
	opts := []pageload.LoaderOption{pageload.WithLoaderLogger(logger)}
	if cfg.Pageload.Browser {
		browser := pageload.NewBrowser(
			pageload.WithStealth(cfg.Pageload.Stealth),
			pageload.WithRemote(cfg.Pageload.RemoteURL),
			pageload.WithNavTimeout(cfg.Pageload.NavTimeout),
			pageload.WithBrowserLogger(logger))
		defer browser.Close()
		opts = append(opts, pageload.WithRenderer(browser))
	}
	return pageload.NewLoader(fetcher, opts...).Load(ctx, pageURL)
}

// noGenerator is the placeholder generation collaborator: the CLI session
// applies fixes through the HTTP surface, not through generation cycles.
type noGenerator struct{}

func (noGenerator) Generate(context.Context, engine.Request, engine.Callbacks) error {
	return fmt.Errorf("no generation collaborator configured; apply fixes via POST /fixes")
}
