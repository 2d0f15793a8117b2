// Package app wires the docforge components together and manages their
// lifecycle.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/docforge/internal/config"
	"github.com/dshills/docforge/internal/content"
	"github.com/dshills/docforge/internal/dispatcher"
	"github.com/dshills/docforge/internal/dispatcher/luahook"
	"github.com/dshills/docforge/internal/event"
	"github.com/dshills/docforge/internal/processor/pagelist"
	"github.com/dshills/docforge/internal/version"
	"github.com/dshills/docforge/internal/version/sqlitestore"
)

// ErrClosed is returned by methods called after Close.
var ErrClosed = errors.New("app: closed")

// Application owns every component of a docforge session.
type Application struct {
	mu sync.RWMutex

	config *config.Config
	logger *log.Logger

	blobs    *content.Store
	db       *sqlitestore.DB
	store    *version.Store
	pages    *pagelist.Processor
	bus      *event.Bus
	registry *prometheus.Registry
	metrics  *dispatcher.Metrics
	hook     *luahook.Hook
	engine   *dispatcher.Engine

	closed bool
}

// Options configures an Application beyond its Config.
type Options struct {
	// LogOutput receives log output. Defaults to os.Stderr.
	LogOutput io.Writer
}

// New builds an Application from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	app := &Application{config: cfg}
	if err := newBootstrapper(app, opts).bootstrap(); err != nil {
		return nil, err
	}
	app.logger.Debug("application ready", "persistent", app.db != nil, "files", len(app.store.Files()))
	return app, nil
}

// Config returns the configuration the application was built with.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *log.Logger {
	return app.logger
}

// Engine returns the operation engine.
func (app *Application) Engine() *dispatcher.Engine {
	return app.engine
}

// Store returns the version graph.
func (app *Application) Store() *version.Store {
	return app.store
}

// Processor returns the page list processor.
func (app *Application) Processor() *pagelist.Processor {
	return app.pages
}

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus {
	return app.bus
}

// Gatherer returns the registry holding the engine metrics.
func (app *Application) Gatherer() prometheus.Gatherer {
	return app.registry
}

// Import adds a new document of pageCount blank Letter pages to the graph.
func (app *Application) Import(displayName string, pageCount uint) (*version.File, error) {
	if err := app.checkOpen(); err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("import %s: a document needs at least one page", displayName)
	}

	fileID := version.NewFileID()
	pages := pagelist.Pages(fileID, pageCount, pagelist.DefaultWidth, pagelist.DefaultHeight)
	h, err := app.pages.Import(fileID, pages)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", displayName, err)
	}
	if _, err := app.store.CreateRoot(fileID, displayName, pages, h); err != nil {
		return nil, fmt.Errorf("import %s: %w", displayName, err)
	}
	app.logger.Info("document imported", "file", fileID, "name", displayName, "pages", pageCount)
	return app.store.File(fileID)
}

// CompactionCandidates lists files whose lineage is deeper than the
// configured compaction depth.
func (app *Application) CompactionCandidates() []string {
	return app.store.CompactionCandidates(app.Config().History.CompactionDepth)
}

// Close releases every resource in reverse order of creation.
func (app *Application) Close() error {
	app.mu.Lock()
	if app.closed {
		app.mu.Unlock()
		return nil
	}
	app.closed = true
	app.mu.Unlock()

	var errs []error
	if app.hook != nil {
		errs = append(errs, app.hook.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.blobs != nil {
		app.blobs.Close()
	}
	app.logger.Debug("application closed")
	return errors.Join(errs...)
}

func (app *Application) checkOpen() error {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.closed {
		return ErrClosed
	}
	return nil
}

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
