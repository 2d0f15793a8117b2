package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/docforge/internal/content"
	"github.com/dshills/docforge/internal/dispatcher"
	"github.com/dshills/docforge/internal/dispatcher/luahook"
	"github.com/dshills/docforge/internal/event"
	"github.com/dshills/docforge/internal/history"
	"github.com/dshills/docforge/internal/logging"
	"github.com/dshills/docforge/internal/processor/pagelist"
	"github.com/dshills/docforge/internal/version"
	"github.com/dshills/docforge/internal/version/sqlitestore"
)

// bootstrapper initializes components in dependency order and undoes the
// completed steps when a later one fails.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      opts,
		initOrder: make([]string, 0, 8),
	}
}

func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initLogger,
		b.initContent,
		b.initStorage,
		b.initEventBus,
		b.initEngine,
		b.initHook,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

func (b *bootstrapper) initLogger() error {
	opts := b.app.config.LoggingOptions()
	if b.opts.LogOutput != nil {
		opts.Output = b.opts.LogOutput
	}
	logger, err := logging.New(opts)
	if err != nil {
		return &InitError{Component: "logger", Err: err}
	}
	b.app.logger = logger
	b.initOrder = append(b.initOrder, "logger")
	return nil
}

func (b *bootstrapper) initContent() error {
	blobs, err := content.NewStore(b.app.config.Storage.CompressionLevel)
	if err != nil {
		return &InitError{Component: "content store", Err: err}
	}
	b.app.blobs = blobs
	b.app.pages = pagelist.New(blobs)
	b.initOrder = append(b.initOrder, "content")
	return nil
}

// initStorage restores the version graph from the configured database, or
// starts an in-memory graph when no path is set.
func (b *bootstrapper) initStorage() error {
	path := b.app.config.Storage.Path
	if path == "" {
		b.app.store = version.NewStore()
		b.initOrder = append(b.initOrder, "storage")
		return nil
	}

	db, err := sqlitestore.Open(path)
	if err != nil {
		return &InitError{Component: "storage", Err: err}
	}
	store, err := version.Load(db, version.WithPersister(db))
	if err != nil {
		db.Close()
		return &InitError{Component: "storage", Err: err}
	}
	b.app.db = db
	b.app.store = store
	b.initOrder = append(b.initOrder, "storage")
	logging.WithComponent(b.app.logger, "storage").Info("version graph restored", "path", path, "files", len(store.AllFiles()))
	return nil
}

func (b *bootstrapper) initEventBus() error {
	logger := logging.WithComponent(b.app.logger, "events")
	b.app.bus = event.NewBus(event.WithPanicHandler(func(env event.Envelope, r any) {
		logger.Error("event handler panicked", "topic", env.Topic, "panic", r)
	}))

	_, err := b.app.bus.Subscribe("**", func(ctx context.Context, env event.Envelope) error {
		logger.Debug("event", "topic", env.Topic, "id", env.Metadata.ID, "correlation", env.Metadata.CorrelationID)
		return nil
	}, event.WithPriority(event.PriorityLow))
	if err != nil {
		return &InitError{Component: "event bus", Err: err}
	}
	b.initOrder = append(b.initOrder, "eventBus")
	return nil
}

func (b *bootstrapper) initEngine() error {
	cfg := b.app.config
	engineConfig := dispatcher.DefaultConfig().WithTimeout(cfg.Dispatch.Timeout.Duration)

	h := history.New(b.app.store, cfg.History.MaxEntries)
	engine := dispatcher.New(b.app.store, b.app.pages, h, engineConfig)
	engine.SetLogger(logging.WithComponent(b.app.logger, "dispatcher"))
	engine.SetEventBus(b.app.bus)

	b.app.registry = prometheus.NewRegistry()
	if cfg.Dispatch.Metrics {
		b.app.metrics = dispatcher.NewMetrics(b.app.registry)
		engine.SetMetrics(b.app.metrics)
	}

	b.app.engine = engine
	b.initOrder = append(b.initOrder, "engine")
	return nil
}

func (b *bootstrapper) initHook() error {
	script := b.app.config.Hooks.Script
	if script == "" {
		return nil
	}
	hook, err := luahook.Load(script, luahook.WithLogger(logging.WithComponent(b.app.logger, "hook")))
	if err != nil {
		return &InitError{Component: "hook", Err: err}
	}
	b.app.hook = hook
	b.app.engine.RegisterPreHook(hook)
	b.initOrder = append(b.initOrder, "hook")
	return nil
}

// cleanup releases initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "hook":
		if b.app.hook != nil {
			b.app.hook.Close()
			b.app.hook = nil
		}
	case "engine":
		b.app.engine = nil
		b.app.metrics = nil
	case "eventBus":
		b.app.bus = nil
	case "storage":
		if b.app.db != nil {
			b.app.db.Close()
			b.app.db = nil
		}
		b.app.store = nil
	case "content":
		if b.app.blobs != nil {
			b.app.blobs.Close()
			b.app.blobs = nil
		}
		b.app.pages = nil
	}
}
