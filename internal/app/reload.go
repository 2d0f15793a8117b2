package app

import (
	"context"

	"github.com/dshills/docforge/internal/config"
	"github.com/dshills/docforge/internal/logging"
)

// Reload applies the settings of cfg that can change while running: the
// root log level, the history size and the compaction depth. Storage,
// dispatch and hook settings only take effect on the next start.
func (app *Application) Reload(cfg *config.Config) error {
	if err := app.checkOpen(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	app.mu.Lock()
	app.config = cfg
	app.mu.Unlock()

	app.logger.SetLevel(level)
	app.engine.History().SetMaxEntries(cfg.History.MaxEntries)
	app.logger.Info("configuration reloaded", "level", cfg.Logging.Level, "max_entries", cfg.History.MaxEntries)
	return nil
}

// WatchConfig reloads the configuration file at path whenever it changes,
// until ctx is done. Files that fail to load or validate are logged and
// ignored.
func (app *Application) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err == nil {
			err = app.Reload(cfg)
		}
		if err != nil {
			app.logger.Warn("configuration not reloaded", "path", path, "err", err)
		}
	})
}
