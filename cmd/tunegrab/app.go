// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/depcheck"
	"github.com/tunegrab/tunegrab/internal/history"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
	"github.com/tunegrab/tunegrab/internal/tui"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every Cobra handler receives an App and reaches
	// configuration, the updater and the ledger through it.
	App struct {
		Config ConfigProvider

		// version is the running tunegrab version, Version unless injected.
		version string
		stdout  io.Writer
		stderr  io.Writer

		newUpdater  UpdaterFactory
		openHistory HistoryOpener
		runner      depcheck.CommandRunner
		confirm     func(tui.ConfirmOptions) (bool, error)
		interactive func() bool

		// Global flag values, bound by NewRootCommand.
		verbose    bool
		configPath string

		mu     sync.Mutex
		cfg    *config.Config
		logger *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config      ConfigProvider
		NewUpdater  UpdaterFactory
		OpenHistory HistoryOpener
		Runner      depcheck.CommandRunner
		Confirm     func(tui.ConfirmOptions) (bool, error)
		Interactive func() bool
		Version     string
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// UpdaterFactory builds the self-update facade for one command invocation.
	UpdaterFactory func(cfg selfupdate.Config, opts ...selfupdate.UpdaterOption) (*selfupdate.Updater, error)

	// HistoryOpener opens the update ledger at path.
	HistoryOpener func(ctx context.Context, path string, opts ...history.Option) (*history.Store, error)
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:      deps.Config,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		newUpdater:  deps.NewUpdater,
		openHistory: deps.OpenHistory,
		runner:      deps.Runner,
		confirm:     deps.Confirm,
		interactive: deps.Interactive,
		version:     deps.Version,
	}
	if app.version == "" {
		app.version = Version
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	if app.newUpdater == nil {
		app.newUpdater = selfupdate.NewUpdater
	}
	if app.openHistory == nil {
		app.openHistory = history.Open
	}
	if app.runner == nil {
		app.runner = depcheck.ExecRunner{}
	}
	if app.confirm == nil {
		app.confirm = tui.Confirm
	}
	if app.interactive == nil {
		app.interactive = func() bool { return !tui.DefaultConfig().Accessible }
	}
	return app
}

// LoadConfig loads configuration once per App; later calls return the cached value.
func (a *App) LoadConfig(ctx context.Context) (*config.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// Logger returns the CLI logger. Its level comes from log.level, or debug
// with --verbose. Before configuration is loaded it logs at warn.
func (a *App) Logger() *log.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.logger != nil {
		return a.logger
	}

	level := log.WarnLevel
	if a.cfg != nil {
		if parsed, err := log.ParseLevel(a.cfg.Log.Level.String()); err == nil {
			level = parsed
		}
	}
	if a.verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName, Level: level})
	if a.cfg != nil {
		a.logger = logger
	}
	return logger
}

// tuiConfig returns the TUI settings for this invocation.
func (a *App) tuiConfig(cfg *config.Config) tui.Config {
	tc := tui.DefaultConfig()
	tc.Output = a.stderr
	if cfg != nil {
		tc.Theme = tui.ThemeFromScheme(cfg.UI.ColorScheme.String())
	}
	return tc
}

// updater builds the facade for cfg with the App logger attached.
func (a *App) updater(cfg selfupdate.Config, opts ...selfupdate.UpdaterOption) (*selfupdate.Updater, error) {
	return a.newUpdater(cfg, append([]selfupdate.UpdaterOption{selfupdate.WithLogger(a.Logger())}, opts...)...)
}

// openLedger opens the update history, or returns nil when history is disabled. A
// ledger that cannot be opened is logged and treated as disabled; it never
// blocks an update.
func (a *App) openLedger(ctx context.Context, cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		a.Logger().Warn("update history unavailable", "err", err)
		return nil
	}
	store, err := a.openHistory(ctx, path, history.WithLogger(a.Logger()))
	if err != nil {
		a.Logger().Warn("update history unavailable", "path", path, "err", err)
		return nil
	}
	return store
}
