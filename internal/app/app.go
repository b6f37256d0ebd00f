package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/plan"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	config   *Config
	loader   *buildfile.Loader
	registry *registry.Registry

	httpServer *http.Server

	// mu guards the run currently reported by the status endpoint.
	mu   sync.Mutex
	plan *plan.Plan
	exec *executor.Executor
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Without modules the built-in actions are registered.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	reg := registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "actions", reg.Names())

	return &App{
		outW:     outW,
		ctx:      ctx,
		config:   cfg,
		loader:   buildfile.NewLoader(),
		registry: reg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (app *App) Registry() *registry.Registry {
	return app.registry
}

// Logger returns the application's logger.
func (app *App) Logger() *slog.Logger {
	return ctxlog.FromContext(app.ctx)
}

func (app *App) setRun(p *plan.Plan, exec *executor.Executor) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.plan = p
	app.exec = exec
}

func (app *App) currentRun() (*plan.Plan, *executor.Executor) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.plan, app.exec
}
