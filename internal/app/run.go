package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/plan"
)

// Run loads the build definition, validates it against the registered
// actions, and executes it. Cancelling ctx aborts the build; tasks already
// running are allowed to finish.
func (app *App) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(app.ctx)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	app.healthCheckServer()
	defer func() {
		if err := app.closeHealthCheckServer(); err != nil {
			logger.Warn("Health check server did not close cleanly.", "error", err)
		}
	}()

	model, err := app.loader.Load(ctx, app.config.BuildPath)
	if err != nil {
		return fmt.Errorf("failed to load build definition: %w", err)
	}
	logger.Info("Build definition loaded.", "projects", len(model.Projects), "tasks", len(model.Tasks))

	if err := app.registry.Validate(ctx, model); err != nil {
		return err
	}

	policy, err := plan.ParseFailurePolicy(app.config.FailurePolicy)
	if err != nil {
		return err
	}
	pl, err := model.Plan(plan.WithFailurePolicy(policy))
	if err != nil {
		return fmt.Errorf("failed to build execution plan: %w", err)
	}
	logger.Debug("Execution plan built.", "node_count", pl.Len(), "policy", policy.String())

	if pl.Len() == 0 {
		logger.Warn("No tasks found in build definition, execution not required.")
		return nil
	}

	exec, err := executor.New(app.config.WorkerCount)
	if err != nil {
		return err
	}
	app.setRun(pl, exec)

	logger.Info("🚀 Starting concurrent execution...", "workers", exec.Workers())
	runErr := exec.Process(ctx, pl, app.registry.Callback())

	summary := plan.Summarize(pl.Snapshot(exec.Coordination()))
	logger.Info("🏁 Execution finished.",
		"total", summary.Total,
		"complete", summary.Complete,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}

	logger.Debug("App.Run method finished.")
	return nil
}
