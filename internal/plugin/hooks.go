package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// maxParallelHooks bounds how many plugins run at once for one event.
const maxParallelHooks = 4

// Result is the outcome of one plugin run.
type Result struct {
	Plugin   string
	Response *Response
	Err      error
}

// Hooks runs every plugin subscribed to an event.
type Hooks struct {
	manager  *Manager
	executor *Executor
	logger   *slog.Logger
}

// NewHooks returns Hooks dispatching through manager and executor.
func NewHooks(manager *Manager, executor *Executor, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		manager:  manager,
		executor: executor,
		logger:   logger.With("component", "plugins"),
	}
}

// Fire runs the plugins subscribed to event with params encoded as JSON.
// Plugin failures are logged and reported in the results; they never stop
// the other plugins.
func (h *Hooks) Fire(ctx context.Context, event string, params any) ([]Result, error) {
	plugins := h.manager.ForEvent(event)
	if len(plugins) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", event, err)
	}

	results := make([]Result, len(plugins))
	var g errgroup.Group
	g.SetLimit(maxParallelHooks)

	for i, p := range plugins {
		g.Go(func() error {
			cfg := p.Manifest.Config
			if cfg == nil {
				cfg = json.RawMessage("{}")
			}
			resp, err := h.executor.Execute(ctx, p, &Request{Event: event, Config: cfg, Params: raw})
			if err == nil && !resp.Success {
				err = fmt.Errorf("plugin reported failure: %s", resp.Error)
			}
			if err != nil {
				h.logger.Warn("plugin failed", "plugin", p.Manifest.Name, "event", event, "err", err)
			} else {
				h.logger.Debug("plugin ran", "plugin", p.Manifest.Name, "event", event)
			}
			results[i] = Result{Plugin: p.Manifest.Name, Response: resp, Err: err}
			return nil
		})
	}
	g.Wait()

	return results, nil
}
