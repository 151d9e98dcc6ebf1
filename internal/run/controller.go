package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/dedup"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/notify"
	"github.com/jakopako/contactwalker/internal/types"
)

const (
	StatusIdle     = "Waiting to start..."
	StatusStarting = "Starting..."
	StatusFinished = "Finished!"
	StatusStopped  = "Stopped by user."
)

// Controller owns the state of the current run. At most one run is active at
// any time.
type Controller struct {
	tabs      browser.Manager
	extractor Extractor
	notifier  notify.Notifier
	opts      *Options
	contacts  *dedup.Store
	stop      atomic.Bool

	mu     sync.Mutex
	state  types.State
	cfg    types.RunConfig
	done   chan struct{}
	cancel context.CancelFunc
}

func NewController(tabs browser.Manager, extractor Extractor, notifier notify.Notifier, opts *Options) *Controller {
	// observers must not be able to break the run
	switch n := notifier.(type) {
	case nil:
		notifier = notify.Multi{}
	case notify.Multi:
	default:
		notifier = notify.Multi{n}
	}
	return &Controller{
		tabs:      tabs,
		extractor: extractor,
		notifier:  notifier,
		opts:      opts,
		contacts:  dedup.New(),
		state:     types.State{Status: StatusIdle, Logs: []types.LogEntry{}},
	}
}

// Start begins a run in the background. It returns false without touching
// the current state if a run is already active. ctx bounds the whole run,
// cancelling it aborts in-flight operations.
func (c *Controller) Start(ctx context.Context, cfg types.RunConfig) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	logger := log.LoggerFromContext(ctx)

	c.mu.Lock()
	if c.state.IsRunning {
		c.mu.Unlock()
		logger.Debug("ignoring start, a run is already active")
		return false, nil
	}
	now := time.Now()
	runID := uuid.NewString()
	c.state = types.State{
		RunID:     runID,
		IsRunning: true,
		Status:    StatusStarting,
		Logs:      []types.LogEntry{},
		StartedAt: &now,
	}
	c.cfg = cfg
	c.contacts.Reset()
	c.stop.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	// the previous run may still be emitting its terminal event
	prev := c.done
	done := make(chan struct{})
	c.done = done
	c.cancel = cancel
	c.mu.Unlock()

	logger = logger.With(slog.String("run", runID))
	runCtx = log.ContextWithLogger(runCtx, logger)
	logger.Info("starting run", slog.String("url", cfg.StartURL), slog.Int("pages", cfg.Pages))

	w := newWalker(c.tabs, c.extractor, c.contacts, c.opts, cfg, c)
	go c.execute(runCtx, cancel, w, prev, done)
	return true, nil
}

func (c *Controller) execute(ctx context.Context, cancel context.CancelFunc, w *Walker, prev <-chan struct{}, done chan struct{}) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		c.finalize(ctx, err)
		cancel()
		close(done)
	}()
	if prev != nil {
		<-prev
	}
	err = w.Walk(ctx)
}

// finalize ends the run. It emits exactly one terminal event.
func (c *Controller) finalize(ctx context.Context, err error) {
	logger := log.LoggerFromContext(ctx)
	if err != nil {
		logger.Error(fmt.Sprintf("run aborted: %v", err))
		c.setStatus(fmt.Sprintf("Critical error: %v", err), true)
	}
	stopped := c.stop.Load() || ctx.Err() != nil

	c.mu.Lock()
	now := time.Now()
	c.state.IsRunning = false
	c.state.FinishedAt = &now
	c.state.Stopped = stopped
	action := notify.ActionFinished
	c.state.Status = StatusFinished
	if stopped {
		action = notify.ActionStopped
		c.state.Status = StatusStopped
	}
	runID := c.state.RunID
	items := len(c.state.Logs)
	contacts := c.contacts.Len()
	c.mu.Unlock()

	logger.Info(fmt.Sprintf("run %s", action), slog.Int("items", items), slog.Int("contacts", contacts))
	c.notifier.Notify(notify.Event{Action: action, RunID: runID, Time: now})
}

// Stop requests the active run to stop before the next page or item. It
// does not wait and reports whether a run was active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsRunning {
		return false
	}
	c.stop.Store(true)
	return true
}

// State returns a copy of the current run state.
func (c *Controller) State() types.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Logs = make([]types.LogEntry, len(c.state.Logs))
	copy(s.Logs, c.state.Logs)
	return s
}

// Config returns the configuration of the current or last run.
func (c *Controller) Config() types.RunConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Contacts returns the contact keys collected during the current or last run.
func (c *Controller) Contacts() []string {
	return c.contacts.Snapshot()
}

// Wait blocks until the current run, if any, is finalized.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops the current run, aborting in-flight operations, and waits for
// it to be finalized.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	c.Stop()
	if cancel != nil {
		cancel()
	}
	c.Wait()
}

func (c *Controller) setStatus(text string, isError bool) {
	c.mu.Lock()
	c.state.Status = text
	runID := c.state.RunID
	c.mu.Unlock()
	c.notifier.Notify(notify.Event{Action: notify.ActionStatus, RunID: runID, Text: text, IsError: isError, Time: time.Now()})
}

func (c *Controller) addLog(entry types.LogEntry) {
	c.mu.Lock()
	c.state.Logs = append(c.state.Logs, entry)
	runID := c.state.RunID
	c.mu.Unlock()
	c.notifier.Notify(notify.Event{Action: notify.ActionLog, RunID: runID, Data: &entry, Time: time.Now()})
}

func (c *Controller) stopRequested() bool {
	return c.stop.Load()
}
