package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

var errSuperseded = errors.New("navigation superseded")

// loadWaiter is a one-shot subscription to the load completion of a tab.
// The underlying target listener is removed as soon as the waiter finishes.
type loadWaiter struct {
	done   chan struct{}
	err    error
	once   sync.Once
	cancel context.CancelFunc
}

func (w *loadWaiter) finish(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
		w.cancel()
	})
}

type dynamicTab struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	url    string
	waiter *loadWaiter
}

func (t *dynamicTab) ID() string { return string(t.id) }

func (t *dynamicTab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// exec returns a context that runs cdp commands against the tab while
// still being cancelled by ctx.
func (t *dynamicTab) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(t.ctx).Target)
}

// arm replaces any pending waiter with a fresh one. It has to be called
// before the navigation is issued so that no load event is missed.
func (t *dynamicTab) arm() *loadWaiter {
	listenCtx, cancel := context.WithCancel(t.ctx)
	w := &loadWaiter{done: make(chan struct{}), cancel: cancel}
	t.mu.Lock()
	if t.waiter != nil {
		t.waiter.finish(errSuperseded)
	}
	t.waiter = w
	t.mu.Unlock()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch ev.(type) {
		case *page.EventLoadEventFired:
			w.finish(nil)
		case *inspector.EventTargetCrashed:
			w.finish(fmt.Errorf("%w: tab crashed while loading", ErrNavigation))
		case *inspector.EventDetached:
			w.finish(fmt.Errorf("%w: tab was detached while loading", ErrNavigation))
		}
	})
	return w
}

// The DynamicHost renders pages in a headless chrome. Every tab is a
// separate background target of the same browser.
type DynamicHost struct {
	*Config
	allocContext   context.Context
	cancelAlloc    context.CancelFunc
	browserContext context.Context
	cancelBrowser  context.CancelFunc

	startOnce sync.Once
	startErr  error
}

func NewDynamicHost(c *Config) *DynamicHost {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.ShowBrowser {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserContext, cancelBrowser := chromedp.NewContext(allocContext)
	d := &DynamicHost{
		Config:         c,
		allocContext:   allocContext,
		cancelAlloc:    cancelAlloc,
		browserContext: browserContext,
		cancelBrowser:  cancelBrowser,
	}
	if d.LoadTimeoutMS == 0 {
		d.LoadTimeoutMS = 30000 // default
	}
	return d
}

func (d *DynamicHost) start() error {
	d.startOnce.Do(func() {
		// running without actions launches the browser
		d.startErr = chromedp.Run(d.browserContext)
	})
	return d.startErr
}

func (d *DynamicHost) browserExec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(d.browserContext).Browser)
}

func (d *DynamicHost) lookup(tab Tab) (*dynamicTab, error) {
	t, ok := tab.(*dynamicTab)
	if !ok || t == nil {
		return nil, ErrUnknownTab
	}
	return t, nil
}

func (d *DynamicHost) Create(ctx context.Context, urlStr string) (Tab, error) {
	if err := d.start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start browser: %v", ErrContextCreation, err)
	}
	targetID, err := target.CreateTarget("about:blank").WithBackground(true).Do(d.browserExec(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCreation, err)
	}
	tabCtx, cancel := chromedp.NewContext(d.browserContext, chromedp.WithTargetID(targetID))
	t := &dynamicTab{id: targetID, ctx: tabCtx, cancel: cancel, url: "about:blank"}
	// attach to the new target so that events are delivered
	if err := chromedp.Run(tabCtx); err != nil {
		d.Destroy(t)
		return nil, fmt.Errorf("%w: failed to attach to tab: %v", ErrContextCreation, err)
	}
	if err := d.Navigate(ctx, t, urlStr); err != nil {
		d.Destroy(t)
		return nil, fmt.Errorf("%w: %v", ErrContextCreation, err)
	}
	return t, nil
}

func (d *DynamicHost) Navigate(ctx context.Context, tab Tab, urlStr string) error {
	t, err := d.lookup(tab)
	if err != nil {
		return err
	}
	w := t.arm()
	var res page.NavigateReturns
	if err := cdp.Execute(t.exec(ctx), page.CommandNavigate, page.Navigate(urlStr), &res); err != nil {
		w.finish(fmt.Errorf("%w: %v", ErrNavigation, err))
		return fmt.Errorf("failed to navigate to %s: %w", urlStr, err)
	}
	if res.ErrorText != "" {
		// the tab shows an error page, awaiting it reports the failure
		w.finish(fmt.Errorf("%w: %s", ErrNavigation, res.ErrorText))
	}
	t.mu.Lock()
	t.url = urlStr
	t.mu.Unlock()
	return nil
}

func (d *DynamicHost) AwaitLoad(ctx context.Context, tab Tab) error {
	t, err := d.lookup(tab)
	if err != nil {
		return err
	}
	t.mu.Lock()
	w := t.waiter
	t.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%w: no navigation pending", ErrNavigation)
	}

	timer := time.NewTimer(time.Duration(d.LoadTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
		w.finish(fmt.Errorf("%w: timed out after %dms", ErrNavigation, d.LoadTimeoutMS))
	case <-ctx.Done():
		w.finish(ctx.Err())
	}
	return w.err
}

// Evaluate runs expression in the tab, awaiting a returned promise, and
// returns the JSON encoded result.
func (d *DynamicHost) Evaluate(ctx context.Context, tab Tab, expression string) (json.RawMessage, error) {
	t, err := d.lookup(tab)
	if err != nil {
		return nil, err
	}
	var res json.RawMessage
	err = chromedp.Evaluate(expression, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}).Do(t.exec(ctx))
	return res, err
}

func (d *DynamicHost) Destroy(tab Tab) error {
	t, err := d.lookup(tab)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.waiter != nil {
		t.waiter.finish(fmt.Errorf("%w: tab closed", ErrNavigation))
	}
	t.mu.Unlock()
	defer t.cancel()

	ctx, cancel := context.WithTimeout(d.browserContext, 5*time.Second)
	defer cancel()
	if err := target.CloseTarget(t.id).Do(d.browserExec(ctx)); err != nil {
		slog.Debug("failed to close tab", slog.String("tab", string(t.id)), slog.String("err", err.Error()))
		return fmt.Errorf("failed to close tab %s: %w", t.id, err)
	}
	return nil
}

func (d *DynamicHost) Cancel() {
	d.cancelBrowser()
	d.cancelAlloc()
}
