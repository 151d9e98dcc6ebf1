package run

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/dedup"
	"github.com/jakopako/contactwalker/internal/notify"
	"github.com/jakopako/contactwalker/internal/types"
)

type fakeTab struct {
	id  string
	url string
}

func (t *fakeTab) ID() string  { return t.id }
func (t *fakeTab) URL() string { return t.url }

// fakeHost is a browser.Manager with scripted failures.
type fakeHost struct {
	createErr  map[string]error
	loadErr    map[string]error
	destroyErr map[string]error

	mu        sync.Mutex
	seq       int
	open      map[string]*fakeTab
	created   int
	destroyed int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		createErr:  map[string]error{},
		loadErr:    map[string]error{},
		destroyErr: map[string]error{},
		open:       map[string]*fakeTab{},
	}
}

func (h *fakeHost) Create(ctx context.Context, urlStr string) (browser.Tab, error) {
	if err, found := h.createErr[urlStr]; found {
		return nil, fmt.Errorf("%w: %v", browser.ErrContextCreation, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	t := &fakeTab{id: fmt.Sprintf("fake-%d", h.seq), url: urlStr}
	h.open[t.id] = t
	h.created++
	return t, nil
}

func (h *fakeHost) Navigate(ctx context.Context, tab browser.Tab, urlStr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, found := h.open[tab.ID()]
	if !found {
		return browser.ErrUnknownTab
	}
	t.url = urlStr
	return nil
}

func (h *fakeHost) AwaitLoad(ctx context.Context, tab browser.Tab) error {
	if err, found := h.loadErr[tab.URL()]; found {
		return fmt.Errorf("%w: %v", browser.ErrNavigation, err)
	}
	return ctx.Err()
}

func (h *fakeHost) Destroy(tab browser.Tab) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, found := h.open[tab.ID()]; !found {
		return browser.ErrUnknownTab
	}
	delete(h.open, tab.ID())
	h.destroyed++
	return h.destroyErr[tab.URL()]
}

func (h *fakeHost) Cancel() {}

func (h *fakeHost) stats() (created, destroyed, open int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created, h.destroyed, len(h.open)
}

type contact struct {
	name  string
	phone string
}

// fakeExtractor answers with scripted links and contacts keyed by tab url.
type fakeExtractor struct {
	links    map[string][]string
	contacts map[string]contact
	results  map[string]types.LogEntry
	// hook runs before every FillContact, a non nil error is returned as is.
	hook func(ctx context.Context, url string) error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		links:    map[string][]string{},
		contacts: map[string]contact{},
		results:  map[string]types.LogEntry{},
	}
}

func (x *fakeExtractor) CollectLinks(ctx context.Context, tab browser.Tab) ([]string, error) {
	return x.links[tab.URL()], nil
}

func (x *fakeExtractor) FillContact(ctx context.Context, tab browser.Tab, form types.FormData, processed []string) (types.LogEntry, error) {
	if x.hook != nil {
		if err := x.hook(ctx, tab.URL()); err != nil {
			return types.LogEntry{}, err
		}
	}
	if r, found := x.results[tab.URL()]; found {
		return r, nil
	}
	c, found := x.contacts[tab.URL()]
	if !found {
		return types.LogEntry{Status: types.StatusError, UserName: types.UnknownName, UserPhone: types.ErrorPhone, Error: "advertiser name not found"}, nil
	}
	if slices.Contains(processed, dedup.Key(c.name, c.phone)) {
		return types.LogEntry{Status: types.StatusSkipped, UserName: c.name, UserPhone: c.phone}, nil
	}
	return types.LogEntry{Status: types.StatusSuccess, UserName: c.name, UserPhone: c.phone}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Notify(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func (l *eventLog) terminal() []notify.Action {
	actions := []notify.Action{}
	for _, e := range l.all() {
		if e.Terminal() {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

func (l *eventLog) errorTexts() []string {
	texts := []string{}
	for _, e := range l.all() {
		if e.Action == notify.ActionStatus && e.IsError {
			texts = append(texts, e.Text)
		}
	}
	return texts
}

func (l *eventLog) logged() []types.LogEntry {
	entries := []types.LogEntry{}
	for _, e := range l.all() {
		if e.Action == notify.ActionLog {
			entries = append(entries, *e.Data)
		}
	}
	return entries
}
