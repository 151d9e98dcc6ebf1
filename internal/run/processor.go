package run

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/dedup"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
)

// Processor handles a single item in its own tab.
type Processor struct {
	tabs      browser.Manager
	extractor Extractor
	contacts  *dedup.Store
	opts      *Options
	rec       recorder
}

func newProcessor(tabs browser.Manager, extractor Extractor, contacts *dedup.Store, opts *Options, rec recorder) *Processor {
	return &Processor{
		tabs:      tabs,
		extractor: extractor,
		contacts:  contacts,
		opts:      opts,
		rec:       rec,
	}
}

// Process opens itemURL in a fresh tab, extracts the contact and fills the
// contact form. Every call records exactly one log entry, failures included,
// and the tab is destroyed before Process returns.
func (p *Processor) Process(ctx context.Context, itemURL string, form types.FormData) (entry types.LogEntry) {
	logger := log.LoggerFromContext(ctx).With(slog.String("item", itemURL))
	ctx = log.ContextWithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("recovered while processing item: %v", r))
			entry = failedEntry(itemURL, fmt.Errorf("panic: %v", r))
		}
		p.rec.addLog(entry)
	}()

	tab, err := p.tabs.Create(ctx, itemURL)
	if err != nil {
		return failedEntry(itemURL, err)
	}
	defer func() {
		if err := p.tabs.Destroy(tab); err != nil {
			logger.Warn(fmt.Sprintf("could not close item tab: %v", err), slog.String("tab", tab.ID()))
		}
	}()

	if err := p.tabs.AwaitLoad(ctx, tab); err != nil {
		return failedEntry(itemURL, err)
	}
	if err := utils.Sleep(ctx, utils.Millis(p.opts.SettleDelayMS)); err != nil {
		return failedEntry(itemURL, err)
	}
	result, err := p.extractor.FillContact(ctx, tab, form, p.contacts.Snapshot())
	if err != nil {
		return failedEntry(itemURL, err)
	}
	result.URL = itemURL

	switch result.Status {
	case types.StatusSuccess, types.StatusSkipped:
		if p.contacts.Add(dedup.Key(result.UserName, result.UserPhone)) {
			logger.Debug("new contact", slog.String("name", result.UserName), slog.String("phone", result.UserPhone))
		}
	}
	return result
}

func failedEntry(itemURL string, err error) types.LogEntry {
	return types.LogEntry{
		Status:   types.StatusError,
		UserName: types.ErrorName,
		Error:    fmt.Sprintf("error processing item: %v", err),
		URL:      itemURL,
	}
}
