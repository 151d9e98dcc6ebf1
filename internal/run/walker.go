package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/dedup"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
	"golang.org/x/time/rate"
)

// Walker visits the listing pages of one run in order and hands every item
// link to the Processor.
type Walker struct {
	tabs      browser.Manager
	extractor Extractor
	processor *Processor
	opts      *Options
	cfg       types.RunConfig
	rec       recorder
	limiter   *rate.Limiter

	// listing is created for the first page and navigated for the others.
	listing browser.Tab
}

func newWalker(tabs browser.Manager, extractor Extractor, contacts *dedup.Store, opts *Options, cfg types.RunConfig, rec recorder) *Walker {
	w := &Walker{
		tabs:      tabs,
		extractor: extractor,
		processor: newProcessor(tabs, extractor, contacts, opts, rec),
		opts:      opts,
		cfg:       cfg,
		rec:       rec,
	}
	if opts.ItemsPerMinute > 0 {
		w.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.ItemsPerMinute)), 1)
	}
	return w
}

// Walk processes all pages of the run. It returns early without an error when
// a stop was requested or when the empty page policy ends the walk. Errors
// returned by Walk abort the whole run.
func (w *Walker) Walk(ctx context.Context) error {
	logger := log.LoggerFromContext(ctx)
	defer w.releaseListing(logger)

	total := w.cfg.Pages
	for page := 1; page <= total; page++ {
		if w.rec.stopRequested() {
			logger.Info("stop requested, not starting next page", slog.Int("page", page))
			return nil
		}
		pageURL, err := PageURL(w.cfg.StartURL, page, w.opts.PageParam)
		if err != nil {
			return err
		}
		pageLogger := logger.With(slog.Int("page", page))
		pageCtx := log.ContextWithLogger(ctx, pageLogger)

		w.rec.setStatus(fmt.Sprintf("Page %d/%d - navigating to listing...", page, total), false)
		links, err := w.collect(pageCtx, pageURL, page)
		if err != nil {
			if errors.Is(err, browser.ErrContextCreation) || ctx.Err() != nil {
				return err
			}
			w.rec.setStatus(fmt.Sprintf("Page %d/%d - %v", page, total, err), true)
			pageLogger.Warn(err.Error(), slog.String("url", pageURL))
			if !errors.Is(err, ErrEmptyPage) {
				// the tab may be unusable after a failed load
				w.releaseListing(pageLogger)
			}
			if w.opts.OnEmptyPage == StopOnEmpty {
				return nil
			}
			if err := utils.Sleep(ctx, utils.Millis(w.opts.EmptyPagePauseMS)); err != nil {
				return err
			}
			continue
		}

		for i, link := range links {
			if w.limiter != nil {
				if err := w.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			// checked after the limiter since a stop may arrive while waiting
			if w.rec.stopRequested() {
				pageLogger.Info("stop requested, not starting next item", slog.Int("item", i+1))
				return nil
			}
			w.rec.setStatus(fmt.Sprintf("Page %d/%d - processing item %d/%d...", page, total, i+1, len(links)), false)
			w.processor.Process(pageCtx, link, w.cfg.Form)
		}
	}
	return nil
}

// collect loads pageURL in the listing tab and returns the item links on it.
func (w *Walker) collect(ctx context.Context, pageURL string, page int) ([]string, error) {
	if w.listing == nil {
		tab, err := w.tabs.Create(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		w.listing = tab
	} else if err := w.tabs.Navigate(ctx, w.listing, pageURL); err != nil {
		return nil, err
	}
	if err := w.tabs.AwaitLoad(ctx, w.listing); err != nil {
		return nil, err
	}
	if err := utils.Sleep(ctx, utils.Millis(w.opts.SettleDelayMS)); err != nil {
		return nil, err
	}

	w.rec.setStatus(fmt.Sprintf("Page %d/%d - collecting links...", page, w.cfg.Pages), false)
	links, err := w.extractor.CollectLinks(ctx, w.listing)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrEmptyPage
	}
	return links, nil
}

func (w *Walker) releaseListing(logger *slog.Logger) {
	if w.listing == nil {
		return
	}
	if err := w.tabs.Destroy(w.listing); err != nil {
		logger.Warn(fmt.Sprintf("could not close listing tab: %v", err), slog.String("tab", w.listing.ID()))
	}
	w.listing = nil
}
