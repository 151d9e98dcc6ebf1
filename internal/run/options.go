// Package run drives a walk over the listing pages of a site and processes
// every item found on them.
package run

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
)

// ErrEmptyPage is reported when a listing page yields no item links.
var ErrEmptyPage = errors.New("no links found, check the start url or the selectors")

// EmptyPagePolicy decides what happens after a listing page failed or
// yielded no links.
type EmptyPagePolicy string

const (
	ContinueOnEmpty EmptyPagePolicy = "continue"
	StopOnEmpty     EmptyPagePolicy = "stop"
)

// Options tune the pacing and the failure policy of a walk. Delays of 0 are
// replaced by their defaults, utils.NoDelay turns them off.
type Options struct {
	SettleDelayMS    int             `yaml:"settle_delay_ms" env:"WALK_SETTLE_DELAY_MS" env-default:"2000"`
	OnEmptyPage      EmptyPagePolicy `yaml:"on_empty_page" env:"WALK_ON_EMPTY_PAGE" env-default:"continue"`
	EmptyPagePauseMS int             `yaml:"empty_page_pause_ms" env:"WALK_EMPTY_PAGE_PAUSE_MS" env-default:"3000"`
	// ItemsPerMinute limits how fast item pages are opened. 0 means no limit.
	ItemsPerMinute int    `yaml:"items_per_minute" env:"WALK_ITEMS_PER_MINUTE"`
	PageParam      string `yaml:"page_param" env:"WALK_PAGE_PARAM" env-default:"page"`
}

func (o *Options) Validate() error {
	switch o.OnEmptyPage {
	case ContinueOnEmpty, StopOnEmpty:
	default:
		return fmt.Errorf("on_empty_page '%s' not implemented, must be one of [%s, %s]", o.OnEmptyPage, ContinueOnEmpty, StopOnEmpty)
	}
	if o.SettleDelayMS < utils.NoDelay || o.EmptyPagePauseMS < utils.NoDelay {
		return fmt.Errorf("delays must be %d (disabled) or positive", utils.NoDelay)
	}
	if o.ItemsPerMinute < 0 {
		return fmt.Errorf("items_per_minute must not be negative, got %d", o.ItemsPerMinute)
	}
	if o.PageParam == "" {
		return errors.New("page_param must not be empty")
	}
	return nil
}

// Extractor runs the site routines inside a tab.
type Extractor interface {
	CollectLinks(ctx context.Context, tab browser.Tab) ([]string, error)
	FillContact(ctx context.Context, tab browser.Tab, form types.FormData, processed []string) (types.LogEntry, error)
}

// recorder collects the progress of the active run.
type recorder interface {
	setStatus(text string, isError bool)
	addLog(entry types.LogEntry)
	stopRequested() bool
}

// PageURL returns the url of the given listing page. The first page is the
// base url as is. For later pages any existing page parameter is removed from
// the query and the page number is appended.
func PageURL(base string, page int, param string) (string, error) {
	if page <= 1 {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}
	kept := []string{}
	if u.RawQuery != "" {
		for _, part := range strings.Split(u.RawQuery, "&") {
			key, _, _ := strings.Cut(part, "=")
			if part == "" || key == param {
				continue
			}
			kept = append(kept, part)
		}
	}
	kept = append(kept, fmt.Sprintf("%s=%d", url.QueryEscape(param), page))
	u.RawQuery = strings.Join(kept, "&")
	return u.String(), nil
}

// PageURLs returns the urls of all pages of a run.
func PageURLs(rc types.RunConfig, param string) ([]string, error) {
	urls := make([]string, 0, rc.Pages)
	for page := 1; page <= rc.Pages; page++ {
		u, err := PageURL(rc.StartURL, page, param)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}
