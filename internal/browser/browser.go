// Package browser manages the isolated execution contexts (tabs) in which
// listing and item pages are loaded.
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrContextCreation is returned when a new tab could not be opened.
	ErrContextCreation = errors.New("execution context could not be created")
	// ErrNavigation is returned when a tab crashed or did not finish loading.
	ErrNavigation = errors.New("execution context did not finish loading")
	// ErrUnknownTab is returned for handles that were not created by the manager
	// or that were already destroyed.
	ErrUnknownTab = errors.New("unknown execution context")
)

// Tab is an opaque handle of an execution context. Exactly one owner is
// responsible for destroying it.
type Tab interface {
	ID() string
	URL() string
}

// Manager creates, navigates, awaits and destroys execution contexts.
type Manager interface {
	// Create opens a new background tab and starts loading urlStr in it.
	Create(ctx context.Context, urlStr string) (Tab, error)
	// Navigate points an existing tab to urlStr.
	Navigate(ctx context.Context, tab Tab, urlStr string) error
	// AwaitLoad blocks until the last navigation of tab completed. It fails
	// with ErrNavigation if the tab crashed or the page did not load.
	AwaitLoad(ctx context.Context, tab Tab) error
	// Destroy closes the tab. Errors are informational only.
	Destroy(tab Tab) error
	// Cancel releases all resources held by the manager.
	Cancel()
}

// Renderer selects the Manager implementation.
type Renderer string

const (
	DynamicRenderer Renderer = "dynamic"
	StaticRenderer  Renderer = "static"
)

// MockPage is served by the StaticHost instead of fetching the url.
type MockPage struct {
	Url     string `yaml:"url"`
	Content string `yaml:"content"`
}

// Config holds the parameters of a Manager.
type Config struct {
	Renderer      Renderer   `yaml:"renderer" env:"BROWSER_RENDERER" env-default:"dynamic"`
	ShowBrowser   bool       `yaml:"show_browser" env:"BROWSER_SHOW"`
	UserAgent     string     `yaml:"user_agent" env:"BROWSER_USER_AGENT"`
	LoadTimeoutMS int        `yaml:"load_timeout_ms" env:"BROWSER_LOAD_TIMEOUT_MS" env-default:"30000"`
	MockPages     []MockPage `yaml:"mock_pages"`
}

func (c *Config) Validate() error {
	switch c.Renderer {
	case DynamicRenderer, StaticRenderer:
		return nil
	default:
		return fmt.Errorf("renderer '%s' not implemented, must be one of [%s, %s]", c.Renderer, DynamicRenderer, StaticRenderer)
	}
}
