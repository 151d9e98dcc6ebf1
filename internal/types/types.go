// Package types defines shared types used across the application.
package types

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// FormData holds the values that are typed into every contact form of a run.
type FormData struct {
	Name    string `yaml:"name" json:"name" env:"FORM_NAME"`
	Email   string `yaml:"email" json:"email" env:"FORM_EMAIL"`
	Phone   string `yaml:"phone" json:"phone" env:"FORM_PHONE"`
	Message string `yaml:"message" json:"message" env:"FORM_MESSAGE"`
}

// RunConfig is the input of a single run. It is not modified once a run started.
type RunConfig struct {
	StartURL string   `yaml:"start_url" json:"startUrl" env:"RUN_START_URL"`
	Pages    int      `yaml:"pages" json:"pagesToProcess" env:"RUN_PAGES" env-default:"1"`
	Form     FormData `yaml:"form" json:"formData"`
}

func (rc RunConfig) Validate() error {
	if rc.StartURL == "" {
		return errors.New("start url must not be empty")
	}
	u, err := url.Parse(rc.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("start url must be http or https, got scheme '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("start url %s has no host", rc.StartURL)
	}
	if rc.Pages < 1 {
		return fmt.Errorf("pages to process must be positive, got %d", rc.Pages)
	}
	return nil
}

// ItemStatus is the outcome of processing one item.
type ItemStatus string

const (
	StatusSuccess ItemStatus = "success"
	StatusSkipped ItemStatus = "skipped"
	StatusError   ItemStatus = "error"
)

// Sentinel identity values used when the contact could not be extracted.
const (
	UnknownName = "Unknown"
	ErrorName   = "Error"
	ErrorPhone  = "Error"
)

// LogEntry records the outcome of one processed item. Entries are never
// modified once they are appended to a run's log.
type LogEntry struct {
	Status    ItemStatus `json:"status"`
	UserName  string     `json:"userName"`
	UserPhone string     `json:"userPhone,omitempty"`
	Error     string     `json:"error,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// State is a point in time copy of the run state as seen by observers.
type State struct {
	RunID      string     `json:"runId,omitempty"`
	IsRunning  bool       `json:"isRunning"`
	Status     string     `json:"status"`
	Logs       []LogEntry `json:"logs"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Stopped    bool       `json:"stopped"`
}
