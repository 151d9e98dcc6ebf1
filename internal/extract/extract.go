// Package extract runs the link collection and contact form routines inside
// an execution context and decodes their results.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/types"
)

// ErrScriptExecution is returned when a routine could not be invoked or did
// not return a result. Missing page elements are not errors, the contact
// routine reports them as a result with status error.
var ErrScriptExecution = errors.New("extraction routine could not be run")

// Selectors describe where the routines find things on the target site.
// The defaults match the layout of the site the tool was first written for.
type Selectors struct {
	ListingLink    string `yaml:"listing_link" json:"listingLink" env-default:"a[data-cy='listing-item-link']"`
	AdvertiserName string `yaml:"advertiser_name" json:"advertiserName" env-default:"[data-cy='advertiser-card-name']"`
	PhoneReveal    string `yaml:"phone_reveal" json:"phoneReveal" env-default:"[data-cy='ask-about-number']"`
	PhoneLink      string `yaml:"phone_link" json:"phoneLink" env-default:"a[href^='tel:']"`
	NameField      string `yaml:"name_field" json:"nameField" env-default:"#name"`
	EmailField     string `yaml:"email_field" json:"emailField" env-default:"#email"`
	PhoneField     string `yaml:"phone_field" json:"phoneField" env-default:"#phone"`
	MessageField   string `yaml:"message_field" json:"messageField" env-default:"#message"`
	Consent        string `yaml:"consent" json:"consent" env-default:"input[name='rules_confirmation'] + label"`
	SubmitButton   string `yaml:"submit_button" json:"submitButton" env-default:"button[data-cy='contact-form-send-button']"`
}

// DefaultSelectors returns the selector profile used when nothing is configured.
func DefaultSelectors() Selectors {
	return Selectors{
		ListingLink:    "a[data-cy='listing-item-link']",
		AdvertiserName: "[data-cy='advertiser-card-name']",
		PhoneReveal:    "[data-cy='ask-about-number']",
		PhoneLink:      "a[href^='tel:']",
		NameField:      "#name",
		EmailField:     "#email",
		PhoneField:     "#phone",
		MessageField:   "#message",
		Consent:        "input[name='rules_confirmation'] + label",
		SubmitButton:   "button[data-cy='contact-form-send-button']",
	}
}

// Config holds the site specific part of the configuration.
type Config struct {
	Selectors          Selectors `yaml:"selectors"`
	PhoneRevealDelayMS int       `yaml:"phone_reveal_delay_ms" env:"SITE_PHONE_REVEAL_DELAY_MS" env-default:"1000"`
	// Submit enables the final click on the contact form's send button.
	// It is off unless explicitly enabled.
	Submit bool `yaml:"submit" env:"SITE_SUBMIT"`
}

// Extractor runs the routines through an Executor.
type Extractor struct {
	*Config
	executor Executor
}

func NewExtractor(c *Config, e Executor) *Extractor {
	return &Extractor{
		Config:   c,
		executor: e,
	}
}

type linkArgs struct {
	Selector string `json:"selector"`
}

type contactArgs struct {
	Selectors          Selectors      `json:"selectors"`
	Form               types.FormData `json:"form"`
	Processed          []string       `json:"processed"`
	PhoneRevealDelayMS int            `json:"phoneRevealDelayMs"`
	Submit             bool           `json:"submit"`
}

// CollectLinks returns the item urls found on the listing page shown in tab.
// A page without matching links yields an empty slice and no error.
func (x *Extractor) CollectLinks(ctx context.Context, tab browser.Tab) ([]string, error) {
	raw, err := x.executor.Run(ctx, tab, linksRoutine, linkArgs{Selector: x.Selectors.ListingLink})
	if err != nil {
		return nil, err
	}
	links := []string{}
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("%w: %s returned %s: %v", ErrScriptExecution, linksRoutine.Name, raw, err)
	}
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("collected %d links", len(links)), slog.String("url", tab.URL()))
	return links, nil
}

// FillContact extracts the contact shown in tab and fills the contact form
// unless the contact is part of processed. Missing elements are reported as
// an error result, only a routine that could not run returns an error.
func (x *Extractor) FillContact(ctx context.Context, tab browser.Tab, form types.FormData, processed []string) (types.LogEntry, error) {
	args := contactArgs{
		Selectors:          x.Selectors,
		Form:               form,
		Processed:          processed,
		PhoneRevealDelayMS: x.PhoneRevealDelayMS,
		Submit:             x.Submit,
	}
	if args.Processed == nil {
		args.Processed = []string{}
	}
	var result types.LogEntry
	raw, err := x.executor.Run(ctx, tab, contactRoutine, args)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("%w: %s returned %s: %v", ErrScriptExecution, contactRoutine.Name, raw, err)
	}
	switch result.Status {
	case types.StatusSuccess, types.StatusSkipped, types.StatusError:
	default:
		return result, fmt.Errorf("%w: %s returned unknown status '%s'", ErrScriptExecution, contactRoutine.Name, result.Status)
	}
	return result, nil
}
