// Package config loads the configuration of the walker.
package config

import (
	"fmt"
	"io"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/extract"
	"github.com/jakopako/contactwalker/internal/output"
	"github.com/jakopako/contactwalker/internal/run"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Address string `yaml:"address" env:"SERVER_ADDRESS" env-default:"127.0.0.1:8080"`
}

// Config defines the overall structure of the walker configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Run     types.RunConfig     `yaml:"run"`
	Browser browser.Config      `yaml:"browser"`
	Site    extract.Config      `yaml:"site"`
	Walk    run.Options         `yaml:"walk"`
	Writer  output.WriterConfig `yaml:"writer"`
	Server  ServerConfig        `yaml:"server"`
}

// NewConfig reads the configuration from configPath. Without a path only
// environment variables and defaults are used.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(&config)
	} else {
		err = cleanenv.ReadConfig(configPath, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("error while reading config: %w", err)
	}
	return &config, nil
}

// Validate checks everything but the run section, which is validated when a
// run is started since the control surface may provide it.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if err := c.Walk.Validate(); err != nil {
		return fmt.Errorf("walk: %w", err)
	}
	if c.Site.Submit && c.Browser.Renderer == browser.StaticRenderer {
		return fmt.Errorf("site: submit needs the %s renderer, a %s document cannot send a form", browser.DynamicRenderer, browser.StaticRenderer)
	}
	if c.Site.PhoneRevealDelayMS < utils.NoDelay {
		return fmt.Errorf("site: phone_reveal_delay_ms must be %d (disabled) or positive, got %d", utils.NoDelay, c.Site.PhoneRevealDelayMS)
	}
	return nil
}

// Dump writes the resolved configuration as yaml. Credentials are left out.
func (c *Config) Dump(w io.Writer) error {
	redacted := *c
	if redacted.Writer.Password != "" {
		redacted.Writer.Password = "***"
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(redacted); err != nil {
		return err
	}
	return encoder.Close()
}
