package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/run"
	"github.com/jakopako/contactwalker/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
run:
  start_url: https://site/list?foo=1
  pages: 3
  form:
    name: Bob
    email: bob@example.com
    phone: "999"
    message: Hello
browser:
  renderer: static
  mock_pages:
    - url: https://site/list?foo=1
      content: <html></html>
site:
  phone_reveal_delay_ms: 500
  selectors:
    listing_link: a.offer
walk:
  on_empty_page: stop
  items_per_minute: 20
writer:
  type: file
  filedir: /tmp/reports
  password: secret
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestNewConfig(t *testing.T) {
	c, err := NewConfig(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "https://site/list?foo=1", c.Run.StartURL)
	assert.Equal(t, 3, c.Run.Pages)
	assert.Equal(t, "Bob", c.Run.Form.Name)
	assert.Equal(t, browser.StaticRenderer, c.Browser.Renderer)
	assert.Len(t, c.Browser.MockPages, 1)
	assert.Equal(t, 30000, c.Browser.LoadTimeoutMS)
	assert.Equal(t, 500, c.Site.PhoneRevealDelayMS)
	assert.False(t, c.Site.Submit)
	assert.Equal(t, "a.offer", c.Site.Selectors.ListingLink)
	assert.Equal(t, "#email", c.Site.Selectors.EmailField)
	assert.Equal(t, run.StopOnEmpty, c.Walk.OnEmptyPage)
	assert.Equal(t, 2000, c.Walk.SettleDelayMS)
	assert.Equal(t, "page", c.Walk.PageParam)
	assert.Equal(t, 20, c.Walk.ItemsPerMinute)
	assert.Equal(t, "127.0.0.1:8080", c.Server.Address)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("RUN_START_URL", "https://site/list")
	t.Setenv("FORM_NAME", "Bob")
	t.Setenv("BROWSER_RENDERER", "dynamic")
	t.Setenv("SITE_SUBMIT", "true")

	c, err := NewConfig("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "https://site/list", c.Run.StartURL)
	assert.Equal(t, 1, c.Run.Pages)
	assert.Equal(t, "Bob", c.Run.Form.Name)
	assert.True(t, c.Site.Submit)
	assert.Equal(t, run.ContinueOnEmpty, c.Walk.OnEmptyPage)
	assert.Equal(t, "[data-cy='advertiser-card-name']", c.Site.Selectors.AdvertiserName)
}

func TestValidate(t *testing.T) {
	c, err := NewConfig(writeConfig(t, "browser:\n  renderer: firefox\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())

	c, err = NewConfig(writeConfig(t, "walk:\n  on_empty_page: retry\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())

	c, err = NewConfig(writeConfig(t, "browser:\n  renderer: static\nsite:\n  submit: true\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, c.Validate(), "submit")

	c, err = NewConfig(writeConfig(t, "browser:\n  renderer: static\n"))
	require.NoError(t, err)
	assert.NoError(t, c.Validate())

	c, err = NewConfig(writeConfig(t, "site:\n  phone_reveal_delay_ms: -3\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())

	_, err = NewConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestDisabledDelays(t *testing.T) {
	c, err := NewConfig(writeConfig(t, "site:\n  phone_reveal_delay_ms: 0\nwalk:\n  settle_delay_ms: -1\n  empty_page_pause_ms: 0\n"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	// zero is indistinguishable from unset
	assert.Equal(t, 1000, c.Site.PhoneRevealDelayMS)
	assert.Equal(t, 3000, c.Walk.EmptyPagePauseMS)
	assert.Equal(t, utils.NoDelay, c.Walk.SettleDelayMS)
	assert.Zero(t, utils.Millis(c.Walk.SettleDelayMS))
}

func TestDumpRedactsPassword(t *testing.T) {
	c, err := NewConfig(writeConfig(t, testConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Dump(&buf))
	assert.Contains(t, buf.String(), "start_url: https://site/list?foo=1")
	assert.NotContains(t, buf.String(), "secret")
	assert.Equal(t, "secret", c.Writer.Password)
}
