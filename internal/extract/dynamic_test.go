package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// consentPage works the same in chrome and on a parsed document.
	consentPage = `<html><body>
	<div data-cy="advertiser-card-name">  Ann Agency </div>
	<button data-cy="ask-about-number">show number</button>
	<a href="tel:111">111</a>
	<form onsubmit="window.sent = true; return false;">
		<input id="name"><input id="email"><input id="phone"><textarea id="message">prefilled</textarea>
		<input type="checkbox" id="rules" name="rules_confirmation"><label for="rules">I agree</label>
		<button type="submit" data-cy="contact-form-send-button">send</button>
	</form>
	</body></html>`
	// revealPage only shows the phone number after the reveal button is clicked.
	revealPage = `<html><body>
	<div data-cy="advertiser-card-name">Bea</div>
	<button data-cy="ask-about-number" onclick="setTimeout(() => { document.getElementById('p').innerHTML = '<a href=&quot;tel:222&quot;>222</a>'; }, 10)">show number</button>
	<span id="p"></span>
	<form onsubmit="window.sent = true; return false;">
		<input id="name"><input id="email"><input id="phone"><textarea id="message">prefilled</textarea>
		<input type="checkbox" id="rules" name="rules_confirmation"><label for="rules">I agree</label>
		<button type="submit" data-cy="contact-form-send-button">send</button>
	</form>
	</body></html>`
)

type testSite struct {
	*httptest.Server
	pages map[string]string
}

// newTestSite serves pages keyed by path.
func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()
	s := &testSite{pages: pages}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, found := s.pages[r.URL.Path]
		if !found {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, content)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDynamicHost(t *testing.T) *browser.DynamicHost {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping chrome test in short mode")
	}
	h := browser.NewDynamicHost(&browser.Config{Renderer: browser.DynamicRenderer, LoadTimeoutMS: 10000})
	t.Cleanup(h.Cancel)
	tab, err := h.Create(context.Background(), "about:blank")
	if err != nil {
		t.Skipf("chrome not available: %v", err)
	}
	require.NoError(t, h.Destroy(tab))
	return h
}

func openDynamicTab(t *testing.T, h *browser.DynamicHost, u string) browser.Tab {
	t.Helper()
	tab, err := h.Create(context.Background(), u)
	require.NoError(t, err)
	require.NoError(t, h.AwaitLoad(context.Background(), tab))
	t.Cleanup(func() { h.Destroy(tab) })
	return tab
}

func evaluate(t *testing.T, h *browser.DynamicHost, tab browser.Tab, expression string, v any) {
	t.Helper()
	raw, err := h.Evaluate(context.Background(), tab, expression)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestRenditionsCollectTheSameLinks(t *testing.T) {
	h := newTestDynamicHost(t)
	site := newTestSite(t, map[string]string{"/list": listingPage})
	listURL := site.URL + "/list"

	dynamic := NewExtractor(&Config{Selectors: DefaultSelectors()}, &DynamicExecutor{Host: h})
	fromChrome, err := dynamic.CollectLinks(context.Background(), openDynamicTab(t, h, listURL))
	require.NoError(t, err)

	static, host := newStaticExtractor(t, map[string]string{listURL: listingPage}, nil)
	fromDocument, err := static.CollectLinks(context.Background(), openTab(t, host, listURL))
	require.NoError(t, err)

	assert.Equal(t, []string{site.URL + "/offer/a", "https://other.example/offer/b"}, fromChrome)
	assert.Equal(t, fromDocument, fromChrome)
}

func TestRenditionsFillContactTheSame(t *testing.T) {
	h := newTestDynamicHost(t)
	tests := []struct {
		name      string
		page      string
		processed []string
		expected  types.LogEntry
	}{
		{
			name:     "success",
			page:     consentPage,
			expected: types.LogEntry{Status: types.StatusSuccess, UserName: "Ann Agency", UserPhone: "111"},
		},
		{
			name:      "already processed",
			page:      consentPage,
			processed: []string{"Ann Agency-111"},
			expected:  types.LogEntry{Status: types.StatusSkipped, UserName: "Ann Agency", UserPhone: "111"},
		},
		{
			name:     "missing name",
			page:     strings.Replace(consentPage, `data-cy="advertiser-card-name"`, "", 1),
			expected: types.LogEntry{Status: types.StatusError, UserName: types.UnknownName, UserPhone: types.ErrorPhone, Error: "advertiser name not found"},
		},
		{
			name:     "missing phone",
			page:     strings.Replace(consentPage, `href="tel:111"`, `href="/contact"`, 1),
			expected: types.LogEntry{Status: types.StatusError, UserName: "Ann Agency", UserPhone: types.ErrorPhone, Error: "phone number not found after reveal"},
		},
		{
			name:     "missing form field",
			page:     strings.Replace(consentPage, `<input id="email">`, "", 1),
			expected: types.LogEntry{Status: types.StatusError, UserName: "Ann Agency", UserPhone: types.ErrorPhone, Error: "form field not found: #email"},
		},
		{
			name:     "missing consent",
			page:     strings.Replace(consentPage, `name="rules_confirmation"`, `name="other"`, 1),
			expected: types.LogEntry{Status: types.StatusError, UserName: "Ann Agency", UserPhone: types.ErrorPhone, Error: "consent control not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newTestSite(t, map[string]string{"/offer": tt.page})
			itemURL := site.URL + "/offer"
			c := &Config{Selectors: DefaultSelectors(), PhoneRevealDelayMS: 50}

			dynamic := NewExtractor(c, &DynamicExecutor{Host: h})
			fromChrome, err := dynamic.FillContact(context.Background(), openDynamicTab(t, h, itemURL), form, tt.processed)
			require.NoError(t, err)

			static, host := newStaticExtractor(t, map[string]string{itemURL: tt.page}, c)
			fromDocument, err := static.FillContact(context.Background(), openTab(t, host, itemURL), form, tt.processed)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, fromChrome)
			assert.Equal(t, fromDocument, fromChrome)
		})
	}
}

func TestDynamicFillContact_RevealAndForm(t *testing.T) {
	h := newTestDynamicHost(t)
	site := newTestSite(t, map[string]string{"/offer": revealPage})
	tab := openDynamicTab(t, h, site.URL+"/offer")
	x := NewExtractor(&Config{Selectors: DefaultSelectors(), PhoneRevealDelayMS: 200}, &DynamicExecutor{Host: h})

	result, err := x.FillContact(context.Background(), tab, form, nil)
	require.NoError(t, err)
	assert.Equal(t, types.LogEntry{Status: types.StatusSuccess, UserName: "Bea", UserPhone: "222"}, result)

	var values []string
	evaluate(t, h, tab, `["#name", "#email", "#phone", "#message"].map((s) => document.querySelector(s).value)`, &values)
	assert.Equal(t, []string{"Bob", "bob@example.com", "999", "Hello"}, values)
	var checked bool
	evaluate(t, h, tab, `document.getElementById("rules").checked`, &checked)
	assert.True(t, checked)
	var sent bool
	evaluate(t, h, tab, `window.sent === true`, &sent)
	assert.False(t, sent, "the form must not be sent unless submission is enabled")
}

func TestDynamicFillContact_SubmitWhenEnabled(t *testing.T) {
	h := newTestDynamicHost(t)
	site := newTestSite(t, map[string]string{"/offer": consentPage})
	tab := openDynamicTab(t, h, site.URL+"/offer")
	x := NewExtractor(&Config{Selectors: DefaultSelectors(), Submit: true}, &DynamicExecutor{Host: h})

	result, err := x.FillContact(context.Background(), tab, form, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	var sent bool
	evaluate(t, h, tab, `window.sent === true`, &sent)
	assert.True(t, sent)
}

func TestDynamicFillContact_SkippedLeavesFormUntouched(t *testing.T) {
	h := newTestDynamicHost(t)
	site := newTestSite(t, map[string]string{"/offer": consentPage})
	tab := openDynamicTab(t, h, site.URL+"/offer")
	x := NewExtractor(&Config{Selectors: DefaultSelectors(), Submit: true}, &DynamicExecutor{Host: h})

	result, err := x.FillContact(context.Background(), tab, form, []string{"Ann Agency-111"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, result.Status)
	var message string
	evaluate(t, h, tab, `document.getElementById("message").value`, &message)
	assert.Equal(t, "prefilled", message)
	var sent bool
	evaluate(t, h, tab, `window.sent === true`, &sent)
	assert.False(t, sent)
}
