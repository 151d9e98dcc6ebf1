package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/dedup"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
)

// A Routine is a data-in/data-out function that runs inside an execution
// context. Script is its javascript rendition for rendered pages, Static the
// rendition used on parsed documents. Both receive the same JSON arguments and
// produce the same JSON result.
type Routine struct {
	Name   string
	Script string
	Static func(ctx context.Context, doc *goquery.Document, args json.RawMessage) (any, error)
}

// Executor runs a routine inside tab and returns its JSON encoded result.
type Executor interface {
	Run(ctx context.Context, tab browser.Tab, r Routine, args any) (json.RawMessage, error)
}

// DynamicExecutor evaluates the Script of a routine in a chrome tab.
type DynamicExecutor struct {
	Host *browser.DynamicHost
}

func (e *DynamicExecutor) Run(ctx context.Context, tab browser.Tab, r Routine, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptExecution, r.Name, err)
	}
	expression := fmt.Sprintf("(%s)(%s)", r.Script, argsJSON)
	raw, err := e.Host.Evaluate(ctx, tab, expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptExecution, r.Name, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s returned no result", ErrScriptExecution, r.Name)
	}
	return raw, nil
}

// StaticExecutor runs the Static rendition of a routine on the document
// loaded by a StaticHost.
type StaticExecutor struct {
	Host *browser.StaticHost
}

func (e *StaticExecutor) Run(ctx context.Context, tab browser.Tab, r Routine, args any) (json.RawMessage, error) {
	doc, err := e.Host.Document(tab)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptExecution, r.Name, err)
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptExecution, r.Name, err)
	}
	result, err := r.Static(ctx, doc, argsJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptExecution, r.Name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s returned no result", ErrScriptExecution, r.Name)
	}
	return json.Marshal(result)
}

var linksRoutine = Routine{
	Name: "collect-links",
	Script: `(args) => Array.from(document.querySelectorAll(args.selector))
	.filter((a) => (a.getAttribute("href") || "").trim() !== "")
	.map((a) => a.href)`,
	Static: staticLinks,
}

var contactRoutine = Routine{
	Name:   "fill-contact",
	Script: contactScript,
	Static: staticContact,
}

const contactScript = `async (args) => {
	const s = args.selectors;
	const sleep = (ms) => new Promise((resolve) => setTimeout(resolve, ms));
	const failed = (userName, message) => ({ status: "error", userName: userName, userPhone: "Error", error: message });

	const nameEl = document.querySelector(s.advertiserName);
	if (!nameEl) return failed("Unknown", "advertiser name not found");
	const userName = nameEl.textContent.trim();

	const reveal = document.querySelector(s.phoneReveal);
	if (!reveal) return failed(userName, "phone reveal button not found");
	reveal.click();
	await sleep(args.phoneRevealDelayMs);

	const phoneEl = document.querySelector(s.phoneLink);
	if (!phoneEl) return failed(userName, "phone number not found after reveal");
	const userPhone = phoneEl.textContent.trim();

	if (args.processed.includes(userName + "-" + userPhone)) {
		return { status: "skipped", userName: userName, userPhone: userPhone };
	}

	const fill = (selector, value) => {
		const el = document.querySelector(selector);
		if (!el) throw new Error("form field not found: " + selector);
		el.value = value;
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	};
	try {
		fill(s.nameField, args.form.name);
		fill(s.emailField, args.form.email);
		fill(s.phoneField, args.form.phone);
		fill(s.messageField, "");
		fill(s.messageField, args.form.message);

		const consent = document.querySelector(s.consent);
		if (!consent) throw new Error("consent control not found");
		consent.click();

		if (args.submit === true) {
			const send = document.querySelector(s.submitButton);
			if (!send) throw new Error("submit button not found");
			send.click();
		}
	} catch (e) {
		return failed(userName, e.message);
	}
	return { status: "success", userName: userName, userPhone: userPhone };
}`

func staticLinks(ctx context.Context, doc *goquery.Document, raw json.RawMessage) (any, error) {
	var args linkArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	links := []string{}
	doc.Find(args.Selector).Each(func(i int, s *goquery.Selection) {
		href, found := s.Attr("href")
		if !found || strings.TrimSpace(href) == "" {
			return
		}
		if doc.Url != nil {
			if u, err := doc.Url.Parse(strings.TrimSpace(href)); err == nil {
				href = u.String()
			}
		}
		links = append(links, href)
	})
	return links, nil
}

func staticContact(ctx context.Context, doc *goquery.Document, raw json.RawMessage) (any, error) {
	var args contactArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	s := args.Selectors
	failed := func(userName, msg string) types.LogEntry {
		return types.LogEntry{Status: types.StatusError, UserName: userName, UserPhone: types.ErrorPhone, Error: msg}
	}

	nameSel := doc.Find(s.AdvertiserName).First()
	if nameSel.Length() == 0 {
		return failed(types.UnknownName, "advertiser name not found"), nil
	}
	userName := strings.TrimSpace(nameSel.Text())

	if doc.Find(s.PhoneReveal).Length() == 0 {
		return failed(userName, "phone reveal button not found"), nil
	}
	// a parsed document cannot be clicked, the number is either there or not
	if err := utils.Sleep(ctx, utils.Millis(args.PhoneRevealDelayMS)); err != nil {
		return nil, err
	}
	phoneSel := doc.Find(s.PhoneLink).First()
	if phoneSel.Length() == 0 {
		return failed(userName, "phone number not found after reveal"), nil
	}
	userPhone := strings.TrimSpace(phoneSel.Text())

	if slices.Contains(args.Processed, dedup.Key(userName, userPhone)) {
		return types.LogEntry{Status: types.StatusSkipped, UserName: userName, UserPhone: userPhone}, nil
	}

	fields := []struct {
		selector string
		value    string
	}{
		{s.NameField, args.Form.Name},
		{s.EmailField, args.Form.Email},
		{s.PhoneField, args.Form.Phone},
		{s.MessageField, args.Form.Message},
	}
	for _, f := range fields {
		sel := doc.Find(f.selector).First()
		if sel.Length() == 0 {
			return failed(userName, "form field not found: "+f.selector), nil
		}
		setValue(sel, f.value)
	}
	consent := doc.Find(s.Consent).First()
	if consent.Length() == 0 {
		return failed(userName, "consent control not found"), nil
	}
	checkConsent(doc, consent)

	if args.Submit {
		if doc.Find(s.SubmitButton).Length() == 0 {
			return failed(userName, "submit button not found"), nil
		}
		return failed(userName, "a parsed document cannot submit the form"), nil
	}
	return types.LogEntry{Status: types.StatusSuccess, UserName: userName, UserPhone: userPhone}, nil
}

// setValue writes value into a form control of a parsed document. A textarea
// is cleared first.
func setValue(sel *goquery.Selection, value string) {
	if goquery.NodeName(sel) == "textarea" {
		sel.SetText("")
		sel.SetText(value)
		return
	}
	sel.SetAttr("value", value)
}

// checkConsent marks the checkbox behind the consent target as checked. The
// target is either the checkbox itself or a label referring to it.
func checkConsent(doc *goquery.Document, target *goquery.Selection) {
	box := target
	if goquery.NodeName(target) == "label" {
		if id, found := target.Attr("for"); found && id != "" {
			box = doc.Find("#" + id).First()
		} else if inner := target.Find("input").First(); inner.Length() > 0 {
			box = inner
		} else {
			box = target.PrevFiltered("input").First()
		}
	}
	if box.Length() > 0 {
		box.SetAttr("checked", "checked")
	}
}
