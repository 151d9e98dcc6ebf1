package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/contactwalker/internal/log"
)

type staticTab struct {
	id      string
	url     string
	doc     *goquery.Document
	loadErr error
	pending bool
}

func (t *staticTab) ID() string  { return t.id }
func (t *staticTab) URL() string { return t.url }

// The StaticHost loads pages without rendering js. Mock pages configured
// in the Config are served from memory, everything else is fetched over http.
// Documents are parsed with goquery so that routines can run on them.
type StaticHost struct {
	*Config
	client   *http.Client
	pagesMap map[string]string

	mu        sync.Mutex
	seq       int
	open      map[string]*staticTab
	created   int
	destroyed int
}

func NewStaticHost(c *Config) *StaticHost {
	s := &StaticHost{
		Config:   c,
		pagesMap: map[string]string{},
		open:     map[string]*staticTab{},
	}
	if s.LoadTimeoutMS == 0 {
		s.LoadTimeoutMS = 30000 // default
	}
	s.client = &http.Client{Timeout: time.Duration(s.LoadTimeoutMS) * time.Millisecond}
	for _, p := range c.MockPages {
		s.pagesMap[p.Url] = p.Content
	}
	return s
}

func (s *StaticHost) Create(ctx context.Context, urlStr string) (Tab, error) {
	s.mu.Lock()
	s.seq++
	t := &staticTab{id: fmt.Sprintf("static-%d", s.seq)}
	s.open[t.id] = t
	s.created++
	s.mu.Unlock()
	if err := s.Navigate(ctx, t, urlStr); err != nil {
		s.Destroy(t)
		return nil, fmt.Errorf("%w: %v", ErrContextCreation, err)
	}
	return t, nil
}

func (s *StaticHost) lookup(tab Tab) (*staticTab, error) {
	t, ok := tab.(*staticTab)
	if !ok || t == nil {
		return nil, ErrUnknownTab
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.open[t.id]; !found {
		return nil, ErrUnknownTab
	}
	return t, nil
}

func (s *StaticHost) Navigate(ctx context.Context, tab Tab, urlStr string) error {
	t, err := s.lookup(tab)
	if err != nil {
		return err
	}
	doc, loadErr := s.load(ctx, urlStr)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.url = urlStr
	t.doc = doc
	t.loadErr = loadErr
	t.pending = true
	return nil
}

func (s *StaticHost) AwaitLoad(ctx context.Context, tab Tab) error {
	t, err := s.lookup(tab)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.pending {
		return fmt.Errorf("%w: no navigation pending", ErrNavigation)
	}
	t.pending = false
	if t.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, t.loadErr)
	}
	return nil
}

// Document returns the parsed document currently shown in tab.
func (s *StaticHost) Document(tab Tab) (*goquery.Document, error) {
	t, err := s.lookup(tab)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.doc == nil {
		return nil, fmt.Errorf("no document loaded in tab %s", t.id)
	}
	return t.doc, nil
}

func (s *StaticHost) Destroy(tab Tab) error {
	t, ok := tab.(*staticTab)
	if !ok || t == nil {
		return ErrUnknownTab
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.open[t.id]; !found {
		return fmt.Errorf("%w: %s already destroyed", ErrUnknownTab, t.id)
	}
	delete(s.open, t.id)
	s.destroyed++
	return nil
}

// Stats returns the number of created and destroyed tabs.
func (s *StaticHost) Stats() (created, destroyed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.destroyed
}

// Open returns the number of tabs that were not destroyed yet.
func (s *StaticHost) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// To comply with the Manager interface
func (s *StaticHost) Cancel() {}

func (s *StaticHost) load(ctx context.Context, urlStr string) (*goquery.Document, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	content, found := s.pagesMap[urlStr]
	switch {
	case found:
	case urlStr == "about:blank":
	case u.Scheme == "http" || u.Scheme == "https":
		content, err = s.fetch(ctx, urlStr)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("page not found: %s", urlStr)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	doc.Url = u
	return doc, nil
}

func (s *StaticHost) fetch(ctx context.Context, urlStr string) (string, error) {
	logger := log.LoggerFromContext(ctx)
	logger.Debug("fetching page", slog.String("host", "static"), slog.String("url", urlStr), slog.String("user-agent", s.UserAgent))
	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return "", err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Header.Set("Accept", "*/*")
	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != 200 {
		return "", fmt.Errorf("status code error: %d %s", res.StatusCode, res.Status)
	}
	bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
