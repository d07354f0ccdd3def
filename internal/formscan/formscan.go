// Package formscan reads a served selection page and extracts the
// submission contract of its form: where it posts, how it encodes, and which
// fields and choices it offers.
package formscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

// Errors reported by the scanner.
var (
	ErrNoForm           = errors.New("page has no form")
	ErrContractMismatch = errors.New("form does not match the dataset selection contract")
)

const multipartEnctype = "multipart/form-data"

// Choice is one radio option in a group.
type Choice struct {
	Value   string
	ID      string
	Label   string
	Checked bool
}

// Form is the submission contract of one <form> element.
type Form struct {
	Action     string
	Method     string
	Enctype    string
	FileFields []string
	Choices    map[string][]Choice
}

// Values returns the radio values offered under name, in document order.
func (f Form) Values(name string) []string {
	out := make([]string, 0, len(f.Choices[name]))
	for _, c := range f.Choices[name] {
		out = append(out, c.Value)
	}
	return out
}

// CheckContract verifies the form posts multipart data to /user_input with a
// dataset_upload file input and exactly the six dataset_selection presets.
func (f Form) CheckContract() error {
	action, err := url.Parse(f.Action)
	if err != nil {
		return fmt.Errorf("%w: action %q: %v", ErrContractMismatch, f.Action, err)
	}
	if action.Path != dataset.SubmitPath {
		return fmt.Errorf("%w: action %q", ErrContractMismatch, f.Action)
	}
	if f.Method != http.MethodPost {
		return fmt.Errorf("%w: method %q", ErrContractMismatch, f.Method)
	}
	if f.Enctype != multipartEnctype {
		return fmt.Errorf("%w: enctype %q", ErrContractMismatch, f.Enctype)
	}
	if !slices.Equal(f.FileFields, []string{dataset.FieldUpload}) {
		return fmt.Errorf("%w: file fields %v", ErrContractMismatch, f.FileFields)
	}
	want := make([]string, 0, len(dataset.Presets()))
	for _, p := range dataset.Presets() {
		want = append(want, string(p))
	}
	if got := f.Values(dataset.FieldSelection); !slices.Equal(got, want) {
		return fmt.Errorf("%w: %s choices %v", ErrContractMismatch, dataset.FieldSelection, got)
	}
	return nil
}

// Config controls the scanner's HTTP behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Scanner fetches pages with colly and parses forms with goquery.
type Scanner struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Scanner.
func New(cfg Config) *Scanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	})
	c.IgnoreRobotsTxt = true
	return &Scanner{cfg: cfg, base: c}
}

// Scan fetches pageURL and returns the first form that carries a file input.
func (s *Scanner) Scan(ctx context.Context, pageURL string) (Form, error) {
	forms, err := s.ScanAll(ctx, pageURL)
	if err != nil {
		return Form{}, err
	}
	for _, f := range forms {
		if len(f.FileFields) > 0 {
			return f, nil
		}
	}
	return Form{}, fmt.Errorf("%w: %s", ErrNoForm, pageURL)
}

// ScanAll fetches pageURL and returns every form on it.
func (s *Scanner) ScanAll(ctx context.Context, pageURL string) ([]Form, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled: %w", err)
	}
	collector := s.base.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)
	collector.Context = ctx

	var (
		forms   []Form
		scanErr error
	)
	collector.OnHTML("form", func(e *colly.HTMLElement) {
		forms = append(forms, extractForm(e.DOM, e.Request.AbsoluteURL))
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			scanErr = fmt.Errorf("fetch %s: status %d: %w", pageURL, r.StatusCode, err)
			return
		}
		scanErr = fmt.Errorf("fetch %s: %w", pageURL, err)
	})

	err := collector.Visit(pageURL)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("scan canceled: %w", ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoForm, pageURL)
	}
	return forms, nil
}

// Parse extracts every form from an HTML document. Relative actions are
// resolved against base when it is non-nil.
func Parse(r io.Reader, base *url.URL) ([]Form, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	resolve := func(ref string) string {
		if base == nil {
			return ref
		}
		u, err := base.Parse(ref)
		if err != nil {
			return ref
		}
		return u.String()
	}
	var forms []Form
	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		forms = append(forms, extractForm(sel, resolve))
	})
	return forms, nil
}

func extractForm(sel *goquery.Selection, resolve func(string) string) Form {
	action, _ := sel.Attr("action")
	form := Form{
		Action:  resolve(action),
		Method:  strings.ToUpper(attrOr(sel, "method", http.MethodGet)),
		Enctype: strings.ToLower(attrOr(sel, "enctype", "application/x-www-form-urlencoded")),
		Choices: make(map[string][]Choice),
	}
	labels := labelsByTarget(sel)
	sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		switch strings.ToLower(attrOr(in, "type", "text")) {
		case "file":
			form.FileFields = append(form.FileFields, name)
		case "radio":
			id, _ := in.Attr("id")
			_, checked := in.Attr("checked")
			form.Choices[name] = append(form.Choices[name], Choice{
				Value:   attrOr(in, "value", "on"),
				ID:      id,
				Label:   labels[id],
				Checked: checked,
			})
		}
	})
	return form
}

func labelsByTarget(sel *goquery.Selection) map[string]string {
	labels := make(map[string]string)
	sel.Find("label[for]").Each(func(_ int, l *goquery.Selection) {
		target, _ := l.Attr("for")
		labels[target] = strings.TrimSpace(l.Text())
	})
	return labels
}

func attrOr(sel *goquery.Selection, name, def string) string {
	if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}
