// Package browser drives the served selection form in headless Chrome: it
// picks a preset or attaches a file, clicks submit and reports where the
// browser ended up.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

// ErrNoChoice is returned when a run names neither a preset nor a file.
var ErrNoChoice = errors.New("choose a preset or an upload")

const defaultNavTimeout = 30 * time.Second

// Config controls the headless browser.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// AllowEmpty submits the form untouched when Choice is empty.
	AllowEmpty bool
}

// Choice is what the driver does on the form before clicking submit.
type Choice struct {
	Preset     dataset.Preset
	UploadPath string
}

// Outcome describes what the browser saw after submitting.
type Outcome struct {
	FinalURL   string
	StatusCode int
	Title      string
	Posts      int
}

// Driver runs form submissions in a shared Chrome allocator.
type Driver struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New builds a Driver. Chrome is started lazily by the first Submit.
func New(cfg Config) *Driver {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Driver{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close shuts down the browser allocator.
func (d *Driver) Close() {
	d.allocCancel()
}

// Submit loads pageURL, applies choice and clicks the submit button.
func (d *Driver) Submit(ctx context.Context, pageURL string, choice Choice) (Outcome, error) {
	actions, err := d.formActions(choice)
	if err != nil {
		return Outcome{}, err
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse page url: %w", err)
	}

	taskCtx, taskCancel := chromedp.NewContext(d.allocator)
	defer taskCancel()
	// Stop the browser tab if the caller gives up first.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, d.cfg.NavigationTimeout)
	defer cancel()

	rec := newSubmissionRecorder(page.ResolveReference(&url.URL{Path: dataset.SubmitPath}).Path)
	chromedp.ListenTarget(taskCtx, rec.captureEvent)

	var out Outcome
	run := []chromedp.Action{
		d.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(`form`, chromedp.ByQuery),
	}
	run = append(run, actions...)
	run = append(run,
		chromedp.Click(`form input[type="submit"]`, chromedp.ByQuery),
		rec.waitAction(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&out.FinalURL),
		chromedp.Title(&out.Title),
	)
	if err := chromedp.Run(taskCtx, run...); err != nil {
		return Outcome{}, fmt.Errorf("chromedp run: %w", err)
	}
	out.StatusCode, out.Posts = rec.snapshot()
	return out, nil
}

func (d *Driver) formActions(choice Choice) ([]chromedp.Action, error) {
	var actions []chromedp.Action
	if choice.Preset != "" {
		if !choice.Preset.Valid() {
			return nil, fmt.Errorf("%w: %q", dataset.ErrUnknownPreset, string(choice.Preset))
		}
		actions = append(actions, chromedp.Click(presetSelector(choice.Preset), chromedp.ByQuery))
	}
	if choice.UploadPath != "" {
		abs, err := filepath.Abs(choice.UploadPath)
		if err != nil {
			return nil, fmt.Errorf("resolve upload path: %w", err)
		}
		actions = append(actions, chromedp.SetUploadFiles(uploadSelector(), []string{abs}, chromedp.ByQuery))
	}
	if len(actions) == 0 && !d.cfg.AllowEmpty {
		return nil, ErrNoChoice
	}
	return actions, nil
}

func (d *Driver) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if d.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(d.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func presetSelector(p dataset.Preset) string {
	return fmt.Sprintf(`input[type="radio"][name=%q][value=%q]`, dataset.FieldSelection, string(p))
}

func uploadSelector() string {
	return fmt.Sprintf(`input[type="file"][name=%q]`, dataset.FieldUpload)
}

// submissionRecorder counts document POSTs to the submit path and signals
// once the page that follows them has answered.
type submissionRecorder struct {
	submitPath string

	mu       sync.Mutex
	posts    int
	status   int
	landed   chan struct{}
	landOnce sync.Once
}

func newSubmissionRecorder(submitPath string) *submissionRecorder {
	return &submissionRecorder{submitPath: submitPath, landed: make(chan struct{})}
}

func (r *submissionRecorder) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.request(e)
	case *network.EventResponseReceived:
		r.response(e)
	}
}

func (r *submissionRecorder) request(e *network.EventRequestWillBeSent) {
	if e.Request == nil || e.Type != network.ResourceTypeDocument || e.Request.Method != "POST" {
		return
	}
	u, err := url.Parse(e.Request.URL)
	if err != nil || u.Path != r.submitPath {
		return
	}
	r.mu.Lock()
	r.posts++
	r.mu.Unlock()
}

func (r *submissionRecorder) response(e *network.EventResponseReceived) {
	if e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	r.mu.Lock()
	submitted := r.posts > 0
	if submitted {
		r.status = int(e.Response.Status)
	}
	r.mu.Unlock()
	if submitted {
		r.landOnce.Do(func() { close(r.landed) })
	}
}

func (r *submissionRecorder) snapshot() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.posts
}

func (r *submissionRecorder) waitAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		select {
		case <-r.landed:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for submission response: %w", ctx.Err())
		}
	})
}
