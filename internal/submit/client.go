// Package submit posts dataset selection requests to a running /user_input
// endpoint the way the selection form does.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/dataset"
	"github.com/JakeFAU/augmentweb/internal/metrics"
)

// Outcome classifies a submission attempt.
type Outcome string

// Submission outcomes.
const (
	// OutcomeAccepted means the server answered 2xx or 3xx.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeInvalid means the request was refused locally and nothing was sent.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeRejected means the server answered 4xx or 5xx.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the request never produced a response.
	OutcomeFailed Outcome = "failed"
)

// ErrRejected is wrapped into Result.Err for 4xx/5xx answers.
var ErrRejected = errors.New("submission rejected by server")

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "augmentweb-client/0.1"
	maxErrorBody     = 4 << 10
)

// Result is the explicit answer to one submission.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Location   string
	Err        error
}

// OK reports whether the caller should move on to the progress screen.
func (r Result) OK() bool {
	return r.Outcome == OutcomeAccepted
}

// Config controls the submission client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Policy    dataset.Policy
	UserAgent string
}

// Client posts multipart requests to <BaseURL>/user_input.
type Client struct {
	http     *http.Client
	endpoint string
	cfg      Config
	logger   *zap.Logger
}

// New validates cfg and builds a Client. Redirects are reported, not followed.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Policy == "" {
		cfg.Policy = dataset.PolicyExactlyOne
	}
	endpoint := base.ResolveReference(&url.URL{Path: dataset.SubmitPath})
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		endpoint: endpoint.String(),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Endpoint returns the absolute /user_input URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit checks req against the policy and, when allowed, posts it. It blocks
// until the server answers or ctx ends.
func (c *Client) Submit(ctx context.Context, req dataset.Request) Result {
	res := c.submit(ctx, req)
	metrics.ObserveClientSubmission(string(res.Outcome))
	return res
}

// SubmitSelection submits the current state of a selection form.
func (c *Client) SubmitSelection(ctx context.Context, sel dataset.Selection) Result {
	return c.Submit(ctx, sel.Request())
}

// Dispatch submits in the background and returns immediately. The channel
// receives exactly one Result and may be ignored; failures are logged.
func (c *Client) Dispatch(ctx context.Context, req dataset.Request) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		res := c.Submit(ctx, req)
		if !res.OK() {
			c.logger.Warn("dispatched submission not accepted",
				zap.String("outcome", string(res.Outcome)),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err),
			)
		}
		out <- res
	}()
	return out
}

func (c *Client) submit(ctx context.Context, req dataset.Request) Result {
	if err := c.cfg.Policy.Check(req); err != nil {
		return Result{Outcome: OutcomeInvalid, Err: err}
	}

	body, contentType, err := req.Body()
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("encode form: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("post %s: %w", c.endpoint, err)}
	}
	defer resp.Body.Close() //nolint:errcheck // drained below

	res := Result{StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		res.Outcome = OutcomeRejected
		res.Err = fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		c.logger.Debug("submission rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return res
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	res.Outcome = OutcomeAccepted
	return res
}
