package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"routemaster/internal/auth"
	"routemaster/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// Client single point of outbound communication with the REST backend.
// Every request waits for the auth session to settle, carries the bearer token
// when signed in, and fails with *Error or a canceled error.
type Client struct {
	httpClient *resty.Client
	tokens     auth.TokenSource
	monitor    *Monitor
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type Option func(*Client)

// WithMonitor shares a network monitor (e.g. with the places client).
func WithMonitor(m *Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates the backend client. Requests are never retried.
func NewClient(baseURL string, timeout time.Duration, tokens auth.TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if tokens == nil {
		tokens = auth.NewStaticSession("", logger)
	}

	c := &Client{
		tokens: tokens,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.monitor == nil {
		c.monitor = NewMonitor(logger)
	}

	c.httpClient = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c.httpClient.OnBeforeRequest(c.authorize)
	c.httpClient.OnAfterResponse(func(_ *resty.Client, _ *resty.Response) error {
		c.monitor.ReportSuccess()
		return nil
	})
	c.httpClient.OnError(func(r *resty.Request, err error) {
		if isCancellation(r.Context(), err) {
			return
		}
		c.monitor.ReportNetworkError(err)
	})

	return c
}

// Monitor returns the network monitor the client reports to.
func (c *Client) Monitor() *Monitor { return c.monitor }

func (c *Client) authorize(_ *resty.Client, r *resty.Request) error {
	token, err := c.tokens.Token(r.Context())
	if err != nil {
		return err
	}
	if token != "" {
		r.SetAuthToken(token)
	}
	r.SetHeader("X-Request-Id", ulid.Make().String())
	return nil
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header map[string]string
}

// Do executes req and decodes a 2xx body into out (may be nil). A *string out
// accepts both a JSON string and a bare text body.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	r := c.httpClient.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		if isCancellation(ctx, err) {
			c.metrics.HTTPRequest(req.Method, metrics.OutcomeCanceled)
			c.logger.Debug("Request canceled", zap.String("method", req.Method), zap.String("path", req.Path))
			return canceled()
		}
		c.metrics.HTTPRequest(req.Method, metrics.OutcomeNetwork)
		c.logger.Error("Request failed without response",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return networkError(err)
	}

	if resp.IsError() {
		apiErr := applicationError(resp.StatusCode(), resp.Body())
		c.metrics.HTTPRequest(req.Method, metrics.OutcomeApplication)
		c.logger.Error("Backend returned error",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	c.metrics.HTTPRequest(req.Method, metrics.OutcomeOK)
	c.logger.Debug("Request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := decode(resp.Body(), out); err != nil {
		return &Error{
			Kind:    KindApplication,
			Status:  resp.StatusCode(),
			Message: "invalid response body",
			Err:     fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err),
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: resty.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: resty.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: resty.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values, body any) error {
	return c.Do(ctx, Request{Method: resty.MethodDelete, Path: path, Query: query, Body: body}, nil)
}

func decode(body []byte, out any) error {
	if s, ok := out.(*string); ok {
		if err := json.Unmarshal(body, s); err != nil {
			*s = strings.TrimSpace(string(body))
		}
		return nil
	}
	return json.Unmarshal(body, out)
}

// Path formats an endpoint path, escaping every id segment.
//
//	Path("/v1/projects/%s/contacts/%s", projectID, contactID)
func Path(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}

// isCancellation tells a caller-initiated abort apart from a transport failure.
// A caller's ctx ending for any reason, its own deadline included, is an abort;
// only the client timeout counts as a network error.
func isCancellation(ctx context.Context, err error) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
