// Package api is the remote resource fetcher: it performs authenticated
// calls against the chapel backend and normalizes every outcome into a
// Result.  Expected HTTP failures never panic and never escape as anything
// other than an *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/chapel-client/internal/config"
	"github.com/iliyamo/chapel-client/internal/logging"
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

var emptyObject = json.RawMessage("{}")

// Credentials is the read side of the credential holder plus the single
// write the fetcher is allowed: invalidating a token the backend rejected.
type Credentials interface {
	Token() (string, bool)
	Invalidate(ctx context.Context, token string) bool
}

// Gate blocks authenticated calls until the session has been checked.
type Gate interface {
	Wait(ctx context.Context) error
}

// Call describes one request.
type Call struct {
	Method string
	Path   string // appended to the base URL, leading slash included
	Query  url.Values
	Body   any // JSON encoded when non-nil
	// Raw is sent as is with ContentType and takes precedence over Body.
	Raw         []byte
	ContentType string

	// Auth attaches the stored bearer token (when there is one) and waits
	// for the session gate.
	Auth bool
	// Token overrides the stored token.  Used to confirm a fresh login
	// before it is persisted.
	Token string
	// SkipGate lets the identity check itself through the gate.
	SkipGate bool
}

// Result is the uniform outcome of a request.  Exactly one of Data (when OK)
// and Err (when !OK) is meaningful; Data is always valid JSON.
type Result struct {
	OK     bool
	Status int
	Data   json.RawMessage
	Err    *Error
}

// Failure returns Err as an error, or nil when the call succeeded.
func (r Result) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Client talks to the backend.  It is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	creds   Credentials
	gate    Gate
	limiter *rate.Limiter
	log     *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithGate makes authenticated calls wait for g.
func WithGate(g Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithRateLimit bounds outbound requests.
func WithRateLimit(cfg config.RateLimitConfig) Option {
	return func(c *Client) {
		if cfg.Enabled {
			c.limiter = rate.NewLimiter(rate.Every(cfg.RefillInterval), cfg.Capacity)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// New creates a Client for baseURL (e.g. "http://localhost:5000/api").
func New(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		creds:      creds,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request performs call.  The only side effects are the HTTP exchange and,
// on a 401 for a request that carried a token, one invalidation of that
// token.
func (c *Client) Request(ctx context.Context, call Call) Result {
	if call.Auth && !call.SkipGate && c.gate != nil {
		if err := c.gate.Wait(ctx); err != nil {
			return fail(0, Canceled, "waiting for session check", err)
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(0, Canceled, "rate limit wait", err)
		}
	}

	var body io.Reader
	contentType := "application/json"
	switch {
	case call.Raw != nil:
		body = bytes.NewReader(call.Raw)
		if call.ContentType != "" {
			contentType = call.ContentType
		}
	case call.Body != nil:
		b, err := json.Marshal(call.Body)
		if err != nil {
			return fail(0, ValidationError, "could not encode request", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.BaseURL + call.Path
	if len(call.Query) > 0 {
		target += "?" + call.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		return fail(0, ValidationError, "could not build request", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	token := call.Token
	if token == "" && call.Auth && c.creds != nil {
		token, _ = c.creds.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fail(0, Canceled, "request canceled", ctx.Err())
		}
		c.log.Debug("request failed", zap.String("request_id", reqID), zap.String("path", call.Path), zap.Error(err))
		return fail(0, NetworkError, "could not reach the server, please try again", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return fail(resp.StatusCode, Canceled, "request canceled", ctx.Err())
		}
		return fail(resp.StatusCode, NetworkError, "connection lost while reading the response", err)
	}
	if ctx.Err() != nil {
		// the caller stopped caring while the body was in flight
		return fail(resp.StatusCode, Canceled, "request canceled", ctx.Err())
	}

	c.log.Debug("request completed",
		zap.String("request_id", reqID),
		zap.String("method", call.Method),
		zap.String("path", call.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	data, wellFormed := parseBody(raw)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{OK: true, Status: resp.StatusCode, Data: data}
	case resp.StatusCode == http.StatusUnauthorized:
		if token != "" && c.creds != nil {
			// outlive the caller's context so the clear is not half done
			c.creds.Invalidate(context.WithoutCancel(ctx), token)
		}
		return fail(resp.StatusCode, Unauthorized, messageOr(data, "your session has expired, please log in again"), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fail(resp.StatusCode, ValidationError, messageOr(data, http.StatusText(resp.StatusCode)), nil)
	case resp.StatusCode >= 500:
		return fail(resp.StatusCode, ServerError, messageOr(data, "the server had a problem, please try again"), nil)
	}
	if !wellFormed {
		return fail(resp.StatusCode, MalformedResponse, "unexpected response", nil)
	}
	return fail(resp.StatusCode, MalformedResponse, "unexpected status "+resp.Status, nil)
}

// parseBody returns raw when it is valid JSON and "{}" otherwise.
func parseBody(raw []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return emptyObject, len(trimmed) == 0
	}
	return json.RawMessage(trimmed), true
}

// messageOr pulls a human readable message out of an error body.
func messageOr(data json.RawMessage, def string) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil {
		return def
	}
	if body.Message != "" {
		return body.Message
	}
	var s string
	if json.Unmarshal(body.Error, &s) == nil && s != "" {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	return def
}

func fail(status int, kind Kind, msg string, cause error) Result {
	return Result{Status: status, Data: emptyObject, Err: &Error{Kind: kind, Status: status, Message: msg, Err: cause}}
}

// Decode unmarshals a successful result into T.  A body that does not fit T
// is reported as MalformedResponse.
func Decode[T any](r Result) (T, error) {
	var out T
	if !r.OK {
		if r.Err == nil {
			return out, &Error{Kind: MalformedResponse, Status: r.Status, Message: "empty result"}
		}
		return out, r.Err
	}
	if err := json.Unmarshal(r.Data, &out); err != nil {
		var zero T
		return zero, &Error{Kind: MalformedResponse, Status: r.Status, Message: "unexpected response shape", Err: err}
	}
	return out, nil
}

// Fetch performs call and decodes the body into T.
func Fetch[T any](ctx context.Context, c *Client, call Call) (T, error) {
	return Decode[T](c.Request(ctx, call))
}

// IsUnauthorized is a shorthand for errors.Is(err, ErrUnauthorized).
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
