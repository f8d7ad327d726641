package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kerbaras/mdbulk/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited is matched by the error returned when a request is still
// rate limited after its single retry.
var ErrRateLimited = errors.New("rate limited")

// Authorizer supplies the bearer token for authenticated requests.
type Authorizer interface {
	Token(ctx context.Context) (string, error)
}

// ErrorHandler decides what a non-success response means to the caller.
// Returning nil turns the failure into a no-op.
type ErrorHandler func(*APIError) error

// RaiseErrors is the default handler: the error is returned as is.
func RaiseErrors(err *APIError) error { return err }

// IgnoreErrors is for probes where absence is not an error.
func IgnoreErrors(*APIError) error { return nil }

// FilePart is a single multipart file upload.
type FilePart struct {
	Field   string
	Name    string
	Content io.Reader
}

type Request struct {
	Method  string
	Path    string
	Auth    bool
	BaseURL string // overrides the API base URL, e.g. for the auth server
	Query   url.Values
	JSON    any
	Form    url.Values
	File    *FilePart
	OnError ErrorHandler
}

// ErrorDetail is one entry of the API's structured error list.
type ErrorDetail struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// APIError is a non-success response with whatever error payload the server
// sent along.
type APIError struct {
	Method      string
	Path        string
	Status      int
	Errors      []ErrorDetail
	Description string
}

func (e *APIError) Error() string {
	var msg string
	switch {
	case len(e.Errors) > 0:
		parts := make([]string, len(e.Errors))
		for i, d := range e.Errors {
			parts[i] = d.Title
			if d.Detail != "" {
				parts[i] += ": " + d.Detail
			}
		}
		msg = strings.Join(parts, "; ")
	case e.Description != "":
		msg = e.Description
	default:
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// API is the single gateway every remote call goes through. It injects the
// bearer token, paces requests, retries a rate-limited request once and
// normalises error payloads.
type API struct {
	client     *http.Client
	baseURL    string
	authorizer Authorizer
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

type Option func(*API)

func WithHTTPClient(client *http.Client) Option {
	return func(a *API) { a.client = client }
}

func WithLimiter(limiter *rate.Limiter) Option {
	return func(a *API) { a.limiter = limiter }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithSleep replaces the wait used for rate-limit backoff.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(a *API) { a.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

func NewAPI(baseURL string, opts ...Option) *API {
	a := &API{
		client:  http.DefaultClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  zap.NewNop(),
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetAuthorizer wires the token source. It is separate from NewAPI because
// the session itself talks to the auth server through this API.
func (a *API) SetAuthorizer(auth Authorizer) {
	a.authorizer = auth
}

func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	return a.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: params}, v)
}

// Do sends req and decodes a successful JSON response into out (when non-nil).
func (a *API) Do(ctx context.Context, req Request, out any) error {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", req.Method, req.Path, err)
	}

	resp, err := a.send(ctx, req, body, contentType)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		a.metrics.RateLimited()
		wait := a.retryAfter(resp.Header) + time.Second
		resp.Body.Close()
		a.logger.Warn("rate limited, retrying once",
			zap.String("method", req.Method), zap.String("path", req.Path), zap.Duration("wait", wait))
		if err := a.sleep(ctx, wait); err != nil {
			return err
		}
		resp, err = a.send(ctx, req, body, contentType)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			a.metrics.RateLimited()
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(req, resp)
		handler := req.OnError
		if handler == nil {
			handler = RaiseErrors
		}
		if err := handler(apiErr); err != nil {
			return err
		}
		return nil
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

func (a *API) send(ctx context.Context, req Request, body []byte, contentType string) (*http.Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	base := a.baseURL
	if req.BaseURL != "" {
		base = strings.TrimSuffix(req.BaseURL, "/")
	}
	target := fmt.Sprintf("%s/%s", base, strings.TrimPrefix(req.Path, "/"))
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if req.Auth {
		if a.authorizer == nil {
			return nil, fmt.Errorf("%s %s requires authentication but no session is set", req.Method, req.Path)
		}
		token, err := a.authorizer.Token(ctx)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	a.metrics.Request(req.Method, resp.StatusCode)
	return resp, nil
}

// retryAfter reads the server's wait hint. MangaDex sends a Unix timestamp
// in X-RateLimit-Retry-After; plain second counts are accepted as well.
func (a *API) retryAfter(h http.Header) time.Duration {
	raw := h.Get("X-RateLimit-Retry-After")
	if raw == "" {
		raw = h.Get("Retry-After")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if n > 1_000_000_000 {
		wait := time.Unix(n, 0).Sub(a.now())
		if wait < 0 {
			return 0
		}
		return wait
	}
	return time.Duration(n) * time.Second
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.File != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile(req.File.Field, req.File.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, req.File.Content); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.JSON != nil:
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	}
	return nil, "", nil
}

func decodeError(req Request, resp *http.Response) *APIError {
	apiErr := &APIError{Method: req.Method, Path: req.Path, Status: resp.StatusCode}

	var payload struct {
		Errors           []ErrorDetail `json:"errors"`
		ErrorDescription string        `json:"error_description"`
		Error            string        `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &payload); err != nil {
		apiErr.Description = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Errors = payload.Errors
	apiErr.Description = payload.ErrorDescription
	if apiErr.Description == "" {
		apiErr.Description = payload.Error
	}
	return apiErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
