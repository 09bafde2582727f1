// Package cloud is the HTTP client for the shorts backend: authentication,
// video upload and listing, shorts listing and downloads.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries a per-request uuid for backend log correlation.
	RequestIDHeader = "X-Request-Id"

	DefaultAuthScheme     = "Token"
	DefaultRequestTimeout = 30 * time.Second
	DefaultUploadTimeout  = 10 * time.Minute

	maxErrorBody    = 4096
	maxResponseBody = 8 << 20
)

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource supplies the auth token for each request. An empty token
// means no session.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() (string, error) { return string(t), nil }

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPDoer overrides the transport.
func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *HTTPClient) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithAuthScheme sets the Authorization scheme, e.g. "Token" or "Bearer".
func WithAuthScheme(scheme string) Option {
	return func(c *HTTPClient) {
		if s := strings.TrimSpace(scheme); s != "" {
			c.authScheme = s
		}
	}
}

// WithTimeouts sets the per-call timeouts. Zero keeps the default.
func WithTimeouts(request, upload time.Duration) Option {
	return func(c *HTTPClient) {
		if request > 0 {
			c.requestTimeout = request
		}
		if upload > 0 {
			c.uploadTimeout = upload
		}
	}
}

// HTTPClient talks to the shorts backend REST API.
type HTTPClient struct {
	baseURL        string
	tokens         TokenSource
	authScheme     string
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	httpClient     HTTPDoer
	logger         *slog.Logger
}

// NewHTTPClient creates a client rooted at baseURL (e.g. http://localhost:8000/api).
func NewHTTPClient(baseURL string, tokens TokenSource, logger *slog.Logger, opts ...Option) *HTTPClient {
	if tokens == nil {
		tokens = StaticToken("")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokens:         tokens,
		authScheme:     DefaultAuthScheme,
		requestTimeout: DefaultRequestTimeout,
		uploadTimeout:  DefaultUploadTimeout,
		httpClient:     &http.Client{},
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type apiRequest struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	auth        bool
	timeout     time.Duration
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// send performs the request under its own timeout. The caller must call the
// returned cancel func after consuming the body.
func (c *HTTPClient) send(ctx context.Context, r apiRequest) (*http.Response, context.CancelFunc, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	if r.auth {
		token, err := c.tokens.Token()
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("read token: %w", err)
		}
		if token == "" {
			cancel()
			return nil, nil, ErrNotAuthenticated
		}
		req.Header.Set("Authorization", c.authScheme+" "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	c.logger.Debug("backend request",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, nil, &APIError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, cancel, nil
}

// do sends the request and decodes a JSON body into out when out is non-nil.
func (c *HTTPClient) do(ctx context.Context, r apiRequest, out any) error {
	resp, cancel, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", r.method, r.path, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(b), nil
}

func pageQuery(page int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	return q
}
