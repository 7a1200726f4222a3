package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agora-dev/agora/internal/errors"
	"github.com/agora-dev/agora/pkg/middleware"
)

// DefaultMaxBodySize caps the response body the client reads.
const DefaultMaxBodySize = 4 << 20

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

// Client issues requests against the community backend. It holds the
// session cookie in its jar and never touches any shared cache.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	bases     map[Operation]int
	userAgent string
	maxBody   int64
}

type clientConfig struct {
	httpClient  *http.Client
	transport   http.RoundTripper
	middlewares []middleware.Middleware
	jar         http.CookieJar
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	bases       map[Operation]int
	userAgent   string
	maxBody     int64
}

// Option configures a Client.
type Option func(*clientConfig)

// WithHTTPClient uses hc for requests. Its CheckRedirect is replaced so
// redirects are never followed, and a cookie jar is added if it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// WithTransport sets the base transport. Ignored with WithHTTPClient.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// WithMiddleware wraps the transport. Ignored with WithHTTPClient.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *clientConfig) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithCookieJar sets the jar holding the session cookie.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *clientConfig) {
		c.jar = jar
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRateLimit paces requests to rps per second with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPageBase sets the wire index of the first page for a paged
// operation. The backend counts /likes pages from 1 and /posts pages
// from 0 by default.
func WithPageBase(op Operation, base int) Option {
	return func(c *clientConfig) {
		c.bases[op] = base
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithMaxBodySize caps the bytes read from a response body.
func WithMaxBodySize(n int64) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// DefaultPageBases returns the wire page base of each paged operation.
func DefaultPageBases() map[Operation]int {
	return map[Operation]int{
		OpListPosts:   0,
		OpListMyPosts: 0,
		OpListMyLikes: 1,
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		e := errors.New("A183").WithDetail(fmt.Sprintf("base URL %q must be absolute", baseURL))
		if err != nil {
			e = e.Wrap(err)
		}
		return nil, e
	}

	cfg := clientConfig{
		logger:    slog.Default(),
		bases:     DefaultPageBases(),
		userAgent: "agora",
		maxBody:   DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	jar := cfg.jar
	hc := &http.Client{}
	if cfg.httpClient != nil {
		copied := *cfg.httpClient
		hc = &copied
		if jar == nil {
			jar = hc.Jar
		}
	} else {
		hc.Transport = middleware.Chain(cfg.transport, cfg.middlewares...)
	}
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	hc.Jar = jar
	if cfg.timeout > 0 {
		hc.Timeout = cfg.timeout
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL:   u,
		http:      hc,
		limiter:   cfg.limiter,
		logger:    cfg.logger,
		bases:     cfg.bases,
		userAgent: cfg.userAgent,
		maxBody:   cfg.maxBody,
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Jar returns the cookie jar carrying the session.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// Perform sends op for the post id with an optional payload and returns the
// unwrapped envelope payload.
//
// id must be positive for operations on a single post and is ignored by
// the list operations. Comment operations take a CommentRef payload and
// list operations take a PageRequest.
func (c *Client) Perform(ctx context.Context, op Operation, id int, payload any) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, op, id, payload)
	if err != nil {
		return nil, err
	}
	return c.do(req, op.String(), id)
}

func (c *Client) newRequest(ctx context.Context, op Operation, id int, payload any) (*http.Request, error) {
	r, ok := routes[op]
	if !ok {
		return nil, errors.New("A162").WithDetail(fmt.Sprintf("operation %d is not defined", int(op)))
	}
	if r.needsID {
		if err := validate.Var(id, "gt=0"); err != nil {
			return nil, invalid(op, "post id must be positive", err)
		}
	}

	var (
		commentID int
		body      = payload
		query     url.Values
	)
	switch {
	case r.comment:
		ref, ok := asCommentRef(payload)
		if !ok {
			return nil, invalid(op, fmt.Sprintf("payload must be a CommentRef, got %T", payload), nil)
		}
		if err := validate.Struct(ref); err != nil {
			return nil, invalid(op, "comment id must be positive", err)
		}
		commentID = ref.CommentID
		body = ref.Body
	case r.paged:
		page, ok := payload.(PageRequest)
		if !ok {
			return nil, invalid(op, fmt.Sprintf("payload must be a PageRequest, got %T", payload), nil)
		}
		if err := validate.Struct(page); err != nil {
			return nil, invalid(op, "page index must be >= 0 and size in 1..100", err)
		}
		query = url.Values{}
		query.Set("page", strconv.Itoa(page.Index+c.bases[op]))
		query.Set("size", strconv.Itoa(page.Size))
		body = nil
	}

	if err := validatePayload(body); err != nil {
		return nil, invalid(op, "invalid payload", err)
	}

	ctx = middleware.WithOperation(ctx, op.String())
	return c.buildRequest(ctx, r.method, r.path(id, commentID), query, body)
}

func (c *Client) buildRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.New("A161").WithDetail("payload is not JSON encodable").Wrap(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.New("A161").Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

func (c *Client) do(req *http.Request, name string, id int) (json.RawMessage, error) {
	ctx := req.Context()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New("A106").Wrap(err)
		}
	}

	requestID := req.Header.Get(RequestIDHeader)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("remote request failed",
			"op", name,
			"post_id", id,
			"request_id", requestID,
			"error", err,
		)
		return nil, errors.New("A104").Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, errors.New("A104").WithStatus(resp.StatusCode).Wrap(err)
	}

	out := Decode(resp.StatusCode, resp.Header, body)
	c.logger.Debug("remote request",
		"op", name,
		"post_id", id,
		"status", resp.StatusCode,
		"outcome", out.Kind.String(),
		"request_id", requestID,
		"duration", time.Since(start),
	)
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

func asCommentRef(payload any) (CommentRef, bool) {
	switch v := payload.(type) {
	case CommentRef:
		return v, true
	case *CommentRef:
		if v != nil {
			return *v, true
		}
	}
	return CommentRef{}, false
}

func validatePayload(body any) error {
	switch v := body.(type) {
	case PostInput, CommentInput, ReportInput:
		return validate.Struct(v)
	case *PostInput, *CommentInput, *ReportInput:
		return validate.Struct(v)
	}
	return nil
}

func invalid(op Operation, detail string, err error) error {
	e := errors.New("A161").WithDetail(fmt.Sprintf("%s: %s", op, detail))
	if err != nil {
		e = e.Wrap(err)
	}
	return e
}
