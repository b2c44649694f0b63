package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/recipe-import/internal/recipe"
)

// Config holds HTTPFetcher settings
type Config struct {
	BaseURL         string
	APIToken        string
	Timeout         time.Duration
	MaxBodyBytes    int64
	RatePerSecond   float64 // 0 disables client-side limiting
	Burst           int
	AllowPrivateNet bool // skip the SSRF guard, for local sources
}

// postResponse is the JSON document served at {base}/posts/{id}
type postResponse struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Caption string          `json:"caption"`
	Recipe  json.RawMessage `json:"recipe"`
	URL     string          `json:"url"`
	Author  string          `json:"author"`
}

// HTTPFetcher fetches posts from a JSON HTTP API
type HTTPFetcher struct {
	baseURL  *url.URL
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	logger   *slog.Logger
}

// Option customizes an HTTPFetcher
type Option func(*HTTPFetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// NewHTTPFetcher creates a fetcher for the configured base URL. Unless
// AllowPrivateNet is set, requests go through an SSRF-safe client that
// refuses private, loopback and link-local addresses.
func NewHTTPFetcher(cfg Config, logger *slog.Logger, opts ...Option) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fetcher base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid fetcher base url scheme: %q", base.Scheme)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	f := &HTTPFetcher{
		baseURL:  base,
		token:    cfg.APIToken,
		limiter:  rate.NewLimiter(limit, burst),
		maxBytes: cfg.MaxBodyBytes,
		logger:   logger,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 1 << 20
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		if cfg.AllowPrivateNet {
			f.client = &http.Client{Timeout: cfg.Timeout}
		} else {
			f.client = newSafeClient(base, cfg.Timeout)
		}
	}

	return f, nil
}

func newSafeClient(base *url.URL, timeout time.Duration) *http.Client {
	ports := []int{80, 443}
	if p, err := strconv.Atoi(base.Port()); err == nil {
		ports = append(ports, p)
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client
}

// Fetch retrieves one post. Every failure is a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, postID string) (*recipe.RawContent, error) {
	if err := ValidatePostID(postID); err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Code: CodeTimeout, Message: "rate limiter wait aborted", Err: err}
	}

	endpoint := f.baseURL.JoinPath("posts", postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &FetchError{Code: CodeInvalidID, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		code := CodeUpstream
		if isTimeout(ctx, err) {
			code = CodeTimeout
		}
		f.logger.Warn("Post request failed",
			slog.String("post_id", postID),
			slog.String("code", string(code)),
			slog.Any("error", err),
		)
		return nil, &FetchError{Code: code, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if code := ClassifyHTTPStatus(resp.StatusCode); code != "" {
		f.logger.Warn("Post source returned an error status",
			slog.String("post_id", postID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", string(code)),
		)
		return nil, &FetchError{Code: code, Message: fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		code := CodeUpstream
		if isTimeout(ctx, err) {
			code = CodeTimeout
		}
		return nil, &FetchError{Code: code, Message: "failed to read response body", Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{Code: CodeInvalidResponse, Message: fmt.Sprintf("response body exceeds %d bytes", f.maxBytes)}
	}

	var post postResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, &FetchError{Code: CodeInvalidResponse, Message: "malformed post document", Err: err}
	}

	return &recipe.RawContent{
		PostID:     postID,
		Title:      post.Title,
		Caption:    post.Caption,
		Structured: post.Recipe,
		SourceURL:  post.URL,
		Author:     post.Author,
	}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
