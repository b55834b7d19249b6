// Package client is a Go client for the skillgarden REST API served by
// "skillgarden serve".
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillgarden/pkg/api"
	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/httputil"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

const (
	// DefaultBaseURL is where "skillgarden serve" listens by default
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds every request, including searches that fetch content
	DefaultTimeout = 60 * time.Second

	userAgent = "skillgarden-client"
)

// Client calls a skillgarden server
type Client struct {
	baseURL *url.URL
	http    *http.Client
	retry   config.RetryConfig
}

type clientOptions struct {
	timeout    time.Duration
	retry      config.RetryConfig
	httpClient *http.Client
}

// Option configures a Client
type Option func(*clientOptions)

// WithHTTPClient sets the underlying HTTP client; WithTimeout is then ignored
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithRetry sets the retry policy for transport failures and 5xx answers
func WithRetry(cfg config.RetryConfig) Option {
	return func(o *clientOptions) {
		o.retry = cfg
	}
}

// New creates a client for the server at baseURL, DefaultBaseURL when empty
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base URL must be http or https, got %q", baseURL)
	}

	o := clientOptions{
		timeout: DefaultTimeout,
		retry:   config.DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	return &Client{baseURL: u, http: httpClient, retry: o.retry}, nil
}

// searchBody mirrors the POST /search body; a zero limit is left to the server
type searchBody struct {
	Query             string `json:"query"`
	Limit             *int   `json:"limit,omitempty"`
	IncludeContent    bool   `json:"include_content"`
	IncludeRaw        bool   `json:"include_raw"`
	IncludeReferences bool   `json:"include_references"`
}

// Search runs a search through POST /search
func (c *Client) Search(ctx context.Context, req skills.SearchRequest) (*skills.SearchResponse, error) {
	body := searchBody{
		Query:             req.Query,
		IncludeContent:    req.IncludeContent,
		IncludeRaw:        req.IncludeRaw,
		IncludeReferences: req.IncludeReferences,
	}
	if req.Limit > 0 {
		body.Limit = &req.Limit
	}

	var resp skills.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchQuery runs a search through GET /search with the server's defaults
// for everything but the query and limit. A limit of zero is omitted.
func (c *Client) SearchQuery(ctx context.Context, query string, limit int) (*skills.SearchResponse, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp skills.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/search", params, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSkillOptions selects the optional parts of GetSkill's answer
type GetSkillOptions struct {
	IncludeRaw        bool
	IncludeReferences bool
}

// GetSkill fetches one skill of an owner/repo source. A missing skill is
// reported as an error for which IsNotFound holds.
func (c *Client) GetSkill(ctx context.Context, source, skillID string, opts GetSkillOptions) (*skills.Skill, error) {
	owner, repo, ok := strings.Cut(source, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, errors.Errorf("invalid source %q, expected owner/repo", source)
	}
	if strings.Trim(skillID, "/") == "" {
		return nil, errors.New("skill id cannot be empty")
	}

	segments := []string{"skills", url.PathEscape(owner), url.PathEscape(repo)}
	for _, part := range strings.Split(strings.Trim(skillID, "/"), "/") {
		segments = append(segments, url.PathEscape(part))
	}

	params := url.Values{}
	if opts.IncludeRaw {
		params.Set("include_raw", "true")
	}
	if opts.IncludeReferences {
		params.Set("include_references", "true")
	}

	var skill skills.Skill
	if err := c.do(ctx, http.MethodGet, "/"+strings.Join(segments, "/"), params, nil, &skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

// Health reports the server status and cache statistics
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sources lists the server's skill sources
func (c *Client) Sources(ctx context.Context) (*api.SourcesResponse, error) {
	var resp api.SourcesResponse
	if err := c.do(ctx, http.MethodGet, "/sources", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IsNotFound reports whether err is a 404 answer
func IsNotFound(err error) bool {
	var statusErr *httputil.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = params.Encode()
	target := u.String()

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
	}

	return httputil.Retry(ctx, c.retry, method+" "+path, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return httputil.Unrecoverable(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(method, target, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return httputil.Unrecoverable(errors.Wrapf(err, "failed to decode %s %s response", method, path))
		}
		return nil
	})
}

// statusError carries the message of the server's ErrorResponse body when present
func statusError(method, target string, resp *http.Response) error {
	statusErr := &httputil.StatusError{Method: method, URL: target, StatusCode: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		statusErr.Message = body.Error
	}
	return statusErr
}
