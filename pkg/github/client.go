// Package github locates and downloads SKILL.md documents from GitHub
// repositories. It lists repository trees through the REST API, resolves a
// skill id to a path inside the tree and fetches raw file contents.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/httputil"
	"github.com/jingkaihe/skillgarden/pkg/logger"
)

const (
	// DefaultRawURL serves raw file contents of public repositories
	DefaultRawURL = "https://raw.githubusercontent.com"
	// DefaultTimeout bounds every request made by the client
	DefaultTimeout = 10 * time.Second

	userAgent = "skillgarden"
)

// Client wraps the GitHub API client together with raw content access
type Client struct {
	gh     *github.Client
	http   *http.Client
	rawURL string
	retry  config.RetryConfig
}

type clientOptions struct {
	token      string
	apiURL     string
	rawURL     string
	timeout    time.Duration
	retry      config.RetryConfig
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*clientOptions)

// WithToken authenticates API calls with a personal access token
func WithToken(token string) ClientOption {
	return func(o *clientOptions) { o.token = token }
}

// WithAPIURL points the client at a different REST API root
func WithAPIURL(apiURL string) ClientOption {
	return func(o *clientOptions) { o.apiURL = apiURL }
}

// WithRawURL points the client at a different raw content host
func WithRawURL(rawURL string) ClientOption {
	return func(o *clientOptions) { o.rawURL = rawURL }
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = timeout }
}

// WithRetry sets the retry policy for transient failures
func WithRetry(cfg config.RetryConfig) ClientOption {
	return func(o *clientOptions) { o.retry = cfg }
}

// WithHTTPClient sets the underlying transport client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// NewClient creates a new GitHub client, authenticated when a token is given
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	o := clientOptions{
		rawURL:  DefaultRawURL,
		timeout: DefaultTimeout,
		retry:   config.DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		base = &copied
	}

	log := logger.G(ctx)
	httpClient := base
	if o.token == "" {
		log.Warn("no GitHub token provided - API rate limits will be restricted")
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.token})
		httpClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
		log.Debug("GitHub client initialized with authentication")
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = o.timeout
	}

	gh := github.NewClient(httpClient)
	gh.UserAgent = userAgent
	if o.apiURL != "" {
		apiURL := o.apiURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid GitHub API URL %q", o.apiURL)
		}
		gh.BaseURL = u
	}

	return &Client{
		gh:     gh,
		http:   httpClient,
		rawURL: strings.TrimRight(o.rawURL, "/"),
		retry:  o.retry,
	}, nil
}

// SplitRepo splits "owner/repo" into its two parts
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Errorf("invalid repository %q, expected owner/repo", repo)
	}
	return owner, name, nil
}

// DefaultBranch returns the default branch of repo
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return "", err
	}

	var branch string
	err = c.executeWithRetry(ctx, "get repository", func() error {
		r, _, err := c.gh.Repositories.Get(ctx, owner, name)
		if err != nil {
			return err
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get repository %s", repo)
	}
	if branch == "" {
		branch = "main"
	}
	return branch, nil
}

// Tree lists every blob of repo at branch as a path to sha map
func (c *Client) Tree(ctx context.Context, repo, branch string) (map[string]string, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	var tree *github.Tree
	err = c.executeWithRetry(ctx, "get tree", func() error {
		t, _, err := c.gh.Git.GetTree(ctx, owner, name, branch, true)
		if err != nil {
			return err
		}
		tree = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get tree of %s@%s", repo, branch)
	}

	if tree.GetTruncated() {
		logger.G(ctx).WithField("repo", repo).Warn("repository tree was truncated by the API")
	}

	blobs := make(map[string]string, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			blobs[entry.GetPath()] = entry.GetSHA()
		}
	}
	return blobs, nil
}

// RawURL returns the raw content URL of a file
func (c *Client) RawURL(repo, branch, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.rawURL, repo, branch, strings.TrimLeft(path, "/"))
}

// RawContent downloads a file from the raw content host
func (c *Client) RawContent(ctx context.Context, repo, branch, path string) (string, error) {
	rawURL := c.RawURL(repo, branch, path)

	var body string
	err := c.executeWithRetry(ctx, "get raw content", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return httputil.Unrecoverable(err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &httputil.StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(b)
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	return httputil.Retry(ctx, c.retry, "GitHub "+operation, fn, httputil.WithRetryIf(isRetryableError))
}

// isRetryableError extends httputil.IsRetryable with the API's error types:
// rate limits are never retried, other API errors only on 5xx.
func isRetryableError(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return false
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && !errors.Is(err, context.Canceled) {
		return respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError
	}
	return httputil.IsRetryable(err)
}
