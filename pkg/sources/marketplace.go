package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

const (
	// DefaultMarketplaceURL is the skills.sh API root
	DefaultMarketplaceURL = "https://skills.sh"

	marketplaceSearchPath = "/api/search"
)

// Marketplace searches the skills.sh marketplace API. It is the only source
// that reports install counts.
type Marketplace struct {
	baseURL string
	enabled bool
	client  *http.Client
	retry   config.RetryConfig
}

// NewMarketplace creates a skills.sh source
func NewMarketplace(cfg config.MarketplaceConfig, retry config.RetryConfig) *Marketplace {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultMarketplaceURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Marketplace{
		baseURL: baseURL,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

func (m *Marketplace) Name() string  { return skills.RegistryMarketplace }
func (m *Marketplace) Enabled() bool { return m.enabled }

// Search queries the marketplace; failures are returned to the caller
func (m *Marketplace) Search(ctx context.Context, query string, limit int) ([]skills.SearchResult, error) {
	if !m.enabled {
		return nil, nil
	}

	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	body, err := getWithRetry(ctx, m.client, m.baseURL+marketplaceSearchPath+"?"+params.Encode(), "application/json", m.retry)
	if err != nil {
		return nil, errors.Wrap(err, "skills.sh search failed")
	}

	results, err := parseMarketplaceResponse(body)
	if err != nil {
		return nil, err
	}
	logger.G(ctx).WithField("query", query).WithField("results", len(results)).Debug("skills.sh search")
	return results, nil
}

// Refresh is a no-op: every search hits the live API
func (m *Marketplace) Refresh(context.Context) error { return nil }

func (m *Marketplace) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// parseMarketplaceResponse reads {"skills":[{"id","name","topSource","installs"}]}
func parseMarketplaceResponse(body []byte) ([]skills.SearchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("skills.sh returned invalid JSON")
	}

	var results []skills.SearchResult
	gjson.GetBytes(body, "skills").ForEach(func(_, s gjson.Result) bool {
		id := s.Get("id").String()
		if id == "" {
			return true
		}
		name := s.Get("name").String()
		if name == "" {
			name = id
		}
		source := s.Get("topSource").String()
		if source == "" {
			// ids of the form owner/repo/skill carry their repository
			if parts := strings.Split(id, "/"); len(parts) >= 3 {
				source = parts[0] + "/" + parts[1]
				id = strings.Join(parts[2:], "/")
			}
		}

		results = append(results, skills.SearchResult{
			ID:       id,
			Name:     name,
			Source:   source,
			Registry: skills.RegistryMarketplace,
			Installs: s.Get("installs").Int(),
		})
		return true
	})
	return results, nil
}
