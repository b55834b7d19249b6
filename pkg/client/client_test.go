package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillgarden/pkg/api"
	"github.com/jingkaihe/skillgarden/pkg/cache"
	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/httputil"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

type stubService struct {
	searchFunc func(ctx context.Context, req skills.SearchRequest) (*skills.SearchResponse, error)
	lastSearch skills.SearchRequest
	lastGet    []any
}

func (s *stubService) Search(ctx context.Context, req skills.SearchRequest) (*skills.SearchResponse, error) {
	s.lastSearch = req
	if s.searchFunc != nil {
		return s.searchFunc(ctx, req)
	}
	content := "# React"
	return &skills.SearchResponse{
		Query: req.Query,
		Count: 1,
		Skills: []*skills.Skill{{
			ID:             "react-best-practices",
			Title:          "React Best Practices",
			Source:         "vercel-labs/agent-skills",
			Registry:       skills.RegistryMarketplace,
			RelevanceScore: 85,
			Content:        &content,
		}},
	}, nil
}

func (s *stubService) GetSkill(_ context.Context, source, skillID string, includeRaw, includeReferences bool) (*skills.Skill, bool) {
	s.lastGet = []any{source, skillID, includeRaw, includeReferences}
	if source != "anthropics/skills" {
		return nil, false
	}
	return &skills.Skill{ID: skillID, Title: "Docx", Source: source}, true
}

func (s *stubService) AddSkill(context.Context, string, bool) (*skills.Skill, error) {
	return nil, errors.New("not implemented")
}

func (s *stubService) CacheStats(context.Context) cache.Stats {
	return cache.Stats{Size: 2, MaxSize: 1000, Hits: 3, Misses: 1, HitRate: 75}
}

func (s *stubService) Sources() []skills.SourceInfo {
	return []skills.SourceInfo{{Name: skills.RegistryMarketplace, Enabled: true}}
}

func (s *stubService) Refresh(context.Context) error { return nil }

func (s *stubService) Close() error { return nil }

func newTestClient(t *testing.T, svc *stubService, opts ...Option) *Client {
	t.Helper()
	s, err := api.NewServer(svc, &api.ServerConfig{Host: "localhost", Port: 8000})
	require.NoError(t, err)
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetry(config.RetryConfig{Attempts: 1})}, opts...)
	c, err := New(server.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL.String())
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Equal(t, config.DefaultRetryConfig, c.retry)

	_, err = New("ftp://example.com")
	assert.Error(t, err)
	_, err = New("://bad")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	svc := &stubService{}
	c := newTestClient(t, svc)

	resp, err := c.Search(context.Background(), skills.SearchRequest{
		Query:             "react",
		Limit:             3,
		IncludeContent:    true,
		IncludeReferences: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "react", resp.Query)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Skills, 1)
	assert.Equal(t, "react-best-practices", resp.Skills[0].ID)
	assert.Equal(t, 85.0, resp.Skills[0].RelevanceScore)
	require.NotNil(t, resp.Skills[0].Content)
	assert.Equal(t, "# React", *resp.Skills[0].Content)

	assert.Equal(t, skills.SearchRequest{Query: "react", Limit: 3, IncludeContent: true, IncludeReferences: true}, svc.lastSearch)
}

func TestSearchZeroLimitUsesServerDefault(t *testing.T) {
	svc := &stubService{}
	c := newTestClient(t, svc)

	_, err := c.Search(context.Background(), skills.SearchRequest{Query: "react"})
	require.NoError(t, err)
	assert.Equal(t, api.DefaultLimit, svc.lastSearch.Limit)
	assert.False(t, svc.lastSearch.IncludeContent)

	_, err = c.SearchQuery(context.Background(), "react", 0)
	require.NoError(t, err)
	assert.Equal(t, api.DefaultLimit, svc.lastSearch.Limit)
	assert.True(t, svc.lastSearch.IncludeContent)
}

func TestSearchQuery(t *testing.T) {
	svc := &stubService{}
	c := newTestClient(t, svc)

	resp, err := c.SearchQuery(context.Background(), "react & testing", 7)
	require.NoError(t, err)
	assert.Equal(t, "react & testing", resp.Query)
	assert.Equal(t, "react & testing", svc.lastSearch.Query)
	assert.Equal(t, 7, svc.lastSearch.Limit)
}

func TestSearchValidationError(t *testing.T) {
	c := newTestClient(t, &stubService{})

	_, err := c.Search(context.Background(), skills.SearchRequest{Query: "  "})
	require.Error(t, err)

	var statusErr *httputil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, http.MethodPost, statusErr.Method)
	assert.Equal(t, "query must not be empty", statusErr.Message)
}

func TestSearchServerFailure(t *testing.T) {
	svc := &stubService{
		searchFunc: func(context.Context, skills.SearchRequest) (*skills.SearchResponse, error) {
			return nil, errors.New("registry down")
		},
	}
	c := newTestClient(t, svc)

	_, err := c.SearchQuery(context.Background(), "react", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502: search failed")
}

func TestGetSkill(t *testing.T) {
	svc := &stubService{}
	c := newTestClient(t, svc)

	skill, err := c.GetSkill(context.Background(), "anthropics/skills", "document-skills/docx", GetSkillOptions{IncludeReferences: true})
	require.NoError(t, err)
	assert.Equal(t, "document-skills/docx", skill.ID)
	assert.Equal(t, "Docx", skill.Title)
	assert.Equal(t, []any{"anthropics/skills", "document-skills/docx", false, true}, svc.lastGet)

	_, err = c.GetSkill(context.Background(), "acme/missing", "nope", GetSkillOptions{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Skill not found: acme/missing/nope")
}

func TestGetSkillInvalidArguments(t *testing.T) {
	c := newTestClient(t, &stubService{})

	for _, source := range []string{"", "noslash", "/repo", "owner/", "a/b/c"} {
		_, err := c.GetSkill(context.Background(), source, "x", GetSkillOptions{})
		assert.Error(t, err, source)
	}
	_, err := c.GetSkill(context.Background(), "a/b", "/", GetSkillOptions{})
	assert.Error(t, err)
}

func TestHealthAndSources(t *testing.T) {
	c := newTestClient(t, &stubService{})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.CacheStats.Size)
	assert.Equal(t, 75.0, health.CacheStats.HitRate)

	sources, err := c.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []skills.SourceInfo{{Name: skills.RegistryMarketplace, Enabled: true}}, sources.Sources)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy","version":"dev","cache_stats":{}}`))
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetry(config.RetryConfig{
		Attempts:     3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		BackoffType:  "fixed",
	}))
	require.NoError(t, err)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetry(config.RetryConfig{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}
