package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

const sampleAwesomeList = `# Awesome Claude Skills

## Official

- [Skills Documentation](https://github.com/anthropics/skills) - Official documentation for skills
- [Awesome list](https://github.com/ComposioHQ/awesome-claude-skills/tree/master/extra) - This very list

## Document Processing

- [docx](https://github.com/anthropics/skills/tree/main/document-skills/docx) - Create, edit, and analyze Word documents. *By [@anthropics](https://github.com/anthropics)*
- [Playwright Tester](https://github.com/lackeyjb/playwright-skill) – Browser automation for web app testing
- [Deep Nested](https://github.com/acme/skills/tree/main/skills/nested/deep/) — Something nested
- [Not GitHub](https://gitlab.com/acme/skill) - Hosted elsewhere
- [Blob Link](https://github.com/acme/skills/blob/main/README.md) - Points at a file
- [No Dash](https://github.com/acme/nodash) missing separator
- Plain text item - no link at all
* [Star Bullet](https://github.com/acme/star) - Not a dash bullet
`

func TestParseAwesomeList(t *testing.T) {
	links := ParseAwesomeList([]byte(sampleAwesomeList), "awesome-claude-skills")
	require.Len(t, links, 3)

	assert.Equal(t, AwesomeSkill{
		Name:        "docx",
		Description: "Create, edit, and analyze Word documents",
		Owner:       "anthropics",
		Repo:        "skills",
		Folder:      "document-skills/docx",
		URL:         "https://github.com/anthropics/skills/tree/main/document-skills/docx",
	}, links[0])
	assert.Equal(t, "docx", links[0].ID())

	assert.Equal(t, "Playwright Tester", links[1].Name)
	assert.Equal(t, "Browser automation for web app testing", links[1].Description)
	assert.Equal(t, "", links[1].Folder)
	assert.Equal(t, "playwright-tester", links[1].ID())

	assert.Equal(t, "skills/nested/deep", links[2].Folder)
	assert.Equal(t, "deep", links[2].ID())
}

type awesomeServer struct {
	*httptest.Server
	mu    sync.Mutex
	body  string
	fail  bool
	delay time.Duration
	calls atomic.Int32
}

func newAwesomeServer(t *testing.T, body string) *awesomeServer {
	s := &awesomeServer{body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.mu.Lock()
		delay := s.delay
		s.mu.Unlock()
		time.Sleep(delay)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(s.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestAwesomeListSearch(t *testing.T) {
	server := newAwesomeServer(t, sampleAwesomeList)
	a := NewAwesomeList(config.AwesomeListConfig{Enabled: true, URL: server.URL + "/ComposioHQ/awesome-claude-skills/master/README.md"}, testRetry)
	ctx := context.Background()

	results, err := a.Search(ctx, "docx", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, skills.SearchResult{
		ID:          "docx",
		Name:        "docx",
		Source:      "anthropics/skills",
		Registry:    skills.RegistryAwesomeList,
		Description: "Create, edit, and analyze Word documents",
		URL:         "https://github.com/anthropics/skills/tree/main/document-skills/docx",
	}, results[0])

	results, err = a.Search(ctx, "browser testing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lackeyjb/playwright-skill", results[0].Source)

	assert.Equal(t, int32(1), server.calls.Load(), "list is downloaded once while fresh")
}

func TestAwesomeListRefreshesAfterTTL(t *testing.T) {
	server := newAwesomeServer(t, sampleAwesomeList)
	a := NewAwesomeList(config.AwesomeListConfig{Enabled: true, URL: server.URL, TTL: time.Minute}, testRetry)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := a.Search(ctx, "docx", 10)
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = a.Search(ctx, "docx", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.calls.Load())

	now = now.Add(time.Minute)
	_, err = a.Search(ctx, "docx", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.calls.Load())
}

func TestAwesomeListConcurrentSearchesRefreshOnce(t *testing.T) {
	server := newAwesomeServer(t, sampleAwesomeList)
	a := NewAwesomeList(config.AwesomeListConfig{Enabled: true, URL: server.URL, TTL: time.Minute}, testRetry)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, a.Refresh(ctx))
	now = now.Add(2 * time.Minute)
	server.mu.Lock()
	server.delay = 50 * time.Millisecond
	server.mu.Unlock()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := a.Search(ctx, "docx", 10)
			assert.NoError(t, err)
			assert.Len(t, results, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), server.calls.Load(), "expired list is downloaded once")

	require.NoError(t, a.Refresh(ctx))
	assert.Equal(t, int32(3), server.calls.Load(), "explicit refresh always downloads")
}

func TestAwesomeListKeepsStaleListOnFailure(t *testing.T) {
	server := newAwesomeServer(t, sampleAwesomeList)
	a := NewAwesomeList(config.AwesomeListConfig{Enabled: true, URL: server.URL, TTL: time.Minute}, config.RetryConfig{Attempts: 1})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, a.Refresh(ctx))

	server.mu.Lock()
	server.fail = true
	server.mu.Unlock()
	now = now.Add(2 * time.Minute)

	assert.Error(t, a.Refresh(ctx))
	results, err := a.Search(ctx, "docx", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1, "stale list still served")
}

func TestAwesomeListFailsWithoutCachedList(t *testing.T) {
	server := newAwesomeServer(t, "")
	server.fail = true
	a := NewAwesomeList(config.AwesomeListConfig{Enabled: true, URL: server.URL}, config.RetryConfig{Attempts: 1})

	_, err := a.Search(context.Background(), "docx", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch awesome list")
}

func TestListRepoName(t *testing.T) {
	assert.Equal(t, "awesome-claude-skills", listRepoName(DefaultAwesomeListURL))
	assert.Equal(t, "my-list", listRepoName("https://raw.githubusercontent.com/me/my-list/main/README.md"))
	assert.Equal(t, "awesome-claude-skills", listRepoName("https://example.com/"))
}
