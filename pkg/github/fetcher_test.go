package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillgarden/pkg/config"
)

// fakeGitHub serves the repository and tree API under /api and raw files under /raw
type fakeGitHub struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	branches map[string]string            // repo -> default branch
	files    map[string]map[string]string // repo -> path -> content
	failRaw  map[string]int               // raw path -> remaining 502 responses

	repoRequests atomic.Int32
	treeRequests atomic.Int32
	rawRequests  atomic.Int32
	treeDelay    time.Duration
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{
		t:        t,
		branches: map[string]string{},
		files:    map[string]map[string]string{},
		failRaw:  map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) addRepo(repo, branch string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[repo] = branch
	f.files[repo] = files
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/repos/"):
		rest := strings.TrimPrefix(r.URL.Path, "/api/repos/")
		parts := strings.SplitN(rest, "/", 3)
		repo := parts[0] + "/" + parts[1]
		branch, ok := f.branches[repo]

		if len(parts) == 2 {
			f.repoRequests.Add(1)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"full_name": repo, "default_branch": branch})
			return
		}

		f.treeRequests.Add(1)
		if f.treeDelay > 0 {
			f.mu.Unlock()
			time.Sleep(f.treeDelay)
			f.mu.Lock()
		}
		assert.Equal(f.t, "1", r.URL.Query().Get("recursive"))
		var entries []map[string]any
		for p := range f.files[repo] {
			entries = append(entries, map[string]any{"path": p, "type": "blob", "sha": "sha-" + p})
		}
		entries = append(entries, map[string]any{"path": "skills", "type": "tree", "sha": "dir"})
		_ = json.NewEncoder(w).Encode(map[string]any{"sha": branch, "tree": entries, "truncated": false})

	case strings.HasPrefix(r.URL.Path, "/raw/"):
		f.rawRequests.Add(1)
		rest := strings.TrimPrefix(r.URL.Path, "/raw/")
		parts := strings.SplitN(rest, "/", 4)
		if len(parts) < 4 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		repo, filePath := parts[0]+"/"+parts[1], parts[3]
		if n := f.failRaw[filePath]; n > 0 {
			f.failRaw[filePath] = n - 1
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		content, ok := f.files[repo][filePath]
		if !ok || parts[2] != f.branches[repo] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGitHub) client(t *testing.T, retry config.RetryConfig) *Client {
	t.Helper()
	c, err := NewClient(context.Background(),
		WithAPIURL(f.server.URL+"/api"),
		WithRawURL(f.server.URL+"/raw/"),
		WithTimeout(5*time.Second),
		WithRetry(retry),
	)
	require.NoError(t, err)
	return c
}

var noRetry = config.RetryConfig{Attempts: 1}

const reactSkill = "---\nname: react-best-practices\n---\n# React\n"

func TestFetcherFetch(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.addRepo("vercel-labs/agent-skills", "main", map[string]string{
		"skills/react-best-practices/SKILL.md":        reactSkill,
		"skills/react-best-practices/rules.md":        "# Rules",
		"skills/react-best-practices/references/a.md": "# A",
		"skills/web-design/SKILL.md":                  "# Web",
	})
	fetcher := NewFetcher(gh.client(t, noRetry))

	result := fetcher.Fetch(context.Background(), "vercel-labs/agent-skills", "vercel-react-best-practices", false)
	require.True(t, result.OK(), result.Error)
	assert.Equal(t, reactSkill, result.Content)
	assert.Equal(t, gh.server.URL+"/raw/vercel-labs/agent-skills/main/skills/react-best-practices/SKILL.md", result.RawURL)
	assert.Equal(t, "skills/react-best-practices", result.SkillDir)
	assert.Empty(t, result.References)

	branch, ok := fetcher.Branch("vercel-labs/agent-skills")
	require.True(t, ok)
	assert.Equal(t, "main", branch)
	assert.Equal(t, "https://github.com/vercel-labs/agent-skills/tree/main/skills/web-design",
		fetcher.GitHubURL("vercel-labs/agent-skills", "web-design"))
}

func TestFetcherFetchReferences(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.addRepo("acme/skills", "trunk", map[string]string{
		"react/SKILL.md":            reactSkill,
		"react/rules.md":            "# Rules",
		"react/references/hooks.md": "# Hooks",
		"react/docs/missing.md":     "# Missing",
	})
	gh.mu.Lock()
	gh.failRaw["react/docs/missing.md"] = 100
	gh.mu.Unlock()
	fetcher := NewFetcher(gh.client(t, noRetry))

	result := fetcher.Fetch(context.Background(), "acme/skills", "react", true)
	require.True(t, result.OK(), result.Error)
	require.Len(t, result.References, 3)

	byPath := map[string]*string{}
	for _, ref := range result.References {
		byPath[ref.Path] = ref.Content
		assert.Equal(t, gh.server.URL+"/raw/acme/skills/trunk/"+ref.Path, ref.RawURL)
	}
	require.NotNil(t, byPath["react/rules.md"])
	assert.Equal(t, "# Rules", *byPath["react/rules.md"])
	require.NotNil(t, byPath["react/references/hooks.md"])
	assert.Equal(t, "# Hooks", *byPath["react/references/hooks.md"])
	assert.Nil(t, byPath["react/docs/missing.md"], "failed reference keeps nil content")

	assert.Equal(t, "rules.md", result.References[0].Name)
}

func TestFetcherErrors(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.addRepo("acme/empty", "main", map[string]string{"README.md": "# hi"})
	gh.addRepo("acme/many", "main", map[string]string{
		"skills/a/SKILL.md": "a",
		"skills/b/SKILL.md": "b",
	})
	gh.addRepo("acme/blank", "main", map[string]string{"skills/a/SKILL.md": ""})
	fetcher := NewFetcher(gh.client(t, noRetry))
	ctx := context.Background()

	tests := []struct {
		repo    string
		skillID string
		err     string
	}{
		{"acme/missing", "a", "could not access repository acme/missing"},
		{"acme/empty", "a", "no SKILL.md files found in acme/empty"},
		{"acme/many", "zzz", "could not locate skill content in repository"},
		{"acme/blank", "a", "failed to fetch content from acme/blank/skills/a/SKILL.md"},
	}
	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			result := fetcher.Fetch(ctx, tt.repo, tt.skillID, false)
			assert.False(t, result.OK())
			assert.Equal(t, tt.err, result.Error)
			assert.Empty(t, result.Content)
		})
	}
}

func TestFetcherCachesInaccessibleRepositories(t *testing.T) {
	gh := newFakeGitHub(t)
	fetcher := NewFetcher(gh.client(t, noRetry))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := fetcher.Fetch(ctx, "acme/private", "a", false)
		assert.Equal(t, "could not access repository acme/private", result.Error)
	}
	assert.Equal(t, int32(1), gh.repoRequests.Load())

	gh.addRepo("acme/private", "main", map[string]string{"skills/a/SKILL.md": "# A"})
	fetcher.Invalidate("acme/private")

	result := fetcher.Fetch(ctx, "acme/private", "a", false)
	require.True(t, result.OK(), result.Error)
	assert.Equal(t, int32(2), gh.repoRequests.Load())

	fetcher.Reset()
	_, ok := fetcher.Branch("acme/private")
	assert.False(t, ok)
}

func TestFetcherCoalescesConcurrentTreeLoads(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.treeDelay = 50 * time.Millisecond
	gh.addRepo("acme/skills", "main", map[string]string{
		"skills/a/SKILL.md": "# A",
		"skills/b/SKILL.md": "# B",
	})
	fetcher := NewFetcher(gh.client(t, noRetry))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			result := fetcher.Fetch(context.Background(), "acme/skills", id, false)
			assert.True(t, result.OK(), result.Error)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), gh.treeRequests.Load())
	assert.Equal(t, int32(1), gh.repoRequests.Load())
}

func TestFetcherDoesNotCacheCancelledLoads(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.addRepo("acme/skills", "main", map[string]string{"skills/a/SKILL.md": "# A"})
	fetcher := NewFetcher(gh.client(t, noRetry))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := fetcher.Fetch(ctx, "acme/skills", "a", false)
	assert.False(t, result.OK())
	assert.Equal(t, int32(0), gh.repoRequests.Load())

	result = fetcher.Fetch(context.Background(), "acme/skills", "a", false)
	assert.True(t, result.OK(), result.Error)
}

func TestFetcherSharedLoadSurvivesCancelledCaller(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.treeDelay = 300 * time.Millisecond
	gh.addRepo("acme/skills", "main", map[string]string{"skills/a/SKILL.md": "# A"})
	fetcher := NewFetcher(gh.client(t, noRetry))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	first := make(chan FetchResult, 1)
	go func() { first <- fetcher.Fetch(firstCtx, "acme/skills", "a", false) }()
	require.Eventually(t, func() bool { return gh.treeRequests.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan FetchResult, 1)
	go func() { second <- fetcher.Fetch(context.Background(), "acme/skills", "a", false) }()
	time.Sleep(50 * time.Millisecond)
	cancelFirst()

	assert.False(t, (<-first).OK(), "cancelled caller gets no result")

	result := <-second
	require.True(t, result.OK(), result.Error)
	assert.Equal(t, "# A", result.Content)
	assert.Equal(t, int32(1), gh.treeRequests.Load())

	// the tree finished loading and is cached for later callers
	branch, ok := fetcher.Branch("acme/skills")
	require.True(t, ok)
	assert.Equal(t, "main", branch)
}
