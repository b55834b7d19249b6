package github

import (
	"context"
	"fmt"
	"path"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
	"github.com/jingkaihe/skillgarden/pkg/telemetry"
)

const maxParallelReferences = 8

// RepoTreeInfo is the cached listing of a repository
type RepoTreeInfo struct {
	Branch string
	Tree   map[string]string // every blob path to its sha
	Skills map[string]string // the subset of Tree named SKILL.md
}

// FetchResult is the outcome of fetching a skill document. Error is empty
// exactly when Content was retrieved.
type FetchResult struct {
	Content    string
	RawURL     string
	SkillDir   string
	References []skills.Reference
	Error      string
}

// OK reports whether the fetch succeeded
func (r FetchResult) OK() bool {
	return r.Error == ""
}

// Fetcher retrieves skill documents, caching repository trees for the
// lifetime of the process. Repositories that could not be listed are
// remembered too and are only retried after Invalidate or Reset.
type Fetcher struct {
	client *Client

	mu    sync.Mutex
	trees map[string]*RepoTreeInfo // nil value marks an inaccessible repository
	group singleflight.Group
}

// NewFetcher creates a Fetcher backed by client
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{
		client: client,
		trees:  map[string]*RepoTreeInfo{},
	}
}

// Fetch locates skillID inside repo and downloads its SKILL.md, plus its
// reference documents when includeReferences is set. Failures are reported in
// FetchResult.Error.
func (f *Fetcher) Fetch(ctx context.Context, repo, skillID string, includeReferences bool) FetchResult {
	log := logger.G(ctx).WithField("repo", repo).WithField("skill_id", skillID)

	info, ok := f.repoTree(ctx, repo)
	if !ok {
		return FetchResult{Error: fmt.Sprintf("could not access repository %s", repo)}
	}
	if len(info.Skills) == 0 {
		return FetchResult{Error: fmt.Sprintf("no SKILL.md files found in %s", repo)}
	}

	skillPath, ok := FindSkillPath(info.Skills, skillID)
	if !ok {
		return FetchResult{Error: "could not locate skill content in repository"}
	}

	content, err := f.client.RawContent(ctx, repo, info.Branch, skillPath)
	if err != nil || content == "" {
		log.WithError(err).WithField("path", skillPath).Debug("failed to fetch skill content")
		return FetchResult{Error: fmt.Sprintf("failed to fetch content from %s/%s", repo, skillPath)}
	}

	result := FetchResult{
		Content:  content,
		RawURL:   f.client.RawURL(repo, info.Branch, skillPath),
		SkillDir: SkillDir(skillPath),
	}
	log.WithField("raw_url", result.RawURL).Debug("found skill")

	if includeReferences {
		result.References = f.fetchReferences(ctx, repo, info, result.SkillDir)
	}
	return result
}

// Branch returns the default branch of repo if its tree is cached
func (f *Fetcher) Branch(repo string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.trees[repo]
	if info == nil {
		return "", false
	}
	return info.Branch, true
}

// GitHubURL returns the web page of a skill using the cached branch when known
func (f *Fetcher) GitHubURL(source, skillID string) string {
	branch, _ := f.Branch(source)
	return GitHubURL(source, skillID, branch)
}

// Invalidate forgets the cached tree of repo, successful or not
func (f *Fetcher) Invalidate(repo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.trees, repo)
}

// Reset forgets every cached tree
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees = map[string]*RepoTreeInfo{}
}

func (f *Fetcher) repoTree(ctx context.Context, repo string) (*RepoTreeInfo, bool) {
	f.mu.Lock()
	info, cached := f.trees[repo]
	f.mu.Unlock()
	if cached {
		return info, info != nil
	}

	if ctx.Err() != nil {
		return nil, false
	}

	// The shared load outlives any single caller; the client timeout bounds it.
	ch := f.group.DoChan(repo, func() (any, error) {
		info := f.loadTree(context.WithoutCancel(ctx), repo)
		f.mu.Lock()
		f.trees[repo] = info
		f.mu.Unlock()
		return info, nil
	})

	select {
	case <-ctx.Done():
		return nil, false
	case res := <-ch:
		info = res.Val.(*RepoTreeInfo)
		return info, info != nil
	}
}

func (f *Fetcher) loadTree(ctx context.Context, repo string) *RepoTreeInfo {
	var info *RepoTreeInfo
	err := telemetry.WithSpan(ctx, "github.load_tree", func(ctx context.Context) error {
		branch, err := f.client.DefaultBranch(ctx, repo)
		if err != nil {
			return err
		}
		tree, err := f.client.Tree(ctx, repo, branch)
		if err != nil {
			return err
		}

		skillPaths := map[string]string{}
		for p, sha := range tree {
			if path.Base(p) == skills.FileName {
				skillPaths[p] = sha
			}
		}
		telemetry.SetAttributes(ctx,
			attribute.String("github.branch", branch),
			attribute.Int("github.tree_size", len(tree)),
			attribute.Int("github.skill_count", len(skillPaths)),
		)
		info = &RepoTreeInfo{Branch: branch, Tree: tree, Skills: skillPaths}
		return nil
	}, attribute.String("github.repo", repo))
	if err != nil {
		logger.G(ctx).WithError(err).WithField("repo", repo).Warn("could not list repository")
		return nil
	}

	logger.G(ctx).WithField("repo", repo).
		WithField("branch", info.Branch).
		WithField("skills", len(info.Skills)).
		Debug("listed repository tree")
	return info
}

func (f *Fetcher) fetchReferences(ctx context.Context, repo string, info *RepoTreeInfo, skillDir string) []skills.Reference {
	files := FindReferenceFiles(info.Tree, skillDir)
	if len(files) == 0 {
		return nil
	}

	refs := make([]skills.Reference, len(files))
	var g errgroup.Group
	g.SetLimit(maxParallelReferences)
	for i, file := range files {
		g.Go(func() error {
			ref := skills.Reference{
				Name:   file.Name,
				Path:   file.Path,
				RawURL: f.client.RawURL(repo, info.Branch, file.Path),
			}
			content, err := f.client.RawContent(ctx, repo, info.Branch, file.Path)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("path", file.Path).Debug("failed to fetch reference")
			} else {
				ref.Content = &content
			}
			refs[i] = ref
			return nil
		})
	}
	_ = g.Wait()

	logger.G(ctx).WithField("repo", repo).WithField("references", len(refs)).Debug("fetched reference files")
	return refs
}
