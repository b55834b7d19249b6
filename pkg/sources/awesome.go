package sources

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark/ast"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

const (
	// DefaultAwesomeListURL is the README of the community awesome-claude-skills list
	DefaultAwesomeListURL = "https://raw.githubusercontent.com/ComposioHQ/awesome-claude-skills/master/README.md"
	// DefaultAwesomeListTTL is how long a downloaded list stays fresh
	DefaultAwesomeListTTL = time.Hour

	awesomeTermWeight = 0.5
	awesomeSelfRepo   = "awesome-claude-skills"
)

// awesomeExcludeKeywords mark links to documentation rather than skills
var awesomeExcludeKeywords = []string{"documentation", "official", "anthropic.com", "blog", "guide"}

// AwesomeSkill is a skill link parsed from the awesome-list README
type AwesomeSkill struct {
	Name        string
	Description string
	Owner       string
	Repo        string
	Folder      string // path of the skill inside the repository, if linked directly
	URL         string
}

// ID is the last folder of a direct link, else the slugified name
func (s AwesomeSkill) ID() string {
	if f := strings.TrimRight(s.Folder, "/"); f != "" {
		return f[strings.LastIndex(f, "/")+1:]
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s.Name)), " ", "-")
}

// AwesomeList searches the community-maintained awesome-list README. The list
// is downloaded lazily and kept for its TTL; a failed refresh keeps serving
// the previous list.
type AwesomeList struct {
	url      string
	enabled  bool
	ttl      time.Duration
	selfRepo string
	client   *http.Client
	retry    config.RetryConfig
	now      func() time.Time

	refreshMu sync.Mutex
	mu        sync.RWMutex
	links     []AwesomeSkill
	updated   time.Time
}

// NewAwesomeList creates an awesome-list source
func NewAwesomeList(cfg config.AwesomeListConfig, retry config.RetryConfig) *AwesomeList {
	listURL := cfg.URL
	if listURL == "" {
		listURL = DefaultAwesomeListURL
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAwesomeListTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AwesomeList{
		url:      listURL,
		enabled:  cfg.Enabled,
		ttl:      ttl,
		selfRepo: listRepoName(listURL),
		client:   &http.Client{Timeout: timeout},
		retry:    retry,
		now:      time.Now,
	}
}

func (a *AwesomeList) Name() string  { return skills.RegistryAwesomeList }
func (a *AwesomeList) Enabled() bool { return a.enabled }

func (a *AwesomeList) Search(ctx context.Context, query string, limit int) ([]skills.SearchResult, error) {
	if !a.enabled {
		return nil, nil
	}

	if !a.fresh() {
		if err := a.refresh(ctx, false); err != nil {
			if len(a.Skills()) == 0 {
				return nil, err
			}
			logger.G(ctx).WithError(err).Warn("awesome list refresh failed, serving cached list")
		}
	}

	links := a.Skills()
	entries := make([]entry, 0, len(links))
	for _, link := range links {
		entries = append(entries, entry{
			key:         link.Name,
			description: link.Description,
			result: skills.SearchResult{
				ID:          link.ID(),
				Name:        link.Name,
				Source:      link.Owner + "/" + link.Repo,
				Registry:    skills.RegistryAwesomeList,
				Description: link.Description,
				URL:         link.URL,
			},
		})
	}

	results := searchEntries(entries, query, limit, awesomeTermWeight)
	logger.G(ctx).WithField("query", query).WithField("results", len(results)).Debug("awesome list search")
	return results, nil
}

// Refresh downloads and parses the README. On failure the previous list is kept.
func (a *AwesomeList) Refresh(ctx context.Context) error {
	return a.refresh(ctx, true)
}

// refresh downloads the list unless force is unset and another caller
// refreshed it while this one waited for the lock.
func (a *AwesomeList) refresh(ctx context.Context, force bool) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	if !force && a.fresh() {
		return nil
	}

	body, err := getWithRetry(ctx, a.client, a.url, "", a.retry)
	if err != nil {
		return errors.Wrap(err, "failed to fetch awesome list")
	}

	links := ParseAwesomeList(body, a.selfRepo)

	a.mu.Lock()
	a.links = links
	a.updated = a.now()
	a.mu.Unlock()

	logger.G(ctx).WithField("skills", len(links)).Info("refreshed awesome list")
	return nil
}

// Skills returns the cached links
func (a *AwesomeList) Skills() []AwesomeSkill {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]AwesomeSkill(nil), a.links...)
}

func (a *AwesomeList) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *AwesomeList) fresh() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.links) > 0 && a.now().Sub(a.updated) < a.ttl
}

// ParseAwesomeList extracts skill links from an awesome-list README: "-"
// bullets that open with a GitHub repository link followed by a dash and a
// description. Documentation links and links back to the list itself are
// skipped.
func ParseAwesomeList(src []byte, selfRepo string) []AwesomeSkill {
	doc := parseMarkdown(src)
	var links []AwesomeSkill

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		item, ok := n.(*ast.ListItem)
		if !entering || !ok || !isDashBullet(item) {
			return ast.WalkContinue, nil
		}
		block, _ := listItemText(item, src)
		if block == nil {
			return ast.WalkContinue, nil
		}
		if link, ok := parseAwesomeItem(block, src); ok && !excludedAwesomeLink(link, selfRepo) {
			links = append(links, link)
		}
		return ast.WalkContinue, nil
	})
	return links
}

func parseAwesomeItem(block ast.Node, src []byte) (AwesomeSkill, bool) {
	link, ok := block.FirstChild().(*ast.Link)
	if !ok {
		return AwesomeSkill{}, false
	}

	dest := string(link.Destination)
	owner, repo, folder, ok := parseGitHubLink(dest)
	if !ok {
		return AwesomeSkill{}, false
	}

	var rest strings.Builder
	attributed := false
	for sib := link.NextSibling(); sib != nil; sib = sib.NextSibling() {
		if emph, ok := sib.(*ast.Emphasis); ok && strings.HasPrefix(inlineText(emph, src), "By") {
			attributed = true
			break
		}
		rest.WriteString(inlineText(sib, src))
	}

	description := strings.TrimSpace(rest.String())
	trimmed := strings.TrimLeft(description, "-–—")
	if trimmed == description {
		return AwesomeSkill{}, false
	}
	description = strings.TrimSpace(trimmed)
	if attributed {
		description = strings.TrimSpace(strings.TrimRight(description, "."))
	}
	if description == "" {
		return AwesomeSkill{}, false
	}

	return AwesomeSkill{
		Name:        strings.TrimSpace(inlineText(link, src)),
		Description: description,
		Owner:       owner,
		Repo:        repo,
		Folder:      folder,
		URL:         dest,
	}, true
}

// parseGitHubLink accepts https://github.com/owner/repo and
// https://github.com/owner/repo/tree/branch/folder
func parseGitHubLink(dest string) (owner, repo, folder string, ok bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "https" || u.Host != "github.com" {
		return "", "", "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) == 2:
	case len(parts) >= 5 && parts[2] == "tree":
		folder = strings.Join(parts[4:], "/")
	default:
		return "", "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], folder, true
}

func excludedAwesomeLink(link AwesomeSkill, selfRepo string) bool {
	if strings.EqualFold(link.Repo, selfRepo) {
		return true
	}
	desc := strings.ToLower(link.Description)
	for _, kw := range awesomeExcludeKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// inlineText flattens the text of an inline node and its children
func inlineText(n ast.Node, src []byte) string {
	switch node := n.(type) {
	case *ast.Text:
		s := string(node.Segment.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			s += " "
		}
		return s
	case *ast.String:
		return string(node.Value)
	}

	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(inlineText(c, src))
	}
	return b.String()
}

// listRepoName returns the repository an awesome-list README lives in
func listRepoName(listURL string) string {
	u, err := url.Parse(listURL)
	if err != nil {
		return awesomeSelfRepo
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return awesomeSelfRepo
}
