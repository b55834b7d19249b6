package sources

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark/ast"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

//go:embed default_registry.md
var defaultRegistry []byte

const (
	defaultCategory       = "General"
	registryTermWeight    = 0.3
	registryWatchDebounce = 200 * time.Millisecond
)

// RegistrySkill is a row of the curated registry file:
//
//	- skill-id | owner/repo | path/to/skill | Description
type RegistrySkill struct {
	ID          string
	Owner       string
	Repo        string
	Path        string
	Description string
	Category    string
}

// Source returns the owner/repo of the skill
func (s RegistrySkill) Source() string {
	return s.Owner + "/" + s.Repo
}

// Registry searches the curated registry file. The file is parsed once and
// reloaded on Refresh, or on every write when watching is enabled. A missing
// file falls back to the built-in registry.
type Registry struct {
	path    string
	enabled bool

	mu      sync.RWMutex
	skills  []RegistrySkill
	loaded  bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry creates a registry source backed by cfg.Path
func NewRegistry(cfg config.RegistryConfig) *Registry {
	return &Registry{
		path:    cfg.Path,
		enabled: cfg.Enabled,
	}
}

func (r *Registry) Name() string  { return skills.RegistryCurated }
func (r *Registry) Enabled() bool { return r.enabled }

// Load parses the registry file, replacing the current entries
func (r *Registry) Load(ctx context.Context) error {
	log := logger.G(ctx).WithField("path", r.path)

	content, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist) || r.path == "":
		log.Warn("registry file not found, using built-in registry")
		content = defaultRegistry
	case err != nil:
		r.mu.Lock()
		r.loaded = true
		r.mu.Unlock()
		return errors.Wrapf(err, "failed to read registry %s", r.path)
	}

	parsed := ParseRegistry(content)

	r.mu.Lock()
	r.skills = parsed
	r.loaded = true
	r.mu.Unlock()

	log.WithField("skills", len(parsed)).Info("loaded skill registry")
	return nil
}

// Skills returns the loaded registry rows
func (r *Registry) Skills() []RegistrySkill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RegistrySkill(nil), r.skills...)
}

func (r *Registry) Search(ctx context.Context, query string, limit int) ([]skills.SearchResult, error) {
	if !r.enabled {
		return nil, nil
	}

	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if !loaded {
		if err := r.Load(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	entries := make([]entry, 0, len(r.skills))
	for _, s := range r.skills {
		entries = append(entries, entry{
			key:         s.ID,
			description: s.Description,
			category:    s.Category,
			result: skills.SearchResult{
				ID:          registryResultID(s),
				Name:        s.ID,
				Source:      s.Source(),
				Registry:    skills.RegistryCurated,
				Description: s.Description,
			},
		})
	}
	r.mu.RUnlock()

	results := searchEntries(entries, query, limit, registryTermWeight)
	logger.G(ctx).WithField("query", query).WithField("results", len(results)).Debug("registry search")
	return results, nil
}

// Refresh reloads the registry file
func (r *Registry) Refresh(ctx context.Context) error {
	return r.Load(ctx)
}

// Watch reloads the registry whenever its file changes, until ctx is done or
// the registry is closed
func (r *Registry) Watch(ctx context.Context) error {
	target, err := filepath.Abs(r.path)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve registry path %s", r.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	// watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(target))
	}

	r.mu.Lock()
	r.watcher = watcher
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.watchLoop(ctx, watcher, target)
	}()

	logger.G(ctx).WithField("path", target).Info("watching skill registry")
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	var reload *time.Timer
	defer func() {
		if reload != nil {
			reload.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if reload != nil {
				reload.Stop()
			}
			reload = time.AfterFunc(registryWatchDebounce, func() {
				if err := r.Load(ctx); err != nil {
					logger.G(ctx).WithError(err).Warn("failed to reload skill registry")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("registry watcher error")
		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching the registry file
func (r *Registry) Close() error {
	r.mu.Lock()
	watcher, done := r.watcher, r.done
	r.watcher = nil
	r.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

// ParseRegistry extracts the skill rows of a registry document. Rows are "-"
// bullets of four "|"-separated fields; the nearest preceding "##" heading is
// their category. Code blocks and HTML comments never yield rows.
func ParseRegistry(src []byte) []RegistrySkill {
	doc := parseMarkdown(src)
	category := defaultCategory
	var rows []RegistrySkill

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 2 {
				if name := cleanCategory(rawLines(node, src)); name != "" {
					category = name
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if !isDashBullet(node) {
				return ast.WalkContinue, nil
			}
			if _, line := listItemText(node, src); line != "" {
				if row, ok := parseRegistryRow(line); ok {
					row.Category = category
					rows = append(rows, row)
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return rows
}

func parseRegistryRow(line string) (RegistrySkill, bool) {
	fields := strings.SplitN(line, "|", 4)
	if len(fields) != 4 {
		return RegistrySkill{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	owner, repo, ok := strings.Cut(fields[1], "/")
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if !ok || fields[0] == "" || owner == "" || repo == "" || fields[3] == "" {
		return RegistrySkill{}, false
	}
	return RegistrySkill{
		ID:          fields[0],
		Owner:       owner,
		Repo:        repo,
		Path:        fields[2],
		Description: fields[3],
	}, true
}

// cleanCategory drops leading decoration such as emoji from a heading
func cleanCategory(heading string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(heading, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}))
}

func registryResultID(s RegistrySkill) string {
	if p := strings.TrimRight(s.Path, "/"); p != "" {
		return p[strings.LastIndex(p, "/")+1:]
	}
	return s.ID
}
