// Package service orchestrates skill discovery. It searches every configured
// source, fetches and parses each hit's SKILL.md through a cache, and ranks
// the assembled skills. The REST, MCP and CLI front ends are thin adapters
// over SkillService.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillgarden/pkg/cache"
	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/github"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/ranking"
	"github.com/jingkaihe/skillgarden/pkg/skills"
	"github.com/jingkaihe/skillgarden/pkg/sources"
)

const (
	// DefaultLimit is used when a search does not ask for a result count
	DefaultLimit = 10

	defaultPositiveTTL = 24 * time.Hour
	defaultNegativeTTL = 5 * time.Minute
	maxParallelSkills  = 10
)

// ContentFetcher retrieves SKILL.md documents from their repositories
type ContentFetcher interface {
	Fetch(ctx context.Context, repo, skillID string, includeReferences bool) github.FetchResult
	GitHubURL(source, skillID string) string
	Invalidate(repo string)
	Reset()
}

// SkillServiceInterface is the set of operations the front ends depend on
type SkillServiceInterface interface {
	Search(ctx context.Context, req skills.SearchRequest) (*skills.SearchResponse, error)
	GetSkill(ctx context.Context, source, skillID string, includeRaw, includeReferences bool) (*skills.Skill, bool)
	AddSkill(ctx context.Context, name string, includeReferences bool) (*skills.Skill, error)
	CacheStats(ctx context.Context) cache.Stats
	Sources() []skills.SourceInfo
	Refresh(ctx context.Context) error
	Close() error
}

var _ SkillServiceInterface = (*SkillService)(nil)

// SkillService searches, fetches, parses, caches and ranks skills
type SkillService struct {
	cache      cache.Backend
	ranker     ranking.Ranker
	aggregator *sources.Aggregator
	fetcher    ContentFetcher
	parser     *skills.Parser

	positiveTTL time.Duration
	negativeTTL time.Duration

	// owned resources are closed by Close; injected ones belong to the caller
	ownsCache bool
	stop      context.CancelFunc
}

// Option configures a SkillService
type Option func(*SkillService)

// WithCache uses c for skill content instead of a new MemoryCache. The caller
// keeps ownership of c.
func WithCache(c cache.Backend) Option {
	return func(s *SkillService) {
		s.cache = c
	}
}

// WithRanker replaces the default relevance ranker
func WithRanker(r ranking.Ranker) Option {
	return func(s *SkillService) {
		s.ranker = r
	}
}

// WithSources replaces the configured sources
func WithSources(srcs ...sources.Source) Option {
	return func(s *SkillService) {
		s.aggregator = sources.NewAggregator(srcs...)
	}
}

// WithFetcher replaces the GitHub content fetcher
func WithFetcher(f ContentFetcher) Option {
	return func(s *SkillService) {
		s.fetcher = f
	}
}

// New creates a SkillService from cfg. Components that were not injected are
// built from the configuration: a MemoryCache with its sweeper running, a
// GitHub fetcher and the marketplace, registry and awesome-list sources.
// Close releases everything New started.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*SkillService, error) {
	s := &SkillService{
		parser:      skills.NewParser(),
		positiveTTL: cfg.Cache.TTL,
		negativeTTL: cfg.Cache.NegativeTTL,
	}
	if s.positiveTTL <= 0 {
		s.positiveTTL = defaultPositiveTTL
	}
	if s.negativeTTL <= 0 {
		s.negativeTTL = defaultNegativeTTL
	}
	for _, opt := range opts {
		opt(s)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop

	if s.cache == nil {
		mc := cache.NewMemoryCache(
			cache.WithDefaultTTL(s.positiveTTL),
			cache.WithMaxSize(cfg.Cache.MaxSize),
			cache.WithCleanupInterval(cfg.Cache.CleanupInterval),
		)
		mc.Start(runCtx)
		s.cache = mc
		s.ownsCache = true
	}

	if s.fetcher == nil {
		client, err := NewGitHubClient(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.fetcher = github.NewFetcher(client)
	}

	if s.aggregator == nil {
		srcs, err := DefaultSources(runCtx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.aggregator = sources.NewAggregator(srcs...)
	}

	if s.ranker == nil {
		s.ranker = ranking.NewRelevanceRanker()
	}

	var enabled []string
	for _, info := range s.aggregator.Info() {
		if info.Enabled {
			enabled = append(enabled, info.Name)
		}
	}
	logger.G(ctx).WithField("sources", strings.Join(enabled, ", ")).Info("skill service ready")
	return s, nil
}

// NewGitHubClient creates the GitHub client described by cfg
func NewGitHubClient(ctx context.Context, cfg config.Config) (*github.Client, error) {
	opts := []github.ClientOption{
		github.WithToken(cfg.GitHub.Token),
		github.WithRetry(cfg.HTTP.Retry),
	}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithAPIURL(cfg.GitHub.APIURL))
	}
	if cfg.GitHub.RawURL != "" {
		opts = append(opts, github.WithRawURL(cfg.GitHub.RawURL))
	}
	if cfg.GitHub.Timeout > 0 {
		opts = append(opts, github.WithTimeout(cfg.GitHub.Timeout))
	}

	client, err := github.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GitHub client")
	}
	return client, nil
}

// DefaultSources builds the marketplace, registry and awesome-list sources in
// priority order. The registry is loaded eagerly and watched when configured;
// ctx bounds the watcher.
func DefaultSources(ctx context.Context, cfg config.Config) ([]sources.Source, error) {
	retry := cfg.HTTP.Retry

	registry := sources.NewRegistry(cfg.Sources.Registry)
	if registry.Enabled() {
		if err := registry.Load(ctx); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to load skill registry")
		}
		if cfg.Sources.Registry.Watch {
			if err := registry.Watch(ctx); err != nil {
				return nil, errors.Wrap(err, "failed to watch skill registry")
			}
		}
	}

	return []sources.Source{
		sources.NewMarketplace(cfg.Sources.Marketplace, retry),
		registry,
		sources.NewAwesomeList(cfg.Sources.AwesomeList, retry),
	}, nil
}

// CacheStats reports the content cache counters
func (s *SkillService) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

// Sources describes the configured sources
func (s *SkillService) Sources() []skills.SourceInfo {
	return s.aggregator.Info()
}

// Refresh reloads every source and forgets cached repository trees
func (s *SkillService) Refresh(ctx context.Context) error {
	s.fetcher.Reset()
	if err := s.aggregator.Refresh(ctx); err != nil {
		return errors.Wrap(err, "failed to refresh sources")
	}
	logger.G(ctx).Info("skill sources refreshed")
	return nil
}

// Close stops background work and closes the sources and any cache the
// service created itself.
func (s *SkillService) Close() error {
	if s.stop != nil {
		s.stop()
	}

	var result *multierror.Error
	if s.ownsCache && s.cache != nil {
		if err := s.cache.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close cache"))
		}
	}
	if s.aggregator != nil {
		if err := s.aggregator.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close sources"))
		}
	}
	return result.ErrorOrNil()
}
