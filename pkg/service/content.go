package service

import (
	"context"
	"fmt"

	"github.com/jingkaihe/skillgarden/pkg/github"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// cachedContent is what the content cache holds per skill. A negative entry
// only carries Error.
type cachedContent struct {
	Content string
	RawURL  string
	Error   string
}

// fetched is one content lookup, from the cache or the network
type fetched struct {
	content    string
	rawURL     string
	references []skills.Reference
	err        string
}

func cacheKey(source, skillID string) string {
	return fmt.Sprintf("skill:%s:%s", source, skillID)
}

// fetchContent returns a skill document, consulting the cache first. Cached
// documents carry no references, so a positive hit is only used when
// references were not asked for. Cached failures are always honoured until
// they expire.
func (s *SkillService) fetchContent(ctx context.Context, source, skillID string, includeReferences bool) fetched {
	key := cacheKey(source, skillID)
	log := logger.G(ctx).WithField("key", key)

	if v, ok := s.cache.Get(ctx, key); ok {
		if entry, ok := v.(cachedContent); ok {
			if entry.Error != "" {
				log.Debug("negative cache hit")
				return fetched{err: entry.Error}
			}
			if !includeReferences {
				log.Debug("cache hit")
				return fetched{content: entry.Content, rawURL: entry.RawURL}
			}
		}
	}

	result := s.fetcher.Fetch(ctx, source, skillID, includeReferences)
	if ctx.Err() != nil {
		// a cancelled lookup says nothing about the skill itself
		return fetched{err: result.Error}
	}
	if !result.OK() {
		s.cache.Set(ctx, key, cachedContent{Error: result.Error}, s.negativeTTL)
		return fetched{err: result.Error}
	}

	s.cache.Set(ctx, key, cachedContent{Content: result.Content, RawURL: result.RawURL}, s.positiveTTL)
	return fetched{
		content:    result.Content,
		rawURL:     result.RawURL,
		references: result.References,
	}
}

// buildSkill assembles the response record for r. parsed is nil when content
// was not requested or could not be obtained, in which case fetchErr says why.
func (s *SkillService) buildSkill(r skills.SearchResult, parsed *skills.ParsedSkill, rawURL string, references []skills.Reference, fetchErr *string, includeRaw bool) *skills.Skill {
	skill := &skills.Skill{
		ID:       r.ID,
		Title:    displayName(r),
		Source:   r.Source,
		Registry: r.Registry,
		Refs: skills.Refs{
			SkillsSh: github.SkillsShURL(r.Source, r.ID),
			GitHub:   s.fetcher.GitHubURL(r.Source, r.ID),
			Raw:      rawURL,
		},
		InstallCount: r.Installs,
		Description:  r.Description,
		Metadata:     map[string]any{},
		References:   references,
	}
	if skill.References == nil {
		skill.References = []skills.Reference{}
	}

	if parsed == nil {
		skill.FetchError = fetchErr
		return skill
	}

	skill.Title = skillTitle(parsed, r)
	if parsed.Description != "" {
		skill.Description = parsed.Description
	}
	skill.Version = parsed.Version
	skill.AllowedTools = parsed.AllowedTools
	content := parsed.Content
	skill.Content = &content
	if includeRaw {
		raw := parsed.Raw
		skill.RawContent = &raw
	}
	if parsed.Metadata != nil {
		skill.Metadata = parsed.Metadata
	}
	return skill
}

// skillTitle prefers the frontmatter name, then the first heading of the
// body, then the name reported by the source.
func skillTitle(parsed *skills.ParsedSkill, r skills.SearchResult) string {
	if parsed.Name != "" && parsed.Name != skills.UnknownName {
		return parsed.Name
	}
	if title, ok := skills.ExtractTitle(parsed.Content); ok && title != "" {
		return title
	}
	return displayName(r)
}

func displayName(r skills.SearchResult) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
