package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
	"github.com/jingkaihe/skillgarden/pkg/telemetry"
)

// ErrNotFound is matched by every NotFoundError
var ErrNotFound = errors.New("skill not found")

// NotFoundError reports that AddSkill could not resolve a name
type NotFoundError struct {
	Name string
	// Path is set when Name was an owner/repo/skill path rather than a search term
	Path bool
}

func (e *NotFoundError) Error() string {
	if e.Path {
		return fmt.Sprintf("Skill not found: %s", e.Name)
	}
	return fmt.Sprintf("No skill found matching: %s", e.Name)
}

// Is makes errors.Is(err, ErrNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Search queries every source, fetches content for each hit when asked to and
// returns the hits ranked by relevance. Failures of single sources or single
// skills never fail the search; the only error is cancellation of ctx.
func (s *SkillService) Search(ctx context.Context, req skills.SearchRequest) (*skills.SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	var resp *skills.SearchResponse
	err := telemetry.WithSpan(ctx, "service.search", func(ctx context.Context) error {
		results, err := s.aggregator.Search(ctx, req.Query, req.Limit)
		if err != nil {
			return err
		}

		found := make([]*skills.Skill, len(results))
		g := new(errgroup.Group)
		g.SetLimit(maxParallelSkills)
		for i, r := range results {
			g.Go(func() error {
				found[i] = s.processResult(ctx, r, req)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}

		ranked := s.ranker.Rank(found, req.Query, req.IncludeReferences)
		telemetry.SetAttributes(ctx, attribute.Int("search.results", len(ranked)))
		resp = &skills.SearchResponse{Query: req.Query, Count: len(ranked), Skills: ranked}
		return nil
	},
		attribute.String("search.query", req.Query),
		attribute.Int("search.limit", req.Limit),
		attribute.Bool("search.include_content", req.IncludeContent),
	)
	if err != nil {
		return nil, err
	}

	logger.G(ctx).WithField("query", req.Query).WithField("results", resp.Count).Debug("search complete")
	return resp, nil
}

// processResult turns a search hit into a Skill, fetching and parsing its
// document when content was requested. Failures end up in Skill.FetchError.
func (s *SkillService) processResult(ctx context.Context, r skills.SearchResult, req skills.SearchRequest) *skills.Skill {
	if !req.IncludeContent {
		return s.buildSkill(r, nil, "", nil, nil, req.IncludeRaw)
	}

	var skill *skills.Skill
	telemetry.WithSpanFunc(ctx, "service.process_skill", func(ctx context.Context) {
		got := s.fetchContent(ctx, r.Source, r.ID, req.IncludeReferences)
		if got.err != "" {
			errMsg := got.err
			skill = s.buildSkill(r, nil, "", got.references, &errMsg, req.IncludeRaw)
			return
		}

		parsed, err := s.parser.Parse(ctx, got.content)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("skill_id", r.ID).Warn("failed to parse skill")
			errMsg := "parse error: " + err.Error()
			skill = s.buildSkill(r, nil, got.rawURL, got.references, &errMsg, req.IncludeRaw)
			return
		}
		skill = s.buildSkill(r, parsed, got.rawURL, got.references, nil, req.IncludeRaw)
	},
		attribute.String("skill.id", r.ID),
		attribute.String("skill.source", r.Source),
	)
	return skill
}

// GetSkill fetches a single skill directly from its repository. It reports
// false when the document cannot be fetched or parsed.
func (s *SkillService) GetSkill(ctx context.Context, source, skillID string, includeRaw, includeReferences bool) (*skills.Skill, bool) {
	log := logger.G(ctx).WithField("source", source).WithField("skill_id", skillID)

	got := s.fetchContent(ctx, source, skillID, includeReferences)
	if got.err != "" || got.content == "" {
		log.WithField("error", got.err).Debug("skill not available")
		return nil, false
	}

	parsed, err := s.parser.Parse(ctx, got.content)
	if err != nil {
		log.WithError(err).Warn("failed to parse skill")
		return nil, false
	}

	r := skills.SearchResult{
		ID:       skillID,
		Name:     skillID,
		Source:   source,
		Registry: skills.RegistryDirect,
	}
	return s.buildSkill(r, parsed, got.rawURL, got.references, nil, includeRaw), true
}

// AddSkill resolves name to a single skill with content. A name of the form
// owner/repo/skill (the skill part may contain further slashes) is fetched
// directly and searched for if that fails; any other name is searched for and
// the best match returned.
func (s *SkillService) AddSkill(ctx context.Context, name string, includeReferences bool) (*skills.Skill, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("skill name cannot be empty")
	}
	log := logger.G(ctx).WithField("name", name)

	parts := strings.Split(name, "/")
	isPath := len(parts) >= 3
	if isPath {
		source := parts[0] + "/" + parts[1]
		skillID := strings.Join(parts[2:], "/")
		if skill, ok := s.GetSkill(ctx, source, skillID, false, includeReferences); ok {
			return skill, nil
		}
		log.Info("skill not found at path, searching instead")
	}

	resp, err := s.Search(ctx, skills.SearchRequest{
		Query:             name,
		Limit:             1,
		IncludeContent:    true,
		IncludeReferences: includeReferences,
	})
	if err != nil {
		return nil, err
	}
	if resp.Count == 0 {
		return nil, &NotFoundError{Name: name, Path: isPath}
	}
	return resp.Skills[0], nil
}
