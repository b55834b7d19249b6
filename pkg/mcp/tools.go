package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/service"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// Input bounds
const (
	MaxQueryLength   = 500
	MaxSourceLength  = 200
	MaxSkillIDLength = 200
	MaxSearchLimit   = 20
	DefaultLimit     = 5
)

// SearchInput is the argument object of search_skills
type SearchInput struct {
	Query             string `json:"query" jsonschema:"description=Natural language search query such as 'react performance' or 'api testing',maxLength=500"`
	Limit             *int   `json:"limit,omitempty" jsonschema:"description=Maximum number of results,minimum=0,maximum=20,default=5"`
	IncludeReferences bool   `json:"include_references,omitempty" jsonschema:"description=Also fetch the reference documents shipped next to each SKILL.md"`
}

// GetSkillInput is the argument object of get_skill
type GetSkillInput struct {
	Source            string `json:"source" jsonschema:"description=GitHub owner/repo hosting the skill such as 'anthropics/skills',maxLength=200"`
	SkillID           string `json:"skill_id" jsonschema:"description=Skill identifier such as 'frontend-design',maxLength=200"`
	IncludeReferences bool   `json:"include_references,omitempty" jsonschema:"description=Also fetch the reference documents shipped next to the SKILL.md"`
}

// AddSkillInput is the argument object of add_skill
type AddSkillInput struct {
	Name              string `json:"name" jsonschema:"description=Skill name such as 'react-best-practices' or a full owner/repo/skill path,maxLength=200"`
	IncludeReferences bool   `json:"include_references,omitempty" jsonschema:"description=Also fetch the reference documents shipped next to the SKILL.md"`
}

// CacheStatsInput is the empty argument object of get_cache_stats
type CacheStatsInput struct{}

// SearchOutput is the result of search_skills
type SearchOutput struct {
	Query  string       `json:"query"`
	Count  int          `json:"count"`
	Skills []SkillBrief `json:"skills"`
}

// SkillBrief is the compact skill view returned by search_skills
type SkillBrief struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Source       string           `json:"source"`
	InstallCount int64            `json:"install_count"`
	Content      *string          `json:"content"`
	Refs         BriefRefs        `json:"refs"`
	References   []BriefReference `json:"references"`
	FetchError   *string          `json:"fetch_error"`
}

// BriefRefs are the browsable links of a SkillBrief
type BriefRefs struct {
	SkillsSh string `json:"skills_sh"`
	GitHub   string `json:"github"`
}

// BriefReference is a reference document without its location
type BriefReference struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
}

// GenerateSchema reflects the JSON schema of T inline, without $refs
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func rawSchema[T any]() (json.RawMessage, error) {
	schema := GenerateSchema[T]()
	schema.Version = ""
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tool schema")
	}
	return b, nil
}

type toolDef struct {
	name        string
	description string
	schema      func() (json.RawMessage, error)
	handler     server.ToolHandlerFunc
}

func (s *Server) registerTools() error {
	defs := []toolDef{
		{
			name: "search_skills",
			description: "Search for agent skills by natural language query. Returns matching skills ranked by relevance, " +
				"each with its full SKILL.md instructions ready to be followed.",
			schema:  rawSchema[SearchInput],
			handler: s.handleSearch,
		},
		{
			name: "get_skill",
			description: "Get a specific skill by its GitHub repository and id. Use this when you know exactly which " +
				"skill you want rather than searching.",
			schema:  rawSchema[GetSkillInput],
			handler: s.handleGetSkill,
		},
		{
			name: "add_skill",
			description: "Add a skill by name and return its latest content for context injection. Accepts a plain " +
				"name, which returns the best search match, or an owner/repo/skill path.",
			schema:  rawSchema[AddSkillInput],
			handler: s.handleAddSkill,
		},
		{
			name:        "get_cache_stats",
			description: "Report skill content cache statistics.",
			schema:      rawSchema[CacheStatsInput],
			handler:     s.handleCacheStats,
		},
	}

	for _, def := range defs {
		schema, err := def.schema()
		if err != nil {
			return errors.Wrapf(err, "failed to build schema for %s", def.name)
		}
		tool := mcp.NewToolWithRawSchema(def.name, def.description, schema)
		s.mcp.AddTool(tool, def.handler)
		s.tools = append(s.tools, tool)
	}
	return nil
}

// bindArguments decodes the tool call arguments into target
func bindArguments(request mcp.CallToolRequest, target any) error {
	if request.Params.Arguments == nil {
		return nil
	}
	b, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return errors.Wrap(err, "failed to encode arguments")
	}
	if err := json.Unmarshal(b, target); err != nil {
		return errors.Wrap(err, "invalid arguments")
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tool result")
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return mcp.NewToolResultError("Query cannot be empty. Please provide a search term."), nil
	}
	if utf8.RuneCountInString(input.Query) > MaxQueryLength {
		return mcp.NewToolResultError(fmt.Sprintf("Query too long. Maximum length is %d characters.", MaxQueryLength)), nil
	}

	limit := DefaultLimit
	if input.Limit != nil {
		limit = min(max(*input.Limit, 0), MaxSearchLimit)
	}
	// a zero limit asks for nothing; the service would read it as "default"
	if limit == 0 {
		return jsonResult(SearchOutput{Query: input.Query, Skills: []SkillBrief{}})
	}

	resp, err := s.service.Search(ctx, skills.SearchRequest{
		Query:             input.Query,
		Limit:             limit,
		IncludeContent:    true,
		IncludeReferences: input.IncludeReferences,
	})
	if err != nil {
		logger.G(ctx).WithError(err).Error("search_skills failed")
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %s", err)), nil
	}

	out := SearchOutput{Query: resp.Query, Count: resp.Count, Skills: make([]SkillBrief, 0, len(resp.Skills))}
	for _, sk := range resp.Skills {
		out.Skills = append(out.Skills, brief(sk))
	}
	return jsonResult(out)
}

func (s *Server) handleGetSkill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input GetSkillInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if msg := validateGetSkill(input); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}

	skill, ok := s.service.GetSkill(ctx, input.Source, input.SkillID, false, input.IncludeReferences)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Skill not found: %s/%s", input.Source, input.SkillID)), nil
	}
	return jsonResult(skill)
}

func validateGetSkill(input GetSkillInput) string {
	switch {
	case strings.TrimSpace(input.Source) == "":
		return "Source cannot be empty. Expected format: owner/repo"
	case utf8.RuneCountInString(input.Source) > MaxSourceLength:
		return fmt.Sprintf("Source too long. Maximum length is %d characters.", MaxSourceLength)
	case !strings.Contains(input.Source, "/"):
		return fmt.Sprintf("Invalid source format '%s'. Expected format: owner/repo", input.Source)
	case strings.TrimSpace(input.SkillID) == "":
		return "Skill ID cannot be empty."
	case utf8.RuneCountInString(input.SkillID) > MaxSkillIDLength:
		return fmt.Sprintf("Skill ID too long. Maximum length is %d characters.", MaxSkillIDLength)
	}
	return ""
}

func (s *Server) handleAddSkill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input AddSkillInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(input.Name) == "" {
		return mcp.NewToolResultError("Skill name cannot be empty."), nil
	}
	if utf8.RuneCountInString(input.Name) > MaxSkillIDLength {
		return mcp.NewToolResultError(fmt.Sprintf("Skill name too long. Maximum length is %d characters.", MaxSkillIDLength)), nil
	}

	skill, err := s.service.AddSkill(ctx, input.Name, input.IncludeReferences)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			logger.G(ctx).WithError(err).WithField("name", input.Name).Error("add_skill failed")
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(skill)
}

func (s *Server) handleCacheStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.service.CacheStats(ctx))
}

func brief(s *skills.Skill) SkillBrief {
	b := SkillBrief{
		ID:           s.ID,
		Title:        s.Title,
		Description:  s.Description,
		Source:       s.Source,
		InstallCount: s.InstallCount,
		Content:      s.Content,
		Refs:         BriefRefs{SkillsSh: s.Refs.SkillsSh, GitHub: s.Refs.GitHub},
		References:   make([]BriefReference, 0, len(s.References)),
		FetchError:   s.FetchError,
	}
	for _, r := range s.References {
		b.References = append(b.References, BriefReference{Name: r.Name, Content: r.Content})
	}
	return b
}
