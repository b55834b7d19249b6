// Package skills defines the skill data model shared by the search pipeline
// and the SKILL.md parser. A skill is a directory in a GitHub repository
// containing a SKILL.md file with YAML frontmatter describing its purpose and
// a markdown body with instructions.
package skills

import "golang.org/x/text/cases"

// FileName is the conventional name of a skill document
const FileName = "SKILL.md"

// Registry tags identifying where a search result came from
const (
	RegistryMarketplace = "skills.sh"
	RegistryCurated     = "skill-garden"
	RegistryAwesomeList = "awesome-list"
	RegistryDirect      = "direct"
)

// SearchResult is a single hit returned by a skill source, before content is fetched
type SearchResult struct {
	ID          string // skill identifier/slug
	Name        string // display name
	Source      string // GitHub owner/repo
	Registry    string // which registry produced the hit
	Installs    int64  // install count, 0 when unknown
	Description string // optional short description
	URL         string // optional direct URL
}

// UniqueKey returns the case-folded "source/id" key used for deduplication across sources
func (r SearchResult) UniqueKey() string {
	return cases.Fold().String(r.Source + "/" + r.ID)
}

// Refs holds the URLs for viewing a skill
type Refs struct {
	SkillsSh string `json:"skills_sh"`
	GitHub   string `json:"github"`
	Raw      string `json:"raw,omitempty"`
}

// Reference is an additional markdown file shipped alongside a SKILL.md
type Reference struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	Content *string `json:"content"`
	RawURL  string  `json:"raw_url,omitempty"`
}

// Skill is a fully assembled skill record returned to callers.
//
// Content is non-nil exactly when the document was fetched and parsed;
// FetchError is non-nil exactly when that failed. Neither is set when content
// was not requested.
type Skill struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Version        string         `json:"version,omitempty"`
	AllowedTools   []string       `json:"allowed_tools,omitempty"`
	Source         string         `json:"source"`
	Registry       string         `json:"registry,omitempty"`
	Refs           Refs           `json:"refs"`
	InstallCount   int64          `json:"install_count"`
	RelevanceScore float64        `json:"relevance_score"`
	Content        *string        `json:"content"`
	RawContent     *string        `json:"raw_content,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	References     []Reference    `json:"references"`
	FetchError     *string        `json:"fetch_error"`
}

// HasContent reports whether the skill document was fetched and parsed
func (s *Skill) HasContent() bool {
	return s.Content != nil
}

// HasReferences reports whether any reference files are attached
func (s *Skill) HasReferences() bool {
	return len(s.References) > 0
}

// SearchRequest describes a search across all sources
type SearchRequest struct {
	Query             string `json:"query"`
	Limit             int    `json:"limit"`
	IncludeContent    bool   `json:"include_content"`
	IncludeRaw        bool   `json:"include_raw"`
	IncludeReferences bool   `json:"include_references"`
}

// SearchResponse is the ranked result of a search
type SearchResponse struct {
	Query  string   `json:"query"`
	Count  int      `json:"count"`
	Skills []*Skill `json:"skills"`
}

// SourceInfo describes a configured skill source
type SourceInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
