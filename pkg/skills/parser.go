package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// UnknownName is the name given to documents whose frontmatter has none
const UnknownName = "unknown"

// Kinds of parse failure, usable with errors.Is
var (
	ErrEmptyContent = errors.New("empty content")
	ErrInvalidYAML  = errors.New("invalid YAML frontmatter")
	ErrNotMapping   = errors.New("frontmatter must be a mapping")
)

// ParseError is returned when a SKILL.md document cannot be parsed
type ParseError struct {
	Kind error
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the failure kind to errors.Is
func (e *ParseError) Unwrap() error {
	return e.Kind
}

// ParsedSkill is a SKILL.md document split into frontmatter fields and body
type ParsedSkill struct {
	Name         string
	Description  string
	Version      string
	AllowedTools []string
	Content      string         // markdown body with frontmatter removed, trimmed
	Raw          string         // original document
	Metadata     map[string]any // frontmatter keys outside the standard set
}

// frontmatter is the standard SKILL.md header; anything else lands in Extra
type frontmatter struct {
	Name         string         `mapstructure:"name"`
	Description  string         `mapstructure:"description"`
	Version      string         `mapstructure:"version"`
	AllowedTools any            `mapstructure:"allowed-tools"`
	Extra        map[string]any `mapstructure:",remain"`
}

// Parser parses SKILL.md documents
type Parser struct{}

// NewParser creates a SKILL.md parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse splits raw into frontmatter and body. A document without frontmatter
// is accepted with its whole text as body and the name "unknown".
func (p *Parser) Parse(ctx context.Context, raw string) (*ParsedSkill, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Kind: ErrEmptyContent}
	}

	block, body, ok := splitFrontmatter(raw)
	if !ok {
		logger.G(ctx).Warn("no frontmatter found in SKILL.md")
		return &ParsedSkill{
			Name:     UnknownName,
			Content:  strings.TrimSpace(raw),
			Raw:      raw,
			Metadata: map[string]any{},
		}, nil
	}

	root, err := parseFrontmatterNode(block)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if root != nil {
		if err := root.Decode(&fields); err != nil {
			return nil, &ParseError{Kind: ErrInvalidYAML, Err: err}
		}
	}

	var fm frontmatter
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return mapKey == fieldName
		},
		Result: &fm,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, &ParseError{Kind: ErrInvalidYAML, Err: err}
	}

	// keep the literal spelling of scalar versions such as 1.0
	if v, ok := scalarValue(root, "version"); ok {
		fm.Version = v
	}

	name := fm.Name
	if name == "" {
		name = UnknownName
	}
	metadata := fm.Extra
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &ParsedSkill{
		Name:         name,
		Description:  fm.Description,
		Version:      fm.Version,
		AllowedTools: ParseAllowedTools(fm.AllowedTools),
		Content:      strings.TrimSpace(body),
		Raw:          raw,
		Metadata:     metadata,
	}, nil
}

// splitFrontmatter returns the frontmatter block and the body when raw opens
// with a "---" line that is later closed by another "---" line.
func splitFrontmatter(raw string) (block, body string, ok bool) {
	first, rest, found := strings.Cut(raw, "\n")
	if !found || strings.TrimRight(first, " \t\r") != frontmatterDelimiter {
		return "", "", false
	}

	var lines []string
	for {
		line, remainder, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, " \t\r") == frontmatterDelimiter {
			return strings.Join(lines, "\n"), remainder, true
		}
		if !more {
			return "", "", false
		}
		lines = append(lines, line)
		rest = remainder
	}
}

// parseFrontmatterNode returns the mapping node of the block, or nil for an
// empty/null block.
func parseFrontmatterNode(block string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, &ParseError{Kind: ErrInvalidYAML, Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Kind: ErrNotMapping, Err: errors.Errorf("got %s", nodeKind(root))}
	}
	return root, nil
}

func scalarValue(mapping *yaml.Node, key string) (string, bool) {
	if mapping == nil {
		return "", false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, v := mapping.Content[i], mapping.Content[i+1]
		if k.Value == key && v.Kind == yaml.ScalarNode && v.Tag != "!!null" {
			return v.Value, true
		}
	}
	return "", false
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// ParseAllowedTools normalizes the allowed-tools field, which may be a list or
// a comma-separated string. Any other type yields nil.
func ParseAllowedTools(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		tools := make([]string, 0, len(v))
		for _, item := range v {
			if isFalsy(item) {
				continue
			}
			tools = append(tools, strings.TrimSpace(fmt.Sprint(item)))
		}
		return tools
	case []string:
		tools := make([]string, 0, len(v))
		for _, item := range v {
			if item != "" {
				tools = append(tools, strings.TrimSpace(item))
			}
		}
		return tools
	case string:
		var tools []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tools = append(tools, part)
			}
		}
		if tools == nil {
			return []string{}
		}
		return tools
	default:
		return nil
	}
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case float64:
		return x == 0
	default:
		return false
	}
}

// ExtractTitle returns the text of the first "# " heading in a markdown body
func ExtractTitle(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:]), true
		}
	}
	return "", false
}
