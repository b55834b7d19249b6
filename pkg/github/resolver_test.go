package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathSet(paths ...string) map[string]string {
	m := make(map[string]string, len(paths))
	for _, p := range paths {
		m[p] = "sha-" + p
	}
	return m
}

func TestFindSkillPath(t *testing.T) {
	tests := []struct {
		name     string
		paths    map[string]string
		skillID  string
		expected string
		found    bool
	}{
		{
			name:     "conventional skills directory",
			paths:    pathSet("skills/react-best-practices/SKILL.md", "skills/other/SKILL.md"),
			skillID:  "react-best-practices",
			expected: "skills/react-best-practices/SKILL.md",
			found:    true,
		},
		{
			name:     "vendor prefix stripped",
			paths:    pathSet("skills/react-best-practices/SKILL.md", "skills/other/SKILL.md"),
			skillID:  "vercel-react-best-practices",
			expected: "skills/react-best-practices/SKILL.md",
			found:    true,
		},
		{
			name:     "claude skills directory",
			paths:    pathSet(".claude/skills/pdf/SKILL.md", "pdf-tools/SKILL.md"),
			skillID:  "pdf",
			expected: ".claude/skills/pdf/SKILL.md",
			found:    true,
		},
		{
			name:     "top-level directory",
			paths:    pathSet("pdf/SKILL.md", "docx/SKILL.md"),
			skillID:  "docx",
			expected: "docx/SKILL.md",
			found:    true,
		},
		{
			name:     "conventional location beats fuzzy match",
			paths:    pathSet("a/b/docx/SKILL.md", "docx/SKILL.md"),
			skillID:  "docx",
			expected: "docx/SKILL.md",
			found:    true,
		},
		{
			name:     "nested component equality",
			paths:    pathSet("plugins/office/xlsx/SKILL.md", "plugins/office/pptx/SKILL.md"),
			skillID:  "xlsx",
			expected: "plugins/office/xlsx/SKILL.md",
			found:    true,
		},
		{
			name:     "id ends with folder name",
			paths:    pathSet("tools/react-skills/SKILL.md", "tools/vue/SKILL.md"),
			skillID:  "acme-react-skills",
			expected: "tools/react-skills/SKILL.md",
			found:    true,
		},
		{
			name:     "short folder names are not suffix matched",
			paths:    pathSet("tools/lint/SKILL.md", "tools/vue/SKILL.md"),
			skillID:  "acme-lint",
			expected: "",
			found:    false,
		},
		{
			name:     "folder ends with dash id",
			paths:    pathSet("ml/optimization-gptq/SKILL.md", "ml/training-lora/SKILL.md"),
			skillID:  "gptq",
			expected: "ml/optimization-gptq/SKILL.md",
			found:    true,
		},
		{
			name:     "folder ends with underscore id",
			paths:    pathSet("ml/quant_gptq/SKILL.md", "ml/lora/SKILL.md"),
			skillID:  "gptq",
			expected: "ml/quant_gptq/SKILL.md",
			found:    true,
		},
		{
			name:     "ids shorter than four characters skip folder suffix tier",
			paths:    pathSet("ml/quant-abc/SKILL.md", "ml/other/SKILL.md"),
			skillID:  "abc",
			expected: "",
			found:    false,
		},
		{
			name:     "single skill is the last resort",
			paths:    pathSet("SKILL.md"),
			skillID:  "anything",
			expected: "SKILL.md",
			found:    true,
		},
		{
			name:     "no match among several",
			paths:    pathSet("skills/a/SKILL.md", "skills/b/SKILL.md"),
			skillID:  "missing",
			expected: "",
			found:    false,
		},
		{
			name:     "empty tree",
			paths:    pathSet(),
			skillID:  "anything",
			expected: "",
			found:    false,
		},
		{
			name:     "path id matched verbatim",
			paths:    pathSet("custom/place/react/SKILL.md", "custom/other/react/SKILL.md"),
			skillID:  "custom/other/react",
			expected: "custom/other/react/SKILL.md",
			found:    true,
		},
		{
			name:     "path id falls back to last segment",
			paths:    pathSet("plugins/react/SKILL.md", "plugins/vue/SKILL.md"),
			skillID:  "somewhere/else/react",
			expected: "plugins/react/SKILL.md",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindSkillPath(tt.paths, tt.skillID)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFindSkillPathTieBreakIsDeterministic(t *testing.T) {
	paths := pathSet(
		"zeta/deep/nested/react/SKILL.md",
		"b/react/SKILL.md",
		"a/react/SKILL.md",
		"long-prefix/react/SKILL.md",
	)

	for i := 0; i < 50; i++ {
		got, ok := FindSkillPath(paths, "react")
		require.True(t, ok)
		assert.Equal(t, "a/react/SKILL.md", got)
	}
}

func TestFindReferenceFiles(t *testing.T) {
	tree := pathSet(
		"skills/react/SKILL.md",
		"skills/react/rules.md",
		"skills/react/AGENTS.md",
		"skills/react/skill.md",
		"skills/react/script.py",
		"skills/react/references/hooks.md",
		"skills/react/references/deep/nested.md",
		"skills/react/rules/memo.md",
		"skills/react/docs/b.md",
		"skills/react/docs/a.md",
		"skills/react/assets/logo.md",
		"skills/react-native/SKILL.md",
		"skills/react-native/notes.md",
		"README.md",
	)

	refs := FindReferenceFiles(tree, "skills/react")

	var paths []string
	for _, r := range refs {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{
		"skills/react/AGENTS.md",
		"skills/react/rules.md",
		"skills/react/references/hooks.md",
		"skills/react/docs/a.md",
		"skills/react/docs/b.md",
		"skills/react/rules/memo.md",
	}, paths)
	assert.Equal(t, "hooks.md", refs[2].Name)
}

func TestFindReferenceFilesAtRepositoryRoot(t *testing.T) {
	tree := pathSet("SKILL.md", "README.md", "references/api.md", "src/main.md")

	refs := FindReferenceFiles(tree, "")
	require.Len(t, refs, 2)
	assert.Equal(t, "README.md", refs[0].Path)
	assert.Equal(t, "references/api.md", refs[1].Path)
}

func TestFindReferenceFilesQuotesDirectory(t *testing.T) {
	tree := pathSet("skills/[x]/SKILL.md", "skills/[x]/guide.md", "skills/x/other.md")

	refs := FindReferenceFiles(tree, "skills/[x]")
	require.Len(t, refs, 1)
	assert.Equal(t, "skills/[x]/guide.md", refs[0].Path)
}

func TestSkillDir(t *testing.T) {
	assert.Equal(t, "skills/react", SkillDir("skills/react/SKILL.md"))
	assert.Equal(t, "", SkillDir("SKILL.md"))
}
