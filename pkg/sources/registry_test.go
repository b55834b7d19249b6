package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

const sampleRegistry = "# Registry\n" +
	"\n" +
	"- top-level | acme/misc | tools/top | Appears before any category\n" +
	"\n" +
	"```\n" +
	"- example-id | owner/repo | path/to/skill | Inside a code block\n" +
	"```\n" +
	"\n" +
	"<!--\n" +
	"- hidden | owner/repo | skills/hidden | Inside a comment\n" +
	"-->\n" +
	"\n" +
	"## 🎨 Frontend Design\n" +
	"\n" +
	"- react-best-practices | vercel-labs/agent-skills | skills/react-best-practices/ | React performance guidelines\n" +
	"- no-path | acme/skills |  | A skill at the repository root\n" +
	"- broken row without pipes\n" +
	"- missing-repo | acme | skills/x | Owner without repository\n" +
	"\n" +
	"## Testing\n" +
	"\n" +
	"- webapp-testing | anthropics/skills | skills/webapp-testing | Test web apps | with Playwright\n" +
	"* star-bullet | acme/skills | skills/star | Star bullets are not rows\n"

func TestParseRegistry(t *testing.T) {
	rows := ParseRegistry([]byte(sampleRegistry))
	require.Len(t, rows, 4)

	assert.Equal(t, RegistrySkill{
		ID: "top-level", Owner: "acme", Repo: "misc", Path: "tools/top",
		Description: "Appears before any category", Category: "General",
	}, rows[0])
	assert.Equal(t, RegistrySkill{
		ID: "react-best-practices", Owner: "vercel-labs", Repo: "agent-skills", Path: "skills/react-best-practices/",
		Description: "React performance guidelines", Category: "Frontend Design",
	}, rows[1])
	assert.Equal(t, "", rows[2].Path)
	assert.Equal(t, "Frontend Design", rows[2].Category)
	assert.Equal(t, "Test web apps | with Playwright", rows[3].Description)
	assert.Equal(t, "Testing", rows[3].Category)
}

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "SKILLS.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistrySearch(t *testing.T) {
	r := NewRegistry(config.RegistryConfig{Enabled: true, Path: writeRegistry(t, sampleRegistry)})
	ctx := context.Background()

	results, err := r.Search(ctx, "react-best-practices", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, skills.SearchResult{
		ID:          "react-best-practices",
		Name:        "react-best-practices",
		Source:      "vercel-labs/agent-skills",
		Registry:    skills.RegistryCurated,
		Description: "React performance guidelines",
	}, results[0])

	results, err = r.Search(ctx, "frontend", 10)
	require.NoError(t, err)
	require.Len(t, results, 2, "category matches")
	assert.Equal(t, "no-path", results[0].ID, "rows without a path use the registry id")

	results, err = r.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRegistryFallsBackToBuiltIn(t *testing.T) {
	r := NewRegistry(config.RegistryConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "missing.md")})
	require.NoError(t, r.Load(context.Background()))

	assert.NotEmpty(t, r.Skills())
	for _, s := range r.Skills() {
		assert.NotEqual(t, "commented-out", s.ID)
	}

	results, err := r.Search(context.Background(), "pdf", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "anthropics/skills", results[0].Source)
}

func TestRegistryRefresh(t *testing.T) {
	path := writeRegistry(t, "## A\n\n- one | acme/skills | skills/one | First\n")
	r := NewRegistry(config.RegistryConfig{Enabled: true, Path: path})
	ctx := context.Background()
	require.NoError(t, r.Load(ctx))
	require.Len(t, r.Skills(), 1)

	require.NoError(t, os.WriteFile(path, []byte("## A\n\n- one | acme/skills | skills/one | First\n- two | acme/skills | skills/two | Second\n"), 0o644))
	require.NoError(t, r.Refresh(ctx))
	assert.Len(t, r.Skills(), 2)
}

func TestRegistryWatchReloadsOnWrite(t *testing.T) {
	path := writeRegistry(t, "- one | acme/skills | skills/one | First\n")
	r := NewRegistry(config.RegistryConfig{Enabled: true, Path: path, Watch: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Watch(ctx))
	defer r.Close()

	require.NoError(t, os.WriteFile(path, []byte("- one | acme/skills | skills/one | First\n- two | acme/skills | skills/two | Second\n"), 0o644))

	assert.Eventually(t, func() bool {
		return len(r.Skills()) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRegistryDisabledAndClose(t *testing.T) {
	r := NewRegistry(config.RegistryConfig{Enabled: false, Path: "unused"})
	results, err := r.Search(context.Background(), "pdf", 5)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, r.Close(), "closing an unwatched registry is a no-op")
}
