package github

import (
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// vendorPrefixes are stripped from skill ids that marketplaces namespace by vendor
var vendorPrefixes = []string{"vercel-", "anthropic-", "openai-", "claude-"}

// skillLocations are the conventional homes of a skill, most common first
var skillLocations = []string{
	"skills/%s/" + skills.FileName,
	".claude/skills/%s/" + skills.FileName,
	".cursor/skills/%s/" + skills.FileName,
	".github/skills/%s/" + skills.FileName,
	".agent/skills/%s/" + skills.FileName,
	".agents/skills/%s/" + skills.FileName,
	"%s/" + skills.FileName,
}

// referenceDirs hold supporting documents next to a SKILL.md
var referenceDirs = []string{"references", "resources", "docs", "examples", "rules"}

// ReferenceFile is a markdown document that accompanies a skill
type ReferenceFile struct {
	Name string
	Path string
}

// FindSkillPath picks the SKILL.md in skillPaths that belongs to skillID.
//
// Candidates are tried in order: conventional locations, a directory named
// after the id, a directory the id ends with, a directory ending in "-id" or
// "_id", and finally the only SKILL.md of the repository. Within a fuzzy tier
// the shortest path wins, ties broken lexicographically.
func FindSkillPath(skillPaths map[string]string, skillID string) (string, bool) {
	if len(skillPaths) == 0 {
		return "", false
	}

	if skillID != "" {
		variants := idVariants(skillID)
		for _, v := range variants {
			for _, loc := range skillLocations {
				candidate := strings.Replace(loc, "%s", v, 1)
				if _, ok := skillPaths[candidate]; ok {
					return candidate, true
				}
			}
		}

		candidates := orderedPaths(skillPaths)
		names := idVariants(lastSegment(skillID))

		for _, name := range names {
			for _, p := range candidates {
				for _, dir := range dirComponents(p) {
					if dir == name {
						return p, true
					}
				}
			}
		}

		id := lastSegment(skillID)
		for _, p := range candidates {
			for _, dir := range dirComponents(p) {
				if len(dir) > 5 && strings.HasSuffix(id, dir) {
					return p, true
				}
			}
		}

		for _, name := range names {
			if len(name) < 4 {
				continue
			}
			for _, p := range candidates {
				folder := path.Base(path.Dir(p))
				if folder == "." {
					continue
				}
				if strings.HasSuffix(folder, "-"+name) || strings.HasSuffix(folder, "_"+name) {
					return p, true
				}
			}
		}
	}

	if len(skillPaths) == 1 {
		for p := range skillPaths {
			return p, true
		}
	}
	return "", false
}

// FindReferenceFiles lists the markdown files next to the SKILL.md in skillDir
// and those one level down in the well-known reference directories.
func FindReferenceFiles(tree map[string]string, skillDir string) []ReferenceFile {
	prefix := ""
	if skillDir != "" && skillDir != "." {
		prefix = strings.TrimSuffix(skillDir, "/") + "/"
	}
	quoted := glob.QuoteMeta(prefix)

	seen := map[string]bool{}
	var refs []ReferenceFile
	collect := func(pattern string, skip func(string) bool) {
		g := glob.MustCompile(pattern, '/')
		var matched []string
		for p := range tree {
			if seen[p] || !g.Match(p) || (skip != nil && skip(p)) {
				continue
			}
			matched = append(matched, p)
		}
		sort.Strings(matched)
		for _, p := range matched {
			seen[p] = true
			refs = append(refs, ReferenceFile{Name: path.Base(p), Path: p})
		}
	}

	collect(quoted+"*.md", func(p string) bool {
		return strings.EqualFold(path.Base(p), skills.FileName)
	})
	for _, dir := range referenceDirs {
		collect(quoted+dir+"/*.md", nil)
	}
	return refs
}

// SkillDir returns the directory holding a SKILL.md path, "" for the repository root
func SkillDir(skillPath string) string {
	dir := path.Dir(skillPath)
	if dir == "." {
		return ""
	}
	return dir
}

func idVariants(id string) []string {
	variants := []string{id}
	for _, prefix := range vendorPrefixes {
		if stripped, ok := strings.CutPrefix(id, prefix); ok && stripped != "" {
			variants = append(variants, stripped)
		}
	}
	return variants
}

func lastSegment(id string) string {
	id = strings.Trim(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// dirComponents returns the directory names of a file path
func dirComponents(p string) []string {
	parts := strings.Split(p, "/")
	return parts[:len(parts)-1]
}

// orderedPaths sorts paths shortest first, then lexicographically
func orderedPaths(m map[string]string) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i] < paths[j]
	})
	return paths
}
