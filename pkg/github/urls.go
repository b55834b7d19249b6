package github

import (
	"net/url"
	"strings"
)

const (
	githubWebURL   = "https://github.com"
	skillsShWebURL = "https://skills.sh"
	fallbackBranch = "main"
)

// GitHubURL returns the web page of a skill directory. When source is empty an
// "owner/repo/..." id is split into source and id; if that is impossible a
// code search URL is returned instead.
func GitHubURL(source, skillID, branch string) string {
	source, skillID = splitSource(source, skillID)
	if source == "" {
		return githubWebURL + "/search?" + url.Values{"q": {skillID}, "type": {"code"}}.Encode()
	}
	if skillID == "" {
		return githubWebURL + "/" + source
	}
	if branch == "" {
		branch = fallbackBranch
	}
	return githubWebURL + "/" + joinSegments(source, "tree", branch, "skills", skillID)
}

// SkillsShURL returns the marketplace page of a skill, falling back to a
// marketplace search when no repository can be determined.
func SkillsShURL(source, skillID string) string {
	source, skillID = splitSource(source, skillID)
	if source == "" {
		return skillsShWebURL + "/?" + url.Values{"q": {skillID}}.Encode()
	}
	return skillsShWebURL + "/" + joinSegments(source, skillID)
}

func splitSource(source, skillID string) (string, string) {
	source = joinSegments(source)
	skillID = joinSegments(skillID)
	if source != "" {
		return source, skillID
	}

	parts := strings.Split(skillID, "/")
	if len(parts) >= 3 {
		return parts[0] + "/" + parts[1], strings.Join(parts[2:], "/")
	}
	return "", skillID
}

// joinSegments joins path pieces with single slashes, dropping empty segments
func joinSegments(pieces ...string) string {
	var segments []string
	for _, piece := range pieces {
		for _, s := range strings.Split(piece, "/") {
			if s = strings.TrimSpace(s); s != "" {
				segments = append(segments, s)
			}
		}
	}
	return strings.Join(segments, "/")
}
