// Package sources discovers skills across registries: the skills.sh
// marketplace, a curated registry file and the community awesome-list. Each
// registry is a Source; the Aggregator queries them concurrently and merges
// their results.
package sources

import (
	"context"

	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// Source is a registry that can be searched for skills
type Source interface {
	// Name is the registry tag carried by every result of the source
	Name() string
	Enabled() bool
	Search(ctx context.Context, query string, limit int) ([]skills.SearchResult, error)
	// Refresh reloads cached registry data; a no-op for live APIs
	Refresh(ctx context.Context) error
	Close() error
}
