package sources

import (
	"context"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// Aggregator fans a search out to every enabled source and merges the results
type Aggregator struct {
	sources []Source
}

// NewAggregator creates an Aggregator over sources, in priority order
func NewAggregator(sources ...Source) *Aggregator {
	return &Aggregator{sources: sources}
}

// Sources returns the aggregated sources
func (a *Aggregator) Sources() []Source {
	return a.sources
}

// Info describes each configured source
func (a *Aggregator) Info() []skills.SourceInfo {
	info := make([]skills.SourceInfo, 0, len(a.sources))
	for _, s := range a.sources {
		info = append(info, skills.SourceInfo{Name: s.Name(), Enabled: s.Enabled()})
	}
	return info
}

// Search queries all enabled sources concurrently. A failing source only
// loses its own results. Duplicates (same source/id, case-insensitive) are
// merged, keeping the marketplace entry when there is one since it carries
// install counts. Results are ordered by installs, most first.
func (a *Aggregator) Search(ctx context.Context, query string, limit int) ([]skills.SearchResult, error) {
	var enabled []Source
	for _, s := range a.sources {
		if s.Enabled() {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		logger.G(ctx).Warn("no skill sources enabled")
		return nil, nil
	}

	perSource := make([][]skills.SearchResult, len(enabled))
	failures := make([]error, len(enabled))

	var g errgroup.Group
	for i, s := range enabled {
		g.Go(func() error {
			results, err := s.Search(ctx, query, limit)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("source", s.Name()).Warn("skill source search failed")
				failures[i] = errors.Wrap(err, s.Name())
				return nil
			}
			perSource[i] = results
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merr *multierror.Error
	for _, err := range failures {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr != nil {
		logger.G(ctx).WithField("failed_sources", merr.Len()).
			WithField("sources", len(enabled)).
			Warnf("skill search degraded: %s", merr.ErrorOrNil())
	}

	merged := mergeResults(perSource)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	logger.G(ctx).WithField("query", query).WithField("results", len(merged)).Debug("aggregated skill search")
	return merged, nil
}

// Refresh refreshes every enabled source, reporting all failures together
func (a *Aggregator) Refresh(ctx context.Context) error {
	var merr *multierror.Error
	for _, s := range a.sources {
		if !s.Enabled() {
			continue
		}
		if err := s.Refresh(ctx); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "failed to refresh %s", s.Name()))
		}
	}
	return merr.ErrorOrNil()
}

// Close closes every source
func (a *Aggregator) Close() error {
	var merr *multierror.Error
	for _, s := range a.sources {
		if err := s.Close(); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "failed to close %s", s.Name()))
		}
	}
	return merr.ErrorOrNil()
}

func mergeResults(perSource [][]skills.SearchResult) []skills.SearchResult {
	index := map[string]int{}
	var merged []skills.SearchResult

	for _, results := range perSource {
		for _, r := range results {
			key := r.UniqueKey()
			i, seen := index[key]
			if !seen {
				index[key] = len(merged)
				merged = append(merged, r)
				continue
			}
			if r.Registry == skills.RegistryMarketplace && merged[i].Registry != skills.RegistryMarketplace {
				merged[i] = r
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Installs > merged[j].Installs
	})
	return merged
}
