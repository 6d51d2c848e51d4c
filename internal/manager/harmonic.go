package manager

import (
	"fmt"

	"github.com/webidx/ftindex/internal/hyperball"
	"github.com/webidx/ftindex/internal/level"
)

// Harmonic answers the "harmonic" CLI command: it rebuilds the link graph
// from every link_level edge on disk and runs HyperBall (§4.H) over it,
// returning the approximate harmonic centrality of url's vertex. The graph
// is rebuilt on every call rather than kept resident, since this command
// is a diagnostic/analytic one run interactively, not a query-path
// operation (unlike Find, which is cached).
func (m *Manager) Harmonic(url string) (float64, error) {
	vertexOf, adjacency, err := m.buildLinkGraph()
	if err != nil {
		return 0, fmt.Errorf("building link graph: %w", err)
	}

	v, ok := vertexOf[level.URLHash(url)]
	if !ok {
		return 0, fmt.Errorf("url not present in link graph: %s", url)
	}

	n := len(vertexOf)
	edgesFn := func(from int) []int { return adjacency[from] }
	harmonic := hyperball.Run(n, edgesFn, m.cfg.HyperballWorkers, m.cfg.HyperballRounds)
	return harmonic[v], nil
}

// linkEdge is a deduped (source_domain -> target_url) vertex-id pair.
type linkEdge struct{ from, to int }

// buildLinkGraph scans every link_level shard builder's full postings
// (ignoring the anchor-text term key they're grouped under) and dedupes
// them into a (source_domain -> target_url) edge set, assigning each
// distinct hash a dense vertex id.
func (m *Manager) buildLinkGraph() (map[uint64]int, [][]int, error) {
	vertexOf := map[uint64]int{}
	vertexID := func(hash uint64) int {
		if v, ok := vertexOf[hash]; ok {
			return v
		}
		v := len(vertexOf)
		vertexOf[hash] = v
		return v
	}

	seen := map[linkEdge]bool{}
	var edges []linkEdge

	for _, b := range m.link.Builders().All() {
		records, _, err := b.ReadAll()
		if err != nil {
			return nil, nil, err
		}
		for _, recs := range records {
			for _, r := range recs {
				e := linkEdge{from: vertexID(r.SourceDomain), to: vertexID(r.Value)}
				if seen[e] {
					continue
				}
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}

	adjacency := make([][]int, len(vertexOf))
	for _, e := range edges {
		adjacency[e.from] = append(adjacency[e.from], e.to)
	}
	return vertexOf, adjacency, nil
}
