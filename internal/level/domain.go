package level

import (
	"github.com/webidx/ftindex/internal/collection"
	"github.com/webidx/ftindex/internal/posting"
)

// HostPrior looks up a pre-computed authority score for a host (e.g. from
// harmonic centrality, §4.H), used to weight domain_level postings. A nil
// HostPrior leaves postings unweighted.
type HostPrior func(hostHash uint64) float32

// DomainLevel indexes (term -> host) postings: it answers "which hosts
// mention this term, and how strongly" (§4.E domain_level). Unlike
// url_level it uses the standard N-shard collection, since domain_hash
// space is small and uniform enough for modulo routing to balance well.
type DomainLevel struct {
	root, dbName           string
	numShards, hashTblSize uint64

	builders  *collection.Builders[posting.Basic]
	hostPrior HostPrior
}

// NewDomainLevel constructs a domain_level over numShards shards, each with
// its own hashTableSize-bucketed page directory (0 for a single page).
func NewDomainLevel(root, dbName string, numShards, hashTableSize uint64, maxPerSection, maxSections int, hostPrior HostPrior) *DomainLevel {
	return &DomainLevel{
		root:       root,
		dbName:     dbName,
		numShards:  numShards,
		hashTblSize: hashTableSize,
		builders:   collection.NewBuilders(root, dbName, numShards, hashTableSize, maxPerSection, maxSections, basicCodec),
		hostPrior:  hostPrior,
	}
}

func (d *DomainLevel) Name() string { return "domain" }

// IndexDocument folds one document's weighted text columns into per-term
// host postings: score is column weight times in-document term frequency,
// scaled by the host's prior authority when one is available.
func (d *DomainLevel) IndexDocument(doc Document) {
	for _, wc := range WeightedColumns {
		counts := WordCounts(doc.Columns[wc.Column])
		for term, n := range counts {
			score := wc.Weight * float32(n)
			if d.hostPrior != nil {
				score *= d.hostPrior(doc.HostHash)
			}
			d.builders.Add(TermHash(term), posting.Basic{Value: doc.HostHash, Score: score})
		}
	}
}

func (d *DomainLevel) Merge() error    { return mergeAll(asMergers(d.builders.All())) }
func (d *DomainLevel) Truncate() error { return truncateAll(asTruncaters(d.builders.All())) }

// Optimize is a no-op: domain_level scores are complete as soon as they're
// folded, unlike word_level's two-phase calculate_scores pass.
func (d *DomainLevel) Optimize() error { return nil }

// Builders exposes the underlying collection so a manager can flush
// individual shards (Append/Full) during threaded ingestion.
func (d *DomainLevel) Builders() *collection.Builders[posting.Basic] { return d.builders }

// Find answers "which hosts mention termHash", reading from a freshly
// constructed collection.Readers so results reflect every merge completed
// before this call (a shard.Reader keeps the state it first loaded).
func (d *DomainLevel) Find(termHash uint64) ([]posting.Basic, int, error) {
	readers := collection.NewReaders(d.root, d.dbName, d.numShards, d.hashTblSize, basicCodec)
	return readers.Find(termHash)
}
