package level

import (
	"math"
	"sync"

	"github.com/webidx/ftindex/internal/posting"
	"github.com/webidx/ftindex/internal/shard"
)

// urlHashTableSize is the fixed per-host page bucket count url_level uses
// for each host's own builder, distinct from and unrelated to the
// N-shard hash table sizes domain_level/word_level are configured with.
const urlHashTableSize = 1000

// URLLevel indexes (term -> url) postings, but unlike domain_level and
// word_level it keeps one shard.Builder PER HOST rather than routing every
// key through a fixed N-shard collection: url_level.cpp addresses builders
// by domain_hash directly, reusing the shard path scheme with db_name
// "url" and shard_id == domain_hash (§4.E).
type URLLevel struct {
	root, dbName                string
	maxPerSection, maxSections  int

	mu       sync.Mutex
	builders map[uint64]*shard.Builder[posting.Basic]
}

// NewURLLevel constructs an empty url_level; per-host builders are created
// lazily as documents for new hosts arrive.
func NewURLLevel(root string, maxPerSection, maxSections int) *URLLevel {
	return &URLLevel{
		root:          root,
		dbName:        "url",
		maxPerSection: maxPerSection,
		maxSections:   maxSections,
		builders:      map[uint64]*shard.Builder[posting.Basic]{},
	}
}

func (u *URLLevel) Name() string { return "url" }

// builderFor returns the builder for hostHash, creating it if this is the
// first document seen for that host; the map is checked and updated once,
// with u.mu held (§4.E, grounded on url_level.cpp's
// make_sure_builder_is_present).
func (u *URLLevel) builderFor(hostHash uint64) *shard.Builder[posting.Basic] {
	u.mu.Lock()
	defer u.mu.Unlock()
	if b, ok := u.builders[hostHash]; ok {
		return b
	}
	b := shard.NewBuilder(u.root, u.dbName, hostHash, urlHashTableSize, u.maxPerSection, u.maxSections, basicCodec)
	u.builders[hostHash] = b
	return b
}

// IndexDocument folds one document's weighted text columns into per-term
// url postings, keyed under that document's host builder.
func (u *URLLevel) IndexDocument(doc Document) {
	b := u.builderFor(doc.HostHash)
	for _, wc := range WeightedColumns {
		for _, word := range Tokenize(doc.Columns[wc.Column]) {
			b.Add(TermHash(word), posting.Basic{Value: doc.URLHash, Score: wc.Weight})
		}
	}
}

func (u *URLLevel) snapshot() []*shard.Builder[posting.Basic] {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*shard.Builder[posting.Basic], 0, len(u.builders))
	for _, b := range u.builders {
		out = append(out, b)
	}
	return out
}

func (u *URLLevel) Merge() error    { return mergeAll(asMergers(u.snapshot())) }
func (u *URLLevel) Truncate() error { return truncateAll(asTruncaters(u.snapshot())) }
func (u *URLLevel) Optimize() error { return nil }

// Builders exposes a snapshot of every per-host builder currently known,
// so a manager can enqueue full ones for scheduled appends.
func (u *URLLevel) Builders() []*shard.Builder[posting.Basic] { return u.snapshot() }

// FindForHost answers "which urls under hostHash contain termHash", reading
// from a freshly constructed shard.Reader rather than the in-memory
// builders map so a query works purely off on-disk state, including after
// a merge or a process restart with an empty map.
func (u *URLLevel) FindForHost(hostHash, termHash uint64) ([]posting.Basic, error) {
	r := shard.NewReader(u.root, u.dbName, hostHash, urlHashTableSize, basicCodec)
	recs, _, err := r.Find(termHash)
	return recs, err
}

// AddDocument and AddSnippet are documented no-ops: the original
// url_level::add_document/add_snippet stubs never populated a body-text or
// snippet store, and §9 Open Question (c) keeps that behavior rather than
// inventing a store this index doesn't otherwise need.
func (u *URLLevel) AddDocument(urlHash uint64, body string) {}
func (u *URLLevel) AddSnippet(urlHash uint64, snippet string) {}

// ReturnRecord is one scored (value, score) result flowing out of a level
// query, plus the inbound-link boost accounting ApplyURLLinks adds to it.
type ReturnRecord struct {
	Value       uint64
	Score       float32
	NumURLLinks int
}

// ApplyURLLinks merges links (sorted ascending by target hash, i.e.
// Value()) into results (sorted ascending by Value), boosting a result's
// score once per unique (source_domain, target) edge found among the
// link_level postings that share the query's term (§4.E.1, §4.F). Both
// slices must already be sorted by Value ascending, which is what
// collection.Readers.Find/FindAll naturally return via shard page order.
// Returns the number of edges applied.
func ApplyURLLinks(links []posting.Link, results []ReturnRecord) int {
	if len(links) == 0 || len(results) == 0 {
		return 0
	}

	type edge struct{ source, target uint64 }
	seen := make(map[edge]bool)

	applied := 0
	i, j := 0, 0
	for i < len(links) && j < len(results) {
		lv, rv := links[i].Value, results[j].Value
		switch {
		case lv < rv:
			i++
		case lv > rv:
			j++
		default:
			e := edge{source: links[i].SourceDomain, target: links[i].Value}
			if !seen[e] {
				seen[e] = true
				results[j].Score += float32(math.Expm1(25*float64(links[i].Score)) / 50)
				results[j].NumURLLinks++
				applied++
			}
			i++
		}
	}
	return applied
}
