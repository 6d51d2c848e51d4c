package level

import (
	"sort"

	"github.com/webidx/ftindex/internal/collection"
	"github.com/webidx/ftindex/internal/posting"
)

// DocSize looks up a document's size (word count or byte length) for the
// word_level score normalization pass. A nil DocSize leaves the raw
// weighted-occurrence sum as the final score.
type DocSize func(urlHash uint64) uint32

// WordLevel indexes (term -> url) postings carrying a raw occurrence count
// alongside a weighted-occurrence-sum score. IndexDocument only
// accumulates; Optimize performs the two-phase calculate_scores/
// sort_by_scores pass the original runs once ingestion finishes (§4.E).
type WordLevel struct {
	root, dbName           string
	numShards, hashTblSize uint64

	builders *collection.Builders[posting.Counted]
	docSize  DocSize
}

// NewWordLevel constructs a word_level over numShards shards.
func NewWordLevel(root, dbName string, numShards, hashTableSize uint64, maxPerSection, maxSections int, docSize DocSize) *WordLevel {
	return &WordLevel{
		root:        root,
		dbName:      dbName,
		numShards:   numShards,
		hashTblSize: hashTableSize,
		builders:    collection.NewBuilders(root, dbName, numShards, hashTableSize, maxPerSection, maxSections, countedCodec),
		docSize:     docSize,
	}
}

func (w *WordLevel) Name() string { return "word" }

// IndexDocument accumulates each term's weighted occurrence sum (Score)
// and raw occurrence count (Count) for this document's url. Combine sums
// both fields across documents and across the append-cache fold, so a
// term seen in several columns, or several times in one column, folds
// correctly at Merge time.
func (w *WordLevel) IndexDocument(doc Document) {
	for _, wc := range WeightedColumns {
		for term, n := range WordCounts(doc.Columns[wc.Column]) {
			w.builders.Add(TermHash(term), posting.Counted{
				Value: doc.URLHash,
				Score: wc.Weight * float32(n),
				Count: uint32(n),
			})
		}
	}
}

func (w *WordLevel) Merge() error    { return mergeAll(asMergers(w.builders.All())) }
func (w *WordLevel) Truncate() error { return truncateAll(asTruncaters(w.builders.All())) }

// Builders exposes the underlying collection so a manager can flush
// individual shards (Append/Full) during threaded ingestion.
func (w *WordLevel) Builders() *collection.Builders[posting.Counted] { return w.builders }

// Find answers "which urls contain termHash, and with what score",
// reading from a freshly constructed collection.Readers so results
// reflect every merge and Optimize completed before this call.
func (w *WordLevel) Find(termHash uint64) ([]posting.Counted, int, error) {
	readers := collection.NewReaders(w.root, w.dbName, w.numShards, w.hashTblSize, countedCodec)
	return readers.Find(termHash)
}

// Optimize implements calculate_scores() followed by sort_by_scores():
// each posting's weighted-occurrence-sum Score is divided by the target
// document's size (a crude TF normalization), then every key's posting
// list is re-sorted by the normalized score descending.
func (w *WordLevel) Optimize() error {
	for _, b := range w.builders.All() {
		records, totals, err := b.ReadAll()
		if err != nil {
			return err
		}
		for key, recs := range records {
			normalizeScores(recs, w.docSize)
			sortByScoreDescending(recs)
			records[key] = recs
		}
		if err := b.RewriteRecords(records, totals); err != nil {
			return err
		}
	}
	return nil
}

func normalizeScores(recs []posting.Counted, docSize DocSize) {
	if docSize == nil {
		return
	}
	for i, r := range recs {
		if sz := docSize(r.Value); sz > 0 {
			recs[i].Score = r.Score / float32(sz)
		}
	}
}

func sortByScoreDescending(recs []posting.Counted) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
}
