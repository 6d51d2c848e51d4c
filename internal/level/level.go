// Package level implements the per-entity indexing strategies (domain,
// url, word, link) that share the shard-builder framework (§4.E).
package level

// Level is the interface the index manager holds levels by (§9 "cyclic
// references... resolve by interface abstraction"): the manager borrows a
// Level, never owns or reaches back into it beyond this contract.
type Level interface {
	// Name identifies the level for logging/metrics.
	Name() string
	// IndexDocument folds one parsed TSV row into this level's builders.
	IndexDocument(doc Document)
	// Merge compacts every builder this level owns.
	Merge() error
	// Truncate deletes every builder's on-disk state.
	Truncate() error
	// Optimize performs any post-ingestion pass this level needs before
	// it is queried (e.g. word_level's calculate_scores/sort_by_scores).
	// Levels without such a pass implement it as a no-op.
	Optimize() error
}
