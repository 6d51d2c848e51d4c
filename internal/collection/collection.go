// Package collection implements the sharded routing layer (§4.D): N shard
// builders for writing, or N shard readers for querying, addressed by
// key mod N.
package collection

import (
	"sort"

	"github.com/webidx/ftindex/internal/posting"
	"github.com/webidx/ftindex/internal/shard"
)

// ShardOf returns the shard index a key routes to for a collection of the
// given size. Routing never changes for the life of a dataset.
func ShardOf(key uint64, numShards uint64) uint64 {
	return key % numShards
}

// Builders holds one shard.Builder per shard, for the write path.
type Builders[R posting.Record[R]] struct {
	shards []*shard.Builder[R]
}

// NewBuilders constructs a builder per shard under root/dbName, sharing the
// same hash-table size and capping configuration.
func NewBuilders[R posting.Record[R]](root, dbName string, numShards, hashTableSize uint64, maxPerSection, maxSections int, codec shard.Codec[R]) *Builders[R] {
	shards := make([]*shard.Builder[R], numShards)
	for i := range shards {
		shards[i] = shard.NewBuilder(root, dbName, uint64(i), hashTableSize, maxPerSection, maxSections, codec)
	}
	return &Builders[R]{shards: shards}
}

// NumShards returns the fixed shard count.
func (b *Builders[R]) NumShards() int { return len(b.shards) }

// Shard returns the builder owning shardID.
func (b *Builders[R]) Shard(shardID uint64) *shard.Builder[R] { return b.shards[shardID] }

// Route returns the builder that key routes to.
func (b *Builders[R]) Route(key uint64) *shard.Builder[R] {
	return b.shards[ShardOf(key, uint64(len(b.shards)))]
}

// Add routes (key, rec) to its shard and adds it there.
func (b *Builders[R]) Add(key uint64, rec R) {
	b.Route(key).Add(key, rec)
}

// All returns every shard builder, in shard-index order.
func (b *Builders[R]) All() []*shard.Builder[R] {
	out := make([]*shard.Builder[R], len(b.shards))
	copy(out, b.shards)
	return out
}

// Readers holds one shard.Reader per shard, for the read path.
type Readers[R posting.Record[R]] struct {
	shards []*shard.Reader[R]
}

// NewReaders constructs a reader per shard under root/dbName.
func NewReaders[R posting.Record[R]](root, dbName string, numShards, hashTableSize uint64, codec shard.Codec[R]) *Readers[R] {
	shards := make([]*shard.Reader[R], numShards)
	for i := range shards {
		shards[i] = shard.NewReader(root, dbName, uint64(i), hashTableSize, codec)
	}
	return &Readers[R]{shards: shards}
}

// NumShards returns the fixed shard count.
func (r *Readers[R]) NumShards() int { return len(r.shards) }

// Find queries only the shard that key routes to.
func (r *Readers[R]) Find(key uint64) ([]R, int, error) {
	shardID := ShardOf(key, uint64(len(r.shards)))
	return r.shards[shardID].Find(key)
}

// FindAll groups keys by shard, queries each touched shard once, and
// returns the union of results preserving per-shard result order. The
// outer slice order follows the order keys were grouped into shards
// (shard index ascending), not the caller's input order.
func (r *Readers[R]) FindAll(keys []uint64) ([]R, error) {
	n := uint64(len(r.shards))
	byShard := map[uint64][]uint64{}
	for _, k := range keys {
		s := ShardOf(k, n)
		byShard[s] = append(byShard[s], k)
	}

	shardIDs := make([]uint64, 0, len(byShard))
	for s := range byShard {
		shardIDs = append(shardIDs, s)
	}
	sort.Slice(shardIDs, func(i, j int) bool { return shardIDs[i] < shardIDs[j] })

	var out []R
	for _, s := range shardIDs {
		for _, k := range byShard[s] {
			recs, _, err := r.shards[s].Find(k)
			if err != nil {
				return nil, err
			}
			out = append(out, recs...)
		}
	}
	return out, nil
}
