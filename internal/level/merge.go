package level

import (
	"errors"

	"github.com/webidx/ftindex/internal/posting"
	"github.com/webidx/ftindex/internal/shard"
)

// mergeAll flushes every shard's in-memory buffer to its append cache and
// then merges it, collecting per-shard errors without letting one shard's
// failure stop the others (§7: isolated shard failures don't poison
// siblings).
func mergeAll(shards []shardMerger) error {
	var errs []error
	for _, s := range shards {
		if err := s.Append(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Merge(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func truncateAll(shards []shardTruncater) error {
	var errs []error
	for _, s := range shards {
		if err := s.Truncate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type shardMerger interface {
	Append() error
	Merge() error
}
type shardTruncater interface{ Truncate() error }

// asMergers/asTruncaters adapt a slice of *shard.Builder[R] to the
// non-generic helper interfaces above.
func asMergers[R posting.Record[R]](builders []*shard.Builder[R]) []shardMerger {
	out := make([]shardMerger, len(builders))
	for i, b := range builders {
		out[i] = b
	}
	return out
}

func asTruncaters[R posting.Record[R]](builders []*shard.Builder[R]) []shardTruncater {
	out := make([]shardTruncater, len(builders))
	for i, b := range builders {
		out[i] = b
	}
	return out
}
