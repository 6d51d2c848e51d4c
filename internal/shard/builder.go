package shard

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/webidx/ftindex/internal/hll"
	"github.com/webidx/ftindex/internal/posting"
)

// Builder owns one shard's files for a (db_name, shard_id) pair: the
// append-log cache and the compacted data file plus its optional key
// directory and HLL meta file. All exported methods are safe for
// concurrent use; a Builder is itself the "per-shard mutex" referenced in
// §5 — callers don't need an external lock.
type Builder[R posting.Record[R]] struct {
	mu sync.Mutex

	root          string
	dbName        string
	shardID       uint64
	hashTableSize uint64
	maxPerSection int
	maxSections   int
	maxCacheBytes int
	codec         Codec[R]

	keys       []uint64
	records    []R
	cacheBytes int
}

// NewBuilder constructs a builder for one shard. hashTableSize == 0 means
// the shard will have no external key directory and write a single page
// covering every key (§4.B Open Question (a)); hashTableSize > 0 buckets
// keys into that many pages, each addressed by a directory file.
func NewBuilder[R posting.Record[R]](root, dbName string, shardID, hashTableSize uint64, maxPerSection, maxSections int, codec Codec[R]) *Builder[R] {
	return &Builder[R]{
		root:          root,
		dbName:        dbName,
		shardID:       shardID,
		hashTableSize: hashTableSize,
		maxPerSection: maxPerSection,
		maxSections:   maxSections,
		maxCacheBytes: DefaultMaxCacheBytes,
		codec:         codec,
	}
}

// SetMaxCacheBytes overrides the default in-memory threshold used by Full.
func (b *Builder[R]) SetMaxCacheBytes(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxCacheBytes = n
}

// Add appends one (key, record) pair to the in-memory buffer. O(1)
// amortized.
func (b *Builder[R]) Add(key uint64, rec R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	b.records = append(b.records, rec)
	b.cacheBytes += 8 + b.codec.Size
}

// Full reports whether the in-memory buffer has crossed the configured
// byte threshold; callers use this to decide when to call Append.
func (b *Builder[R]) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cacheBytes >= b.maxCacheBytes
}

// Append flushes the in-memory buffer to the append-log cache files and
// clears it. Pure log; no sorting or dedup happens here.
func (b *Builder[R]) Append() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked()
}

func (b *Builder[R]) appendLocked() error {
	if len(b.keys) == 0 {
		return nil
	}
	if err := ensureDir(b.root, b.dbName, b.shardID); err != nil {
		return err
	}

	keysFile, err := os.OpenFile(cacheKeysPath(b.root, b.dbName, b.shardID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer keysFile.Close()

	recFile, err := os.OpenFile(cachePath(b.root, b.dbName, b.shardID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer recFile.Close()

	keyBuf := make([]byte, len(b.keys)*8)
	for i, k := range b.keys {
		binary.LittleEndian.PutUint64(keyBuf[i*8:i*8+8], k)
	}
	if _, err := keysFile.Write(keyBuf); err != nil {
		return err
	}

	recBuf := make([]byte, len(b.records)*b.codec.Size)
	single := make([]byte, b.codec.Size)
	for i, rec := range b.records {
		rec.Encode(single)
		copy(recBuf[i*b.codec.Size:], single)
	}
	if _, err := recFile.Write(recBuf); err != nil {
		return err
	}

	b.keys = nil
	b.records = nil
	b.cacheBytes = 0
	return nil
}

// Merge folds the append-log cache into the data file: it reads the
// existing data file and append cache, deduplicates and caps each key's
// postings, updates the HLL, and rewrites the data file (and key
// directory, if hashTableSize > 0) atomically from the caller's
// perspective — a failed read aborts before any file is truncated, so
// on-disk state stays consistent and the merge can be retried.
func (b *Builder[R]) Merge() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := map[uint64][]R{}
	totals := map[uint64]int{}

	if err := b.readDataFileLocked(cache, totals); err != nil {
		return fmt.Errorf("shard: merge read data file: %w", err)
	}
	if err := b.readAppendCacheLocked(cache); err != nil {
		return fmt.Errorf("shard: merge read append cache: %w", err)
	}

	sketch, _, err := b.readMetaLocked()
	if err != nil {
		return fmt.Errorf("shard: merge read meta: %w", err)
	}
	for _, recs := range cache {
		for _, r := range recs {
			sketch.Insert(r.Key())
		}
	}

	for key, recs := range cache {
		folded, total := sortRecordList(recs, b.maxPerSection, b.maxSections)
		cache[key] = folded
		totals[key] = total
	}

	if err := b.writeDataFileLocked(cache, totals); err != nil {
		return fmt.Errorf("shard: merge write data file: %w", err)
	}

	if err := b.saveMetaLocked(sketch, uint64(sketch.Count())); err != nil {
		return fmt.Errorf("shard: merge save meta: %w", err)
	}

	return b.truncateCacheFilesLocked()
}

// ReadAll decodes every page of the current data file, returning every
// key's postings and pre-cap totals. Used by levels that need a
// post-ingestion rewrite pass over the whole shard (e.g. word_level's
// calculate_scores/sort_by_scores), distinct from Merge's read-fold-write
// cycle.
func (b *Builder[R]) ReadAll() (map[uint64][]R, map[uint64]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cache := map[uint64][]R{}
	totals := map[uint64]int{}
	if err := b.readDataFileLocked(cache, totals); err != nil {
		return nil, nil, err
	}
	return cache, totals, nil
}

// RewriteRecords replaces the data file (and key directory, if
// hashTableSize > 0) with the given already-final per-key postings and
// totals, without re-reading the append cache or re-folding. It does not
// touch the HLL meta file.
func (b *Builder[R]) RewriteRecords(records map[uint64][]R, totals map[uint64]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeDataFileLocked(records, totals)
}

// Truncate deletes all of this shard's files and recreates its directory.
func (b *Builder[R]) Truncate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range []string{
		dataPath(b.root, b.dbName, b.shardID),
		cachePath(b.root, b.dbName, b.shardID),
		cacheKeysPath(b.root, b.dbName, b.shardID),
		keysDirPath(b.root, b.dbName, b.shardID),
		metaPath(b.root, b.dbName, b.shardID),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	b.keys = nil
	b.records = nil
	b.cacheBytes = 0
	return ensureDir(b.root, b.dbName, b.shardID)
}

func (b *Builder[R]) readDataFileLocked(cache map[uint64][]R, totals map[uint64]int) error {
	f, err := os.Open(dataPath(b.root, b.dbName, b.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	var offset int64
	for offset < info.Size() {
		pg, err := readPageAt[R](f, offset)
		if err != nil {
			return err
		}
		for i, key := range pg.keys {
			recs, err := decodeRecordsAt(f, pg.dataStart, pg.positions[i], pg.lengths[i], b.codec)
			if err != nil {
				return err
			}
			cache[key] = append(cache[key], recs...)
			totals[key] = int(pg.totals[i])
		}
		offset += pg.size
	}
	return nil
}

func (b *Builder[R]) readAppendCacheLocked(cache map[uint64][]R) error {
	keysFile, err := os.Open(cacheKeysPath(b.root, b.dbName, b.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer keysFile.Close()

	recFile, err := os.Open(cachePath(b.root, b.dbName, b.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer recFile.Close()

	keysBytes, err := io.ReadAll(keysFile)
	if err != nil {
		return err
	}
	recsBytes, err := io.ReadAll(recFile)
	if err != nil {
		return err
	}

	n := len(keysBytes) / 8
	if n*b.codec.Size > len(recsBytes) {
		n = len(recsBytes) / b.codec.Size
	}
	for i := 0; i < n; i++ {
		key := binary.LittleEndian.Uint64(keysBytes[i*8 : i*8+8])
		rec := b.codec.Decode(recsBytes[i*b.codec.Size : (i+1)*b.codec.Size])
		cache[key] = append(cache[key], rec)
	}
	return nil
}

func (b *Builder[R]) readMetaLocked() (*hll.HLL, uint64, error) {
	f, err := os.Open(metaPath(b.root, b.dbName, b.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return hll.New(), 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 8 {
		return hll.New(), 0, nil
	}
	unique := binary.LittleEndian.Uint64(data[:8])
	sketch := hll.New()
	if len(data) > 8 {
		if err := sketch.UnmarshalBinary(data[8:]); err != nil {
			return nil, 0, err
		}
	}
	return sketch, unique, nil
}

func (b *Builder[R]) saveMetaLocked(sketch *hll.HLL, uniqueCount uint64) error {
	if err := ensureDir(b.root, b.dbName, b.shardID); err != nil {
		return err
	}
	f, err := os.Create(metaPath(b.root, b.dbName, b.shardID))
	if err != nil {
		return err
	}
	defer f.Close()

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uniqueCount)
	if _, err := f.Write(hdr[:]); err != nil {
		return err
	}
	_, err = f.Write(sketch.MarshalBinary())
	return err
}

func (b *Builder[R]) writeDataFileLocked(cache map[uint64][]R, totals map[uint64]int) error {
	if err := ensureDir(b.root, b.dbName, b.shardID); err != nil {
		return err
	}

	buckets := map[uint64][]uint64{}
	if b.hashTableSize == 0 {
		all := make([]uint64, 0, len(cache))
		for k := range cache {
			all = append(all, k)
		}
		buckets[0] = all
	} else {
		for k := range cache {
			bucket := k % b.hashTableSize
			buckets[bucket] = append(buckets[bucket], k)
		}
	}

	bucketIDs := make([]uint64, 0, len(buckets))
	for id := range buckets {
		bucketIDs = append(bucketIDs, id)
	}
	sort.Slice(bucketIDs, func(i, j int) bool { return bucketIDs[i] < bucketIDs[j] })

	f, err := os.Create(dataPath(b.root, b.dbName, b.shardID))
	if err != nil {
		return err
	}
	defer f.Close()

	offsets := map[uint64]int64{}
	var offset int64
	for _, bucket := range bucketIDs {
		offsets[bucket] = offset
		written, err := writePage(f, buckets[bucket], cache, totals, b.codec)
		if err != nil {
			return err
		}
		offset += written
	}

	if b.hashTableSize > 0 {
		if err := b.writeKeyDirectoryLocked(offsets); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder[R]) writeKeyDirectoryLocked(offsets map[uint64]int64) error {
	f, err := os.Create(keysDirPath(b.root, b.dbName, b.shardID))
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, b.hashTableSize*8)
	for i := uint64(0); i < b.hashTableSize; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], SentinelEmpty)
	}
	for bucket, off := range offsets {
		if bucket >= b.hashTableSize {
			return fmt.Errorf("shard: bucket %d out of range for hash table size %d", bucket, b.hashTableSize)
		}
		binary.LittleEndian.PutUint64(buf[bucket*8:bucket*8+8], uint64(off))
	}
	_, err = f.Write(buf)
	return err
}

func (b *Builder[R]) truncateCacheFilesLocked() error {
	for _, p := range []string{cachePath(b.root, b.dbName, b.shardID), cacheKeysPath(b.root, b.dbName, b.shardID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// sortRecordList implements §4.C step 4: sort ascending by value, fold
// equal-value runs by summing score/count, record the pre-cap total, and
// if the result exceeds maxPerSection, sort by score descending, truncate
// to maxSections*maxPerSection, and re-sort each maxPerSection-chunk by
// value ascending (orderSectionsByValue).
func sortRecordList[R posting.Record[R]](recs []R, maxPerSection, maxSections int) ([]R, int) {
	sorted := append([]R(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	folded := make([]R, 0, len(sorted))
	for _, r := range sorted {
		if n := len(folded); n > 0 && folded[n-1].Key() == r.Key() {
			folded[n-1] = folded[n-1].Combine(r)
			continue
		}
		folded = append(folded, r)
	}

	total := len(folded)

	if maxPerSection > 0 && total > maxPerSection {
		sort.Slice(folded, func(i, j int) bool { return folded[i].ScoreVal() > folded[j].ScoreVal() })
		cap := maxPerSection * maxSections
		if cap < len(folded) {
			folded = folded[:cap]
		}
		orderSectionsByValue(folded, maxPerSection)
	}

	return folded, total
}

// orderSectionsByValue re-sorts each maxPerSection-sized chunk of records
// by value ascending, leaving chunk boundaries (and thus the score-descending
// ordering across chunks) untouched. Implemented as an explicit bounds-checked
// loop rather than the source's stop-flag loop (§9 Open Question (b)).
func orderSectionsByValue[R posting.Record[R]](records []R, maxPerSection int) {
	if maxPerSection <= 0 {
		return
	}
	for start := 0; start < len(records); start += maxPerSection {
		end := start + maxPerSection
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		sort.Slice(chunk, func(i, j int) bool { return chunk[i].Key() < chunk[j].Key() })
	}
}
