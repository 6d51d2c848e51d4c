package shard

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/webidx/ftindex/internal/posting"
)

// Reader serves find(key) lookups against one shard's data file. It opens
// lazily on first lookup and caches whatever key list it needs to binary
// search, exactly as the source's read_keys/m_keys_read caches the key
// list after the first find call.
//
// Which on-disk shape a shard has (single page vs. directory-indexed
// multi-page) is not a caller choice: it is detected once from whether the
// shard's .keys directory file exists, resolving §4.B Open Question (a).
type Reader[R posting.Record[R]] struct {
	root          string
	dbName        string
	shardID       uint64
	hashTableSize uint64
	codec         Codec[R]

	mu          sync.Mutex
	loaded      bool
	useDir      bool
	directory   []uint64 // present only when useDir
	single      *page[R] // present only when !useDir
	missingFile bool
}

// NewReader constructs a reader for one shard.
func NewReader[R posting.Record[R]](root, dbName string, shardID, hashTableSize uint64, codec Codec[R]) *Reader[R] {
	return &Reader[R]{
		root:          root,
		dbName:        dbName,
		shardID:       shardID,
		hashTableSize: hashTableSize,
		codec:         codec,
	}
}

func (r *Reader[R]) ensureLoaded() error {
	if r.loaded {
		return nil
	}

	if _, err := os.Stat(keysDirPath(r.root, r.dbName, r.shardID)); err == nil {
		dirFile, err := os.Open(keysDirPath(r.root, r.dbName, r.shardID))
		if err != nil {
			return err
		}
		defer dirFile.Close()

		buf := make([]byte, r.hashTableSize*8)
		n, err := io.ReadFull(dirFile, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		directory := make([]uint64, r.hashTableSize)
		for i := range directory {
			if (i+1)*8 <= n {
				directory[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
			} else {
				directory[i] = SentinelEmpty
			}
		}
		r.directory = directory
		r.useDir = true
		r.loaded = true
		return nil
	}

	f, err := os.Open(dataPath(r.root, r.dbName, r.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			r.missingFile = true
			r.loaded = true
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
		r.missingFile = true
		r.loaded = true
		return nil
	}

	pg, err := readPageAt[R](f, 0)
	if err != nil {
		return fmt.Errorf("shard: reading single-page header for shard %d: %w", r.shardID, err)
	}
	r.single = pg
	r.useDir = false
	r.loaded = true
	return nil
}

// Find returns the postings for key, plus the pre-cap total count
// recorded at the last merge, in file order (equal to merge order: first
// section value-ascending).
func (r *Reader[R]) Find(key uint64) ([]R, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return nil, 0, err
	}

	if r.missingFile {
		return nil, 0, nil
	}

	if r.useDir {
		return r.findViaDirectory(key)
	}
	return r.findInPage(r.single, key)
}

func (r *Reader[R]) findViaDirectory(key uint64) ([]R, int, error) {
	bucket := key % r.hashTableSize
	offset := r.directory[bucket]
	if offset == SentinelEmpty {
		return nil, 0, nil
	}

	f, err := os.Open(dataPath(r.root, r.dbName, r.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	pg, err := readPageAt[R](f, int64(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("shard: reading page at offset %d for shard %d: %w", offset, r.shardID, err)
	}

	recs, total, err := findInPageUsing(f, pg, key, r.codec)
	return recs, total, err
}

func (r *Reader[R]) findInPage(pg *page[R], key uint64) ([]R, int, error) {
	f, err := os.Open(dataPath(r.root, r.dbName, r.shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()
	return findInPageUsing(f, pg, key, r.codec)
}

func findInPageUsing[R posting.Record[R]](f *os.File, pg *page[R], key uint64, codec Codec[R]) ([]R, int, error) {
	idx := sort.Search(len(pg.keys), func(i int) bool { return pg.keys[i] >= key })
	if idx == len(pg.keys) || pg.keys[idx] != key {
		return nil, 0, nil
	}

	recs, err := decodeRecordsAt(f, pg.dataStart, pg.positions[idx], pg.lengths[idx], codec)
	if err != nil {
		return nil, 0, err
	}
	return recs, int(pg.totals[idx]), nil
}
