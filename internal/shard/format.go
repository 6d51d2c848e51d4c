// Package shard implements the on-disk binary shard format: append-log
// cache files, a page-structured data file, an external hash-table key
// directory, and the HLL meta file, plus the builder/reader that operate
// on them.
package shard

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/webidx/ftindex/internal/posting"
)

// SentinelEmpty marks an empty bucket in the key directory file.
const SentinelEmpty = ^uint64(0)

// MaxKeys bounds the number of keys a single page may declare; exceeding it
// is treated as a format-invalid, fatal-for-the-shard condition.
const MaxKeys = 10000

// DefaultMaxCacheBytes is the in-memory threshold at which Builder.Full
// reports true, matching the source's m_max_cache_file_size.
const DefaultMaxCacheBytes = 300 * 1024 * 1024

// StreamBufferLen is the chunk size used when streaming a key's payload
// off disk.
const StreamBufferLen = 64 * 1024

// NumMountpoints is the number of spindle-spread mount roots shard files
// are distributed across.
const NumMountpoints = 8

// Mountpoint returns the mount-point index a shard's files live under.
func Mountpoint(shardID uint64) uint64 { return shardID % NumMountpoints }

// Codec bundles a record type's fixed encoded width with its decode
// function. The Size/Decode pair stands in for what a C++ template would
// infer statically; Go generics need it supplied explicitly.
type Codec[R posting.Record[R]] struct {
	Size   int
	Decode func(buf []byte) R
}

func dir(root, dbName string, shardID uint64) string {
	return filepath.Join(root, strconv.FormatUint(Mountpoint(shardID), 10), "full_text", dbName)
}

func dataPath(root, dbName string, shardID uint64) string {
	return filepath.Join(dir(root, dbName, shardID), fmt.Sprintf("%d.data", shardID))
}

func cachePath(root, dbName string, shardID uint64) string {
	return filepath.Join(dir(root, dbName, shardID), fmt.Sprintf("%d.cache", shardID))
}

func cacheKeysPath(root, dbName string, shardID uint64) string {
	return filepath.Join(dir(root, dbName, shardID), fmt.Sprintf("%d.cache.keys", shardID))
}

func keysDirPath(root, dbName string, shardID uint64) string {
	return filepath.Join(dir(root, dbName, shardID), fmt.Sprintf("%d.keys", shardID))
}

func metaPath(root, dbName string, shardID uint64) string {
	return filepath.Join(dir(root, dbName, shardID), fmt.Sprintf("%d.meta", shardID))
}

// page is the in-memory form of one decoded data-file page.
type page[R posting.Record[R]] struct {
	keys      []uint64
	positions []uint64
	lengths   []uint64
	totals    []uint64
	dataStart int64 // absolute file offset where this page's payload begins
	size      int64 // total bytes this page occupies, header + payload
}

// readPageAt decodes one page starting at offset. It reads only the header
// arrays eagerly; payload bytes are read on demand by the caller.
func readPageAt[R posting.Record[R]](r io.ReaderAt, offset int64) (*page[R], error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], offset); err != nil {
		return nil, err
	}
	numKeys := binary.LittleEndian.Uint64(hdr[:])
	if numKeys > MaxKeys {
		return nil, fmt.Errorf("shard: page at offset %d declares %d keys, exceeds max %d", offset, numKeys, MaxKeys)
	}

	arr := func(at int64) ([]uint64, error) {
		buf := make([]byte, numKeys*8)
		if numKeys > 0 {
			if _, err := r.ReadAt(buf, at); err != nil {
				return nil, err
			}
		}
		out := make([]uint64, numKeys)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
		}
		return out, nil
	}

	keysStart := offset + 8
	posStart := keysStart + int64(numKeys)*8
	lenStart := posStart + int64(numKeys)*8
	totalsStart := lenStart + int64(numKeys)*8
	dataStart := totalsStart + int64(numKeys)*8

	keys, err := arr(keysStart)
	if err != nil {
		return nil, err
	}
	positions, err := arr(posStart)
	if err != nil {
		return nil, err
	}
	lengths, err := arr(lenStart)
	if err != nil {
		return nil, err
	}
	totals, err := arr(totalsStart)
	if err != nil {
		return nil, err
	}

	var payloadLen int64
	for _, l := range lengths {
		payloadLen += int64(l)
	}

	return &page[R]{
		keys:      keys,
		positions: positions,
		lengths:   lengths,
		totals:    totals,
		dataStart: dataStart,
		size:      (dataStart - offset) + payloadLen,
	}, nil
}

// decodeRecordsAt streams codec.Size-sized records out of [dataStart+pos,
// dataStart+pos+length) in StreamBufferLen windows.
func decodeRecordsAt[R posting.Record[R]](r io.ReaderAt, dataStart int64, pos, length uint64, codec Codec[R]) ([]R, error) {
	if length == 0 {
		return nil, nil
	}
	out := make([]R, 0, length/uint64(codec.Size))
	buf := make([]byte, StreamBufferLen)
	var read uint64
	for read < length {
		chunk := length - read
		if chunk > uint64(len(buf)) {
			chunk = uint64(len(buf))
		}
		// Keep the window aligned to whole records.
		chunk -= chunk % uint64(codec.Size)
		if chunk == 0 {
			chunk = length - read
		}
		window := buf[:chunk]
		if _, err := r.ReadAt(window, dataStart+int64(pos)+int64(read)); err != nil {
			return nil, err
		}
		numRecords := int(chunk) / codec.Size
		for i := 0; i < numRecords; i++ {
			out = append(out, codec.Decode(window[i*codec.Size:(i+1)*codec.Size]))
		}
		read += chunk
	}
	return out, nil
}

// writePage writes one page for the given keys (already grouped into a
// single bucket) in ascending key order, so later binary search within the
// page is valid. totals holds the pre-cap unique-record count per key,
// which may exceed len(records[key]) after §4.C step 4.d's cap.
func writePage[R posting.Record[R]](w io.Writer, keys []uint64, records map[uint64][]R, totals map[uint64]int, codec Codec[R]) (int64, error) {
	sorted := append([]uint64(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	numKeys := uint64(len(sorted))
	if numKeys > MaxKeys {
		return 0, fmt.Errorf("shard: page would declare %d keys, exceeds max %d", numKeys, MaxKeys)
	}

	u64buf := func(vals []uint64) []byte {
		buf := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
		}
		return buf
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], numKeys)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(u64buf(sorted)); err != nil {
		return 0, err
	}

	positions := make([]uint64, numKeys)
	lengths := make([]uint64, numKeys)
	totalsArr := make([]uint64, numKeys)
	var cursor uint64
	for i, k := range sorted {
		n := len(records[k])
		l := uint64(n * codec.Size)
		positions[i] = cursor
		lengths[i] = l
		totalsArr[i] = uint64(totals[k])
		cursor += l
	}

	if _, err := w.Write(u64buf(positions)); err != nil {
		return 0, err
	}
	if _, err := w.Write(u64buf(lengths)); err != nil {
		return 0, err
	}
	if _, err := w.Write(u64buf(totalsArr)); err != nil {
		return 0, err
	}

	recBuf := make([]byte, codec.Size)
	for _, k := range sorted {
		for _, rec := range records[k] {
			rec.Encode(recBuf)
			if _, err := w.Write(recBuf); err != nil {
				return 0, err
			}
		}
	}

	written := 8 + int64(numKeys)*8*4 + int64(cursor)
	return written, nil
}

// ensureDir creates the shard's directory tree if it doesn't already exist.
func ensureDir(root, dbName string, shardID uint64) error {
	return os.MkdirAll(dir(root, dbName, shardID), 0o755)
}
