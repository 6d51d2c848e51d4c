// Package bloom implements a small fixed-size bloom filter used by
// add_link_files_threaded (§4.F) to cheaply reject link postings whose
// target URL is known absent from the index, tolerating false positives.
package bloom

import (
	"hash/fnv"
	"math"
)

// Filter is a fixed-size bit array with k double-hashed probe positions.
type Filter struct {
	bits []byte
	bitN uint64
	k    int
}

// New returns a filter sized to hold approximately n entries at the given
// target false-positive rate fp (0, 1).
func New(n int, fp float64) *Filter {
	bitN, k := sizeFor(n, fp)
	return &Filter{
		bits: make([]byte, (bitN+7)/8),
		bitN: bitN,
		k:    k,
	}
}

// sizeFor computes the standard optimal bit count and hash count for n
// entries at false-positive rate fp.
func sizeFor(n int, fp float64) (bitN uint64, k int) {
	if n <= 0 {
		n = 1
	}
	if fp <= 0 || fp >= 1 {
		fp = 0.01
	}
	// m = -(n * ln(p)) / (ln(2)^2), k = (m/n) * ln(2)
	const ln2 = 0.6931471805599453
	const ln2sq = ln2 * ln2
	m := -float64(n) * math.Log(fp) / ln2sq
	if m < 64 {
		m = 64
	}
	kk := int((m / float64(n)) * ln2)
	if kk < 1 {
		kk = 1
	}
	if kk > 16 {
		kk = 16
	}
	return uint64(m), kk
}

// Add records key's membership.
func (f *Filter) Add(key uint64) {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.bitN
		f.bits[pos/8] |= 1 << (pos % 8)
	}
}

// Contains reports whether key was possibly added. False positives are
// possible; false negatives are not.
func (f *Filter) Contains(key uint64) bool {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.bitN
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears every bit, keeping the filter's sizing.
func (f *Filter) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// hashes derives two independent hashes from key via FNV-1a variants,
// combined via double hashing (Kirsch-Mitzenmacher) to synthesize k probe
// positions from just two hash evaluations.
func (f *Filter) hashes(key uint64) (uint64, uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
	}

	h1 := fnv.New64a()
	h1.Write(buf[:])
	sum1 := h1.Sum64()

	h2 := fnv.New32a()
	h2.Write(buf[:])
	sum2 := uint64(h2.Sum32())
	if sum2 == 0 {
		sum2 = 1
	}

	return sum1, sum2
}
