package hll

import (
	"math"
	"testing"
)

func TestCountApproximatesCardinality(t *testing.T) {
	h := New()
	const n = 100000
	for i := uint64(0); i < n; i++ {
		h.Insert(mixHash(i))
	}

	got := h.Count()
	errPct := math.Abs(got-n) / n
	if errPct > 0.05 {
		t.Fatalf("Count() = %v, want within 5%% of %d (err %.4f)", got, n, errPct)
	}
}

func TestCountMonotoneUnderInsert(t *testing.T) {
	h := New()
	prev := h.Count()
	for i := uint64(0); i < 5000; i++ {
		h.Insert(mixHash(i))
		cur := h.Count()
		if cur < prev-1e-9 {
			t.Fatalf("Count decreased from %v to %v after Insert", prev, cur)
		}
		prev = cur
	}
}

func TestMergeCommutativeAndAssociative(t *testing.T) {
	a := New()
	b := New()
	for i := uint64(0); i < 2000; i++ {
		a.Insert(mixHash(i))
	}
	for i := uint64(1500); i < 4000; i++ {
		b.Insert(mixHash(i))
	}

	ab := New()
	ab.Merge(a)
	ab.Merge(b)

	ba := New()
	ba.Merge(b)
	ba.Merge(a)

	if ab.Count() != ba.Count() {
		t.Fatalf("merge not commutative: merge(a,b)=%v merge(b,a)=%v", ab.Count(), ba.Count())
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	h := New()
	for i := uint64(0); i < 1000; i++ {
		h.Insert(mixHash(i))
	}

	blob := h.MarshalBinary()
	if len(blob) != DataSize() {
		t.Fatalf("MarshalBinary length = %d, want %d", len(blob), DataSize())
	}

	restored := New()
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored.Count() != h.Count() {
		t.Fatalf("round-tripped count = %v, want %v", restored.Count(), h.Count())
	}
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	h := New()
	if err := h.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for undersized register blob")
	}
}

// mixHash spreads sequential integers across the 64-bit space the way a
// real term/url hash would, so sequential test inputs don't all collide
// into the same few registers.
func mixHash(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
