package shard

import (
	"os"
	"testing"

	"github.com/webidx/ftindex/internal/posting"
)

func basicCodec() Codec[posting.Basic] {
	return Codec[posting.Basic]{Size: posting.BasicSize, Decode: posting.DecodeBasic}
}

// TestScenarioS1 adds duplicate-value postings under one key and checks
// that merge folds them by summing score, per SPEC_FULL.md §8 S1.
func TestScenarioS1(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "test", 0, 0, 100, 4, basicCodec())

	b.Add(7, posting.Basic{Value: 100, Score: 1.0})
	b.Add(7, posting.Basic{Value: 100, Score: 2.5})
	b.Add(7, posting.Basic{Value: 200, Score: 0.1})

	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	r := NewReader(root, "test", 0, 0, basicCodec())
	got, _, err := r.Find(7)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	want := []posting.Basic{{Value: 100, Score: 3.5}, {Value: 200, Score: 0.1}}
	if len(got) != len(want) {
		t.Fatalf("Find(7) = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Find(7)[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestScenarioS3 checks the capping/orderSectionsByValue behavior from
// SPEC_FULL.md §8 S3.
func TestScenarioS3(t *testing.T) {
	root := t.TempDir()
	const maxPerSection = 2
	const maxSections = 2
	b := NewBuilder(root, "test", 0, 0, maxPerSection, maxSections, basicCodec())

	scores := []float32{9, 1, 8, 2, 7}
	values := []uint64{10, 20, 30, 40, 50}
	for i := range scores {
		b.Add(42, posting.Basic{Value: values[i], Score: scores[i]})
	}
	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	r := NewReader(root, "test", 0, 0, basicCodec())
	got, total, err := r.Find(42)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("stored size = %d, want 4", len(got))
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5 (pre-cap unique count)", total)
	}

	keptScores := map[float32]bool{}
	for _, p := range got {
		keptScores[p.Score] = true
	}
	for _, want := range []float32{9, 8, 7, 2} {
		if !keptScores[want] {
			t.Fatalf("expected score %v to survive capping, kept=%v", want, got)
		}
	}

	// First section (highest scores) sorted by value ascending: 10 (score
	// 9), 30 (score 8). Second section: 40 (score 2), 50 (score 7).
	firstSection := got[:2]
	secondSection := got[2:4]
	if firstSection[0].Value >= firstSection[1].Value {
		t.Fatalf("first section not sorted by value ascending: %+v", firstSection)
	}
	if secondSection[0].Value >= secondSection[1].Value {
		t.Fatalf("second section not sorted by value ascending: %+v", secondSection)
	}
}

// TestScenarioS4 checks idempotence: merging twice with no intervening
// add/append produces byte-identical data files.
func TestScenarioS4(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "test", 0, 0, 100, 4, basicCodec())
	b.Add(1, posting.Basic{Value: 100, Score: 1})
	b.Add(2, posting.Basic{Value: 200, Score: 2})
	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("first Merge: %v", err)
	}

	first, err := os.ReadFile(dataPath(root, "test", 0))
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}

	if err := b.Merge(); err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	second, err := os.ReadFile(dataPath(root, "test", 0))
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("merge not idempotent: first and second data files differ")
	}
}

func TestFindMissingKeyReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "test", 0, 0, 100, 4, basicCodec())
	b.Add(1, posting.Basic{Value: 100, Score: 1})
	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	r := NewReader(root, "test", 0, 0, basicCodec())
	got, _, err := r.Find(999)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Find(999) = %+v, want empty", got)
	}
}

func TestFindOnMissingFileReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	r := NewReader(root, "nonexistent", 7, 0, basicCodec())
	got, _, err := r.Find(1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != nil {
		t.Fatalf("Find on missing shard = %+v, want nil", got)
	}
}

// TestMultiPageDirectoryRouting exercises the H>0 directory-indexed path
// (§4.B Open Question (a)): a builder with hashTableSize > 0 writes a
// .keys directory file, and the reader must follow it.
func TestMultiPageDirectoryRouting(t *testing.T) {
	root := t.TempDir()
	const H = 8
	b := NewBuilder(root, "test", 3, H, 100, 4, basicCodec())
	for k := uint64(0); k < 40; k++ {
		b.Add(k, posting.Basic{Value: k * 10, Score: float32(k)})
	}
	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if _, err := os.Stat(keysDirPath(root, "test", 3)); err != nil {
		t.Fatalf("expected key directory file to exist: %v", err)
	}

	r := NewReader(root, "test", 3, H, basicCodec())
	for k := uint64(0); k < 40; k++ {
		got, _, err := r.Find(k)
		if err != nil {
			t.Fatalf("Find(%d): %v", k, err)
		}
		if len(got) != 1 || got[0].Value != k*10 {
			t.Fatalf("Find(%d) = %+v, want single posting with value %d", k, got, k*10)
		}
	}
}

func TestTruncateRemovesFiles(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "test", 0, 0, 100, 4, basicCodec())
	b.Add(1, posting.Basic{Value: 1, Score: 1})
	if err := b.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if _, err := os.Stat(dataPath(root, "test", 0)); !os.IsNotExist(err) {
		t.Fatalf("expected data file removed after Truncate, err=%v", err)
	}
}
