package level

import (
	"testing"

	"github.com/webidx/ftindex/internal/collection"
)

func TestWordLevelAccumulatesCountAndScore(t *testing.T) {
	root := t.TempDir()
	wl := NewWordLevel(root, "word", 2, 0, 100, 4, nil)

	d := doc("http://a.example/p", "go go go", "")
	wl.IndexDocument(d)
	if err := wl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	readers := collection.NewReaders(root, "word", 2, 0, countedCodec)
	recs, _, err := readers.Find(TermHash("go"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find = %+v, want one posting", recs)
	}
	if recs[0].Count != 3 {
		t.Fatalf("Count = %d, want 3 (three occurrences)", recs[0].Count)
	}
	wantScore := WeightedColumns[0].Weight * 3
	if recs[0].Score != wantScore {
		t.Fatalf("Score = %v, want %v", recs[0].Score, wantScore)
	}
}

func TestWordLevelOptimizeNormalizesByDocSize(t *testing.T) {
	root := t.TempDir()
	sizes := map[uint64]uint32{}
	wl := NewWordLevel(root, "word", 1, 0, 100, 4, func(u uint64) uint32 {
		if sz, ok := sizes[u]; ok {
			return sz
		}
		return 0
	})

	d := doc("http://a.example/q", "normalize me", "")
	sizes[d.URLHash] = 10
	wl.IndexDocument(d)
	if err := wl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := wl.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	readers := collection.NewReaders(root, "word", 1, 0, countedCodec)
	recs, _, err := readers.Find(TermHash("normalize"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find = %+v, want one posting", recs)
	}
	wantScore := WeightedColumns[0].Weight / 10
	if recs[0].Score != wantScore {
		t.Fatalf("Score after Optimize = %v, want %v (weight / doc size)", recs[0].Score, wantScore)
	}
}

func TestWordLevelOptimizeSortsByScoreDescending(t *testing.T) {
	root := t.TempDir()
	wl := NewWordLevel(root, "word", 1, 0, 100, 4, nil)

	for i, u := range []string{"http://a.example/1", "http://b.example/2", "http://c.example/3"} {
		d := doc(u, "", "")
		// Give each url a distinct occurrence count for the same term via
		// column 2 so their raw scores differ deterministically.
		repeats := i + 1
		text := ""
		for j := 0; j < repeats; j++ {
			text += "shared "
		}
		d.Columns[2] = text
		wl.IndexDocument(d)
	}
	if err := wl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := wl.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	readers := collection.NewReaders(root, "word", 1, 0, countedCodec)
	recs, _, err := readers.Find(TermHash("shared"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Score < recs[i].Score {
			t.Fatalf("recs not sorted descending by score: %+v", recs)
		}
	}
}
