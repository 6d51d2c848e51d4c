package level

import (
	"testing"

	"github.com/webidx/ftindex/internal/collection"
)

func doc(url, c1, c2 string) Document {
	d := Document{URL: url}
	d.HostHash = HostHash(url)
	d.URLHash = URLHash(url)
	d.Columns[1] = c1
	d.Columns[2] = c2
	return d
}

func TestDomainLevelIndexDocumentFoldsTermToHost(t *testing.T) {
	root := t.TempDir()
	dl := NewDomainLevel(root, "domain", 4, 0, 100, 4, nil)

	d := doc("http://a.example/x", "golang concurrency", "")
	dl.IndexDocument(d)

	if err := dl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	readers := collection.NewReaders(root, "domain", 4, 0, basicCodec)
	recs, _, err := readers.Find(TermHash("golang"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 || recs[0].Value != d.HostHash {
		t.Fatalf("Find(golang) = %+v, want one posting for host %d", recs, d.HostHash)
	}
}

func TestDomainLevelAppliesHostPrior(t *testing.T) {
	root := t.TempDir()
	prior := func(h uint64) float32 { return 2.0 }
	dl := NewDomainLevel(root, "domain", 2, 0, 100, 4, prior)

	d := doc("http://b.example/y", "indexing", "")
	dl.IndexDocument(d)
	if err := dl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	readers := collection.NewReaders(root, "domain", 2, 0, basicCodec)
	recs, _, err := readers.Find(TermHash("indexing"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find = %+v, want one posting", recs)
	}
	want := WeightedColumns[0].Weight * 2.0
	if recs[0].Score != want {
		t.Fatalf("Score = %v, want %v (weight * prior)", recs[0].Score, want)
	}
}

func TestDomainLevelTruncateRemovesData(t *testing.T) {
	root := t.TempDir()
	dl := NewDomainLevel(root, "domain", 2, 0, 100, 4, nil)
	d := doc("http://c.example/z", "truncateme", "")
	dl.IndexDocument(d)
	if err := dl.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := dl.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	readers := collection.NewReaders(root, "domain", 2, 0, basicCodec)
	recs, _, err := readers.Find(TermHash("truncateme"))
	if err != nil {
		t.Fatalf("Find after truncate: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("Find after truncate = %+v, want empty", recs)
	}
}
