package level

import (
	"math"
	"testing"

	"github.com/webidx/ftindex/internal/posting"
)

func TestURLLevelPerHostBuilderRouting(t *testing.T) {
	root := t.TempDir()
	ul := NewURLLevel(root, 100, 4)

	a := doc("http://a.example/1", "shared term", "")
	b := doc("http://b.example/2", "shared term", "")
	ul.IndexDocument(a)
	ul.IndexDocument(b)

	if len(ul.builders) != 2 {
		t.Fatalf("expected 2 per-host builders, got %d", len(ul.builders))
	}
	if err := ul.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	ba := ul.builderFor(a.HostHash)
	recs, _, err := ba.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got := recs[TermHash("shared")]; len(got) != 1 || got[0].Value != a.URLHash {
		t.Fatalf("host a postings for 'shared' = %+v, want one posting for %d", got, a.URLHash)
	}
}

func TestURLLevelBuilderForReturnsSameBuilderOnRepeatedCalls(t *testing.T) {
	root := t.TempDir()
	ul := NewURLLevel(root, 100, 4)
	const host = 42

	first := ul.builderFor(host)
	for i := 0; i < 8; i++ {
		if ul.builderFor(host) != first {
			t.Fatalf("builderFor(%d) returned a distinct builder on call %d", host, i)
		}
	}
}

// TestScenarioS6 checks apply_url_links (SPEC_FULL.md §8 S6): the second
// link from source 10 into target 100 repeats the (source, target) edge
// and is dropped, so the result gains expm1(25*0.1)/50 from source 10 and
// expm1(25*0.5)/50 from source 11.
func TestScenarioS6(t *testing.T) {
	const target = 100

	links := []posting.Link{
		{Value: target, Score: 0.1, SourceDomain: 10},
		{Value: target, Score: 0.9, SourceDomain: 10}, // same edge as above, must not apply
		{Value: target, Score: 0.5, SourceDomain: 11},
	}
	results := []ReturnRecord{
		{Value: target, Score: 0},
	}

	applied := ApplyURLLinks(links, results)
	if applied != 2 {
		t.Fatalf("applied = %d, want 2 unique edges", applied)
	}
	if results[0].NumURLLinks != 2 {
		t.Fatalf("NumURLLinks = %d, want 2", results[0].NumURLLinks)
	}

	want := float32(math.Expm1(25*0.1)/50) +
		float32(math.Expm1(25*0.5)/50)
	if diff := want - results[0].Score; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("Score = %v, want %v", results[0].Score, want)
	}
}

func TestApplyURLLinksSkipsNonMatchingValues(t *testing.T) {
	links := []posting.Link{{Value: 10, Score: 0.5, SourceDomain: 1}}
	results := []ReturnRecord{{Value: 20, Score: 1.0}}

	applied := ApplyURLLinks(links, results)
	if applied != 0 {
		t.Fatalf("applied = %d, want 0 for non-matching value", applied)
	}
	if results[0].Score != 1.0 {
		t.Fatalf("Score = %v, want unchanged 1.0", results[0].Score)
	}
}

func TestApplyURLLinksEmptyInputs(t *testing.T) {
	if n := ApplyURLLinks(nil, []ReturnRecord{{Value: 1}}); n != 0 {
		t.Fatalf("applied = %d, want 0 for empty links", n)
	}
	if n := ApplyURLLinks([]posting.Link{{Value: 1}}, nil); n != 0 {
		t.Fatalf("applied = %d, want 0 for empty results", n)
	}
}
