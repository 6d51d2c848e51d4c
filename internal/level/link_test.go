package level

import (
	"strings"
	"testing"

	"github.com/webidx/ftindex/internal/bloom"
	"github.com/webidx/ftindex/internal/collection"
)

func TestReadLinkTSVParsesRows(t *testing.T) {
	input := "http://src.example/1\thttp://dst.example/2\tclick here\n"
	var got []LinkDocument
	if err := ReadLinkTSV(strings.NewReader(input), func(d LinkDocument) error {
		got = append(got, d)
		return nil
	}); err != nil {
		t.Fatalf("ReadLinkTSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].AnchorText != "click here" {
		t.Fatalf("AnchorText = %q, want %q", got[0].AnchorText, "click here")
	}
}

func TestReadLinkTSVSkipsMalformedRows(t *testing.T) {
	input := "too\tfew\nhttp://src.example/1\thttp://dst.example/2\tanchor\n"
	var got []LinkDocument
	if err := ReadLinkTSV(strings.NewReader(input), func(d LinkDocument) error {
		got = append(got, d)
		return nil
	}); err != nil {
		t.Fatalf("ReadLinkTSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1 (malformed row skipped)", len(got))
	}
}

func TestLinkLevelIndexesAnchorTextTerms(t *testing.T) {
	root := t.TempDir()
	ll := NewLinkLevel(root, "link", 2, 0, 100, 4)

	d := LinkDocument{
		SourceURL: "http://src.example/1", SourceHost: HostHash("http://src.example/1"),
		TargetURL: "http://dst.example/2", TargetURLHash: URLHash("http://dst.example/2"),
		AnchorText: "great article",
	}
	ll.IndexLinkDocument(d, nil)
	if err := ll.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	readers := collection.NewReaders(root, "link", 2, 0, linkCodec)
	recs, _, err := readers.Find(TermHash("article"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 || recs[0].Value != d.TargetURLHash {
		t.Fatalf("Find(article) = %+v, want one posting for target %d", recs, d.TargetURLHash)
	}
}

func TestLinkLevelFiltersByBloom(t *testing.T) {
	root := t.TempDir()
	ll := NewLinkLevel(root, "link", 1, 0, 100, 4)

	known := bloom.New(10, 0.01)
	knownTarget := URLHash("http://known.example/")
	known.Add(knownTarget)

	unknown := LinkDocument{
		SourceURL: "http://src.example/1", SourceHost: 1,
		TargetURL: "http://unknown.example/", TargetURLHash: URLHash("http://unknown.example/"),
		AnchorText: "skip me",
	}
	kept := LinkDocument{
		SourceURL: "http://src.example/2", SourceHost: 2,
		TargetURL: "http://known.example/", TargetURLHash: knownTarget,
		AnchorText: "keep me",
	}
	ll.IndexLinkDocument(unknown, known)
	ll.IndexLinkDocument(kept, known)
	if err := ll.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	readers := collection.NewReaders(root, "link", 1, 0, linkCodec)
	skipped, _, err := readers.Find(TermHash("skip"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("Find(skip) = %+v, want empty (target filtered by bloom)", skipped)
	}
	keep, _, err := readers.Find(TermHash("keep"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(keep) != 1 {
		t.Fatalf("Find(keep) = %+v, want one posting", keep)
	}
}
