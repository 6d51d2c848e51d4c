package level

import (
	"bufio"
	"io"
	"strings"

	"github.com/webidx/ftindex/internal/bloom"
	"github.com/webidx/ftindex/internal/collection"
	"github.com/webidx/ftindex/internal/posting"
)

// LinkDocument is one parsed link-file row: an edge from a source page to
// a target URL, carrying the anchor text used to reach it. This TSV shape
// is distinct from Document's (§4.E.1): the distilled spec named
// apply_url_links without naming what produces its input, so this module
// supplies both the shape and the level that produces it.
type LinkDocument struct {
	SourceURL     string
	SourceHost    uint64
	TargetURL     string
	TargetURLHash uint64
	AnchorText    string
}

// ReadLinkTSV parses r as tab-delimited source_url \t target_url \t
// anchor_text rows. Malformed rows are skipped rather than aborting the
// file, matching the same §7 policy ReadTSV follows.
func ReadLinkTSV(r io.Reader, fn func(LinkDocument) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cols := strings.SplitN(line, "\t", 3)
		if len(cols) < 3 {
			continue
		}
		doc := LinkDocument{
			SourceURL:     cols[0],
			SourceHost:    HostHash(cols[0]),
			TargetURL:     cols[1],
			TargetURLHash: URLHash(cols[1]),
			AnchorText:    cols[2],
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// LinkLevel indexes (term -> target url) postings from anchor text: a
// query for a term surfaces both the pages that mention it (word_level/
// domain_level) and the pages linked to it with matching anchor text,
// which apply_url_links folds into that term's result scores (§4.E.1).
// It shares domain_level's N-shard collection.Builders architecture,
// keyed by the same TermHash space so a query touches one shard for both
// its word postings and its link postings.
type LinkLevel struct {
	root, dbName           string
	numShards, hashTblSize uint64

	builders *collection.Builders[posting.Link]
}

// NewLinkLevel constructs a link_level over numShards shards.
func NewLinkLevel(root, dbName string, numShards, hashTableSize uint64, maxPerSection, maxSections int) *LinkLevel {
	return &LinkLevel{
		root:        root,
		dbName:      dbName,
		numShards:   numShards,
		hashTblSize: hashTableSize,
		builders:    collection.NewBuilders(root, dbName, numShards, hashTableSize, maxPerSection, maxSections, linkCodec),
	}
}

func (l *LinkLevel) Name() string { return "link" }

// IndexDocument is a no-op: link_level is fed by IndexLinkDocument through
// a separate ingestion path (add_link_files_threaded), not the regular
// per-document TSV files every other level shares.
func (l *LinkLevel) IndexDocument(Document) {}

// IndexLinkDocument tokenizes one edge's anchor text and adds a link
// posting per distinct term, keyed by the same TermHash space word_level
// and domain_level use. filter, when non-nil, skips edges whose target
// isn't a known indexed url (bloom membership test, false positives
// accepted per §4.F's add_link_files_threaded).
func (l *LinkLevel) IndexLinkDocument(doc LinkDocument, filter *bloom.Filter) {
	if filter != nil && !filter.Contains(doc.TargetURLHash) {
		return
	}
	for term := range WordCounts(doc.AnchorText) {
		l.builders.Add(TermHash(term), posting.Link{
			Value:        doc.TargetURLHash,
			Score:        1.0,
			SourceDomain: doc.SourceHost,
		})
	}
}

func (l *LinkLevel) Merge() error    { return mergeAll(asMergers(l.builders.All())) }
func (l *LinkLevel) Truncate() error { return truncateAll(asTruncaters(l.builders.All())) }
func (l *LinkLevel) Optimize() error { return nil }

// Builders exposes the underlying collection so a manager can flush
// individual shards (Append/Full) during threaded ingestion.
func (l *LinkLevel) Builders() *collection.Builders[posting.Link] { return l.builders }

// Find answers "which link postings (target urls with anchor-text
// matching termHash) exist", reading from a freshly constructed
// collection.Readers so results reflect every merge completed before
// this call.
func (l *LinkLevel) Find(termHash uint64) ([]posting.Link, int, error) {
	readers := collection.NewReaders(l.root, l.dbName, l.numShards, l.hashTblSize, linkCodec)
	return readers.Find(termHash)
}
