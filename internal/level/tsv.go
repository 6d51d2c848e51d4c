package level

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// WeightedColumns are the fixed column indices and relative weights this
// index gives to each TSV text column (§4.E, §6): column 0 is the URL,
// columns 1..4 hold weighted text.
var WeightedColumns = []struct {
	Column int
	Weight float32
}{
	{Column: 1, Weight: 10.0},
	{Column: 2, Weight: 3.0},
	{Column: 3, Weight: 2.0},
	{Column: 4, Weight: 1.0},
}

// Document is one parsed TSV row: a URL plus its weighted text columns,
// pre-split into columns 1..4 raw strings.
type Document struct {
	URL      string
	HostHash uint64
	URLHash  uint64
	Columns  [5]string // index 0 unused (URL), 1..4 hold raw column text
}

// ReadTSV parses r as tab-delimited UTF-8, first column a URL, and calls fn
// once per row with a populated Document. Malformed rows (fewer than 5
// columns) are skipped without being logged, rather than aborting the
// whole file.
func ReadTSV(r io.Reader, fn func(Document) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			continue
		}

		doc := Document{URL: cols[0]}
		doc.HostHash = HostHash(cols[0])
		doc.URLHash = URLHash(cols[0])
		for i := 1; i <= 4; i++ {
			doc.Columns[i] = cols[i]
		}

		if err := fn(doc); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Tokenize splits text into lowercase word tokens, matching the full-text
// word extraction the original source performs before hashing each token.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// WordCounts tallies occurrences of each distinct token in text.
func WordCounts(text string) map[string]int {
	counts := map[string]int{}
	for _, w := range Tokenize(text) {
		counts[w]++
	}
	return counts
}
