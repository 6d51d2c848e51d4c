// Package posting defines the fixed-size, binary-copyable posting records
// that every level/shard builder operates on, and the generic contract a
// concrete record type must satisfy to be stored in a shard.
package posting

import "encoding/binary"

// Record is the contract a concrete posting type must satisfy to be stored
// in a shard builder. Self is the concrete type itself (F-bounded
// polymorphism), standing in for the C++ data_record template parameter:
// the shard builder and reader are generic over Record[Self].
//
// Equality between two records is defined by Key(); Combine folds two
// equal-key records into one (summing score/count fields, a monoid), and
// Encode writes the record's fixed-width, little-endian wire form.
type Record[Self any] interface {
	// Key returns the value field postings are ordered/deduplicated on.
	Key() uint64
	// ScoreVal returns the ranking weight used for top-K capping.
	ScoreVal() float32
	// Combine folds other (same Key()) into a new record, summing
	// score/count fields.
	Combine(other Self) Self
	// Encode writes the record's fixed-width wire form into buf, which
	// is guaranteed to be at least Size() bytes long.
	Encode(buf []byte)
}

// Basic is the plain (value, score) posting used by domain_level and
// word_level without an occurrence count.
type Basic struct {
	Value uint64
	Score float32
}

// BasicSize is the encoded byte width of Basic.
const BasicSize = 8 + 4

func (b Basic) Key() uint64        { return b.Value }
func (b Basic) ScoreVal() float32  { return b.Score }
func (b Basic) Combine(o Basic) Basic {
	return Basic{Value: b.Value, Score: b.Score + o.Score}
}

func (b Basic) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], b.Value)
	binary.LittleEndian.PutUint32(buf[8:12], float32bits(b.Score))
}

// DecodeBasic reconstructs a Basic record from its wire form.
func DecodeBasic(buf []byte) Basic {
	return Basic{
		Value: binary.LittleEndian.Uint64(buf[0:8]),
		Score: float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// Counted adds an occurrence count to Basic, used by word_level before
// calculate_scores() converts counts into TF-IDF-like scores.
type Counted struct {
	Value uint64
	Score float32
	Count uint32
}

// CountedSize is the encoded byte width of Counted.
const CountedSize = 8 + 4 + 4

func (c Counted) Key() uint64       { return c.Value }
func (c Counted) ScoreVal() float32 { return c.Score }
func (c Counted) Combine(o Counted) Counted {
	return Counted{Value: c.Value, Score: c.Score + o.Score, Count: c.Count + o.Count}
}

func (c Counted) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], c.Value)
	binary.LittleEndian.PutUint32(buf[8:12], float32bits(c.Score))
	binary.LittleEndian.PutUint32(buf[12:16], c.Count)
}

// DecodeCounted reconstructs a Counted record from its wire form.
func DecodeCounted(buf []byte) Counted {
	return Counted{
		Value: binary.LittleEndian.Uint64(buf[0:8]),
		Score: float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		Count: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// Link is the link-level record (§4.E.1): value is the link's target hash,
// carrying the source domain hash needed by apply_url_links' uniqueness
// test on (source_domain, target).
type Link struct {
	Value        uint64
	Score        float32
	SourceDomain uint64
}

// LinkSize is the encoded byte width of Link.
const LinkSize = 8 + 4 + 8

func (l Link) Key() uint64       { return l.Value }
func (l Link) ScoreVal() float32 { return l.Score }
func (l Link) Combine(o Link) Link {
	return Link{Value: l.Value, Score: l.Score + o.Score, SourceDomain: l.SourceDomain}
}

func (l Link) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], l.Value)
	binary.LittleEndian.PutUint32(buf[8:12], float32bits(l.Score))
	binary.LittleEndian.PutUint64(buf[12:20], l.SourceDomain)
}

// DecodeLink reconstructs a Link record from its wire form.
func DecodeLink(buf []byte) Link {
	return Link{
		Value:        binary.LittleEndian.Uint64(buf[0:8]),
		Score:        float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		SourceDomain: binary.LittleEndian.Uint64(buf[12:20]),
	}
}
