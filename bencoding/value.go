// Package bencoding implements the bencoding serialization used both in
// metainfo files on disk and in HTTP tracker responses on the wire.
//
// Decoding preserves, for every dictionary entry, the exact byte span its
// value occupied in the source buffer. This lets callers (see package
// torrent) re-hash a sub-range of the original bytes instead of
// re-serializing a parsed value tree, which is the only way to reproduce
// the content identifier byte-for-byte.
package bencoding

import (
	"fmt"
	"sort"
	"strings"
)

// Type tags the four bencoded shapes described by the BitTorrent metainfo
// format. PieceDigests and CompactPeerList share ByteStringType on the wire
// (they are byte strings) but are surfaced as distinct Go types so callers
// don't have to re-slice a raw string by hand.
type Type int

const (
	IntegerType Type = iota
	ByteStringType
	ListType
	DictionaryType
)

func (t Type) String() string {
	switch t {
	case IntegerType:
		return "integer"
	case ByteStringType:
		return "byte string"
	case ListType:
		return "list"
	case DictionaryType:
		return "dictionary"
	default:
		return fmt.Sprintf("bencoding.Type(%d)", int(t))
	}
}

// Value is a decoded bencoded node. The four concrete implementations are
// Integer, ByteString, List and Dictionary; PieceDigests and
// CompactPeerList are byte-string overloads produced by the decoder's
// key-aware hook (see decode.go).
type Value interface {
	Type() Type
	// Literal returns the canonical bencoded form of this value. For a
	// value obtained from Decode, Literal matches the source bytes only
	// if the source was itself already canonical (sorted dictionary
	// keys, no redundant integer digits). For exact source-byte
	// preservation use Dictionary.Spans instead.
	Literal() string
}

// Integer is a bencoded signed 64-bit integer.
type Integer int64

func (i *Integer) Type() Type      { return IntegerType }
func (i *Integer) Literal() string { return fmt.Sprintf("i%de", int64(*i)) }

// ByteString is an opaque bencoded byte string. Its contents are not
// guaranteed to be UTF-8.
type ByteString string

func (s *ByteString) Type() Type      { return ByteStringType }
func (s *ByteString) Literal() string { return fmt.Sprintf("%d:%s", len(*s), string(*s)) }

// List is an ordered sequence of bencoded values.
type List []Value

func (l *List) Type() Type { return ListType }
func (l *List) Literal() string {
	var b strings.Builder
	b.WriteByte('l')
	for _, v := range *l {
		b.WriteString(v.Literal())
	}
	b.WriteByte('e')
	return b.String()
}

// Dictionary is a bencoded mapping from byte-string keys to values. Spans
// records, for every key, the half-open byte interval [begin, end) that
// key's value occupied within the buffer Decode was given; it is the
// mechanism behind the content-identifier computation in package torrent.
type Dictionary struct {
	Dict  map[string]Value
	Spans map[string][2]int
}

func (d *Dictionary) Type() Type { return DictionaryType }
func (d *Dictionary) Literal() string {
	keys := make([]string, 0, len(d.Dict))
	for k := range d.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Go string comparison is byte-wise, matching bencoding's raw-byte key order.

	var b strings.Builder
	b.WriteByte('d')
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%d:%s", len(k), k))
		b.WriteString(d.Dict[k].Literal())
	}
	b.WriteByte('e')
	return b.String()
}

// PieceDigests is the decoder's specialized projection of a "pieces" field:
// an array of 20-byte chunk digests rather than an opaque byte string.
type PieceDigests [][20]byte

func (p *PieceDigests) Type() Type { return ByteStringType }
func (p *PieceDigests) Literal() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", len(*p)*20)
	for _, h := range *p {
		b.Write(h[:])
	}
	return b.String()
}

// CompactPeerList is the decoder's specialized projection of a compact
// "peers" field: an array of (4-byte IPv4, 2-byte big-endian port) tuples.
type CompactPeerList [][6]byte

func (c *CompactPeerList) Type() Type { return ByteStringType }
func (c *CompactPeerList) Literal() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", len(*c)*6)
	for _, p := range *c {
		b.Write(p[:])
	}
	return b.String()
}
