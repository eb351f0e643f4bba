package bencoding

import (
	"fmt"
	"io"
	"strconv"
)

// Decoder walks a byte buffer with a mutable cursor, the contract spec.md
// §4.1 describes. It does not interpret dictionary values beyond the
// "pieces"/"peers" key hook below; everything else is the caller's concern.
type Decoder struct {
	buf    []byte
	pos    int
	strict bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithStrictKeyOrder rejects dictionaries whose keys do not appear in
// strict lexicographic order of their raw bytes. Producers of metainfo
// files are required to sort keys; by default the decoder tolerates
// out-of-order keys from sloppy producers, since only the producer's own
// byte span matters for the content identifier, not re-validation of it.
func WithStrictKeyOrder() Option {
	return func(d *Decoder) { d.strict = true }
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte, opts ...Option) *Decoder {
	d := &Decoder{buf: buf}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Pos returns the decoder's current cursor offset within its buffer.
func (d *Decoder) Pos() int { return d.pos }

// Decode reads a single bencoded value from the cursor's current position,
// advancing the cursor past its encoding.
func (d *Decoder) Decode() (Value, error) {
	return d.decodeValue("")
}

// Decode reads the entirety of r and decodes a single bencoded value from
// it. This is the usual entry point: a metainfo file or a tracker response
// body is read fully before span-preserving decode can operate on it.
func Decode(r io.Reader, opts ...Option) (Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bencoding: reading input: %w", err)
	}
	return NewDecoder(data, opts...).Decode()
}

func (d *Decoder) decodeValue(dictKey string) (Value, error) {
	if d.pos >= len(d.buf) {
		return nil, fmt.Errorf("%w: unexpected end of input at offset %d", ErrMalformed, d.pos)
	}
	switch c := d.buf[d.pos]; {
	case c == 'i':
		return d.decodeInteger()
	case c == 'l':
		return d.decodeList()
	case c == 'd':
		return d.decodeDictionary()
	case c >= '0' && c <= '9':
		return d.decodeByteString(dictKey)
	default:
		return nil, fmt.Errorf("%w: unexpected byte %q at offset %d", ErrMalformed, c, d.pos)
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (d *Decoder) decodeInteger() (Value, error) {
	d.pos++ // consume 'i'

	signStart := d.pos
	neg := false
	if d.pos < len(d.buf) && d.buf[d.pos] == '-' {
		neg = true
		d.pos++
	}

	digitsStart := d.pos
	for d.pos < len(d.buf) && isDigit(d.buf[d.pos]) {
		d.pos++
	}
	digits := d.buf[digitsStart:d.pos]

	if len(digits) == 0 {
		return nil, fmt.Errorf("%w: empty integer at offset %d", ErrMalformed, signStart)
	}
	if len(digits) > 1 && digits[0] == '0' {
		return nil, fmt.Errorf("%w: integer with leading zero at offset %d", ErrMalformed, signStart)
	}
	if neg && digits[0] == '0' {
		return nil, fmt.Errorf("%w: negative zero integer at offset %d", ErrMalformed, signStart)
	}
	if d.pos >= len(d.buf) || d.buf[d.pos] != 'e' {
		return nil, fmt.Errorf("%w: unterminated integer at offset %d", ErrMalformed, signStart)
	}

	n, err := strconv.ParseInt(string(d.buf[signStart:d.pos]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: integer out of range at offset %d: %v", ErrMalformed, signStart, err)
	}
	d.pos++ // consume 'e'

	v := Integer(n)
	return &v, nil
}

// decodeByteString decodes a length-prefixed byte string starting at the
// cursor. When dictKey is "pieces" or "peers" the result is reinterpreted
// as the corresponding fixed-tuple array rather than an opaque ByteString,
// per spec.md §4.1's key-aware hook.
func (d *Decoder) decodeByteString(dictKey string) (Value, error) {
	lenStart := d.pos
	for d.pos < len(d.buf) && isDigit(d.buf[d.pos]) {
		d.pos++
	}
	if d.pos == lenStart {
		return nil, fmt.Errorf("%w: expected byte-string length at offset %d", ErrMalformed, lenStart)
	}
	if d.buf[lenStart] == '0' && d.pos-lenStart > 1 {
		return nil, fmt.Errorf("%w: byte-string length with leading zero at offset %d", ErrMalformed, lenStart)
	}

	length, err := strconv.Atoi(string(d.buf[lenStart:d.pos]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid byte-string length at offset %d: %v", ErrMalformed, lenStart, err)
	}

	if d.pos >= len(d.buf) || d.buf[d.pos] != ':' {
		return nil, fmt.Errorf("%w: expected ':' after byte-string length at offset %d", ErrMalformed, d.pos)
	}
	d.pos++ // consume ':'

	if d.pos+length > len(d.buf) {
		return nil, fmt.Errorf("%w: byte-string of length %d runs past end of buffer at offset %d", ErrMalformed, length, d.pos)
	}
	raw := d.buf[d.pos : d.pos+length]
	d.pos += length

	switch dictKey {
	case "pieces":
		if length%20 != 0 {
			return nil, fmt.Errorf("%w: pieces field length %d is not a multiple of 20", ErrMalformed, length)
		}
		digests := make(PieceDigests, length/20)
		for i := range digests {
			copy(digests[i][:], raw[i*20:i*20+20])
		}
		return &digests, nil
	case "peers":
		if length%6 != 0 {
			return nil, fmt.Errorf("%w: peers field length %d is not a multiple of 6", ErrMalformed, length)
		}
		peers := make(CompactPeerList, length/6)
		for i := range peers {
			copy(peers[i][:], raw[i*6:i*6+6])
		}
		return &peers, nil
	default:
		bs := ByteString(raw)
		return &bs, nil
	}
}

func (d *Decoder) decodeList() (Value, error) {
	d.pos++ // consume 'l'
	var list List
	for {
		if d.pos >= len(d.buf) {
			return nil, fmt.Errorf("%w: unterminated list", ErrMalformed)
		}
		if d.buf[d.pos] == 'e' {
			break
		}
		v, err := d.decodeValue("")
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	d.pos++ // consume 'e'
	return &list, nil
}

func (d *Decoder) decodeDictionary() (Value, error) {
	d.pos++ // consume 'd'
	dict := &Dictionary{
		Dict:  map[string]Value{},
		Spans: map[string][2]int{},
	}

	var lastKey string
	haveLast := false

	for {
		if d.pos >= len(d.buf) {
			return nil, fmt.Errorf("%w: unterminated dictionary", ErrMalformed)
		}
		if d.buf[d.pos] == 'e' {
			break
		}
		if !isDigit(d.buf[d.pos]) {
			return nil, fmt.Errorf("%w: dictionary key must be a byte string at offset %d", ErrMalformed, d.pos)
		}

		keyVal, err := d.decodeByteString("")
		if err != nil {
			return nil, err
		}
		key := string(*keyVal.(*ByteString))

		if d.strict && haveLast && key <= lastKey {
			return nil, fmt.Errorf("%w: dictionary key %q out of strict lexicographic order after %q", ErrMalformed, key, lastKey)
		}

		valStart := d.pos
		val, err := d.decodeValue(key)
		if err != nil {
			return nil, err
		}
		valEnd := d.pos

		dict.Dict[key] = val
		dict.Spans[key] = [2]int{valStart, valEnd}
		lastKey = key
		haveLast = true
	}
	d.pos++ // consume 'e'
	return dict, nil
}
