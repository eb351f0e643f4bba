package messagesv1

import (
	"encoding/binary"
	"fmt"
)

// ID identifies the kind of a non-keep-alive peer message.
type ID uint8

const (
	ChokeID ID = iota
	UnchokeID
	InterestedID
	NotInterestedID
	HaveID
	BitfieldID
	RequestID
	PieceID
	CancelID
	PortID
)

func (id ID) String() string {
	switch id {
	case ChokeID:
		return "choke"
	case UnchokeID:
		return "unchoke"
	case InterestedID:
		return "interested"
	case NotInterestedID:
		return "not_interested"
	case HaveID:
		return "have"
	case BitfieldID:
		return "bitfield"
	case RequestID:
		return "request"
	case PieceID:
		return "piece"
	case CancelID:
		return "cancel"
	case PortID:
		return "port"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// RequestSize is the block size this implementation requests pieces in.
// Most mainline clients reject requests for larger blocks.
const RequestSize = 16384

// Message is a single length-prefixed peer wire message. A zero-length
// wire message (a keep-alive) decodes to KeepAlive == true with ID and
// Payload left at their zero values.
type Message struct {
	KeepAlive bool
	ID        ID
	Payload   []byte
}

// MarshalBinary renders m into its wire form: a 4-byte big-endian length
// followed by the ID byte and payload, or four zero bytes for a
// keep-alive.
func (m *Message) MarshalBinary() []byte {
	if m.KeepAlive {
		return []byte{0, 0, 0, 0}
	}

	buf := make([]byte, 4+1+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(m.Payload)))
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// KeepAliveMessage is the wire-encoded form of a keep-alive, sent to
// hold a connection open across periods of silence.
func KeepAliveMessage() []byte { return []byte{0, 0, 0, 0} }

// Parse is a messagesv1 framer in the shape peerwire.Stream expects: it
// inspects buf and, once a full message has arrived, returns it along
// with the number of bytes consumed. It returns ok == false when buf
// does not yet hold a complete message.
func Parse(buf []byte) (msg *Message, consumed int, ok bool) {
	if len(buf) < 4 {
		return nil, 0, false
	}

	length := binary.BigEndian.Uint32(buf[0:4])
	if length == 0 {
		return &Message{KeepAlive: true}, 4, true
	}

	total := 4 + int(length)
	if len(buf) < total {
		return nil, 0, false
	}

	payload := make([]byte, length-1)
	copy(payload, buf[5:total])

	return &Message{ID: ID(buf[4]), Payload: payload}, total, true
}

// Have announces that the sender now has the chunk at Index.
type Have struct{ Index uint32 }

func (h *Have) Message() *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, h.Index)
	return &Message{ID: HaveID, Payload: payload}
}

func ParseHave(payload []byte) (*Have, error) {
	if len(payload) != 4 {
		return nil, fmt.Errorf("%w: have wants 4 bytes, got %d", ErrMalformedPayload, len(payload))
	}
	return &Have{Index: binary.BigEndian.Uint32(payload)}, nil
}

// Bitfield announces the full set of chunks the sender has, one bit per
// chunk index, high bit first, 0-padded in the final byte.
type Bitfield []byte

func (b Bitfield) Message() *Message {
	return &Message{ID: BitfieldID, Payload: append([]byte(nil), b...)}
}

func ParseBitfield(payload []byte) Bitfield {
	return append(Bitfield(nil), payload...)
}

// Request asks the peer for the Length bytes at Begin within chunk
// Index. It is also used to describe the in-flight request a Piece or
// Cancel corresponds to, so it must stay a plain comparable struct.
type Request struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

func (r *Request) Message() *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], r.Index)
	binary.BigEndian.PutUint32(payload[4:8], r.Begin)
	binary.BigEndian.PutUint32(payload[8:12], r.Length)
	return &Message{ID: RequestID, Payload: payload}
}

func ParseRequest(payload []byte) (*Request, error) {
	if len(payload) != 12 {
		return nil, fmt.Errorf("%w: request wants 12 bytes, got %d", ErrMalformedPayload, len(payload))
	}
	return &Request{
		Index:  binary.BigEndian.Uint32(payload[0:4]),
		Begin:  binary.BigEndian.Uint32(payload[4:8]),
		Length: binary.BigEndian.Uint32(payload[8:12]),
	}, nil
}

// Cancel withdraws a previously sent Request with the same fields.
type Cancel struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

func (c *Cancel) Message() *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], c.Index)
	binary.BigEndian.PutUint32(payload[4:8], c.Begin)
	binary.BigEndian.PutUint32(payload[8:12], c.Length)
	return &Message{ID: CancelID, Payload: payload}
}

func ParseCancel(payload []byte) (*Cancel, error) {
	if len(payload) != 12 {
		return nil, fmt.Errorf("%w: cancel wants 12 bytes, got %d", ErrMalformedPayload, len(payload))
	}
	return &Cancel{
		Index:  binary.BigEndian.Uint32(payload[0:4]),
		Begin:  binary.BigEndian.Uint32(payload[4:8]),
		Length: binary.BigEndian.Uint32(payload[8:12]),
	}, nil
}

// Piece carries Block, the bytes at Begin within chunk Index, in answer
// to a Request.
type Piece struct {
	Index uint32
	Begin uint32
	Block []byte
}

func (p *Piece) Message() *Message {
	payload := make([]byte, 8+len(p.Block))
	binary.BigEndian.PutUint32(payload[0:4], p.Index)
	binary.BigEndian.PutUint32(payload[4:8], p.Begin)
	copy(payload[8:], p.Block)
	return &Message{ID: PieceID, Payload: payload}
}

func ParsePiece(payload []byte) (*Piece, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: piece wants at least 8 bytes, got %d", ErrMalformedPayload, len(payload))
	}
	block := make([]byte, len(payload)-8)
	copy(block, payload[8:])
	return &Piece{
		Index: binary.BigEndian.Uint32(payload[0:4]),
		Begin: binary.BigEndian.Uint32(payload[4:8]),
		Block: block,
	}, nil
}

// Port announces the DHT port the sender listens on. DHT itself is out
// of scope; this exists so an unsolicited port message doesn't surface
// as ErrUnknownMessageID.
type Port struct{ Port uint16 }

func (p *Port) Message() *Message {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, p.Port)
	return &Message{ID: PortID, Payload: payload}
}

func ParsePort(payload []byte) (*Port, error) {
	if len(payload) != 2 {
		return nil, fmt.Errorf("%w: port wants 2 bytes, got %d", ErrMalformedPayload, len(payload))
	}
	return &Port{Port: binary.BigEndian.Uint16(payload)}, nil
}

// Choke, Unchoke, Interested and NotInterested carry no payload.
func ChokeMessage() *Message         { return &Message{ID: ChokeID} }
func UnchokeMessage() *Message       { return &Message{ID: UnchokeID} }
func InterestedMessage() *Message    { return &Message{ID: InterestedID} }
func NotInterestedMessage() *Message { return &Message{ID: NotInterestedID} }
