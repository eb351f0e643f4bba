package messagesv1

import "fmt"

// ProtocolIdentifier is the pstr sent by every BitTorrent peer-wire
// implementation of protocol version 1.
const ProtocolIdentifier = "BitTorrent protocol"

// HandshakeLength is the fixed wire size of a Handshake: 1 (pstrlen) +
// 19 (pstr) + 8 (reserved) + 20 (info hash) + 20 (peer id).
const HandshakeLength = 1 + len(ProtocolIdentifier) + 8 + 20 + 20

// Handshake is the first exchange on every peer connection, identifying
// the protocol, the torrent (InfoHash) and the sender (PeerID).
type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a handshake with no extension bits set.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: peerID}
}

// MarshalBinary renders h into its 68-byte wire form.
func (h *Handshake) MarshalBinary() []byte {
	buf := make([]byte, 0, HandshakeLength)
	buf = append(buf, byte(len(ProtocolIdentifier)))
	buf = append(buf, ProtocolIdentifier...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ParseHandshake decodes a 68-byte handshake buffer, rejecting any
// identifier other than ProtocolIdentifier.
func ParseHandshake(buf []byte) (*Handshake, error) {
	if len(buf) != HandshakeLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedHandshake, HandshakeLength, len(buf))
	}

	pstrlen := int(buf[0])
	if pstrlen != len(ProtocolIdentifier) {
		return nil, fmt.Errorf("%w: unexpected pstrlen %d", ErrMalformedHandshake, pstrlen)
	}
	if string(buf[1:1+pstrlen]) != ProtocolIdentifier {
		return nil, fmt.Errorf("%w: unexpected protocol identifier %q", ErrMalformedHandshake, buf[1:1+pstrlen])
	}

	h := &Handshake{}
	off := 1 + pstrlen
	copy(h.Reserved[:], buf[off:off+8])
	off += 8
	copy(h.InfoHash[:], buf[off:off+20])
	off += 20
	copy(h.PeerID[:], buf[off:off+20])

	return h, nil
}
