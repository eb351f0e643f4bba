// Package messagesv1 implements the BitTorrent peer wire protocol's
// handshake and length-prefixed message framing.
package messagesv1

import "errors"

// ErrUnknownMessageID describes a message that arrives with an ID byte
// outside the Choke..Port range. Parse does not return it; a peer
// session logs it when it aborts on such a message.
var ErrUnknownMessageID = errors.New("messagesv1: unknown message id")

// ErrMalformedPayload is returned when a message's payload does not have
// the length its ID requires (shorter than 8 bytes for a piece).
var ErrMalformedPayload = errors.New("messagesv1: malformed payload")

// ErrMalformedHandshake is returned when a handshake buffer is the wrong
// length or carries an unexpected protocol identifier.
var ErrMalformedHandshake = errors.New("messagesv1: malformed handshake")
