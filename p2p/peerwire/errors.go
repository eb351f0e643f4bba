// Package peerwire implements a generic framed byte stream over a
// net.Conn: a parser function decides when enough bytes have arrived to
// yield one message, and a stalled read triggers a local keep-alive
// write instead of tearing the connection down.
package peerwire

import "errors"

// ErrConnectionClosed is returned once the underlying connection's Read
// returns io.EOF (a zero-byte read) with no message pending.
var ErrConnectionClosed = errors.New("peerwire: connection closed")
