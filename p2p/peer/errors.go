// Package peer drives a single peer-wire connection: handshake,
// message framing, choke/bitfield bookkeeping, and the block-pipelined
// chunk download it exposes to a download orchestrator.
package peer

import "errors"

// ErrIdentifierMismatch is returned when a peer's handshake response
// carries an info hash different from the one we sent.
var ErrIdentifierMismatch = errors.New("peer: handshake info hash mismatch")

// ErrNotConnected is returned when a Send/Receive method is called
// before ConnectSeeder/InitiateHandshakeV1 has established a session.
var ErrNotConnected = errors.New("peer: not connected")
