// Package download drives a single torrent end to end: announcing to
// every tracker the metainfo names, connecting to one resulting peer,
// and downloading every chunk sequentially.
package download

import "errors"

// ErrNoTrackers is returned when the metainfo carries no announce URL.
var ErrNoTrackers = errors.New("download: metainfo has no trackers")

// ErrNoPeers is returned when every tracker announce failed or
// returned an empty peer list.
var ErrNoPeers = errors.New("download: no peers available")

// ErrProtocol is returned when a peer message violates §4.5's shape
// invariants (e.g. a piece index or bounds outside the torrent), and when
// the peer session ends before a chunk has been fully received.
var ErrProtocol = errors.New("download: protocol error")

// ErrDigestMismatch is returned when a chunk's SHA1 does not match the
// metainfo's recorded digest after the retry budget is exhausted.
var ErrDigestMismatch = errors.New("download: chunk digest mismatch")

// ErrChokeTimeout is returned when a peer leaves us choked for longer
// than the session is willing to wait before requesting a chunk's
// blocks. A choke that arrives after those requests are sent is not
// timed out.
var ErrChokeTimeout = errors.New("download: timed out waiting to be unchoked")
