package download

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"gotorrent/p2p/messagesv1"
	"gotorrent/p2p/peer"
	"gotorrent/p2p/tracker"
	"gotorrent/torrent"
)

// Progress reports how much of a torrent has been downloaded, in
// chunks rather than bytes.
type Progress struct {
	ChunksCompleted int
	ChunksTotal     int
}

// Orchestrator downloads one torrent: it announces to every tracker
// the metainfo names, connects to the first peer any tracker returns,
// and drives that single session until every chunk is verified and
// assembled in index order. Multi-peer fan-out and rarest-first
// selection are out of scope; see the teacher's status.downloadScheduler
// for what that would look like.
type Orchestrator struct {
	logger *slog.Logger
	meta   *torrent.Metainfo
	cfg    Config

	completed atomic.Int64

	// announceURL and trackerID remember which tracker answered first and
	// its opaque tracker id, so the final "completed" announce can be sent
	// back to the same tracker with the id echoed, per spec.
	announceURL string
	trackerID   *string
}

// New builds an Orchestrator for meta, applying opts over the default
// Config.
func New(logger *slog.Logger, meta *torrent.Metainfo, opts ...Option) *Orchestrator {
	cfg := Config{}
	defaults(&cfg)
	for _, o := range opts {
		o(&cfg)
	}
	return &Orchestrator{logger: logger, meta: meta, cfg: cfg}
}

// Progress reports the current (chunks_completed, chunks_total) pair.
func (o *Orchestrator) Progress() Progress {
	return Progress{
		ChunksCompleted: int(o.completed.Load()),
		ChunksTotal:     o.meta.NumPieces(),
	}
}

// Download announces to every tracker, connects to the first peer
// returned, and downloads the full content sequentially, chunk by
// chunk, returning the assembled bytes in index order.
func (o *Orchestrator) Download(ctx context.Context) ([]byte, error) {
	peers, err := o.announceAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}

	chosen := peers[0]
	addr := net.JoinHostPort(chosen.IP, fmt.Sprint(chosen.Port))

	o.logger.Info("connecting to peer", slog.String("addr", addr))

	p := peer.NewSeeder(o.logger, chosen.PeerID, addr, o.meta.NumPieces())
	if err := p.ConnectSeeder(); err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.InitiateHandshakeV1(o.meta.InfoHash, o.cfg.ClientID); err != nil {
		return nil, err
	}
	if err := p.SendInterested(); err != nil {
		return nil, fmt.Errorf("download: send interested: %w", err)
	}

	content := make([]byte, o.meta.BytesToDownload())

	for idx := 0; idx < o.meta.NumPieces(); idx++ {
		if err := o.downloadChunk(ctx, p, idx, content); err != nil {
			return nil, fmt.Errorf("download: chunk %d: %w", idx, err)
		}
		o.completed.Add(1)
		o.logger.Debug("chunk verified",
			slog.Int("index", idx),
			slog.Int("completed", int(o.completed.Load())),
			slog.Int("total", o.meta.NumPieces()),
		)
	}

	if err := p.SendNotInterested(); err != nil {
		o.logger.Warn("failed to send not-interested after completing download", slog.Any("err", err))
	}

	o.announceCompleted(ctx)

	return content, nil
}

// announceCompleted tells the tracker that answered the initial announce
// that the download is done, echoing back the tracker id it issued, if
// any. Failures are logged, not returned: every chunk has already been
// downloaded and verified by the time this runs.
func (o *Orchestrator) announceCompleted(ctx context.Context) {
	if o.announceURL == "" {
		return
	}

	var peerID [20]byte
	copy(peerID[:], o.cfg.ClientID)

	_, err := tracker.Announce(ctx, o.announceURL, &tracker.RequestParams{
		InfoHash:   o.meta.InfoHash,
		PeerID:     peerID,
		Port:       o.cfg.ListenPort,
		Downloaded: o.meta.BytesToDownload(),
		Left:       0,
		Compact:    tracker.Optional[int64](1),
		Event:      tracker.Optional(tracker.EventCompleted),
		TrackerID:  o.trackerID,
	})
	if err != nil {
		o.logger.Warn("failed to announce completion to tracker",
			slog.String("url", o.announceURL), slog.Any("err", err))
	}
}

// announceAll contacts every tracker the metainfo names and returns
// the union of their peer lists. A tracker that fails to respond is
// logged and skipped; the download only fails once every tracker has
// been tried.
func (o *Orchestrator) announceAll(ctx context.Context) ([]tracker.Peer, error) {
	trackers := o.meta.Trackers()
	if len(trackers) == 0 {
		return nil, ErrNoTrackers
	}

	var peerID [20]byte
	copy(peerID[:], o.cfg.ClientID)

	var peers []tracker.Peer
	var lastErr error
	for _, url := range trackers {
		resp, err := tracker.Announce(ctx, url, &tracker.RequestParams{
			InfoHash: o.meta.InfoHash,
			PeerID:   peerID,
			Port:     o.cfg.ListenPort,
			Left:     o.meta.BytesToDownload(),
			Compact:  tracker.Optional[int64](1),
			Event:    tracker.Optional(tracker.EventStarted),
		})
		if err != nil {
			o.logger.Warn("tracker announce failed", slog.String("url", url), slog.Any("err", err))
			lastErr = err
			continue
		}
		if o.announceURL == "" {
			o.announceURL = url
			o.trackerID = resp.TrackerID
		}
		peers = append(peers, resp.Peers...)
	}

	if len(peers) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrNoPeers, lastErr)
	}
	return peers, nil
}

// downloadChunk requests chunk idx from p in RequestSize blocks,
// assembles the responses into content at the chunk's offset, verifies
// its SHA1 against the metainfo, and retries up to cfg.DigestRetries
// times on mismatch before giving up.
func (o *Orchestrator) downloadChunk(ctx context.Context, p *peer.Peer, idx int, content []byte) error {
	offset := int64(idx) * o.meta.Info.PieceLength
	size := o.meta.Info.PieceLengthAt(idx)

	for attempt := 0; attempt <= o.cfg.DigestRetries; attempt++ {
		if err := o.waitUnchoked(ctx, p); err != nil {
			return err
		}

		buf := make([]byte, size)
		received := make([]bool, (size+int64(messagesv1.RequestSize)-1)/int64(messagesv1.RequestSize))

		var requested int64
		for requested < size {
			blockLen := int64(messagesv1.RequestSize)
			if size-requested < blockLen {
				blockLen = size - requested
			}
			req := &messagesv1.Request{Index: uint32(idx), Begin: uint32(requested), Length: uint32(blockLen)}
			if err := p.SendRequest(req); err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			requested += blockLen
		}

		if err := o.collectBlocks(ctx, p, idx, buf, received); err != nil {
			return err
		}

		digest := sha1.Sum(buf)
		want := o.meta.PieceHash(idx)
		if bytes.Equal(digest[:], want[:]) {
			copy(content[offset:offset+size], buf)
			return nil
		}

		o.logger.Warn("chunk digest mismatch, retrying",
			slog.Int("index", idx),
			slog.Int("attempt", attempt),
		)
	}

	return ErrDigestMismatch
}

// waitUnchoked blocks until the peer has unchoked us, bounded by the
// orchestrator's choke timeout.
func (o *Orchestrator) waitUnchoked(ctx context.Context, p *peer.Peer) error {
	if peer.ChokeStatus(p.Status.Remote.Load()) == peer.UnChoked {
		return nil
	}

	deadline := time.Now().Add(o.cfg.ChokeTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if peer.ChokeStatus(p.Status.Remote.Load()) == peer.UnChoked {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return ErrChokeTimeout
}

// collectBlocks reads pieces from p until every block of the chunk at
// idx has arrived in buf, discarding pieces for any other valid index.
// A piece whose index lies outside the torrent is an ErrProtocol.
func (o *Orchestrator) collectBlocks(ctx context.Context, p *peer.Peer, idx int, buf []byte, received []bool) error {
	remaining := len(received)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case piece, ok := <-p.SeederPieces():
			if !ok {
				return ErrProtocol
			}
			if int(piece.Index) >= o.meta.NumPieces() {
				return fmt.Errorf("%w: piece index %d outside torrent of %d pieces", ErrProtocol, piece.Index, o.meta.NumPieces())
			}
			if int(piece.Index) != idx {
				o.logger.Debug("discarding piece for unexpected index",
					slog.Int("want", idx), slog.Int("got", int(piece.Index)),
				)
				continue
			}

			begin := int64(piece.Begin)
			end := begin + int64(len(piece.Block))
			if begin < 0 || end > int64(len(buf)) {
				return fmt.Errorf("%w: piece %d begin=%d len=%d exceeds chunk size %d", ErrProtocol, idx, begin, len(piece.Block), len(buf))
			}

			block := int(begin) / messagesv1.RequestSize
			if block >= len(received) || received[block] {
				continue
			}

			copy(buf[begin:end], piece.Block)
			received[block] = true
			remaining--
		}
	}
	return nil
}
