package peer

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gotorrent/p2p/messagesv1"
	"gotorrent/p2p/peerwire"
)

// ConnectionStatus is the lifecycle state of a peer's TCP connection.
type ConnectionStatus uint32

const (
	ConnectionPending ConnectionStatus = iota
	ConnectionEstablished
	ConnectionKilled
)

// ChokeStatus is whether a side of the connection is allowed to
// request chunks.
type ChokeStatus uint32

const (
	Choked ChokeStatus = iota
	UnChoked
)

// dialTimeout bounds the initial TCP connect to a seeder.
const dialTimeout = 10 * time.Second

// IdleReconnect is the remote-idle window a session supervisor should
// wait on a pending/killed connection before attempting to reconnect,
// distinct from peerwire's much shorter local read timeout.
const IdleReconnect = 2 * time.Minute

// Status holds the choke state each side of the connection has
// announced to the other.
type Status struct {
	Local  atomic.Uint32 // our choke state as told to the remote peer
	Remote atomic.Uint32 // the remote peer's choke state as told to us
}

// Peer drives one connection to a remote seeder: handshake, the
// block-pipelined piece exchange, and the bitfield/choke bookkeeping a
// download orchestrator needs to decide what to request next.
type Peer struct {
	logger *slog.Logger

	Id   string
	Addr string

	ConnectionStatus atomic.Uint32
	Status           Status
	Bitfield         *Bitfield

	numPieces int

	conn   net.Conn
	stream *peerwire.Stream[*messagesv1.Message]

	// sawFirstMessage tracks whether a post-handshake message has
	// already been processed, since a bitfield is only valid as the
	// very first one.
	sawFirstMessage bool

	sendMu sync.Mutex

	pieces    chan *messagesv1.Piece
	closeOnce sync.Once
	done      chan struct{}
}

// NewSeeder constructs a Peer for a remote seeder at addr, identified
// by id (empty until the handshake response arrives), tracking
// numPieces chunks.
func NewSeeder(logger *slog.Logger, id, addr string, numPieces int) *Peer {
	p := &Peer{
		logger:    logger,
		Id:        id,
		Addr:      addr,
		numPieces: numPieces,
		Bitfield:  NewBitfield(numPieces),
		pieces:    make(chan *messagesv1.Piece, 64),
		done:      make(chan struct{}),
	}
	p.ConnectionStatus.Store(uint32(ConnectionPending))
	p.Status.Remote.Store(uint32(Choked))
	p.Status.Local.Store(uint32(Choked))
	return p
}

// ConnectSeeder dials the peer's TCP address. It does not perform the
// handshake; call InitiateHandshakeV1 afterwards.
func (p *Peer) ConnectSeeder() error {
	conn, err := net.DialTimeout("tcp", p.Addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("peer: dial %s: %w", p.Addr, err)
	}
	p.conn = conn
	p.stream = peerwire.NewStream(conn, messagesv1.Parse, messagesv1.KeepAliveMessage())
	return nil
}

// InitiateHandshakeV1 exchanges the 68-byte protocol-v1 handshake,
// verifying the remote's info hash matches infoHash, then starts the
// background reader that feeds SeederPieces and updates Bitfield and
// Status.Remote.
func (p *Peer) InitiateHandshakeV1(infoHash [20]byte, myPeerID string) error {
	if p.conn == nil {
		return ErrNotConnected
	}

	var peerID [20]byte
	copy(peerID[:], myPeerID)

	out := messagesv1.NewHandshake(infoHash, peerID)
	if err := p.stream.Write(out.MarshalBinary()); err != nil {
		return fmt.Errorf("peer: send handshake: %w", err)
	}

	if err := p.conn.SetReadDeadline(time.Now().Add(peerwire.ReadTimeout)); err != nil {
		return fmt.Errorf("peer: set handshake read deadline: %w", err)
	}
	resp := make([]byte, messagesv1.HandshakeLength)
	if err := readFull(p.conn, resp); err != nil {
		return fmt.Errorf("peer: read handshake: %w", err)
	}
	if err := p.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("peer: clear handshake read deadline: %w", err)
	}

	in, err := messagesv1.ParseHandshake(resp)
	if err != nil {
		return fmt.Errorf("peer: parse handshake: %w", err)
	}
	if in.InfoHash != infoHash {
		return ErrIdentifierMismatch
	}

	p.Id = string(in.PeerID[:])
	p.ConnectionStatus.Store(uint32(ConnectionEstablished))

	go p.readLoop()

	return nil
}

func readFull(conn net.Conn, buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := conn.Read(buf[read:])
		if n > 0 {
			read += n
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) readLoop() {
	logger := p.logger.With(slog.String("peer_addr", p.Addr), slog.String("pid", p.Id))
	for {
		msg, err := p.stream.Next()
		if err != nil {
			logger.Debug("peer session ended", slog.Any("err", err))
			p.ConnectionStatus.Store(uint32(ConnectionKilled))
			close(p.pieces)
			return
		}

		if msg.KeepAlive {
			continue
		}

		isFirst := !p.sawFirstMessage
		p.sawFirstMessage = true

		switch msg.ID {
		case messagesv1.ChokeID:
			p.Status.Remote.Store(uint32(Choked))
		case messagesv1.UnchokeID:
			p.Status.Remote.Store(uint32(UnChoked))
		case messagesv1.InterestedID, messagesv1.NotInterestedID:
			// this client never seeds, so peer interest is informational only.
		case messagesv1.HaveID:
			have, err := messagesv1.ParseHave(msg.Payload)
			if err != nil {
				logger.Warn("malformed have message", slog.Any("err", err))
				continue
			}
			p.Bitfield.Set(int(have.Index))
		case messagesv1.BitfieldID:
			if !isFirst {
				logger.Warn("ignoring bitfield received after the first post-handshake message")
				continue
			}
			p.Bitfield = BitfieldFromWire(msg.Payload, p.numPieces)
		case messagesv1.RequestID, messagesv1.CancelID, messagesv1.PortID:
			// requests/cancels/DHT ports target a seeding role this client
			// does not implement.
		case messagesv1.PieceID:
			piece, err := messagesv1.ParsePiece(msg.Payload)
			if err != nil {
				logger.Warn("malformed piece message", slog.Any("err", err))
				continue
			}
			p.pieces <- piece
		default:
			logger.Debug("aborting session on unknown message id",
				slog.Any("err", messagesv1.ErrUnknownMessageID), slog.Any("id", msg.ID))
			p.ConnectionStatus.Store(uint32(ConnectionKilled))
			close(p.pieces)
			return
		}
	}
}

// SeederPieces is the channel Piece messages arrive on; it is closed
// when the session ends.
func (p *Peer) SeederPieces() <-chan *messagesv1.Piece { return p.pieces }

func (p *Peer) send(buf []byte) error {
	if p.stream == nil {
		return ErrNotConnected
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.stream.Write(buf)
}

// SendBitfield announces the full set of chunks we have.
func (p *Peer) SendBitfield(bf *Bitfield) error {
	return p.send(bf.Wire().Message().MarshalBinary())
}

// SendInterested tells the peer we want to download from it.
func (p *Peer) SendInterested() error {
	return p.send(messagesv1.InterestedMessage().MarshalBinary())
}

// SendNotInterested tells the peer we no longer want to download.
func (p *Peer) SendNotInterested() error {
	return p.send(messagesv1.NotInterestedMessage().MarshalBinary())
}

// SendKeepAlive holds the connection open across idle periods.
func (p *Peer) SendKeepAlive() error {
	return p.send(messagesv1.KeepAliveMessage())
}

// SendHave announces that we now have the chunk h.Index.
func (p *Peer) SendHave(h *messagesv1.Have) error {
	return p.send(h.Message().MarshalBinary())
}

// SendRequest asks the peer for a block.
func (p *Peer) SendRequest(r *messagesv1.Request) error {
	return p.send(r.Message().MarshalBinary())
}

// SendCancel withdraws a previously sent request.
func (p *Peer) SendCancel(c *messagesv1.Cancel) error {
	return p.send(c.Message().MarshalBinary())
}

// Close tears down the underlying connection.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.ConnectionStatus.Store(uint32(ConnectionKilled))
		if p.stream != nil {
			err = p.stream.Close()
		}
	})
	return err
}
