package peer

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotorrent/p2p/messagesv1"
	"gotorrent/p2p/peerwire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(devNull{}, nil))
}

type devNull struct{}

func (devNull) Write(p []byte) (int, error) { return len(p), nil }

func newConnectedPeer(t *testing.T, conn net.Conn) *Peer {
	t.Helper()
	p := NewSeeder(discardLogger(), "", conn.RemoteAddr().String(), 4)
	p.conn = conn
	p.stream = peerwire.NewStream(conn, messagesv1.Parse, messagesv1.KeepAliveMessage())
	return p
}

func TestInitiateHandshakeV1Succeeds(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var infoHash [20]byte
	copy(infoHash[:], "infohashinfohash1234")

	remotePeerID := [20]byte{}
	copy(remotePeerID[:], "remote-peer-id-01234")

	go func() {
		buf := make([]byte, messagesv1.HandshakeLength)
		_, _ = client.Read(buf)
		resp := messagesv1.NewHandshake(infoHash, remotePeerID)
		_, _ = client.Write(resp.MarshalBinary())
	}()

	p := newConnectedPeer(t, server)
	err := p.InitiateHandshakeV1(infoHash, "local-peer-id-012345")
	require.NoError(t, err)
	assert.Equal(t, ConnectionEstablished, ConnectionStatus(p.ConnectionStatus.Load()))
	assert.Equal(t, string(remotePeerID[:]), p.Id)
}

func TestInitiateHandshakeV1RejectsMismatchedInfoHash(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var infoHash, other [20]byte
	copy(infoHash[:], "infohashinfohash1234")
	copy(other[:], "totallydifferenthash")

	go func() {
		buf := make([]byte, messagesv1.HandshakeLength)
		_, _ = client.Read(buf)
		resp := messagesv1.NewHandshake(other, other)
		_, _ = client.Write(resp.MarshalBinary())
	}()

	p := newConnectedPeer(t, server)
	err := p.InitiateHandshakeV1(infoHash, "local-peer-id-012345")
	assert.ErrorIs(t, err, ErrIdentifierMismatch)
}

func TestReadLoopUpdatesBitfieldAndChoke(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := newConnectedPeer(t, server)
	p.ConnectionStatus.Store(uint32(ConnectionEstablished))
	go p.readLoop()

	_, _ = client.Write(messagesv1.UnchokeMessage().MarshalBinary())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, UnChoked, ChokeStatus(p.Status.Remote.Load()))

	have := (&messagesv1.Have{Index: 2}).Message().MarshalBinary()
	_, _ = client.Write(have)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, p.Bitfield.Check(2))
}

func TestReadLoopDeliversPieces(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := newConnectedPeer(t, server)
	go p.readLoop()

	piece := &messagesv1.Piece{Index: 0, Begin: 0, Block: []byte("data")}
	_, _ = client.Write(piece.Message().MarshalBinary())

	got := <-p.SeederPieces()
	assert.Equal(t, piece, got)
}

func TestReadLoopAbortsOnUnknownMessageID(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := newConnectedPeer(t, server)
	p.ConnectionStatus.Store(uint32(ConnectionEstablished))
	go p.readLoop()

	unknown := (&messagesv1.Message{ID: messagesv1.ID(99)}).MarshalBinary()
	_, _ = client.Write(unknown)

	_, ok := <-p.SeederPieces()
	assert.False(t, ok, "pieces channel should be closed once the session aborts")
	assert.Equal(t, ConnectionKilled, ConnectionStatus(p.ConnectionStatus.Load()))
}

func TestReadLoopOnlyHonorsBitfieldAsFirstMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := newConnectedPeer(t, server)
	p.ConnectionStatus.Store(uint32(ConnectionEstablished))
	go p.readLoop()

	_, _ = client.Write(messagesv1.UnchokeMessage().MarshalBinary())
	time.Sleep(10 * time.Millisecond)

	late := messagesv1.Bitfield([]byte{0xFF})
	_, _ = client.Write(late.Message().MarshalBinary())
	time.Sleep(10 * time.Millisecond)

	assert.False(t, p.Bitfield.Check(0), "a bitfield arriving after the first message must be ignored")
}
