package download_test

import (
	"context"
	"crypto/sha1"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotorrent/download"
	"gotorrent/p2p/messagesv1"
	"gotorrent/torrent"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSeeder accepts one connection, performs the handshake, unchokes
// immediately, and answers every request with the matching slice of
// content.
func fakeSeeder(t *testing.T, ln net.Listener, infoHash [20]byte, content []byte, pieceLength int64) {
	t.Helper()

	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	handshakeBuf := make([]byte, messagesv1.HandshakeLength)
	_, err = readFullTest(conn, handshakeBuf)
	require.NoError(t, err)
	in, err := messagesv1.ParseHandshake(handshakeBuf)
	require.NoError(t, err)
	require.Equal(t, infoHash, in.InfoHash)

	var seederID [20]byte
	copy(seederID[:], "-TT0001-seederidxxxx")
	resp := messagesv1.NewHandshake(infoHash, seederID)
	_, err = conn.Write(resp.MarshalBinary())
	require.NoError(t, err)

	_, err = conn.Write(messagesv1.UnchokeMessage().MarshalBinary())
	require.NoError(t, err)

	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)
	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
		}
		if err != nil {
			return
		}

		for {
			msg, consumed, ok := messagesv1.Parse(buf)
			if !ok {
				break
			}
			buf = buf[consumed:]

			if msg.KeepAlive || msg.ID != messagesv1.RequestID {
				continue
			}
			req, err := messagesv1.ParseRequest(msg.Payload)
			require.NoError(t, err)

			offset := int64(req.Index)*pieceLength + int64(req.Begin)
			block := content[offset : offset+int64(req.Length)]
			piece := &messagesv1.Piece{Index: req.Index, Begin: req.Begin, Block: append([]byte(nil), block...)}
			if _, err := conn.Write(piece.Message().MarshalBinary()); err != nil {
				return
			}
		}
	}
}

func readFullTest(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestOrchestratorDownloadSinglePeerSingleChunk(t *testing.T) {
	content := []byte("hello, bittorrent world!")
	pieceHash := sha1.Sum(content)

	var infoHash [20]byte
	copy(infoHash[:], "infohash-test-12345a")

	meta := &torrent.Metainfo{
		Info: torrent.Info{
			Name:        "test.txt",
			PieceLength: int64(len(content)),
			Pieces:      [][20]byte{pieceHash},
			Length:      int64(len(content)),
		},
		InfoHash: infoHash,
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeSeeder(t, ln, infoHash, content, meta.Info.PieceLength)

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)

	peerBytes := []byte{127, 0, 0, 1, byte(port >> 8), byte(port)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "d8:intervali1800e5:peers6:" + string(peerBytes) + "e"
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	meta.Announce = srv.URL

	orch := download.New(discardLogger(), meta, download.WithChokeTimeout(2*time.Second))
	got, err := orch.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, download.Progress{ChunksCompleted: 1, ChunksTotal: 1}, orch.Progress())
}
