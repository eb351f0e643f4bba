package tracker_test

import (
	"context"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotorrent/p2p/tracker"
)

func testParams() *tracker.RequestParams {
	var infoHash, peerID [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(peerID[:], "bbbbbbbbbbbbbbbbbbbb")
	return &tracker.RequestParams{
		InfoHash: infoHash,
		PeerID:   peerID,
		Port:     6881,
		Left:     100,
		Compact:  tracker.Optional[int64](1),
		Event:    tracker.Optional(tracker.EventStarted),
	}
}

func TestRequestParamsValidateRejectsZeroPort(t *testing.T) {
	p := testParams()
	p.Port = 0
	err := p.Validate()
	assert.ErrorIs(t, err, tracker.ErrInvalidParams)
}

func TestAnnounceHTTPCompactPeers(t *testing.T) {
	peers := []byte{127, 0, 0, 1, 0x1A, 0xE1, 10, 0, 0, 2, 0x1A, 0xE2}
	body := "d8:intervali1800e5:peers12:" + string(peers) + "e"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.RawQuery
		assert.Contains(t, q, "info_hash=%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61%61")
		assert.Contains(t, q, "event=started")
		assert.Contains(t, q, "compact=1")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	resp, err := tracker.Announce(context.Background(), srv.URL, testParams())
	require.NoError(t, err)
	require.NotNil(t, resp.Interval)
	assert.EqualValues(t, 1800, *resp.Interval)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "127.0.0.1", resp.Peers[0].IP)
	assert.EqualValues(t, 6881, resp.Peers[0].Port)
}

func TestAnnounceHTTPFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("d14:failure reason12:bad torrente"))
	}))
	defer srv.Close()

	_, err := tracker.Announce(context.Background(), srv.URL, testParams())
	assert.ErrorIs(t, err, tracker.ErrTrackerFailure)
	assert.Contains(t, err.Error(), "bad torrent")
}

func TestAnnounceUDPConnectAndAnnounce(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()

	go fakeUDPTracker(t, conn, false)

	params := testParams()
	resp, err := tracker.Announce(context.Background(), "udp://"+conn.LocalAddr().String(), params)
	require.NoError(t, err)
	require.NotNil(t, resp.Interval)
	assert.EqualValues(t, 900, *resp.Interval)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "10.0.0.5", resp.Peers[0].IP)
}

func TestAnnounceUDPDiscardsMismatchedTransactionID(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()

	go fakeUDPTracker(t, conn, true)

	params := testParams()
	resp, err := tracker.Announce(context.Background(), "udp://"+conn.LocalAddr().String(), params)
	require.NoError(t, err)
	require.NotNil(t, resp.Interval)
	assert.EqualValues(t, 900, *resp.Interval)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "10.0.0.5", resp.Peers[0].IP)
}

// fakeUDPTracker answers exactly one connect/announce exchange in the
// shape the protocol expects, then returns. If stray is true, a
// datagram with a deliberately wrong transaction id is sent ahead of
// each real reply, to exercise discard-and-keep-listening behavior.
func fakeUDPTracker(t *testing.T, conn *net.UDPConn, stray bool) {
	t.Helper()

	buf := make([]byte, 4096)

	n, clientAddr, err := conn.ReadFromUDP(buf)
	if err != nil || n < 16 {
		return
	}
	connectTxID := binary.BigEndian.Uint32(buf[12:16])

	if stray {
		bogus := make([]byte, 16)
		binary.BigEndian.PutUint32(bogus[0:4], 0)
		binary.BigEndian.PutUint32(bogus[4:8], connectTxID^0xFFFFFFFF)
		_, _ = conn.WriteToUDP(bogus, clientAddr)
	}

	const connID = 0x1122334455667788
	connResp := make([]byte, 16)
	binary.BigEndian.PutUint32(connResp[0:4], 0)
	binary.BigEndian.PutUint32(connResp[4:8], connectTxID)
	binary.BigEndian.PutUint64(connResp[8:16], connID)
	_, _ = conn.WriteToUDP(connResp, clientAddr)

	n, clientAddr, err = conn.ReadFromUDP(buf)
	if err != nil || n < 98 {
		return
	}
	announceTxID := binary.BigEndian.Uint32(buf[12:16])

	if stray {
		bogus := make([]byte, 20)
		binary.BigEndian.PutUint32(bogus[0:4], 1)
		binary.BigEndian.PutUint32(bogus[4:8], announceTxID^0xFFFFFFFF)
		_, _ = conn.WriteToUDP(bogus, clientAddr)
	}

	peer := []byte{10, 0, 0, 5, 0x1A, 0xE1}
	announceResp := make([]byte, 20+len(peer))
	binary.BigEndian.PutUint32(announceResp[0:4], 1)
	binary.BigEndian.PutUint32(announceResp[4:8], announceTxID)
	binary.BigEndian.PutUint32(announceResp[8:12], 900)
	binary.BigEndian.PutUint32(announceResp[12:16], 0)
	binary.BigEndian.PutUint32(announceResp[16:20], 1)
	copy(announceResp[20:], peer)
	_, _ = conn.WriteToUDP(announceResp, clientAddr)
}

