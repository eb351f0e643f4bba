package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"time"
)

const (
	udpProtocolMagic = 0x41727101980
	udpActionConnect = 0
	udpActionAnnounce = 1
	udpActionError    = 3

	udpConnectRequestLen  = 16
	udpConnectResponseLen = 16
	udpAnnounceRequestLen = 98
	udpMinAnnounceRespLen = 20

	udpMaxRetries = 8 // 15 * 2^n for n in [0, 8]
)

func udpRetryTimeout(attempt int) time.Duration {
	return time.Duration(15*(1<<uint(attempt))) * time.Second
}

func udpEventCode(e *Event) uint32 {
	if e == nil {
		return 0
	}
	switch *e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

// announceUDP performs the connect/announce handshake against a udp
// tracker, retrying both stages with the 15*2^n backoff (capped at
// n=8) the protocol specifies.
func announceUDP(ctx context.Context, hostport string, params *RequestParams) (*Response, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("tracker: resolve udp address %s: %w", hostport, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("tracker: dial udp %s: %w", hostport, err)
	}
	defer conn.Close()

	connID, err := udpConnect(ctx, conn)
	if err != nil {
		return nil, err
	}

	return udpAnnounce(ctx, conn, connID, params)
}

func udpConnect(ctx context.Context, conn *net.UDPConn) (uint64, error) {
	txID := rand.Uint32()

	req := make([]byte, udpConnectRequestLen)
	binary.BigEndian.PutUint64(req[0:8], udpProtocolMagic)
	binary.BigEndian.PutUint32(req[8:12], udpActionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	resp := make([]byte, udpConnectResponseLen)
	n, err := udpRoundTrip(ctx, conn, req, resp, txID)
	if err != nil {
		return 0, fmt.Errorf("tracker: udp connect: %w", err)
	}
	if n < udpConnectResponseLen {
		return 0, fmt.Errorf("%w: connect response too short: %d bytes", ErrMalformedResponse, n)
	}
	if action := binary.BigEndian.Uint32(resp[0:4]); action != udpActionConnect {
		return 0, fmt.Errorf("%w: unexpected connect action %d", ErrMalformedResponse, action)
	}

	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func udpAnnounce(ctx context.Context, conn *net.UDPConn, connID uint64, params *RequestParams) (*Response, error) {
	txID := rand.Uint32()

	req := make([]byte, udpAnnounceRequestLen)
	binary.BigEndian.PutUint64(req[0:8], connID)
	binary.BigEndian.PutUint32(req[8:12], udpActionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], params.InfoHash[:])
	copy(req[36:56], params.PeerID[:])
	binary.BigEndian.PutUint64(req[56:64], uint64(params.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(params.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(params.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], udpEventCode(params.Event))
	binary.BigEndian.PutUint32(req[84:88], 0) // ip: 0 means use the packet's source address

	var key uint32
	if params.Key != nil {
		for _, c := range []byte(*params.Key) {
			key = key*31 + uint32(c)
		}
	}
	binary.BigEndian.PutUint32(req[88:92], key)

	numWant := int32(-1)
	if params.NumWant != nil {
		numWant = int32(*params.NumWant)
	}
	binary.BigEndian.PutUint32(req[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(req[96:98], uint16(params.Port))

	resp := make([]byte, 4096)
	n, err := udpRoundTrip(ctx, conn, req, resp, txID)
	if err != nil {
		return nil, fmt.Errorf("tracker: udp announce: %w", err)
	}
	if n < udpMinAnnounceRespLen {
		return nil, fmt.Errorf("%w: announce response too short: %d bytes", ErrMalformedResponse, n)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	if action == udpActionError {
		return nil, fmt.Errorf("%w: %s", ErrTrackerFailure, resp[8:n])
	}
	if action != udpActionAnnounce {
		return nil, fmt.Errorf("%w: unexpected announce action %d", ErrMalformedResponse, action)
	}

	interval := int64(binary.BigEndian.Uint32(resp[8:12]))
	incomplete := int64(binary.BigEndian.Uint32(resp[12:16]))
	complete := int64(binary.BigEndian.Uint32(resp[16:20]))

	peerBytes := resp[20:n]
	if len(peerBytes)%6 != 0 {
		return nil, fmt.Errorf("%w: peers length %d not a multiple of 6", ErrMalformedResponse, len(peerBytes))
	}

	out := &Response{
		Interval:   &interval,
		Incomplete: &incomplete,
		Complete:   &complete,
	}
	for i := 0; i < len(peerBytes); i += 6 {
		out.Peers = append(out.Peers, peerFromCompactTuple(peerBytes[i:i+6]))
	}

	return out, nil
}

// udpRoundTrip writes req and waits for a response into resp whose
// transaction id (bytes [4:8], present in both connect and announce
// replies) matches txID, retrying with the protocol's 15*2^n backoff up
// to n=8 when a read times out. A datagram that arrives but is too
// short or carries a different transaction id (a stray or late reply)
// is discarded and the read retried within the same attempt's deadline,
// per spec: it never aborts the announce on its own. It returns the
// number of bytes read into resp, or ErrTimeout once the retry schedule
// is exhausted without a matching reply.
func udpRoundTrip(ctx context.Context, conn *net.UDPConn, req, resp []byte, txID uint32) (int, error) {
	for attempt := 0; attempt <= udpMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if _, err := conn.Write(req); err != nil {
			return 0, fmt.Errorf("write: %w", err)
		}

		deadline := time.Now().Add(udpRetryTimeout(attempt))
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}

		for {
			n, err := conn.Read(resp)
			if err != nil {
				ne, ok := err.(net.Error)
				if !ok || !ne.Timeout() {
					return 0, fmt.Errorf("read: %w", err)
				}
				break // this attempt's deadline expired, back off and retry.
			}

			if n < 8 || binary.BigEndian.Uint32(resp[4:8]) != txID {
				continue // discard: stray or late datagram, keep listening.
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: exhausted %d attempts", ErrTimeout, udpMaxRetries+1)
}
