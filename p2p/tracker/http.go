package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"gotorrent/bencoding"
)

// percentEncodeAll escapes every byte of data as %XX, regardless of
// whether it falls in the URL-unreserved set: info_hash and peer_id are
// raw 20-byte identifiers, not text, so no byte may be passed through
// unescaped.
func percentEncodeAll(data []byte) string {
	var b strings.Builder
	b.Grow(3 * len(data))
	const hex = "0123456789ABCDEF"
	for _, c := range data {
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xF])
	}
	return b.String()
}

func (p RequestParams) httpQuery() string {
	var b strings.Builder
	b.WriteString("info_hash=")
	b.WriteString(percentEncodeAll(p.InfoHash[:]))
	b.WriteString("&peer_id=")
	b.WriteString(percentEncodeAll(p.PeerID[:]))
	b.WriteString("&port=")
	b.WriteString(strconv.FormatInt(p.Port, 10))
	b.WriteString("&uploaded=")
	b.WriteString(strconv.FormatInt(p.Uploaded, 10))
	b.WriteString("&downloaded=")
	b.WriteString(strconv.FormatInt(p.Downloaded, 10))
	b.WriteString("&left=")
	b.WriteString(strconv.FormatInt(p.Left, 10))
	if p.Compact != nil {
		b.WriteString("&compact=")
		b.WriteString(strconv.FormatInt(*p.Compact, 10))
	}
	if p.NoPeerId != nil {
		b.WriteString("&no_peer_id=")
		b.WriteString(strconv.FormatInt(*p.NoPeerId, 10))
	}
	if p.Event != nil && *p.Event != "" {
		b.WriteString("&event=")
		b.WriteString(string(*p.Event))
	}
	if p.IP != nil && *p.IP != "" {
		b.WriteString("&ip=")
		b.WriteString(*p.IP)
	}
	if p.NumWant != nil {
		b.WriteString("&numwant=")
		b.WriteString(strconv.FormatInt(*p.NumWant, 10))
	}
	if p.Key != nil && *p.Key != "" {
		b.WriteString("&key=")
		b.WriteString(*p.Key)
	}
	if p.TrackerID != nil && *p.TrackerID != "" {
		b.WriteString("&trackerid=")
		b.WriteString(*p.TrackerID)
	}
	return b.String()
}

// announceHTTP performs a GET announce against an http(s) tracker.
func announceHTTP(ctx context.Context, announce string, params *RequestParams) (*Response, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, announce+"?"+params.httpQuery(), nil)
	if err != nil {
		return nil, fmt.Errorf("tracker: build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tracker: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tracker %s returned status %d: %s", ErrTrackerFailure, announce, resp.StatusCode, body)
	}

	var out Response
	if err := decodeHTTPResponse(bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	if out.FailureReason != nil {
		return nil, fmt.Errorf("%w: %s", ErrTrackerFailure, *out.FailureReason)
	}

	return &out, nil
}

func decodeHTTPResponse(r io.Reader, out *Response) error {
	v, err := bencoding.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	root, ok := v.(*bencoding.Dictionary)
	if !ok {
		return fmt.Errorf("%w: response is not a dictionary, got %v", ErrMalformedResponse, v.Type())
	}
	dict := root.Dict

	if fr, ok := dict["failure reason"]; ok {
		bs, ok := fr.(*bencoding.ByteString)
		if !ok {
			return fmt.Errorf("%w: failure reason is not a byte string", ErrMalformedResponse)
		}
		out.FailureReason = (*string)(bs)
		return nil
	}

	if wm, ok := dict["warning message"]; ok {
		bs, ok := wm.(*bencoding.ByteString)
		if !ok {
			return fmt.Errorf("%w: warning message is not a byte string", ErrMalformedResponse)
		}
		out.WarningMessage = (*string)(bs)
	}
	if i, ok := dict["interval"]; ok {
		n, ok := i.(*bencoding.Integer)
		if !ok {
			return fmt.Errorf("%w: interval is not an integer", ErrMalformedResponse)
		}
		out.Interval = (*int64)(n)
	}
	if mi, ok := dict["min interval"]; ok {
		n, ok := mi.(*bencoding.Integer)
		if !ok {
			return fmt.Errorf("%w: min interval is not an integer", ErrMalformedResponse)
		}
		out.MinInterval = (*int64)(n)
	}
	if ti, ok := dict["tracker id"]; ok {
		bs, ok := ti.(*bencoding.ByteString)
		if !ok {
			return fmt.Errorf("%w: tracker id is not a byte string", ErrMalformedResponse)
		}
		out.TrackerID = (*string)(bs)
	}
	if c, ok := dict["complete"]; ok {
		n, ok := c.(*bencoding.Integer)
		if !ok {
			return fmt.Errorf("%w: complete is not an integer", ErrMalformedResponse)
		}
		out.Complete = (*int64)(n)
	}
	if inc, ok := dict["incomplete"]; ok {
		n, ok := inc.(*bencoding.Integer)
		if !ok {
			return fmt.Errorf("%w: incomplete is not an integer", ErrMalformedResponse)
		}
		out.Incomplete = (*int64)(n)
	}

	peers, ok := dict["peers"]
	if !ok {
		return nil
	}

	switch peers.Type() {
	case bencoding.ListType:
		wide := peers.(*bencoding.List)
		for _, pv := range *wide {
			pd, ok := pv.(*bencoding.Dictionary)
			if !ok {
				return fmt.Errorf("%w: peer entry is not a dictionary", ErrMalformedResponse)
			}
			var peer Peer
			if id, ok := pd.Dict["peer id"]; ok {
				bs, ok := id.(*bencoding.ByteString)
				if !ok {
					return fmt.Errorf("%w: peer id is not a byte string", ErrMalformedResponse)
				}
				peer.PeerID = string(*bs)
			}
			ipv, ok := pd.Dict["ip"]
			if !ok {
				return fmt.Errorf("%w: peer entry missing ip", ErrMalformedResponse)
			}
			ip, ok := ipv.(*bencoding.ByteString)
			if !ok {
				return fmt.Errorf("%w: peer ip is not a byte string", ErrMalformedResponse)
			}
			portv, ok := pd.Dict["port"]
			if !ok {
				return fmt.Errorf("%w: peer entry missing port", ErrMalformedResponse)
			}
			port, ok := portv.(*bencoding.Integer)
			if !ok {
				return fmt.Errorf("%w: peer port is not an integer", ErrMalformedResponse)
			}
			peer.IP = string(*ip)
			peer.Port = int64(*port)
			out.Peers = append(out.Peers, peer)
		}
	case bencoding.ByteStringType:
		compact, ok := peers.(*bencoding.CompactPeerList)
		if !ok {
			raw := []byte(*peers.(*bencoding.ByteString))
			if len(raw)%6 != 0 {
				return fmt.Errorf("%w: compact peers length %d not a multiple of 6", ErrMalformedResponse, len(raw))
			}
			for i := 0; i < len(raw); i += 6 {
				out.Peers = append(out.Peers, peerFromCompactTuple(raw[i:i+6]))
			}
			return nil
		}
		for _, tuple := range *compact {
			out.Peers = append(out.Peers, peerFromCompactTuple(tuple[:]))
		}
	default:
		return fmt.Errorf("%w: peers field is neither list nor byte string", ErrMalformedResponse)
	}

	return nil
}

func peerFromCompactTuple(tuple []byte) Peer {
	return Peer{
		IP:   net.IP(tuple[:4]).String(),
		Port: int64(uint16(tuple[4])<<8 | uint16(tuple[5])),
	}
}
