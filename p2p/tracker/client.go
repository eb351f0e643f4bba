package tracker

import (
	"context"
	"fmt"
	"net/url"
)

// Announce contacts the tracker at announceURL (http, https, or udp)
// with params, dispatching to the HTTP or UDP protocol by scheme. On
// success, callers should copy the returned TrackerID into params for
// their next Announce call, per the tracker id echo contract.
func Announce(ctx context.Context, announceURL string, params *RequestParams) (*Response, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse announce url %q: %w", announceURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return announceHTTP(ctx, announceURL, params)
	case "udp":
		return announceUDP(ctx, u.Host, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
