// Package tracker implements the BitTorrent tracker announce protocol
// over both HTTP and UDP, behind a single scheme-dispatched client.
package tracker

import "errors"

// ErrInvalidParams is returned when RequestParams fails validation
// before a request is sent.
var ErrInvalidParams = errors.New("tracker: invalid request params")

// ErrTrackerFailure is returned when a tracker responds with a
// "failure reason" (HTTP) or an error action (UDP).
var ErrTrackerFailure = errors.New("tracker: announce failed")

// ErrMalformedResponse is returned when a tracker's response cannot be
// decoded into the expected shape.
var ErrMalformedResponse = errors.New("tracker: malformed response")

// ErrUnsupportedScheme is returned when an announce URL's scheme is
// neither http(s) nor udp.
var ErrUnsupportedScheme = errors.New("tracker: unsupported announce scheme")

// ErrTimeout is returned when a udp announce exhausts its 15*2^n retry
// schedule without a matching reply arriving.
var ErrTimeout = errors.New("tracker: udp announce timed out")
