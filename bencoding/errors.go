package bencoding

import "errors"

// ErrMalformed is returned for any input that does not conform to the
// bencoding grammar: an unexpected terminator, a non-digit in a numeric
// context, a negative or truncated string length, a cursor run past the
// end of the buffer, or (in strict mode) dictionary keys out of order.
var ErrMalformed = errors.New("bencoding: malformed input")
