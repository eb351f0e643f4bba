package torrent

import "errors"

// ErrMissingField is returned when a required info-dictionary key is
// absent from a metainfo file.
var ErrMissingField = errors.New("torrent: missing required field")

// ErrBadShape is returned when a field is present but decoded to the
// wrong bencoding variant (e.g. "piece length" is not an integer).
var ErrBadShape = errors.New("torrent: field has unexpected shape")
