package bencoding

// Encode renders v into its canonical bencoded form: integers without
// leading zeros (except 0 itself), dictionary keys sorted by raw-byte
// order, and byte strings emitted verbatim. It is the dual of Decode, but
// re-encoding a decoded value is not guaranteed to reproduce the original
// source bytes (see Dictionary.Spans for that).
func Encode(v Value) []byte {
	return []byte(v.Literal())
}
