// Package binutil holds the small binary-layout primitives shared by the
// kdz, dz and sp codecs: fixed-length null-terminated string fields, hex
// digest formatting and sector-to-byte arithmetic. None of it is specific
// to any one container format.
package binutil

// DecodeASCIIZ returns the string held in a fixed-length null-terminated
// byte field, stopping at the first NUL (or at len(b) if there is none).
func DecodeASCIIZ(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// EncodeASCIIZ writes s into a zero-padded field of exactly length bytes,
// truncating s if it doesn't fit. The result is always length bytes long.
func EncodeASCIIZ(s string, length int) []byte {
	buf := make([]byte, length)
	copy(buf, s)
	return buf
}
