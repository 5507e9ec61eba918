package binutil

import "encoding/hex"

// BytesToHex renders b as a lowercase hex string. Backed by the standard
// library's encoding/hex: this is a direct fit for what that package does,
// not a hand-rolled substitute, so it gets a thin domain-vocabulary wrapper
// rather than its own implementation.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Unhexlify decodes a hex string into bytes. Returns an error for
// odd-length or non-hex input.
func Unhexlify(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
