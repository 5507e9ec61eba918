package dz_test

import (
	"bytes"
	"testing"

	"github.com/ossyrian/kdzparse/internal/dz"
)

func TestCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 100)

	for _, codec := range []dz.Compression{dz.CompressionZlib, dz.CompressionZstd} {
		t.Run(string(codec), func(t *testing.T) {
			compressed, err := dz.Compress(codec, payload)
			if err != nil {
				t.Fatalf("Compress() error: %v", err)
			}
			decompressed, err := dz.Decompress(codec, compressed, uint32(len(payload)))
			if err != nil {
				t.Fatalf("Decompress() error: %v", err)
			}
			if !bytes.Equal(decompressed, payload) {
				t.Errorf("round trip mismatch for %s", codec)
			}
		})
	}
}

func TestDecompressUnknownCodec(t *testing.T) {
	if _, err := dz.Decompress(dz.Compression("lz4"), []byte{1, 2, 3}, 0); err == nil {
		t.Error("expected error for unknown compression codec")
	}
}
