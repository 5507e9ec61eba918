package dz

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies the chunk data codec a DZ archive uses. Every
// chunk in an archive shares the same codec; it's a header-level field,
// not per-chunk.
type Compression string

const (
	CompressionZlib Compression = "zlib"
	CompressionZstd Compression = "zstd"

	compressionMarkerZlib = 1
	compressionMarkerZstd = 4
)

// Decompress inflates a single compressed chunk. sizeHint, when non-zero,
// preallocates the output buffer to the chunk's known decompressed size.
//
// The reference decoder streams each chunk through its own zlib/zstd
// state so a worker only ever holds one chunk's compressed and
// decompressed bytes at once; the pipeline package achieves the same
// bound by running one decompress per pooled task rather than materializing
// the whole partition image in memory before writing it out.
func Decompress(c Compression, compressed []byte, sizeHint uint32) ([]byte, error) {
	switch c {
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("dz: zlib init: %w", err)
		}
		defer zr.Close()

		out := bytes.NewBuffer(make([]byte, 0, sizeHint))
		if _, err := io.Copy(out, zr); err != nil {
			return nil, fmt.Errorf("dz: zlib inflate: %w", err)
		}
		return out.Bytes(), nil

	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("dz: zstd init: %w", err)
		}
		defer zr.Close()

		out := bytes.NewBuffer(make([]byte, 0, sizeHint))
		if _, err := io.Copy(out, zr); err != nil {
			return nil, fmt.Errorf("dz: zstd decompress: %w", err)
		}
		return out.Bytes(), nil

	default:
		return nil, fmt.Errorf("dz: unknown compression %q", c)
	}
}

// Compress deflates a single chunk using the given codec at its default
// compression level, matching what the reference builder produces.
func Compress(c Compression, decompressed []byte) ([]byte, error) {
	switch c {
	case CompressionZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(decompressed); err != nil {
			return nil, fmt.Errorf("dz: zlib deflate: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("dz: zlib close: %w", err)
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("dz: zstd init: %w", err)
		}
		if _, err := zw.Write(decompressed); err != nil {
			return nil, fmt.Errorf("dz: zstd compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("dz: zstd close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("dz: unknown compression %q", c)
	}
}
