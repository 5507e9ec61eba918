package binutil_test

import (
	"bytes"
	"testing"

	"github.com/ossyrian/kdzparse/internal/binutil"
)

func TestDecodeASCIIZ(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"null terminated", []byte("hello\x00\x00\x00"), "hello"},
		{"no terminator", []byte("hello"), "hello"},
		{"empty", []byte{0, 0, 0}, ""},
		{"empty slice", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := binutil.DecodeASCIIZ(tt.input); got != tt.want {
				t.Errorf("DecodeASCIIZ(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeASCIIZ(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		length int
		want   []byte
	}{
		{"pads with zeros", "hi", 5, []byte{'h', 'i', 0, 0, 0}},
		{"exact fit", "abcd", 4, []byte("abcd")},
		{"truncates", "abcdef", 4, []byte("abcd")},
		{"empty string", "", 3, []byte{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := binutil.EncodeASCIIZ(tt.input, tt.length)
			if len(got) != tt.length {
				t.Fatalf("EncodeASCIIZ length = %d, want %d", len(got), tt.length)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeASCIIZ(%q, %d) = %v, want %v", tt.input, tt.length, got, tt.want)
			}
		})
	}
}

func TestASCIIZRoundTrip(t *testing.T) {
	cases := []string{"", "a", "model-name", "exactly16bytes!!"}
	for _, s := range cases {
		encoded := binutil.EncodeASCIIZ(s, 32)
		if got := binutil.DecodeASCIIZ(encoded); got != s {
			t.Errorf("round trip %q: got %q", s, got)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	tests := [][]byte{
		{},
		{0x00},
		{0xde, 0xad, 0xbe, 0xef},
		bytes.Repeat([]byte{0xff}, 32),
	}

	for _, b := range tests {
		encoded := binutil.BytesToHex(b)
		decoded, err := binutil.Unhexlify(encoded)
		if err != nil {
			t.Fatalf("Unhexlify(%q) error: %v", encoded, err)
		}
		if !bytes.Equal(decoded, b) {
			t.Errorf("round trip %x: got %x", b, decoded)
		}
	}
}

func TestUnhexlifyInvalid(t *testing.T) {
	if _, err := binutil.Unhexlify("abc"); err == nil {
		t.Error("expected error for odd-length hex string")
	}
	if _, err := binutil.Unhexlify("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}

func TestSectorOffset(t *testing.T) {
	tests := []struct {
		sector uint32
		want   int64
	}{
		{0, 0},
		{1, 4096},
		{100, 409600},
	}

	for _, tt := range tests {
		if got := binutil.SectorOffset(tt.sector); got != tt.want {
			t.Errorf("SectorOffset(%d) = %d, want %d", tt.sector, got, tt.want)
		}
	}
}
