package kdz_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ossyrian/kdzparse/internal/kdz"
)

// seekBuffer is a minimal in-memory io.WriteSeeker backed by a growable
// byte slice, standing in for a real file in round-trip tests.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		b.pos = offset
	case 1:
		b.pos += offset
	case 2:
		b.pos = int64(len(b.data)) + offset
	}
	return b.pos, nil
}

func TestBuildParseRoundTripV1(t *testing.T) {
	dzData := bytes.Repeat([]byte{0x11}, 100)
	dllData := bytes.Repeat([]byte{0x22}, 50)

	hdr := &kdz.Header{
		Version: 1,
		Records: []kdz.Record{
			{Name: "system.dz", Size: uint64(len(dzData)), Offset: kdz.V1HeaderSize},
			{Name: "modem.dll", Size: uint64(len(dllData)), Offset: kdz.V1HeaderSize + uint64(len(dzData))},
		},
	}

	components := func(name string) ([]byte, bool, error) {
		if name == "modem.dll" {
			return dllData, true, nil
		}
		return nil, false, fmt.Errorf("unexpected component %q", name)
	}

	buf := &seekBuffer{}
	if err := kdz.Build(buf, hdr, dzData, nil, components, nil); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	parsed, err := kdz.ParseHeader(bytes.NewReader(buf.data), nil)
	if err != nil {
		t.Fatalf("ParseHeader() error: %v", err)
	}

	if parsed.Version != 1 {
		t.Errorf("Version = %d, want 1", parsed.Version)
	}
	if len(parsed.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(parsed.Records))
	}
	if parsed.Records[0].Name != "system.dz" || parsed.Records[0].Size != uint64(len(dzData)) {
		t.Errorf("dz record = %+v", parsed.Records[0])
	}
	if parsed.Records[1].Name != "modem.dll" || parsed.Records[1].Size != uint64(len(dllData)) {
		t.Errorf("dll record = %+v", parsed.Records[1])
	}

	gotDz := buf.data[parsed.Records[0].Offset : parsed.Records[0].Offset+parsed.Records[0].Size]
	if !bytes.Equal(gotDz, dzData) {
		t.Error("dz component bytes did not round trip")
	}
	gotDll := buf.data[parsed.Records[1].Offset : parsed.Records[1].Offset+parsed.Records[1].Size]
	if !bytes.Equal(gotDll, dllData) {
		t.Error("dll component bytes did not round trip")
	}
}

func TestParseHeaderUnknownMagic(t *testing.T) {
	data := make([]byte, kdz.V3HeaderSize)
	if _, err := kdz.ParseHeader(bytes.NewReader(data), nil); err == nil {
		t.Error("expected error for all-zero header")
	}
}
