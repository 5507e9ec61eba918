package sp_test

import (
	"bytes"
	"testing"

	"github.com/ossyrian/kdzparse/internal/sp"
)

func TestBuildParseRoundTrip(t *testing.T) {
	flat := []sp.Partition{
		{Name: "boot", HwPart: 0, LogicalPart: 0, StartSect: 0, EndSect: 100, DataSectCnt: 100, Hash: bytes.Repeat([]byte{0x01}, 32)},
		{Name: "system", HwPart: 0, LogicalPart: 1, StartSect: 100, EndSect: 5000, DataSectCnt: 4900, Hash: bytes.Repeat([]byte{0x02}, 32)},
		{Name: "boot", HwPart: 1, LogicalPart: 0, StartSect: 0, EndSect: 100, DataSectCnt: 100, Hash: bytes.Repeat([]byte{0x03}, 32)},
	}
	sig := bytes.Repeat([]byte{0xAB}, 256)

	data, err := sp.Build(sp.Magic, 1, sig, flat)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(data) != sp.Size {
		t.Fatalf("Build() produced %d bytes, want %d", len(data), sp.Size)
	}

	full := make([]byte, sp.Offset+sp.Size)
	copy(full[sp.Offset:], data)

	table, ok := sp.Parse(bytes.NewReader(full), nil)
	if !ok {
		t.Fatal("Parse() reported no secure partition table")
	}

	if table.Flags != 1 || table.PartCount != 3 {
		t.Errorf("table = %+v", table)
	}
	if !bytes.Equal(table.Signature, sig) {
		t.Error("signature did not round trip")
	}

	got := sp.Flatten(table.Parts)
	if len(got) != 3 {
		t.Fatalf("Flatten() returned %d partitions, want 3", len(got))
	}
	for i, p := range flat {
		if got[i].Name != p.Name || got[i].HwPart != p.HwPart || got[i].StartSect != p.StartSect {
			t.Errorf("partition %d = %+v, want %+v", i, got[i], p)
		}
	}
}

func TestParseAbsentTableReturnsFalse(t *testing.T) {
	full := make([]byte, sp.Offset+sp.Size)
	if _, ok := sp.Parse(bytes.NewReader(full), nil); ok {
		t.Error("Parse() should report absence for zeroed data")
	}
}

func TestParseShortReaderReturnsFalse(t *testing.T) {
	if _, ok := sp.Parse(bytes.NewReader(make([]byte, 10)), nil); ok {
		t.Error("Parse() should report absence when the reader is too short")
	}
}
