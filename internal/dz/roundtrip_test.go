package dz_test

import (
	"bytes"
	"testing"

	"github.com/ossyrian/kdzparse/internal/dz"
)

func TestAssembleParseRoundTrip(t *testing.T) {
	chunkData := [][]byte{
		bytes.Repeat([]byte{0xAA}, 4096),
		bytes.Repeat([]byte{0xBB}, 8192),
	}

	tasks := []dz.ChunkTask{
		{
			HwPartition: 0,
			PartName:    "boot",
			Chunk: dz.Chunk{
				Name:            "boot_0000",
				DataSize:        uint32(len(chunkData[0])),
				StartSector:     0,
				SectorCount:     1,
				PartStartSector: 0,
				UniquePartID:    1,
			},
		},
		{
			HwPartition: 0,
			PartName:    "boot",
			Chunk: dz.Chunk{
				Name:            "boot_0001",
				DataSize:        uint32(len(chunkData[1])),
				StartSector:     1,
				SectorCount:     2,
				PartStartSector: 0,
				UniquePartID:    1,
			},
		},
	}

	var headers, compressed [][]byte
	for i, task := range tasks {
		c, err := dz.Compress(dz.CompressionZlib, chunkData[i])
		if err != nil {
			t.Fatalf("Compress() error: %v", err)
		}
		h, err := dz.BuildChunkHeader(false, task, c)
		if err != nil {
			t.Fatalf("BuildChunkHeader() error: %v", err)
		}
		headers = append(headers, h)
		compressed = append(compressed, c)
	}

	meta := dz.BuildMeta{
		Magic:       dz.Magic,
		Major:       2,
		Minor:       1,
		ModelName:   "testmodel",
		SwVersion:   "1.0.0",
		PartCount:   uint32(len(tasks)),
		Compression: dz.CompressionZlib,
	}

	archive, err := dz.Assemble(meta, headers, compressed)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}

	hdr, err := dz.ParseHeader(bytes.NewReader(archive), true, nil)
	if err != nil {
		t.Fatalf("ParseHeader() error: %v", err)
	}

	if hdr.ModelName != "testmodel" || hdr.SwVersion != "1.0.0" {
		t.Errorf("unexpected header fields: %+v", hdr)
	}
	if hdr.PartCount != 2 {
		t.Errorf("PartCount = %d, want 2", hdr.PartCount)
	}

	names, ok := hdr.Parts.Get("0")
	if !ok {
		t.Fatal("hw_partition 0 missing from parsed table")
	}
	chunks, ok := names.Get("boot")
	if !ok || len(chunks) != 2 {
		t.Fatalf("partition boot: got %d chunks, ok=%v, want 2 chunks", len(chunks), ok)
	}
	if chunks[0].Name != "boot_0000" || chunks[1].Name != "boot_0001" {
		t.Errorf("unexpected chunk names: %q, %q", chunks[0].Name, chunks[1].Name)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	if _, err := dz.ParseHeader(bytes.NewReader(make([]byte, 1024)), false, nil); err == nil {
		t.Error("expected error for zeroed header with invalid magic")
	}
}
