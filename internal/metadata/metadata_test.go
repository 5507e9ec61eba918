package metadata_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ossyrian/kdzparse/internal/dz"
	"github.com/ossyrian/kdzparse/internal/kdz"
	"github.com/ossyrian/kdzparse/internal/metadata"
	"github.com/ossyrian/kdzparse/internal/ordered"
	"github.com/ossyrian/kdzparse/internal/sp"
)

func sampleDzHeader() *dz.Header {
	buildDate := time.Date(2023, 5, 17, 10, 30, 0, 0, time.UTC)

	names := ordered.New[[]dz.Chunk]()
	names.Set("boot", []dz.Chunk{
		{
			Name: "boot_0000", DataSize: 4096, FileOffset: 512, FileSize: 100,
			Hash: []byte{0xde, 0xad}, CRC: 0x1234, StartSector: 0, SectorCount: 1,
			PartStartSector: 0, UniquePartID: 1, IsSparse: false, IsUbiImage: false,
		},
	})
	parts := ordered.New[*ordered.Map[[]dz.Chunk]]()
	parts.Set("0", names)

	return &dz.Header{
		Magic: dz.Magic, Major: 2, Minor: 1, ModelName: "testmodel", SwVersion: "1.0",
		BuildDate: &buildDate, PartCount: 1, ChunkHdrsHash: []byte{0x01, 0x02},
		Compression: dz.CompressionZlib, DataHash: []byte{0x03, 0x04},
		OperatorCode: []string{"XXX", "YYY"}, Parts: parts,
	}
}

func TestFromDzHeaderRoundTripsThroughJSON(t *testing.T) {
	section := metadata.FromDzHeader(sampleDzHeader())

	data, err := json.Marshal(section)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded metadata.DzSection
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if decoded.ModelName != "testmodel" || decoded.SwVersion != "1.0" {
		t.Errorf("decoded section = %+v", decoded)
	}
	if decoded.BuildDate == nil || *decoded.BuildDate != "2023-05-17T10:30:00" {
		t.Errorf("BuildDate = %v", decoded.BuildDate)
	}

	names, ok := decoded.Parts.Get("0")
	if !ok {
		t.Fatal("hw_partition 0 missing after round trip")
	}
	chunks, ok := names.Get("boot")
	if !ok || len(chunks) != 1 || chunks[0].Name != "boot_0000" {
		t.Errorf("boot chunks = %+v, ok=%v", chunks, ok)
	}

	meta, err := decoded.ToBuildMeta()
	if err != nil {
		t.Fatalf("ToBuildMeta() error: %v", err)
	}
	if meta.BuildDate == nil || !meta.BuildDate.Equal(time.Date(2023, 5, 17, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("ToBuildMeta().BuildDate = %v", meta.BuildDate)
	}

	tasks, err := decoded.ChunkTasks()
	if err != nil {
		t.Fatalf("ChunkTasks() error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].PartName != "boot" || tasks[0].HwPartition != 0 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestFromSecurePartitionNilTable(t *testing.T) {
	if section := metadata.FromSecurePartition(nil); section != nil {
		t.Errorf("FromSecurePartition(nil) = %+v, want nil", section)
	}
}

func TestSecurePartitionSectionNilToInputs(t *testing.T) {
	var s *metadata.SecurePartitionSection
	magic, flags, sig, flat, err := s.ToSecurePartitionInputs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if magic != 0 || flags != 0 || sig != nil || flat != nil {
		t.Errorf("nil section should yield zero values, got %d %d %v %v", magic, flags, sig, flat)
	}
}

func TestBuildDocumentMarshal(t *testing.T) {
	kdzHdr := &kdz.Header{Version: 2, Magic: kdz.V2Magic, Size: kdz.V2HeaderSize, Records: []kdz.Record{{Name: "system.dz", Size: 100, Offset: 1320}}}
	secTable := &sp.Table{Magic: sp.Magic, Flags: 1, PartCount: 1, Signature: []byte{0xAA}, Parts: ordered.New[*ordered.Map[[]sp.Partition]]()}
	names := ordered.New[[]sp.Partition]()
	names.Set("boot", []sp.Partition{{Name: "boot", HwPart: 0, Hash: []byte{0x01}}})
	secTable.Parts.Set("0", names)

	doc := metadata.Build(kdzHdr, secTable, sampleDzHeader())
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded metadata.Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.SecurePartition == nil || len(decoded.SecurePartition.Partitions) != 1 {
		t.Errorf("secure_partition section = %+v", decoded.SecurePartition)
	}
	if decoded.Kdz.Version != 2 {
		t.Errorf("kdz.Version = %d, want 2", decoded.Kdz.Version)
	}
}
