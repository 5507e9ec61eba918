// Package metadata defines the on-disk JSON description of an extracted
// KDZ image (metadata.json) and converts between it and the in-memory kdz/
// sp/dz domain structs used by the codecs themselves.
package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/dz"
	"github.com/ossyrian/kdzparse/internal/kdz"
	"github.com/ossyrian/kdzparse/internal/ordered"
	"github.com/ossyrian/kdzparse/internal/sp"
)

const timeLayout = "2006-01-02T15:04:05"

// Document is the full metadata.json shape: everything needed to rebuild
// a KDZ file, short of the partition image files themselves.
type Document struct {
	Kdz             KdzSection             `json:"kdz"`
	SecurePartition *SecurePartitionSection `json:"secure_partition,omitempty"`
	Dz              DzSection              `json:"dz"`
}

type KdzRecord struct {
	Name   string `json:"name"`
	Size   uint64 `json:"size"`
	Offset uint64 `json:"offset"`
}

type KdzSection struct {
	Version      int         `json:"version"`
	Magic        uint32      `json:"magic"`
	Size         uint32      `json:"size"`
	Tag          string      `json:"tag"`
	FtmModelName string      `json:"ftm_model_name"`
	Records      []KdzRecord `json:"records"`
}

type SecurePartitionRecord struct {
	Name        string `json:"name"`
	HwPart      uint8  `json:"hw_part"`
	LogicalPart uint8  `json:"logical_part"`
	StartSect   uint32 `json:"start_sect"`
	EndSect     uint32 `json:"end_sect"`
	DataSectCnt uint32 `json:"data_sect_cnt"`
	Reserved    uint32 `json:"reserved"`
	Hash        string `json:"hash"`
}

type SecurePartitionSection struct {
	Magic      uint32                  `json:"magic"`
	Flags      uint32                  `json:"flags"`
	PartCount  uint32                  `json:"part_count"`
	Signature  string                  `json:"signature"`
	Partitions []SecurePartitionRecord `json:"partitions"`
}

type ChunkRecord struct {
	Name            string `json:"name"`
	DataSize        uint32 `json:"data_size"`
	FileOffset      uint64 `json:"file_offset"`
	FileSize        uint32 `json:"file_size"`
	Hash            string `json:"hash"`
	CRC             uint32 `json:"crc"`
	StartSector     uint32 `json:"start_sector"`
	SectorCount     uint32 `json:"sector_count"`
	PartStartSector uint32 `json:"part_start_sector"`
	UniquePartID    uint32 `json:"unique_part_id"`
	IsSparse        bool   `json:"is_sparse"`
	IsUbiImage      bool   `json:"is_ubi_image"`
}

type DzSection struct {
	Magic           uint32                                          `json:"magic"`
	Major           uint32                                          `json:"major"`
	Minor           uint32                                          `json:"minor"`
	ModelName       string                                          `json:"model_name"`
	SwVersion       string                                          `json:"sw_version"`
	PartCount       uint32                                          `json:"part_count"`
	ChunkHdrsHash   string                                          `json:"chunk_hdrs_hash"`
	DataHash        string                                          `json:"data_hash"`
	HeaderCRC       uint32                                          `json:"header_crc"`
	SecureImageType uint8                                           `json:"secure_image_type"`
	BuildDate       *string                                         `json:"build_date"`
	Compression     string                                          `json:"compression"`
	Swfv            string                                          `json:"swfv"`
	BuildType       string                                          `json:"build_type"`
	AndroidVer      string                                          `json:"android_ver"`
	MemorySize      string                                          `json:"memory_size"`
	SignedSecurity  string                                          `json:"signed_security"`
	IsUFS           bool                                            `json:"is_ufs"`
	AntiRollbackVer uint32                                          `json:"anti_rollback_ver"`
	SupportedMem    string                                          `json:"supported_mem"`
	TargetProduct   string                                          `json:"target_product"`
	MultiPanelMask  uint8                                           `json:"multi_panel_mask"`
	ProductFuseID   uint8                                           `json:"product_fuse_id"`
	IsFactoryImage  bool                                            `json:"is_factory_image"`
	OperatorCode    []string                                        `json:"operator_code"`
	Parts           *ordered.Map[*ordered.Map[[]ChunkRecord]]       `json:"parts"`
}

// FromKdzHeader converts a parsed KDZ header into its metadata section.
func FromKdzHeader(h *kdz.Header) KdzSection {
	records := lo.Map(h.Records, func(r kdz.Record, _ int) KdzRecord {
		return KdzRecord{Name: r.Name, Size: r.Size, Offset: r.Offset}
	})
	return KdzSection{
		Version:      h.Version,
		Magic:        h.Magic,
		Size:         h.Size,
		Tag:          h.Tag,
		FtmModelName: h.FtmModelName,
		Records:      records,
	}
}

// FromSecurePartition converts a parsed Secure Partition table into its
// metadata section, flattening the grouped in-memory structure into the
// flat partition list the wire format itself uses. Returns nil if t is
// nil (no Secure Partition table present).
func FromSecurePartition(t *sp.Table) *SecurePartitionSection {
	if t == nil {
		return nil
	}
	flat := sp.Flatten(t.Parts)
	partitions := lo.Map(flat, func(p sp.Partition, _ int) SecurePartitionRecord {
		return SecurePartitionRecord{
			Name:        p.Name,
			HwPart:      p.HwPart,
			LogicalPart: p.LogicalPart,
			StartSect:   p.StartSect,
			EndSect:     p.EndSect,
			DataSectCnt: p.DataSectCnt,
			Reserved:    p.Reserved,
			Hash:        binutil.BytesToHex(p.Hash),
		}
	})
	return &SecurePartitionSection{
		Magic:      t.Magic,
		Flags:      t.Flags,
		PartCount:  t.PartCount,
		Signature:  binutil.BytesToHex(t.Signature),
		Partitions: partitions,
	}
}

// FromDzHeader converts a parsed DZ header, chunk table included, into its
// metadata section.
func FromDzHeader(h *dz.Header) DzSection {
	parts := ordered.New[*ordered.Map[[]ChunkRecord]]()
	h.Parts.Range(func(hwKey string, names *ordered.Map[[]dz.Chunk]) {
		nameMap := ordered.New[[]ChunkRecord]()
		names.Range(func(name string, chunks []dz.Chunk) {
			nameMap.Set(name, lo.Map(chunks, func(c dz.Chunk, _ int) ChunkRecord {
				return ChunkRecord{
					Name:            c.Name,
					DataSize:        c.DataSize,
					FileOffset:      c.FileOffset,
					FileSize:        c.FileSize,
					Hash:            binutil.BytesToHex(c.Hash),
					CRC:             c.CRC,
					StartSector:     c.StartSector,
					SectorCount:     c.SectorCount,
					PartStartSector: c.PartStartSector,
					UniquePartID:    c.UniquePartID,
					IsSparse:        c.IsSparse,
					IsUbiImage:      c.IsUbiImage,
				}
			}))
		})
		parts.Set(hwKey, nameMap)
	})

	var buildDate *string
	if h.BuildDate != nil {
		s := h.BuildDate.UTC().Format(timeLayout)
		buildDate = &s
	}

	return DzSection{
		Magic:           h.Magic,
		Major:           h.Major,
		Minor:           h.Minor,
		ModelName:       h.ModelName,
		SwVersion:       h.SwVersion,
		PartCount:       h.PartCount,
		ChunkHdrsHash:   binutil.BytesToHex(h.ChunkHdrsHash),
		DataHash:        binutil.BytesToHex(h.DataHash),
		HeaderCRC:       h.HeaderCRC,
		SecureImageType: h.SecureImageType,
		BuildDate:       buildDate,
		Compression:     string(h.Compression),
		Swfv:            h.Swfv,
		BuildType:       h.BuildType,
		AndroidVer:      h.AndroidVer,
		MemorySize:      h.MemorySize,
		SignedSecurity:  h.SignedSecurity,
		IsUFS:           h.IsUFS,
		AntiRollbackVer: h.AntiRollbackVer,
		SupportedMem:    h.SupportedMem,
		TargetProduct:   h.TargetProduct,
		MultiPanelMask:  h.MultiPanelMask,
		ProductFuseID:   h.ProductFuseID,
		IsFactoryImage:  h.IsFactoryImage,
		OperatorCode:    h.OperatorCode,
		Parts:           parts,
	}
}

// Build assembles a full Document from parsed sections.
func Build(kdzHdr *kdz.Header, secPart *sp.Table, dzHdr *dz.Header) *Document {
	return &Document{
		Kdz:             FromKdzHeader(kdzHdr),
		SecurePartition: FromSecurePartition(secPart),
		Dz:              FromDzHeader(dzHdr),
	}
}

// Marshal renders the document as indented JSON, matching the reference
// tool's 4-space metadata.json layout.
func (d *Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "    ")
}

// ToBuildMeta converts the DZ section back into the header fields
// dz.Assemble needs to rebuild an archive, parsing the ISO build_date
// string back into a time.Time.
func (s DzSection) ToBuildMeta() (dz.BuildMeta, error) {
	var buildDate *time.Time
	if s.BuildDate != nil {
		t, err := time.ParseInLocation(timeLayout, *s.BuildDate, time.UTC)
		if err != nil {
			return dz.BuildMeta{}, fmt.Errorf("metadata: invalid build_date %q: %w", *s.BuildDate, err)
		}
		buildDate = &t
	}

	return dz.BuildMeta{
		Magic:           s.Magic,
		Major:           s.Major,
		Minor:           s.Minor,
		ModelName:       s.ModelName,
		SwVersion:       s.SwVersion,
		BuildDate:       buildDate,
		PartCount:       s.PartCount,
		SecureImageType: s.SecureImageType,
		Compression:     dz.Compression(s.Compression),
		Swfv:            s.Swfv,
		BuildType:       s.BuildType,
		AndroidVer:      s.AndroidVer,
		MemorySize:      s.MemorySize,
		SignedSecurity:  s.SignedSecurity,
		IsUFS:           s.IsUFS,
		AntiRollbackVer: s.AntiRollbackVer,
		SupportedMem:    s.SupportedMem,
		TargetProduct:   s.TargetProduct,
		MultiPanelMask:  s.MultiPanelMask,
		ProductFuseID:   s.ProductFuseID,
		IsFactoryImage:  s.IsFactoryImage,
		OperatorCode:    s.OperatorCode,
	}, nil
}

// ChunkTasks flattens the metadata's grouped chunk table into the ordered
// task list dz.Assemble's callers compress against.
func (s DzSection) ChunkTasks() ([]dz.ChunkTask, error) {
	var tasks []dz.ChunkTask
	for _, hwKey := range s.Parts.Keys() {
		names, _ := s.Parts.Get(hwKey)
		var hwPart uint32
		if _, err := fmt.Sscanf(hwKey, "%d", &hwPart); err != nil {
			return nil, fmt.Errorf("metadata: invalid hw_partition key %q: %w", hwKey, err)
		}

		for _, name := range names.Keys() {
			chunks, _ := names.Get(name)
			for _, c := range chunks {
				hash, err := binutil.Unhexlify(c.Hash)
				if err != nil {
					return nil, fmt.Errorf("metadata: invalid hash for chunk %q: %w", c.Name, err)
				}
				tasks = append(tasks, dz.ChunkTask{
					HwPartition: hwPart,
					PartName:    name,
					Chunk: dz.Chunk{
						Name:            c.Name,
						DataSize:        c.DataSize,
						FileSize:        c.FileSize,
						Hash:            hash,
						CRC:             c.CRC,
						StartSector:     c.StartSector,
						SectorCount:     c.SectorCount,
						PartStartSector: c.PartStartSector,
						UniquePartID:    c.UniquePartID,
						IsSparse:        c.IsSparse,
						IsUbiImage:      c.IsUbiImage,
					},
				})
			}
		}
	}
	return tasks, nil
}

// ToSecurePartitionInputs converts the metadata section back into the
// inputs sp.Build needs. If there is no Secure Partition section (nothing
// to rebuild), it returns zero values and a nil error.
func (s *SecurePartitionSection) ToSecurePartitionInputs() (magic, flags uint32, signature []byte, flat []sp.Partition, err error) {
	if s == nil {
		return 0, 0, nil, nil, nil
	}
	sig, err := binutil.Unhexlify(s.Signature)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("metadata: invalid secure partition signature: %w", err)
	}
	parts := lo.Map(s.Partitions, func(p SecurePartitionRecord, _ int) sp.Partition {
		hash, _ := binutil.Unhexlify(p.Hash)
		return sp.Partition{
			Name:        p.Name,
			HwPart:      p.HwPart,
			LogicalPart: p.LogicalPart,
			StartSect:   p.StartSect,
			EndSect:     p.EndSect,
			DataSectCnt: p.DataSectCnt,
			Reserved:    p.Reserved,
			Hash:        hash,
		}
	})
	return s.Magic, s.Flags, sig, parts, nil
}
