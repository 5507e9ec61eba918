package dz

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/ordered"
)

// Chunk is one compressed slice of a partition image. A partition is
// reassembled by concatenating its chunks (with sparse zero-fill between
// and after them, driven by StartSector/SectorCount) in the order they
// appear in Header.Parts.
type Chunk struct {
	Name            string
	DataSize        uint32
	FileOffset      uint64
	FileSize        uint32
	Hash            []byte
	CRC             uint32
	StartSector     uint32
	SectorCount     uint32
	PartStartSector uint32
	UniquePartID    uint32
	IsSparse        bool
	IsUbiImage      bool
}

type rawChunkHeaderV0 struct {
	Magic            uint32
	PartName         [chunkPartNameLen]byte
	ChunkName        [chunkNameLen]byte
	DecompressedSize uint32
	CompressedSize   uint32
	Hash             [chunkHashLen]byte
}

type rawChunkHeaderV1 struct {
	Magic            uint32
	PartName         [chunkPartNameLen]byte
	ChunkName        [chunkNameLen]byte
	DecompressedSize uint32
	CompressedSize   uint32
	Hash             [chunkHashLen]byte
	StartSector      uint32
	SectorCount      uint32
	HwPartition      uint32
	CRC              uint32
	UniquePartID     uint32
	IsSparse         uint32
	IsUbiImage       uint32
	PartStartSector  uint32
	Padding          [chunkV1PaddingLen]byte
}

// parseChunks reads header.PartCount chunk records following the main
// header, groups them by hw_partition then partition name, and verifies
// the chunk_hdrs_hash (always) and data_hash (only if verifyDataHash).
func parseChunks(r io.ReadSeeker, mainRaw rawMainHeader, partCount uint32, verifyDataHash bool, logger *slog.Logger) (*ordered.Map[*ordered.Map[[]Chunk]], error) {
	chunkHdrsHash := md5.New()
	dataHash := md5.New()

	if verifyDataHash {
		forHash := mainRaw
		forHash.DataHash = [dataHashLen]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
		dataHash.Write(forHash.encode())
	}

	isV0 := mainRaw.Minor == 0
	parts := ordered.New[*ordered.Map[[]Chunk]]()

	var partStartSector, partSectorCount uint32

	for i := uint32(0); i < partCount; i++ {
		var (
			chunk        Chunk
			partName     string
			hwPartition  uint32
			chunkHdrData []byte
		)

		if isV0 {
			data := make([]byte, binary.Size(rawChunkHeaderV0{}))
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("dz: read chunk %d header: %w", i, err)
			}
			var raw rawChunkHeaderV0
			if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
				return nil, fmt.Errorf("dz: decode chunk %d header: %w", i, err)
			}
			if raw.Magic != PartMagic {
				return nil, fmt.Errorf("dz: invalid part magic in chunk %d", i)
			}

			partName = binutil.DecodeASCIIZ(raw.PartName[:])
			chunk.Name = binutil.DecodeASCIIZ(raw.ChunkName[:])
			chunk.DataSize = raw.DecompressedSize
			chunk.FileSize = raw.CompressedSize
			chunk.Hash = append([]byte(nil), raw.Hash[:]...)
			hwPartition = 0
			chunkHdrData = data
		} else {
			data := make([]byte, binary.Size(rawChunkHeaderV1{}))
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("dz: read chunk %d header: %w", i, err)
			}
			var raw rawChunkHeaderV1
			if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
				return nil, fmt.Errorf("dz: decode chunk %d header: %w", i, err)
			}
			if raw.Magic != PartMagic {
				return nil, fmt.Errorf("dz: invalid part magic in chunk %d", i)
			}

			partName = binutil.DecodeASCIIZ(raw.PartName[:])
			chunk.Name = binutil.DecodeASCIIZ(raw.ChunkName[:])
			chunk.DataSize = raw.DecompressedSize
			chunk.FileSize = raw.CompressedSize
			chunk.Hash = append([]byte(nil), raw.Hash[:]...)
			chunk.StartSector = raw.StartSector
			chunk.SectorCount = raw.SectorCount
			hwPartition = raw.HwPartition
			chunk.CRC = raw.CRC
			chunk.UniquePartID = raw.UniquePartID
			chunk.IsSparse = raw.IsSparse != 0
			chunk.IsUbiImage = raw.IsUbiImage != 0
			chunkHdrData = data

			hwKey := fmt.Sprintf("%d", hwPartition)
			names, isExistingHwPart := parts.Get(hwKey)
			isNewHwPart := !isExistingHwPart
			isNewPartName := true
			if !isNewHwPart {
				_, isNewPartName = names.Get(partName)
				isNewPartName = !isNewPartName
			}

			switch {
			case isNewHwPart:
				partStartSector = 0
				partSectorCount = 0
				if raw.PartStartSector > partStartSector && raw.PartStartSector <= chunk.StartSector {
					partStartSector = raw.PartStartSector
				}
			case isNewPartName:
				if raw.PartStartSector == 0 {
					partStartSector = chunk.StartSector
				} else {
					partStartSector += partSectorCount
					if raw.PartStartSector > partStartSector && raw.PartStartSector <= chunk.StartSector {
						partStartSector = raw.PartStartSector
					}
				}
				partSectorCount = 0
			}

			if raw.PartStartSector != 0 && raw.PartStartSector != partStartSector {
				return nil, fmt.Errorf("dz: mismatch in part start sector for chunk %d", i)
			}

			chunk.PartStartSector = partStartSector
			partSectorCount = (chunk.StartSector - partStartSector) + chunk.SectorCount
		}

		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("dz: tell: %w", err)
		}
		chunk.FileOffset = uint64(pos)

		names, ok := parts.Get(fmt.Sprintf("%d", hwPartition))
		if !ok {
			names = ordered.New[[]Chunk]()
			parts.Set(fmt.Sprintf("%d", hwPartition), names)
		}
		existing, _ := names.Get(partName)
		names.Set(partName, append(existing, chunk))

		chunkHdrsHash.Write(chunkHdrData)

		if verifyDataHash {
			dataHash.Write(chunkHdrData)
			if _, err := io.CopyN(dataHash, r, int64(chunk.FileSize)); err != nil {
				return nil, fmt.Errorf("dz: reading chunk %d data for hash: %w", i, err)
			}
		} else {
			if _, err := r.Seek(int64(chunk.FileSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("dz: seek past chunk %d data: %w", i, err)
			}
		}
	}

	if got := binutil.BytesToHex(chunkHdrsHash.Sum(nil)); got != binutil.BytesToHex(mainRaw.ChunkHdrsHash[:]) {
		return nil, fmt.Errorf("dz: chunk headers hash mismatch: expected %s, got %s", binutil.BytesToHex(mainRaw.ChunkHdrsHash[:]), got)
	}

	if verifyDataHash {
		if got := binutil.BytesToHex(dataHash.Sum(nil)); got != binutil.BytesToHex(mainRaw.DataHash[:]) {
			return nil, fmt.Errorf("dz: data hash mismatch: expected %s, got %s", binutil.BytesToHex(mainRaw.DataHash[:]), got)
		}
	}

	logger.Debug("parsed dz chunk table", "hw_partitions", parts.Len())
	return parts, nil
}
