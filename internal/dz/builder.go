package dz

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/ossyrian/kdzparse/internal/binutil"
)

// BuildMeta carries every DZ main-header field a caller needs to specify
// to build a new archive. It mirrors Header, minus the fields (hashes,
// CRC, part table) that Assemble derives from the chunk data itself.
type BuildMeta struct {
	Magic           uint32
	Major           uint32
	Minor           uint32
	ModelName       string
	SwVersion       string
	BuildDate       *time.Time
	PartCount       uint32
	SecureImageType uint8
	Compression     Compression
	Swfv            string
	BuildType       string
	AndroidVer      string
	MemorySize      string
	SignedSecurity  string
	IsUFS           bool
	AntiRollbackVer uint32
	SupportedMem    string
	TargetProduct   string
	MultiPanelMask  uint8
	ProductFuseID   uint8
	Unknown1        uint32
	IsFactoryImage  bool
	OperatorCode    []string
	Unknown2        uint32
}

// ChunkTask identifies one chunk to be built: which hw_partition/partition
// it belongs to and the metadata fields that go straight into its chunk
// header. It carries no image bytes — those are supplied separately so
// compression can happen off of the pipeline's own I/O.
type ChunkTask struct {
	HwPartition uint32
	PartName    string
	Chunk       Chunk
}

// BuildChunkHeader packs the on-disk chunk header for one already
// compressed chunk. isV0 selects the shorter V0 header layout (minor
// version 0 archives never carry sector/hw_partition/CRC fields).
func BuildChunkHeader(isV0 bool, task ChunkTask, compressedData []byte) ([]byte, error) {
	digest := md5.Sum(compressedData)

	if isV0 {
		var raw rawChunkHeaderV0
		raw.Magic = PartMagic
		copy(raw.PartName[:], binutil.EncodeASCIIZ(task.PartName, chunkPartNameLen))
		copy(raw.ChunkName[:], binutil.EncodeASCIIZ(task.Chunk.Name, chunkNameLen))
		raw.DecompressedSize = task.Chunk.DataSize
		raw.CompressedSize = uint32(len(compressedData))
		copy(raw.Hash[:], digest[:])

		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("dz: encode v0 chunk header: %w", err)
		}
		return buf.Bytes(), nil
	}

	var raw rawChunkHeaderV1
	raw.Magic = PartMagic
	copy(raw.PartName[:], binutil.EncodeASCIIZ(task.PartName, chunkPartNameLen))
	copy(raw.ChunkName[:], binutil.EncodeASCIIZ(task.Chunk.Name, chunkNameLen))
	raw.DecompressedSize = task.Chunk.DataSize
	raw.CompressedSize = uint32(len(compressedData))
	copy(raw.Hash[:], digest[:])
	raw.StartSector = task.Chunk.StartSector
	raw.SectorCount = task.Chunk.SectorCount
	raw.HwPartition = task.HwPartition
	raw.CRC = crc32.ChecksumIEEE(compressedData)
	raw.UniquePartID = task.Chunk.UniquePartID
	if task.Chunk.IsSparse {
		raw.IsSparse = 1
	}
	if task.Chunk.IsUbiImage {
		raw.IsUbiImage = 1
	}
	raw.PartStartSector = task.Chunk.PartStartSector

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("dz: encode v1 chunk header: %w", err)
	}
	return buf.Bytes(), nil
}

func buildDateFields(t *time.Time) [8]uint16 {
	if t == nil {
		return [8]uint16{}
	}
	u := t.UTC()
	weekday := buildDateWeekday(u.Year(), int(u.Month()), u.Day())
	return [8]uint16{
		uint16(u.Year()), uint16(u.Month()), uint16(weekday), uint16(u.Day()),
		uint16(u.Hour()), uint16(u.Minute()), uint16(u.Second()), 0,
	}
}

func encodeCompressionField(c Compression) [compressionLen]byte {
	var out [compressionLen]byte
	switch c {
	case CompressionZlib:
		out[0] = compressionMarkerZlib
	case CompressionZstd:
		out[0] = compressionMarkerZstd
	}
	return out
}

// Assemble builds the complete DZ archive byte stream from a finished main
// header and every chunk's already-built header and compressed data, in
// final on-disk order. It computes chunk_hdrs_hash, header_crc and
// data_hash itself: those three fields exist purely to let a decoder
// detect corruption of exactly what Assemble is producing, so recomputing
// them here (rather than accepting them as input) is the only way to keep
// them correct.
func Assemble(meta BuildMeta, chunkHeaders [][]byte, chunkData [][]byte) ([]byte, error) {
	if len(chunkHeaders) != len(chunkData) {
		return nil, fmt.Errorf("dz: chunk header/data count mismatch: %d vs %d", len(chunkHeaders), len(chunkData))
	}

	chunkHdrsHasher := md5.New()
	for _, h := range chunkHeaders {
		chunkHdrsHasher.Write(h)
	}

	var proto rawMainHeader
	proto.Magic = meta.Magic
	proto.Major = meta.Major
	proto.Minor = meta.Minor
	copy(proto.ModelName[:], binutil.EncodeASCIIZ(meta.ModelName, modelNameLen))
	copy(proto.SwVersion[:], binutil.EncodeASCIIZ(meta.SwVersion, swVersionLen))
	proto.BuildDate = buildDateFields(meta.BuildDate)
	proto.PartCount = meta.PartCount
	copy(proto.ChunkHdrsHash[:], chunkHdrsHasher.Sum(nil))
	proto.SecureImageType = meta.SecureImageType
	proto.Compression = encodeCompressionField(meta.Compression)
	copy(proto.Swfv[:], binutil.EncodeASCIIZ(meta.Swfv, swfvLen))
	copy(proto.BuildType[:], binutil.EncodeASCIIZ(meta.BuildType, buildTypeLen))
	copy(proto.AndroidVer[:], binutil.EncodeASCIIZ(meta.AndroidVer, androidVerLen))
	copy(proto.MemorySize[:], binutil.EncodeASCIIZ(meta.MemorySize, memorySizeLen))
	copy(proto.SignedSecurity[:], binutil.EncodeASCIIZ(meta.SignedSecurity, signedSecurityLen))
	if meta.IsUFS {
		proto.IsUFS = 1
	}
	proto.AntiRollbackVer = meta.AntiRollbackVer
	copy(proto.SupportedMem[:], binutil.EncodeASCIIZ(meta.SupportedMem, supportedMemLen))
	copy(proto.TargetProduct[:], binutil.EncodeASCIIZ(meta.TargetProduct, targetProductLen))
	proto.MultiPanelMask = meta.MultiPanelMask
	proto.ProductFuseID = meta.ProductFuseID
	proto.Unknown1 = meta.Unknown1
	if meta.IsFactoryImage {
		proto.IsFactoryImage = 'F'
	}
	copy(proto.OperatorCode[:], binutil.EncodeASCIIZ(strings.Join(meta.OperatorCode, "."), operatorCodeLen))
	proto.Unknown2 = meta.Unknown2

	forCRC := proto
	forCRC.HeaderCRC = 0
	forCRC.DataHash = [dataHashLen]byte{}
	headerCRC := crc32.ChecksumIEEE(forCRC.encode())

	forDataHash := proto
	forDataHash.HeaderCRC = headerCRC
	for i := range forDataHash.DataHash {
		forDataHash.DataHash[i] = 0xff
	}

	dataHasher := md5.New()
	dataHasher.Write(forDataHash.encode())
	for i := range chunkHeaders {
		dataHasher.Write(chunkHeaders[i])
		dataHasher.Write(chunkData[i])
	}

	final := proto
	final.HeaderCRC = headerCRC
	copy(final.DataHash[:], dataHasher.Sum(nil))

	out := new(bytes.Buffer)
	out.Write(final.encode())
	for i := range chunkHeaders {
		out.Write(chunkHeaders[i])
		out.Write(chunkData[i])
	}
	return out.Bytes(), nil
}
