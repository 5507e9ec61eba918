package dz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/ordered"
)

// Header is the parsed DZ main header plus the full partition chunk table
// that follows it.
type Header struct {
	Magic           uint32
	Major           uint32
	Minor           uint32
	ModelName       string
	SwVersion       string
	BuildDate       *time.Time
	PartCount       uint32
	ChunkHdrsHash   []byte
	SecureImageType uint8
	Compression     Compression
	DataHash        []byte
	Swfv            string
	BuildType       string
	HeaderCRC       uint32
	AndroidVer      string
	MemorySize      string
	SignedSecurity  string
	IsUFS           bool
	AntiRollbackVer uint32
	SupportedMem    string
	TargetProduct   string
	MultiPanelMask  uint8
	ProductFuseID   uint8
	IsFactoryImage  bool
	OperatorCode    []string

	// Parts groups chunks by hw_partition then by partition name, both
	// in first-seen order. See internal/ordered for why this can't be a
	// plain Go map.
	Parts *ordered.Map[*ordered.Map[[]Chunk]]
}

// rawMainHeader mirrors DzMainHeader byte-for-byte, padding fields
// included. Verification and hashing both need to operate on the exact
// original bytes (with just the crc/hash fields patched), so the raw
// struct is kept around rather than discarded once decoded into Header.
type rawMainHeader struct {
	Magic           uint32
	Major           uint32
	Minor           uint32
	Reserved        uint32
	ModelName       [modelNameLen]byte
	SwVersion       [swVersionLen]byte
	BuildDate       [8]uint16
	PartCount       uint32
	ChunkHdrsHash   [chunkHdrsHashLen]byte
	SecureImageType uint8
	Compression     [compressionLen]byte
	DataHash        [dataHashLen]byte
	Swfv            [swfvLen]byte
	BuildType       [buildTypeLen]byte
	Unknown0        uint32
	HeaderCRC       uint32
	AndroidVer      [androidVerLen]byte
	MemorySize      [memorySizeLen]byte
	SignedSecurity  [signedSecurityLen]byte
	IsUFS           uint32
	AntiRollbackVer uint32
	SupportedMem    [supportedMemLen]byte
	TargetProduct   [targetProductLen]byte
	MultiPanelMask  uint8
	ProductFuseID   uint8
	Unknown1        uint32
	IsFactoryImage  uint8
	OperatorCode    [operatorCodeLen]byte
	Unknown2        uint32
	Padding         [mainPaddingLen]byte
}

func (h rawMainHeader) encode() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// ParseHeader reads the DZ main header at the current position of r and
// then its full chunk table. verify controls whether the (expensive)
// data_hash pass over every chunk's compressed bytes runs; it corresponds
// to the CLI's --no-verify flag. It has no effect on the always-on header
// CRC and structural checks.
func ParseHeader(r io.ReadSeeker, verify bool, logger *slog.Logger) (*Header, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rawBytes := make([]byte, binary.Size(rawMainHeader{}))
	if _, err := io.ReadFull(r, rawBytes); err != nil {
		return nil, fmt.Errorf("dz: read header: %w", err)
	}

	var raw rawMainHeader
	if err := binary.Read(bytes.NewReader(rawBytes), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("dz: decode header: %w", err)
	}

	if raw.HeaderCRC != 0 {
		forCRC := raw
		forCRC.HeaderCRC = 0
		forCRC.DataHash = [dataHashLen]byte{}
		calculated := crc32.ChecksumIEEE(forCRC.encode())
		if calculated != raw.HeaderCRC {
			return nil, fmt.Errorf("dz: header CRC mismatch: expected 0x%08x, got 0x%08x", raw.HeaderCRC, calculated)
		}
	}

	verifyDataHash := false
	if verify {
		for _, b := range raw.DataHash {
			if b != 0xff {
				verifyDataHash = true
				break
			}
		}
	}

	if err := validateRawHeader(raw); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:           raw.Magic,
		Major:           raw.Major,
		Minor:           raw.Minor,
		ModelName:       binutil.DecodeASCIIZ(raw.ModelName[:]),
		SwVersion:       binutil.DecodeASCIIZ(raw.SwVersion[:]),
		PartCount:       raw.PartCount,
		ChunkHdrsHash:   append([]byte(nil), raw.ChunkHdrsHash[:]...),
		SecureImageType: raw.SecureImageType,
		DataHash:        append([]byte(nil), raw.DataHash[:]...),
		Swfv:            binutil.DecodeASCIIZ(raw.Swfv[:]),
		BuildType:       binutil.DecodeASCIIZ(raw.BuildType[:]),
		HeaderCRC:       raw.HeaderCRC,
		AndroidVer:      binutil.DecodeASCIIZ(raw.AndroidVer[:]),
		MemorySize:      binutil.DecodeASCIIZ(raw.MemorySize[:]),
		SignedSecurity:  binutil.DecodeASCIIZ(raw.SignedSecurity[:]),
		IsUFS:           raw.IsUFS != 0,
		AntiRollbackVer: raw.AntiRollbackVer,
		SupportedMem:    binutil.DecodeASCIIZ(raw.SupportedMem[:]),
		TargetProduct:   binutil.DecodeASCIIZ(raw.TargetProduct[:]),
		MultiPanelMask:  raw.MultiPanelMask,
		ProductFuseID:   raw.ProductFuseID,
		IsFactoryImage:  raw.IsFactoryImage == 'F',
		OperatorCode:    strings.Split(binutil.DecodeASCIIZ(raw.OperatorCode[:]), "."),
	}

	comp, err := parseCompressionField(raw.Compression)
	if err != nil {
		return nil, err
	}
	h.Compression = comp

	buildDate, err := parseBuildDate(raw.BuildDate)
	if err != nil {
		return nil, err
	}
	h.BuildDate = buildDate

	parts, err := parseChunks(r, raw, h.PartCount, verifyDataHash, logger)
	if err != nil {
		return nil, err
	}
	h.Parts = parts

	logger.Info("parsed dz header",
		"version", fmt.Sprintf("%d.%d", h.Major, h.Minor),
		"model_name", h.ModelName,
		"part_count", h.PartCount,
		"compression", h.Compression,
	)

	return h, nil
}

func validateRawHeader(raw rawMainHeader) error {
	if raw.Magic != Magic {
		return fmt.Errorf("dz: invalid magic 0x%08x", raw.Magic)
	}
	if raw.Major > 2 || raw.Minor > 1 {
		return fmt.Errorf("dz: unexpected version %d.%d", raw.Major, raw.Minor)
	}
	if raw.Reserved != 0 {
		return fmt.Errorf("dz: unexpected value in reserved field: %d", raw.Reserved)
	}
	if raw.PartCount == 0 {
		return fmt.Errorf("dz: expected positive part count, got 0")
	}
	if raw.Unknown0 != 0 {
		return fmt.Errorf("dz: expected 0 in unknown field, got %d", raw.Unknown0)
	}
	if raw.Unknown1 != 0 && raw.Unknown1 != 0xffffffff {
		return fmt.Errorf("dz: unexpected value in unknown field: 0x%08x", raw.Unknown1)
	}
	if raw.Unknown2 != 0 && raw.Unknown2 != 1 {
		return fmt.Errorf("dz: expected 0 or 1 in unknown field, got %d", raw.Unknown2)
	}
	for _, b := range raw.Padding {
		if b != 0 {
			return fmt.Errorf("dz: non-zero bytes in header padding")
		}
	}
	return nil
}

func parseCompressionField(raw [compressionLen]byte) (Compression, error) {
	str := binutil.DecodeASCIIZ(raw[:])
	if str != "" && isAlpha(str[0]) {
		lower := Compression(strings.ToLower(str))
		if lower != CompressionZlib && lower != CompressionZstd {
			return "", fmt.Errorf("dz: unknown compression %q", str)
		}
		return lower, nil
	}

	for _, b := range raw[1:] {
		if b != 0 {
			return "", fmt.Errorf("dz: non-zero bytes after compression type byte")
		}
	}
	switch raw[0] {
	case compressionMarkerZlib:
		return CompressionZlib, nil
	case compressionMarkerZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("dz: unknown compression type %d", raw[0])
	}
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parseBuildDate decodes the [year, month, weekday, day, hour, min, sec,
// msec] build_date field. A field that is all zero means "no build date".
// Otherwise the recorded weekday is independently verified against
// Sakamoto's algorithm; a mismatch means the file is corrupt or was
// tampered with, since the two are otherwise redundant.
func parseBuildDate(raw [8]uint16) (*time.Time, error) {
	allZero := true
	for _, v := range raw {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, nil
	}

	year, month, day := int(raw[0]), int(raw[1]), int(raw[3])
	hour, min, sec := int(raw[4]), int(raw[5]), int(raw[6])

	expected := buildDateWeekday(year, month, day)
	if expected != int(raw[2]) {
		return nil, fmt.Errorf("dz: invalid build weekday: expected %d, got %d", expected, raw[2])
	}

	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	return &t, nil
}
