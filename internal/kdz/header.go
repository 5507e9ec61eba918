package kdz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/kdzparse/internal/binutil"
)

// Header is the parsed KDZ envelope header: which version it is, the
// component records it points at, and (V3 only) the auxiliary SKU/suffix
// map records.
type Header struct {
	Version int
	Magic   uint32
	Size    uint32
	Records []Record

	// V3-only fields. Zero-valued for V1/V2 files.
	Tag                 string
	FtmModelName        string
	AdditionalRecordsSize uint64
	ExtendedMemID       AdditionalRecord
	SuffixMap           AdditionalRecord
	SkuMap              AdditionalRecord
	ExtendedSkuMap      AdditionalRecord
}

// ParseHeader reads and dispatches on the KDZ header at the start of r.
// All three header versions are the same 1320-byte size at most, so the
// full span is always read up front and the (size, magic) pair sniffed
// from the first 8 bytes decides how the rest is interpreted.
func ParseHeader(r io.ReadSeeker, logger *slog.Logger) (*Header, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("kdz: seek to header: %w", err)
	}

	data := make([]byte, V3HeaderSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("kdz: read header: %w", err)
	}

	readSize := binary.LittleEndian.Uint32(data[0:4])
	readMagic := binary.LittleEndian.Uint32(data[4:8])

	var (
		h   *Header
		err error
	)
	switch {
	case readSize == V3HeaderSize && readMagic == V3Magic:
		h, err = parseV3Header(data)
	case readSize == V2HeaderSize && readMagic == V2Magic:
		h, err = parseV2Header(data)
	case readSize == V1HeaderSize && readMagic == V1Magic:
		h, err = parseV1Header(data)
	default:
		return nil, fmt.Errorf("kdz: unknown header (size=%d, magic=0x%08x)", readSize, readMagic)
	}
	if err != nil {
		return nil, err
	}

	h.Magic = readMagic
	h.Size = readSize

	logger.Info("parsed kdz header",
		"version", h.Version,
		"magic", fmt.Sprintf("0x%08x", h.Magic),
		"size", h.Size,
		"records", len(h.Records),
	)

	return h, nil
}

func parseV1Header(data []byte) (*Header, error) {
	body := bytes.NewReader(data[8:])

	dzRec, err := readRawV1Record(body)
	if err != nil {
		return nil, fmt.Errorf("kdz: read v1 dz record: %w", err)
	}
	dllRec, err := readRawV1Record(body)
	if err != nil {
		return nil, fmt.Errorf("kdz: read v1 dll record: %w", err)
	}

	return &Header{
		Version: 1,
		Records: []Record{dzRec.toRecord(), dllRec.toRecord()},
	}, nil
}

func parseV2Header(data []byte) (*Header, error) {
	records, err := parseV2StyleRecords(data)
	if err != nil {
		return nil, err
	}
	return &Header{Version: 2, Records: records}, nil
}

// parseV2StyleRecords parses the (dz, dll, marker byte, dylib, unknown)
// record run shared by V2 and V3 headers.
func parseV2StyleRecords(data []byte) ([]Record, error) {
	body := bytes.NewReader(data[8:])

	dzRec, err := readRawV2Record(body)
	if err != nil {
		return nil, fmt.Errorf("kdz: read dz record: %w", err)
	}
	dllRec, err := readRawV2Record(body)
	if err != nil {
		return nil, fmt.Errorf("kdz: read dll record: %w", err)
	}

	marker := make([]byte, 1)
	if _, err := io.ReadFull(body, marker); err != nil {
		return nil, fmt.Errorf("kdz: read marker byte: %w", err)
	}
	if marker[0] != dylibMarkerZero && marker[0] != dylibMarkerThree {
		return nil, fmt.Errorf("kdz: unexpected byte after dll record: 0x%02x", marker[0])
	}

	dylibRec, err := readRawV2Record(body)
	if err != nil {
		return nil, fmt.Errorf("kdz: read dylib record: %w", err)
	}

	var unknownRaw rawV2Record
	if err := binary.Read(bytes.NewReader(data[unknownRecordOffset:]), binary.LittleEndian, &unknownRaw); err != nil {
		return nil, fmt.Errorf("kdz: read unknown record: %w", err)
	}

	var records []Record
	for _, raw := range []rawV2Record{dzRec, dllRec, dylibRec, unknownRaw} {
		rec := raw.toRecord()
		if rec.Name != "" {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseV3Header(data []byte) (*Header, error) {
	records, err := parseV2StyleRecords(data)
	if err != nil {
		return nil, err
	}

	h := &Header{Version: 3, Records: records}

	extMemIDSize := binary.LittleEndian.Uint32(data[1097:1101])
	h.Tag = binutil.DecodeASCIIZ(data[1101:1106])
	h.AdditionalRecordsSize = binary.LittleEndian.Uint64(data[1106:1114])
	h.SuffixMap.Offset = binary.LittleEndian.Uint64(data[1114:1122])
	h.SuffixMap.Size = binary.LittleEndian.Uint32(data[1122:1126])
	h.SkuMap.Offset = binary.LittleEndian.Uint64(data[1126:1134])
	h.SkuMap.Size = binary.LittleEndian.Uint32(data[1134:1138])
	h.FtmModelName = binutil.DecodeASCIIZ(data[1138:1170])
	h.ExtendedSkuMap.Offset = binary.LittleEndian.Uint64(data[1170:1178])
	h.ExtendedSkuMap.Size = binary.LittleEndian.Uint32(data[1178:1182])
	h.ExtendedMemID = AdditionalRecord{Offset: ExtendedMemIDOffset, Size: extMemIDSize}

	return h, nil
}
