package kdz

import (
	"encoding/binary"
	"io"

	"github.com/ossyrian/kdzparse/internal/binutil"
)

// Record describes one named component embedded in the KDZ file: the DZ
// archive, an optional DLL/DYLIB blob, or (rarely) the trailing unknown
// record. Records whose decoded name is empty are never returned.
type Record struct {
	Name   string
	Size   uint64
	Offset uint64
}

// AdditionalRecord is a V3 auxiliary record: it carries only a location,
// its name is implied by which field of Header it's stored in.
type AdditionalRecord struct {
	Offset uint64
	Size   uint32
}

// rawV1Record and rawV2Record mirror KDZ_V1RECORD_FMT/KDZ_V2RECORD_FMT: V1
// packs 32-bit sizes and offsets, V2 and V3 both use the 64-bit layout.
type rawV1Record struct {
	Name   [256]byte
	Size   uint32
	Offset uint32
}

type rawV2Record struct {
	Name   [256]byte
	Size   uint64
	Offset uint64
}

func readRawV1Record(r io.Reader) (rawV1Record, error) {
	var rec rawV1Record
	err := binary.Read(r, binary.LittleEndian, &rec)
	return rec, err
}

func readRawV2Record(r io.Reader) (rawV2Record, error) {
	var rec rawV2Record
	err := binary.Read(r, binary.LittleEndian, &rec)
	return rec, err
}

func (r rawV1Record) toRecord() Record {
	return Record{
		Name:   binutil.DecodeASCIIZ(r.Name[:]),
		Size:   uint64(r.Size),
		Offset: uint64(r.Offset),
	}
}

func (r rawV2Record) toRecord() Record {
	return Record{
		Name:   binutil.DecodeASCIIZ(r.Name[:]),
		Size:   r.Size,
		Offset: r.Offset,
	}
}

func encodeRawV1Record(name string, size, offset uint64) rawV1Record {
	var rec rawV1Record
	copy(rec.Name[:], binutil.EncodeASCIIZ(name, len(rec.Name)))
	rec.Size = uint32(size)
	rec.Offset = uint32(offset)
	return rec
}

func encodeRawV2Record(name string, size, offset uint64) rawV2Record {
	var rec rawV2Record
	copy(rec.Name[:], binutil.EncodeASCIIZ(name, len(rec.Name)))
	rec.Size = size
	rec.Offset = offset
	return rec
}

func writeRaw(w io.Writer, v any) error {
	return binary.Write(w, binary.LittleEndian, v)
}
