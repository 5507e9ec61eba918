// Package sp implements the optional "Secure Partition" table embedded at
// a fixed offset inside some KDZ files: a signed list of partition extents
// used to verify flashed partitions against a signature the bootloader
// checks. Most KDZ files don't carry one; its absence is not an error.
package sp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/ordered"
)

const (
	// Offset is the fixed byte offset the Secure Partition table lives
	// at within a KDZ file, independent of the KDZ header version.
	Offset = 1320
	// Size is the fixed on-disk size of the whole table (header plus
	// however many partition records are declared).
	Size = 82448
	// Magic identifies a valid Secure Partition header.
	Magic = 0x53430799

	maxSignatureLen = 512
	recordNameLen   = 30
	hashLen         = 32
)

// Partition is a single signed partition extent.
type Partition struct {
	Name        string
	HwPart      uint8
	LogicalPart uint8
	StartSect   uint32
	EndSect     uint32
	DataSectCnt uint32
	Reserved    uint32
	Hash        []byte
}

// Table is the parsed Secure Partition block. Parts is grouped the same
// way the DZ partition table is: hw_part, in first-seen order, containing
// partition names, in first-seen order, each holding its (usually
// single-element) list of records.
type Table struct {
	Magic     uint32
	Flags     uint32
	PartCount uint32
	Signature []byte

	Parts *ordered.Map[*ordered.Map[[]Partition]]
}

type rawHeader struct {
	Magic     uint32
	Flags     uint32
	PartCount uint32
	SigSize   uint32
	Signature [maxSignatureLen]byte
}

type rawRecord struct {
	Name        [recordNameLen]byte
	HwPart      uint8
	LogicalPart uint8
	StartSect   uint32
	EndSect     uint32
	DataSectCnt uint32
	Reserved    uint32
	Hash        [hashLen]byte
}

// Parse reads the Secure Partition table from r. Like the reference
// implementation, ANY failure — I/O error, bad magic, a malformed record —
// is reported by returning ok=false rather than an error: a Secure
// Partition table is an optional feature, not a required structural
// element of a KDZ file, and callers should treat "couldn't parse one" the
// same as "there wasn't one".
func Parse(r io.ReadSeeker, logger *slog.Logger) (table *Table, ok bool) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Debug("secure partition parse panicked, treating as absent", "recover", rec)
			table, ok = nil, false
		}
	}()

	if _, err := r.Seek(Offset, io.SeekStart); err != nil {
		return nil, false
	}

	data := make([]byte, Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, false
	}

	var hdr rawHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, false
	}
	if hdr.Magic != Magic {
		return nil, false
	}
	if int(hdr.SigSize) > maxSignatureLen {
		return nil, false
	}

	t := &Table{
		Magic:     hdr.Magic,
		Flags:     hdr.Flags,
		PartCount: hdr.PartCount,
		Signature: append([]byte(nil), hdr.Signature[:hdr.SigSize]...),
		Parts:     ordered.New[*ordered.Map[[]Partition]](),
	}

	body := bytes.NewReader(data[binary.Size(hdr):])
	for i := uint32(0); i < hdr.PartCount; i++ {
		var raw rawRecord
		if err := binary.Read(body, binary.LittleEndian, &raw); err != nil {
			return nil, false
		}
		if raw.Reserved != 0 {
			logger.Debug("unexpected reserved field in secure partition record", "index", i)
			return nil, false
		}

		part := Partition{
			Name:        binutil.DecodeASCIIZ(raw.Name[:]),
			HwPart:      raw.HwPart,
			LogicalPart: raw.LogicalPart,
			StartSect:   raw.StartSect,
			EndSect:     raw.EndSect,
			DataSectCnt: raw.DataSectCnt,
			Reserved:    raw.Reserved,
			Hash:        append([]byte(nil), raw.Hash[:]...),
		}

		hwKey := fmt.Sprintf("%d", part.HwPart)
		names, ok := t.Parts.Get(hwKey)
		if !ok {
			names = ordered.New[[]Partition]()
			t.Parts.Set(hwKey, names)
		}
		existing, _ := names.Get(part.Name)
		names.Set(part.Name, append(existing, part))
	}

	logger.Info("parsed secure partition table",
		"flags", fmt.Sprintf("0x%08x", t.Flags),
		"part_count", t.PartCount,
	)

	return t, true
}

// Build serializes a Secure Partition table back to its fixed-size wire
// representation. flat is the partition list in the order it should be
// written; the caller (internal/metadata) is responsible for flattening
// the grouped Table back into this list, since the wire format itself has
// no notion of grouping — that's purely an in-memory convenience this
// package and the DZ format share.
func Build(magic, flags uint32, signature []byte, flat []Partition) ([]byte, error) {
	if len(signature) > maxSignatureLen {
		return nil, fmt.Errorf("sp: signature too long: %d bytes", len(signature))
	}

	var hdr rawHeader
	hdr.Magic = magic
	hdr.Flags = flags
	hdr.PartCount = uint32(len(flat))
	hdr.SigSize = uint32(len(signature))
	copy(hdr.Signature[:], signature)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("sp: write header: %w", err)
	}

	for _, p := range flat {
		var raw rawRecord
		copy(raw.Name[:], binutil.EncodeASCIIZ(p.Name, recordNameLen))
		raw.HwPart = p.HwPart
		raw.LogicalPart = p.LogicalPart
		raw.StartSect = p.StartSect
		raw.EndSect = p.EndSect
		raw.DataSectCnt = p.DataSectCnt
		raw.Reserved = p.Reserved
		copy(raw.Hash[:], p.Hash)

		if err := binary.Write(buf, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("sp: write record %q: %w", p.Name, err)
		}
	}

	if buf.Len() > Size {
		return nil, fmt.Errorf("sp: table too large: %d bytes", buf.Len())
	}
	out := make([]byte, Size)
	copy(out, buf.Bytes())
	return out, nil
}

// Flatten walks a grouped Table in hw_part, then partition-name, then
// record order and returns the equivalent flat partition list, matching
// the order the on-disk format expects.
func Flatten(parts *ordered.Map[*ordered.Map[[]Partition]]) []Partition {
	var flat []Partition
	parts.Range(func(_ string, names *ordered.Map[[]Partition]) {
		names.Range(func(_ string, records []Partition) {
			flat = append(flat, records...)
		})
	})
	return flat
}
