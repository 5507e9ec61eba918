package kdz

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ossyrian/kdzparse/internal/binutil"
	"github.com/ossyrian/kdzparse/internal/sp"
)

// Location records where a component ended up once written, so the final
// header can point at it.
type Location struct {
	Offset uint64
	Size   uint64
}

// ComponentSource supplies the raw bytes for a named KDZ component (the
// DZ record is handled separately via the dzData argument to Build). ok is
// false if the component is legitimately absent (some records, like
// dylib, are optional and may have zero size).
type ComponentSource func(name string) (data []byte, ok bool, err error)

// Build assembles a complete KDZ file into w: a placeholder header, the
// optional Secure Partition block, every component in original-offset
// order (preserving whatever inter-record padding the source header
// recorded), the V3 auxiliary records if this is a V3 header, and finally
// the real header overwritten at offset 0.
func Build(w io.WriteSeeker, hdr *Header, dzData []byte, securePartitionData []byte, components ComponentSource, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	placeholder := make([]byte, hdr.Size)
	if _, err := w.Write(placeholder); err != nil {
		return fmt.Errorf("kdz: write header placeholder: %w", err)
	}

	if len(securePartitionData) > 0 {
		if err := writeAt(w, sp.Offset, securePartitionData); err != nil {
			return fmt.Errorf("kdz: write secure partition: %w", err)
		}
	}

	records := append([]Record(nil), hdr.Records...)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })

	recordsInfo := make(map[string]Location, len(records))
	for _, rec := range records {
		logger.Info("writing kdz component", "name", rec.Name)

		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("kdz: tell: %w", err)
		}
		if uint64(pos) < rec.Offset {
			if _, err := w.Seek(int64(rec.Offset), io.SeekStart); err != nil {
				return fmt.Errorf("kdz: seek to record offset: %w", err)
			}
			pos = int64(rec.Offset)
		}

		var data []byte
		if strings.Contains(rec.Name, ".dz") {
			data = dzData
		} else {
			var ok bool
			data, ok, err = components(rec.Name)
			if err != nil {
				return fmt.Errorf("kdz: read component %q: %w", rec.Name, err)
			}
			if !ok {
				if rec.Size != 0 {
					return fmt.Errorf("kdz: component %q not found", rec.Name)
				}
				data = nil
			}
		}

		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("kdz: write component %q: %w", rec.Name, err)
		}
		recordsInfo[rec.Name] = Location{Offset: uint64(pos), Size: uint64(len(data))}
	}

	additionalRecords := make(map[string]Location)
	if hdr.Version == 3 {
		order := []string{"suffix_map", "sku_map", "extended_sku_map", "extended_mem_id"}
		for _, key := range order {
			data, ok, err := components(key)
			if err != nil {
				return fmt.Errorf("kdz: read additional record %q: %w", key, err)
			}
			if !ok || len(data) == 0 {
				continue
			}

			offset := uint64(ExtendedMemIDOffset)
			if key != "extended_mem_id" {
				pos, err := w.Seek(0, io.SeekCurrent)
				if err != nil {
					return fmt.Errorf("kdz: tell: %w", err)
				}
				offset = uint64(pos)
			}
			if err := writeAt(w, int64(offset), data); err != nil {
				return fmt.Errorf("kdz: write additional record %q: %w", key, err)
			}
			additionalRecords[key] = Location{Offset: offset, Size: uint64(len(data))}
			logger.Info("wrote v3 additional record", "key", key, "offset", offset, "size", len(data))
		}
	}

	var final []byte
	var err error
	switch hdr.Version {
	case 1:
		final, err = buildV1Header(hdr, recordsInfo)
	case 2:
		final, err = buildV2Header(hdr, recordsInfo)
	case 3:
		final, err = buildV3Header(hdr, recordsInfo, additionalRecords)
	default:
		return fmt.Errorf("kdz: unsupported version %d", hdr.Version)
	}
	if err != nil {
		return err
	}

	return writeAt(w, 0, final)
}

func writeAt(w io.WriteSeeker, offset int64, data []byte) error {
	if _, err := w.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func findRecordNameContaining(records []Record, substr string) string {
	for _, r := range records {
		if strings.Contains(r.Name, substr) {
			return r.Name
		}
	}
	return ""
}

func buildV1Header(hdr *Header, info map[string]Location) ([]byte, error) {
	buf := make([]byte, V1HeaderSize)

	dzName := findRecordNameContaining(hdr.Records, ".dz")
	dllName := findRecordNameContaining(hdr.Records, ".dll")

	dzInfo, ok := info[dzName]
	if !ok {
		return nil, fmt.Errorf("kdz: no location recorded for dz record %q", dzName)
	}
	dllInfo := info[dllName]

	body := new(bytes.Buffer)
	if err := writeRaw(body, uint32(V1HeaderSize)); err != nil {
		return nil, err
	}
	if err := writeRaw(body, uint32(V1Magic)); err != nil {
		return nil, err
	}
	if err := writeRaw(body, encodeRawV1Record(dzName, dzInfo.Size, dzInfo.Offset)); err != nil {
		return nil, err
	}
	if err := writeRaw(body, encodeRawV1Record(dllName, dllInfo.Size, dllInfo.Offset)); err != nil {
		return nil, err
	}

	copy(buf, body.Bytes())
	return buf, nil
}

func packV2Record(name string, info map[string]Location) rawV2Record {
	loc := info[name]
	if name == "" {
		return rawV2Record{}
	}
	return encodeRawV2Record(name, loc.Size, loc.Offset)
}

func buildV2StyleBody(hdr *Header, info map[string]Location) (*bytes.Buffer, string, string, string) {
	dzName := findRecordNameContaining(hdr.Records, ".dz")
	dllName := findRecordNameContaining(hdr.Records, ".dll")
	dylibName := findRecordNameContaining(hdr.Records, ".dylib")

	body := new(bytes.Buffer)
	writeRaw(body, packV2Record(dzName, info))
	writeRaw(body, packV2Record(dllName, info))
	body.WriteByte(dylibMarkerThree)
	writeRaw(body, packV2Record(dylibName, info))
	writeRaw(body, rawV2Record{}) // trailing unknown record, always empty on rebuild

	return body, dzName, dllName, dylibName
}

func buildV2Header(hdr *Header, info map[string]Location) ([]byte, error) {
	buf := make([]byte, V2HeaderSize)

	head := new(bytes.Buffer)
	writeRaw(head, uint32(V2HeaderSize))
	writeRaw(head, uint32(V2Magic))

	body, _, _, _ := buildV2StyleBody(hdr, info)

	copy(buf, head.Bytes())
	copy(buf[head.Len():], body.Bytes())
	return buf, nil
}

func buildV3Header(hdr *Header, info map[string]Location, additional map[string]Location) ([]byte, error) {
	buf, err := buildV2Header(hdr, info)
	if err != nil {
		return nil, err
	}
	buf = buf[:V3HeaderSize]

	head := new(bytes.Buffer)
	writeRaw(head, uint32(V3HeaderSize))
	writeRaw(head, uint32(V3Magic))
	copy(buf[:head.Len()], head.Bytes())

	extMemID := additional["extended_mem_id"]
	suffixMap := additional["suffix_map"]
	skuMap := additional["sku_map"]
	extSkuMap := additional["extended_sku_map"]

	totalAdditional := suffixMap.Size + skuMap.Size + extSkuMap.Size

	tail := new(bytes.Buffer)
	writeRaw(tail, uint32(extMemID.Size))
	tail.Write(binutil.EncodeASCIIZ(hdr.Tag, 5))
	writeRaw(tail, totalAdditional)
	writeRaw(tail, suffixMap.Offset)
	writeRaw(tail, uint32(suffixMap.Size))
	writeRaw(tail, skuMap.Offset)
	writeRaw(tail, uint32(skuMap.Size))
	tail.Write(binutil.EncodeASCIIZ(hdr.FtmModelName, 32))
	writeRaw(tail, extSkuMap.Offset)
	writeRaw(tail, uint32(extSkuMap.Size))

	copy(buf[1097:], tail.Bytes())
	return buf, nil
}
