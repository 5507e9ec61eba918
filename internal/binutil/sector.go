package binutil

// SectorSize is the fixed sector size sector-indexed fields in the DZ and
// Secure Partition formats are expressed in.
const SectorSize = 4096

// SectorOffset converts a sector index to a byte offset.
func SectorOffset(sector uint32) int64 {
	return int64(sector) * SectorSize
}

// SectorSpan converts a sector count to a byte length.
func SectorSpan(sectors uint32) int64 {
	return int64(sectors) * SectorSize
}
